package uuid

import (
	"testing"

	goUUID "github.com/google/uuid"
)

func TestGeneratorNewRunID(t *testing.T) {
	t.Parallel()

	gen := New()
	id1, err := gen.NewRunID()
	if err != nil {
		t.Fatalf("NewRunID() error = %v", err)
	}
	id2, err := gen.NewRunID()
	if err != nil {
		t.Fatalf("NewRunID() error = %v", err)
	}
	if id1 == id2 {
		t.Fatalf("expected unique IDs, got %s and %s", id1, id2)
	}
	parsed, err := goUUID.Parse(id1.String())
	if err != nil {
		t.Fatalf("id1 not valid UUID: %v", err)
	}
	if parsed.Version() != 7 {
		t.Fatalf("expected version 7, got %d", parsed.Version())
	}
}

func TestGeneratorRunIDsAreOrdered(t *testing.T) {
	t.Parallel()

	gen := New()
	prev, err := gen.NewRunID()
	if err != nil {
		t.Fatalf("NewRunID() error = %v", err)
	}
	for i := 0; i < 100; i++ {
		next, err := gen.NewRunID()
		if err != nil {
			t.Fatalf("NewRunID() error = %v", err)
		}
		if next.String() <= prev.String() {
			t.Fatalf("expected %s to sort after %s", next, prev)
		}
		prev = next
	}
}
