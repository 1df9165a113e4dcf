package sink

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hiscore-crawler/internal/hiscore"
)

func TestDrainConsumesExactlyTotal(t *testing.T) {
	t.Parallel()

	in := make(chan *hiscore.CategoryRecord, 5)
	in <- &hiscore.CategoryRecord{Rank: 1}
	in <- nil
	in <- &hiscore.CategoryRecord{Rank: 3}
	in <- &hiscore.CategoryRecord{Rank: 4}

	var written []int
	err := Drain(context.Background(), in, 3, func(_ context.Context, r *hiscore.CategoryRecord) error {
		written = append(written, r.Rank)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []int{1, 3}, written)
	require.Len(t, in, 1)
}

func TestDrainStopsOnWriteError(t *testing.T) {
	t.Parallel()

	boom := errors.New("disk full")
	in := make(chan *hiscore.CategoryRecord, 1)
	in <- &hiscore.CategoryRecord{Rank: 1}

	err := Drain(context.Background(), in, 1, func(context.Context, *hiscore.CategoryRecord) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
}

func TestDrainHonorsCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Drain(ctx, make(chan *hiscore.CategoryRecord), 1, func(context.Context, *hiscore.CategoryRecord) error {
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestDrainReportsClosedInput(t *testing.T) {
	t.Parallel()

	in := make(chan *hiscore.CategoryRecord)
	close(in)
	err := Drain(context.Background(), in, 2, func(context.Context, *hiscore.CategoryRecord) error {
		return nil
	})
	require.Error(t, err)
}

func TestLinesRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "out", "records.jsonl")
	lines, err := NewLines(path)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, lines.Write(ctx, hiscore.CategoryRecord{Rank: 1, Score: 500, Username: "a"}))
	require.NoError(t, lines.Write(ctx, hiscore.CategoryRecord{Rank: 2, Score: 400, Username: "b"}))
	require.NoError(t, lines.Close())
	require.NoError(t, lines.Close())

	got, err := ReadLinesFile[hiscore.CategoryRecord](path)
	require.NoError(t, err)
	require.Equal(t, []hiscore.CategoryRecord{
		{Rank: 1, Score: 500, Username: "a"},
		{Rank: 2, Score: 400, Username: "b"},
	}, got)

	// Reopening appends.
	lines, err = NewLines(path)
	require.NoError(t, err)
	require.NoError(t, lines.Write(ctx, hiscore.CategoryRecord{Rank: 3}))
	require.NoError(t, lines.Close())
	got, err = ReadLinesFile[hiscore.CategoryRecord](path)
	require.NoError(t, err)
	require.Len(t, got, 3)
}

func TestReadLinesRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := ReadLines[hiscore.CategoryRecord](strings.NewReader("{\"rank\":1}\n\nnot json\n"))
	require.ErrorContains(t, err, "line 3")
}

func TestLinesWriter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	lines := NewLinesWriter(&buf)
	require.NoError(t, lines.Write(context.Background(), map[string]int{"max_page": 3}))
	require.Equal(t, "{\"max_page\":3}\n", buf.String())
	require.Equal(t, Stdout, lines.Path())
	require.NoError(t, lines.Close())
}

func TestErrorLogAppends(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "errors.txt")
	log, err := NewErrorLog(path)
	require.NoError(t, err)
	require.NoError(t, log.Record("zezima,hiscore_oldschool, fetch_user"))
	require.NoError(t, log.Record("3,zulrah, fetch_page"))
	require.NoError(t, log.Close())
	require.Error(t, log.Record("late"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "zezima,hiscore_oldschool, fetch_user\n3,zulrah, fetch_page\n", string(raw))
}
