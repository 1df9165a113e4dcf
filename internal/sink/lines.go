package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Stdout is the path that makes Lines write to standard output.
const Stdout = "-"

// Lines appends one JSON document per line to a file.
type Lines struct {
	mu   sync.Mutex
	path string
	w    io.Writer
	f    *os.File
}

// NewLines opens path for appending, creating it and its directory when
// missing.
func NewLines(path string) (*Lines, error) {
	if path == Stdout || path == "" {
		return &Lines{path: Stdout, w: os.Stdout}, nil
	}
	f, err := openAppend(path)
	if err != nil {
		return nil, err
	}
	return &Lines{path: path, w: f, f: f}, nil
}

// NewLinesWriter writes lines to w.
func NewLinesWriter(w io.Writer) *Lines {
	return &Lines{path: Stdout, w: w}
}

// Path returns the file written to, or Stdout.
func (l *Lines) Path() string {
	return l.path
}

// Write marshals v and appends it as one line.
func (l *Lines) Write(ctx context.Context, v any) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled: %w", err)
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal line: %w", err)
	}
	payload = append(payload, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.w.Write(payload); err != nil {
		return fmt.Errorf("write line to %s: %w", l.path, err)
	}
	return nil
}

// Close closes the underlying file, if any.
func (l *Lines) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	if err != nil {
		return fmt.Errorf("close %s: %w", l.path, err)
	}
	return nil
}

// ReadLines decodes one JSON document of type T per non-empty line.
func ReadLines[T any](r io.Reader) ([]T, error) {
	var out []T
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read lines: %w", err)
	}
	return out, nil
}

// ReadLinesFile is ReadLines over a file.
func ReadLinesFile[T any](path string) ([]T, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	out, err := ReadLines[T](f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}

func openAppend(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create dir for %s: %w", path, err)
		}
	}
	f, err := os.OpenFile(filepath.Clean(path), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}
