package sink

import (
	"fmt"
	"os"
	"sync"
)

// ErrorLog appends one line per call that exhausted its retries.
type ErrorLog struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// NewErrorLog opens path for appending.
func NewErrorLog(path string) (*ErrorLog, error) {
	f, err := openAppend(path)
	if err != nil {
		return nil, err
	}
	return &ErrorLog{path: path, f: f}, nil
}

// Record appends line.
func (e *ErrorLog) Record(line string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.f == nil {
		return fmt.Errorf("error log %s is closed", e.path)
	}
	if _, err := fmt.Fprintln(e.f, line); err != nil {
		return fmt.Errorf("append to %s: %w", e.path, err)
	}
	return nil
}

// Close closes the file.
func (e *ErrorLog) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.f == nil {
		return nil
	}
	err := e.f.Close()
	e.f = nil
	if err != nil {
		return fmt.Errorf("close %s: %w", e.path, err)
	}
	return nil
}
