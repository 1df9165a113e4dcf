// Package proxy rotates outbound requests across a list of HTTP proxies.
package proxy

import (
	"bufio"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Rotator hands out proxies round-robin. The zero value and a Rotator with
// no proxies both return nil, meaning a direct connection.
type Rotator struct {
	mu      sync.Mutex
	proxies []*url.URL
	idx     int
}

// NewRotator builds a Rotator over proxies.
func NewRotator(proxies []*url.URL) *Rotator {
	return &Rotator{proxies: append([]*url.URL(nil), proxies...)}
}

// Next returns the next proxy.
func (r *Rotator) Next() *url.URL {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.proxies) == 0 {
		return nil
	}
	p := r.proxies[r.idx]
	r.idx = (r.idx + 1) % len(r.proxies)
	return p
}

// Len returns the number of proxies.
func (r *Rotator) Len() int {
	if r == nil {
		return 0
	}
	return len(r.proxies)
}

// ProxyFunc adapts the rotator to http.Transport.Proxy.
func (r *Rotator) ProxyFunc() func(*http.Request) (*url.URL, error) {
	return func(*http.Request) (*url.URL, error) {
		return r.Next(), nil
	}
}

// Load reads one proxy URL per line. Blank lines and lines starting with '#'
// are skipped; a missing scheme means http. An empty path yields no proxies.
func Load(path string) ([]*url.URL, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open proxy file %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var out []*url.URL
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		u, err := Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		out = append(out, u)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read proxy file %s: %w", path, err)
	}
	return out, nil
}

// Parse parses a single proxy address.
func Parse(raw string) (*url.URL, error) {
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse proxy %q: %w", raw, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("parse proxy %q: missing host", raw)
	}
	return u, nil
}
