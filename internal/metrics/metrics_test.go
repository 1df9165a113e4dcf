package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard https", "https://Secure.RuneScape.com/m=hiscore_oldschool/overall", "secure.runescape.com"},
		{"no scheme", "secure.runescape.com/m=hiscore_oldschool", "secure.runescape.com"},
		{"host with port", "localhost:8080", "localhost"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if fetchesTotal == nil || retryAttemptsTotal == nil ||
		stageCursor == nil || httpRequestsTotal == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveHelpers(t *testing.T) {
	ObserveFetch("page", "ok", 10*time.Millisecond)
	if val := testutil.ToFloat64(fetchesTotal.WithLabelValues("page", "ok")); val < 1 {
		t.Errorf("expected page fetch counter >= 1, got %f", val)
	}

	before := testutil.ToFloat64(retryAttemptsTotal.WithLabelValues("metrics_test"))
	ObserveRetryAttempt("metrics_test")
	ObserveRetryAttempt("metrics_test")
	if val := testutil.ToFloat64(retryAttemptsTotal.WithLabelValues("metrics_test")); val != before+2 {
		t.Errorf("expected retry attempts %f, got %f", before+2, val)
	}

	ObserveRetryFailure("metrics_test")
	if val := testutil.ToFloat64(retryFailuresTotal.WithLabelValues("metrics_test")); val != 1 {
		t.Errorf("expected one retry failure, got %f", val)
	}

	SetStageCursor("metrics_test", 42)
	if val := testutil.ToFloat64(stageCursor.WithLabelValues("metrics_test")); val != 42 {
		t.Errorf("expected cursor 42, got %f", val)
	}

	SetQueueDepth("metrics_test", 7)
	if val := testutil.ToFloat64(stageQueueDepth.WithLabelValues("metrics_test")); val != 7 {
		t.Errorf("expected depth 7, got %f", val)
	}

	IncActiveWorkers("metrics_test")
	IncActiveWorkers("metrics_test")
	DecActiveWorkers("metrics_test")
	if val := testutil.ToFloat64(activeWorkers.WithLabelValues("metrics_test")); val != 1 {
		t.Errorf("expected one active worker, got %f", val)
	}

	ObserveStageRelease("metrics_test", "skipped")
	if val := testutil.ToFloat64(stageEmittedTotal.WithLabelValues("metrics_test", "skipped")); val != 1 {
		t.Errorf("expected one skipped release, got %f", val)
	}

	ObserveRateLimitDelay("metrics_test", 20*time.Millisecond)
	if val := testutil.CollectAndCount(rateLimitDelaysSeconds); val <= 0 {
		t.Errorf("expected rate limit histogram to be observed, got %d", val)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://secure.runescape.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
