package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/hiscore-crawler/internal/progress"
)

// PrometheusSink exports run level collectors. Stage and fetch level
// metrics live in package metrics.
type PrometheusSink struct {
	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runsRunning   prometheus.Gauge
	runRuntime    *prometheus.HistogramVec
	runItems      *prometheus.CounterVec

	mu       sync.Mutex
	commands map[[16]byte]string
}

// NewPrometheusSink registers the collectors against reg, the default
// registerer when nil.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hiscore_runs_started_total",
			Help: "Total pipeline runs started, labeled by command.",
		}, []string{"command"}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hiscore_runs_completed_total",
			Help: "Total pipeline runs completed, labeled by command and status.",
		}, []string{"command", "status"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hiscore_runs_running",
			Help: "Current number of running pipeline runs.",
		}),
		runRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hiscore_run_runtime_seconds",
			Help:    "Wall time per completed run.",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 1800, 3600, 7200},
		}, []string{"command", "status"}),
		runItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hiscore_run_items_total",
			Help: "Output items produced by completed runs, labeled by command.",
		}, []string{"command"}),
		commands: make(map[[16]byte]string),
	}
	for _, c := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.runRuntime,
		s.runItems,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		switch evt.Kind {
		case progress.KindRunStart:
			if _, ok := s.commands[evt.RunID]; ok {
				continue
			}
			s.commands[evt.RunID] = evt.Command
			s.runsStarted.WithLabelValues(evt.Command).Inc()
			s.runsRunning.Inc()
		case progress.KindRunDone, progress.KindRunError:
			command, ok := s.commands[evt.RunID]
			if !ok {
				command = "unknown"
			} else {
				delete(s.commands, evt.RunID)
				s.runsRunning.Dec()
			}
			status := "succeeded"
			if evt.Kind == progress.KindRunError {
				status = "failed"
				if evt.Status != "" {
					status = string(evt.Status)
				}
			}
			s.runsCompleted.WithLabelValues(command, status).Inc()
			s.runItems.WithLabelValues(command).Add(float64(evt.Items))
			if evt.Dur > 0 {
				s.runRuntime.WithLabelValues(command, status).Observe(evt.Dur.Seconds())
			}
		}
	}
	return nil
}

// Close implements progress.Sink.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
