// Package health probes the engine's backing stores and tracks whether each
// one is currently usable.
package health

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config holds health check configuration.
type Config struct {
	CheckInterval time.Duration
	ProbeTimeout  time.Duration
	FailThreshold int
}

// Probe checks one dependency, returning nil when it is reachable.
type Probe func(ctx context.Context) error

// MetricsRecordFunc is an optional callback for recording probe results.
type MetricsRecordFunc func(dependency string, success bool)

// Status is the last known state of one dependency.
type Status struct {
	Name        string    `json:"name"`
	Critical    bool      `json:"critical"`
	Healthy     bool      `json:"healthy"`
	Failures    int       `json:"consecutive_failures"`
	LastError   string    `json:"last_error,omitempty"`
	LastChecked time.Time `json:"last_checked"`
}

type dependency struct {
	probe  Probe
	status Status
}

// Checker runs periodic dependency probes.
type Checker struct {
	mu        sync.Mutex
	deps      map[string]*dependency
	cfg       Config
	onMetrics MetricsRecordFunc
	logger    *zap.Logger
}

// New creates a new Checker.
func New(cfg Config, logger *zap.Logger) *Checker {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 30 * time.Second
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 3
	}
	return &Checker{
		deps:   make(map[string]*dependency),
		cfg:    cfg,
		logger: logger,
	}
}

// Register adds a dependency. A critical dependency that is degraded makes
// the whole service unhealthy. Dependencies start healthy.
func (h *Checker) Register(name string, critical bool, probe Probe) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deps[name] = &dependency{
		probe:  probe,
		status: Status{Name: name, Critical: critical, Healthy: true},
	}
}

// SetMetricsRecord configures the metrics recording callback.
func (h *Checker) SetMetricsRecord(fn MetricsRecordFunc) {
	h.onMetrics = fn
}

// Run probes every CheckInterval until ctx is cancelled.
func (h *Checker) Run(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.CheckAll(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// CheckAll probes every registered dependency concurrently.
func (h *Checker) CheckAll(ctx context.Context) {
	h.mu.Lock()
	names := make([]string, 0, len(h.deps))
	probes := make([]Probe, 0, len(h.deps))
	for name, d := range h.deps {
		names = append(names, name)
		probes = append(probes, d.probe)
	}
	h.mu.Unlock()

	var wg sync.WaitGroup
	for i := range names {
		wg.Add(1)
		go func(name string, probe Probe) {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, h.cfg.ProbeTimeout)
			err := probe(pctx)
			cancel()
			h.record(name, err)
		}(names[i], probes[i])
	}
	wg.Wait()
}

func (h *Checker) record(name string, err error) {
	if h.onMetrics != nil {
		h.onMetrics(name, err == nil)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	d, ok := h.deps[name]
	if !ok {
		return
	}
	s := &d.status
	s.LastChecked = time.Now().UTC()

	if err == nil {
		if !s.Healthy {
			h.logger.Info("health: recovered", zap.String("dependency", name))
		}
		s.Healthy, s.Failures, s.LastError = true, 0, ""
		return
	}

	s.Failures++
	s.LastError = err.Error()
	if s.Failures == h.cfg.FailThreshold {
		// Transition: healthy → degraded (exactly at threshold)
		s.Healthy = false
		h.logger.Warn("health: degraded",
			zap.String("dependency", name),
			zap.Int("fail_count", s.Failures),
			zap.Error(err),
		)
	}
}

// Healthy reports whether no critical dependency is degraded.
func (h *Checker) Healthy() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, d := range h.deps {
		if d.status.Critical && !d.status.Healthy {
			return false
		}
	}
	return true
}

// Snapshot returns the status of every dependency, ordered by name.
func (h *Checker) Snapshot() []Status {
	h.mu.Lock()
	out := make([]Status, 0, len(h.deps))
	for _, d := range h.deps {
		out = append(out, d.status)
	}
	h.mu.Unlock()
	slices.SortFunc(out, func(a, b Status) int { return strings.Compare(a.Name, b.Name) })
	return out
}
