// Package health periodically probes the ledger and tracks whether the
// registry should be considered healthy or degraded.
package health

import (
	"context"
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

// Status is the health of the ledger as seen by the checker.
type Status string

const (
	StatusUnknown  Status = "unknown"
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
)

// Prober reports whether the ledger answers. *service.Registry satisfies it.
type Prober interface {
	Available(ctx context.Context) error
}

// MetricsRecordFunc is an optional callback for recording probe results.
type MetricsRecordFunc func(success bool)

// StatusChangeFunc is an optional callback invoked on every status change.
type StatusChangeFunc func(from, to Status)

// Checker runs periodic ledger probes.
type Checker struct {
	target    Prober
	cfg       Config
	mu        sync.Mutex
	failCount int
	status    Status
	lastSeen  time.Time
	onMetrics MetricsRecordFunc
	onChange  StatusChangeFunc
	logger    *zap.Logger
}

// New creates a Checker with status unknown until the first probe.
func New(target Prober, cfg Config, logger *zap.Logger) *Checker {
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
		target: target,
		cfg:    cfg,
		status: StatusUnknown,
		logger: logger,
	}
}

// SetMetricsRecord configures the metrics recording callback.
func (h *Checker) SetMetricsRecord(fn MetricsRecordFunc) {
	h.onMetrics = fn
}

// SetStatusChange configures the status change callback.
func (h *Checker) SetStatusChange(fn StatusChangeFunc) {
	h.onChange = fn
}

// Start probes once immediately, then every CheckInterval until ctx is done.
func (h *Checker) Start(ctx context.Context) {
	h.Check(ctx)

	ticker := time.NewTicker(h.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.Check(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Check runs one probe and returns the resulting status. A single success
// makes the ledger healthy; it becomes degraded after FailThreshold
// consecutive failures.
func (h *Checker) Check(ctx context.Context) Status {
	ctx, cancel := context.WithTimeout(ctx, h.cfg.ProbeTimeout)
	err := h.target.Available(ctx)
	cancel()
	success := err == nil

	if h.onMetrics != nil {
		h.onMetrics(success)
	}

	h.mu.Lock()
	prev := h.status
	if success {
		h.failCount = 0
		h.lastSeen = time.Now().UTC()
		h.status = StatusHealthy
	} else {
		h.failCount++
		if h.failCount >= h.cfg.FailThreshold {
			h.status = StatusDegraded
		}
	}
	next, count := h.status, h.failCount
	h.mu.Unlock()

	if !success {
		h.logger.Warn("health: ledger probe failed", zap.Int("fail_count", count), zap.Error(err))
	}
	if next != prev {
		switch next {
		case StatusDegraded:
			h.logger.Warn("health: ledger degraded", zap.Int("fail_count", count))
		case StatusHealthy:
			h.logger.Info("health: ledger healthy", zap.String("previous", string(prev)))
		}
		if h.onChange != nil {
			h.onChange(prev, next)
		}
	}
	return next
}

// Status returns the current status.
func (h *Checker) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// LastSeen returns the time of the last successful probe, or the zero time.
func (h *Checker) LastSeen() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastSeen
}
