package healthcheck

import (
	"context"
	"log/slog"
	"time"
)

// DefaultProbeTimeout bounds a single probe.
const DefaultProbeTimeout = 3 * time.Second

// Probe checks one dependency. A nil Check is reported as unknown.
type Probe struct {
	ID    string
	Type  string
	Check func(ctx context.Context) error
}

// ProbeChecker runs probes sequentially, each under its own timeout.
type ProbeChecker struct {
	logger  *slog.Logger
	probes  []Probe
	timeout time.Duration
}

// NewProbeChecker creates a checker over probes.
func NewProbeChecker(log *slog.Logger, probes ...Probe) *ProbeChecker {
	if log == nil {
		log = slog.Default()
	}
	return &ProbeChecker{
		logger:  log.With(slog.String("checker", "healthcheck_probe")),
		probes:  probes,
		timeout: DefaultProbeTimeout,
	}
}

// ListChecks evaluates every probe.
func (c *ProbeChecker) ListChecks(ctx context.Context) []CheckResult {
	if c == nil {
		return []CheckResult{}
	}
	results := make([]CheckResult, 0, len(c.probes))
	for _, p := range c.probes {
		item := CheckResult{ID: p.ID, Type: p.Type, Status: StatusUnknown}
		if p.Check == nil {
			item.Summary = "no check configured"
			results = append(results, item)
			continue
		}
		probeCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err := p.Check(probeCtx)
		cancel()
		if err != nil {
			item.Status = StatusError
			item.Summary = "unreachable"
			item.Detail = err.Error()
			c.logger.Warn("health probe failed", slog.String("id", p.ID), slog.Any("error", err))
		} else {
			item.Status = StatusOK
			item.Summary = "healthy"
		}
		results = append(results, item)
	}
	return results
}
