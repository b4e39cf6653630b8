package checks

import (
	"context"
	"time"
)

// Pinger is a backend that can answer a liveness check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RemoteReport is the result of probing the remote backend.
type RemoteReport struct {
	Enabled   bool   `json:"enabled"`
	Reachable bool   `json:"reachable"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
	Status    string `json:"status"` // "ok", "disabled", "error"
}

// CheckRemote pings the backend within timeout. A nil backend reports disabled.
func CheckRemote(ctx context.Context, p Pinger, timeout time.Duration) RemoteReport {
	if p == nil {
		return RemoteReport{Status: "disabled"}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := p.Ping(ctx)
	report := RemoteReport{Enabled: true, LatencyMs: time.Since(start).Milliseconds()}
	if err != nil {
		report.Error = err.Error()
		report.Status = "error"
		return report
	}
	report.Reachable = true
	report.Status = "ok"
	return report
}
