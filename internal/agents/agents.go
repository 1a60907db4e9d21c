// Package agents implements background consolidation: decay analysis,
// cluster detection, semantic merging, LTM promotion, and relationship
// discovery, coordinated by a fixed-order scheduler.
package agents

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Agent is one consolidation pass. Runs must be safe to repeat; a dry run
// reports intended actions without mutating anything.
type Agent interface {
	Name() string
	Run(ctx context.Context, dryRun bool) (*Report, error)
}

// Action is one concrete thing an agent did or, in a dry run, would do.
type Action struct {
	Type      string   `json:"type"`
	MemoryIDs []string `json:"memory_ids"`
	Detail    string   `json:"detail,omitempty"`
}

// Report is the envelope every agent returns.
type Report struct {
	Agent      string   `json:"agent"`
	DryRun     bool     `json:"dry_run"`
	Scanned    int      `json:"scanned"`
	Processed  int      `json:"processed"`
	Errors     int      `json:"errors"`
	Actions    []Action `json:"actions"`
	DurationMS float64  `json:"duration_ms"`
}

// runItems drives the scan-then-process loop shared by all agents. A failed
// item is logged and counted, never fatal; the scan itself failing is.
func runItems[T any](
	ctx context.Context,
	name string,
	dryRun bool,
	logger *zap.Logger,
	scan func() ([]T, error),
	process func(item T) (*Action, error),
) (*Report, error) {
	start := time.Now()
	report := &Report{Agent: name, DryRun: dryRun, Actions: []Action{}}

	items, err := scan()
	if err != nil {
		return nil, err
	}
	report.Scanned = len(items)

	for _, item := range items {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		action, err := process(item)
		if err != nil {
			report.Errors++
			logger.Warn("agent item failed", zap.String("agent", name), zap.Error(err))
			continue
		}
		if action != nil {
			report.Processed++
			report.Actions = append(report.Actions, *action)
		}
	}

	report.DurationMS = float64(time.Since(start).Microseconds()) / 1000.0
	return report, nil
}
