// Package observer provides the stock tick.Observer implementations: a log
// observer feeding the categorized logger and a console writer that renders
// tick reports for a human operator. Observers run outside the orchestration
// core and must tolerate being abandoned mid-notification.
package observer

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"fabula/internal/logging"
	"fabula/internal/tick"
	"fabula/internal/world"
)

// Log forwards lifecycle events to the observer log category.
type Log struct{}

// NewLog returns a logging observer.
func NewLog() *Log { return &Log{} }

func (l *Log) OnTickStart(runID string, tickNumber int, w *world.World) {
	logging.Get(logging.CategoryObserver).Infof("tick %d starting (run %s, %d entities)",
		tickNumber, runID, len(w.Entities))
}

func (l *Log) OnPhaseComplete(phase string, result tick.PhaseResult) {
	log := logging.Get(logging.CategoryObserver)
	if !result.Success {
		log.Warnf("phase %q failed: %s", phase, result.Error)
		return
	}
	if result.Stats != nil {
		log.Infof("phase %q complete: %d/%d requests ok, %d tokens",
			phase, result.Stats.Successes, result.Stats.Requests, result.Stats.Usage.TotalTokens)
		return
	}
	log.Infof("phase %q complete", phase)
}

func (l *Log) Output(report tick.Report) {
	logging.Get(logging.CategoryObserver).Infof(
		"tick %d committed in %v: %d requests, %d errors, %d tokens",
		report.TickNumber, report.Duration.Round(time.Millisecond),
		report.Stats.Requests, report.Stats.Errors, report.Stats.Usage.TotalTokens)
}

// Console renders tick reports to a writer, typically stdout.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsole returns a console observer writing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

func (c *Console) OnTickStart(runID string, tickNumber int, w *world.World) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, "--- tick %d ---\n", tickNumber)
}

func (c *Console) OnPhaseComplete(phase string, result tick.PhaseResult) {
	if result.Success {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, "  %s: FAILED (%s)\n", phase, result.Error)
}

func (c *Console) Output(report tick.Report) {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := make([]string, 0, len(report.PhaseStats))
	for name := range report.PhaseStats {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s := report.PhaseStats[name]
		fmt.Fprintf(c.w, "  %-10s %d/%d ok, %d tokens\n", name, s.Successes, s.Requests, s.Usage.TotalTokens)
	}
	fmt.Fprintf(c.w, "tick %d committed in %v (%d requests, %d tokens)\n",
		report.TickNumber, report.Duration.Round(time.Millisecond), report.Stats.Requests, report.Stats.Usage.TotalTokens)
}
