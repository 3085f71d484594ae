// Package tick runs ordered simulation phases and guarantees all-or-nothing
// world mutation: phases work on a clone of the world and the live state is
// swapped only when every phase has succeeded.
package tick

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"fabula/internal/config"
	"fabula/internal/logging"
	"fabula/internal/provider"
	"fabula/internal/relay"
	"fabula/internal/world"
)

// ErrBusy is returned when a tick is started while another is running.
var ErrBusy = errors.New("tick already running")

// observerDrainTimeout bounds the end-of-tick wait for slow observers.
const observerDrainTimeout = 5 * time.Second

// State tracks the orchestrator's tick lifecycle.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateCommitted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCommitted:
		return "committed"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// PhaseResult is what a phase reports back. Success false aborts the tick;
// a phase that handled per-entity failures internally still reports true.
type PhaseResult struct {
	Success bool
	Data    any
	Error   string
	Stats   *relay.BatchStats
}

// Phase is one step of a tick. Entities selects the subset the phase's relay
// is scoped to; Run receives the previous phase's Data as input.
type Phase struct {
	Name     string
	Entities func(w *world.World) []*world.Entity
	Run      func(ctx context.Context, w *world.World, cfg *config.Config, rel *relay.Relay, input any) PhaseResult
}

// PhaseError is the tick-fatal error carrying the failing phase's name.
type PhaseError struct {
	Phase   string
	Message string
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("phase %q failed: %s", e.Phase, e.Message)
}

// Report summarizes one committed tick.
type Report struct {
	RunID      string
	TickNumber int
	Duration   time.Duration
	Stats      relay.BatchStats
	PhaseStats map[string]relay.BatchStats
}

// Observer receives lifecycle notifications. Implementations run outside the
// core; failures inside them are logged and never affect the tick.
type Observer interface {
	OnTickStart(runID string, tickNumber int, w *world.World)
	OnPhaseComplete(phase string, result PhaseResult)
	Output(report Report)
}

// Orchestrator owns the live world and drives ticks over a fixed phase list.
type Orchestrator struct {
	cfg       *config.Config
	client    provider.Client
	phases    []Phase
	observers []Observer

	mu    sync.Mutex
	state State
	world *world.World
}

// New builds an orchestrator around the given live world.
func New(cfg *config.Config, client provider.Client, w *world.World, phases []Phase, observers ...Observer) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		client:    client,
		phases:    phases,
		observers: observers,
		state:     StateIdle,
		world:     w,
	}
}

// World returns the live world. Safe to persist only between ticks.
func (o *Orchestrator) World() *world.World {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.world
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// RunTick executes every phase in order against a clone of the world. If all
// phases succeed the clone replaces the live world and the tick counter
// increments; any phase failure leaves the live world untouched. A second
// concurrent call returns ErrBusy without touching state.
func (o *Orchestrator) RunTick(ctx context.Context) (*Report, error) {
	o.mu.Lock()
	if o.state == StateRunning {
		o.mu.Unlock()
		return nil, ErrBusy
	}
	o.state = StateRunning
	working := o.world.Clone()
	o.mu.Unlock()

	runID := uuid.NewString()
	tickNumber := working.Tick + 1
	start := time.Now()
	timer := logging.StartTimer(logging.CategoryTick, fmt.Sprintf("tick %d", tickNumber))

	notifier := newNotifier()
	defer notifier.drain(observerDrainTimeout)

	for _, obs := range o.observers {
		obs := obs
		notifier.fire(func() { obs.OnTickStart(runID, tickNumber, working) })
	}

	report := &Report{
		RunID:      runID,
		TickNumber: tickNumber,
		PhaseStats: make(map[string]relay.BatchStats, len(o.phases)),
	}

	var input any
	for _, phase := range o.phases {
		logging.Phase("tick %d: running phase %q", tickNumber, phase.Name)

		var scoped []*world.Entity
		if phase.Entities != nil {
			scoped = phase.Entities(working)
		} else {
			scoped = working.Entities
		}
		rel := relay.New(o.client, scoped, o.cfg.Chains)

		result := phase.Run(ctx, working, o.cfg, rel, input)

		if result.Stats != nil {
			report.PhaseStats[phase.Name] = *result.Stats
			report.Stats.Merge(*result.Stats)
		}
		for _, obs := range o.observers {
			obs, name, result := obs, phase.Name, result
			notifier.fire(func() { obs.OnPhaseComplete(name, result) })
		}

		if !result.Success {
			o.setState(StateAborted)
			logging.Tick("tick %d aborted in phase %q: %s", tickNumber, phase.Name, result.Error)
			o.setState(StateIdle)
			return nil, &PhaseError{Phase: phase.Name, Message: result.Error}
		}
		input = result.Data
	}

	// Commit: every phase succeeded, so the working clone becomes the live
	// world in one swap.
	o.mu.Lock()
	working.Tick = tickNumber
	o.world = working
	o.state = StateCommitted
	o.mu.Unlock()

	report.Duration = time.Since(start)
	timer.Stop()
	logging.Tick("tick %d committed (%d requests, %d tokens)",
		tickNumber, report.Stats.Requests, report.Stats.Usage.TotalTokens)

	for _, obs := range o.observers {
		obs, rep := obs, *report
		notifier.fire(func() { obs.Output(rep) })
	}

	o.setState(StateIdle)
	return report, nil
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// notifier accumulates observer notifications as goroutines during the tick
// and joins them once, with a bound, at the end. Panics inside observers are
// contained and logged.
type notifier struct {
	wg sync.WaitGroup
}

func newNotifier() *notifier {
	return &notifier{}
}

func (n *notifier) fire(fn func()) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				logging.Get(logging.CategoryObserver).Errorf("observer panicked: %v", r)
			}
		}()
		fn()
	}()
}

// drain waits for all pending notifications up to the timeout. Slow
// observers are abandoned so they cannot stall the next tick.
func (n *notifier) drain(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		logging.Get(logging.CategoryObserver).Warnf("observers still running after %v, abandoning", timeout)
	}
}
