package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"fabula/internal/logging"
	"fabula/internal/observer"
	"fabula/internal/phases"
	"fabula/internal/provider"
	"fabula/internal/snapshot"
	"fabula/internal/tick"
	"fabula/internal/world"
)

var (
	seedPath string
	maxTicks int
	fresh    bool
)

// runCmd drives the simulation loop: load or seed a world, tick until the
// budget is spent or the process is interrupted, snapshot after every commit.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the simulation loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		if seedPath != "" {
			cfg.World.SeedPath = seedPath
		}
		if cmd.Flags().Changed("ticks") {
			cfg.World.MaxTicks = maxTicks
		}

		store, err := snapshot.NewStore(cfg.Snapshot.DatabasePath, cfg.Snapshot.KeepHistory)
		if err != nil {
			return err
		}
		defer store.Close()

		w, err := loadWorld(store)
		if err != nil {
			return err
		}
		logging.Get(logging.CategoryBoot).Infof("world %q loaded at tick %d (%d entities)",
			w.Name, w.Tick, len(w.Entities))

		client := provider.NewHTTPClient(cfg.Provider)
		orch := tick.New(cfg, client, w, phases.Standard(),
			observer.NewLog(), observer.NewConsole(os.Stdout))

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return loop(ctx, orch, store)
	},
}

func init() {
	runCmd.Flags().StringVar(&seedPath, "seed", "", "World seed file (overrides config)")
	runCmd.Flags().IntVar(&maxTicks, "ticks", 0, "Number of ticks to run (0 = until interrupted)")
	runCmd.Flags().BoolVar(&fresh, "fresh", false, "Ignore stored snapshots and start from the seed")
}

// loadWorld resumes from the latest snapshot, falling back to the seed file
// for a first run (or when --fresh is set).
func loadWorld(store *snapshot.Store) (*world.World, error) {
	if !fresh {
		w, err := store.LoadLatest()
		if err == nil {
			return w, nil
		}
		if !errors.Is(err, snapshot.ErrNoSnapshot) {
			return nil, err
		}
	}
	return world.LoadSeed(cfg.World.SeedPath)
}

func loop(ctx context.Context, orch *tick.Orchestrator, store *snapshot.Store) error {
	interval := cfg.World.TickIntervalDuration()

	for n := 0; cfg.World.MaxTicks == 0 || n < cfg.World.MaxTicks; n++ {
		if ctx.Err() != nil {
			break
		}

		report, err := orch.RunTick(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			var pe *tick.PhaseError
			if errors.As(err, &pe) {
				// The world is untouched; wait out the interval and try again.
				fmt.Fprintf(os.Stderr, "tick aborted: %v\n", pe)
				logging.Tick("tick aborted, retrying after interval: %v", pe)
				if !sleep(ctx, interval) {
					break
				}
				continue
			}
			return err
		}

		if err := store.Save(orch.World()); err != nil {
			return fmt.Errorf("failed to snapshot tick %d: %w", report.TickNumber, err)
		}

		if !sleep(ctx, interval) {
			break
		}
	}

	logging.Tick("simulation stopped at tick %d", orch.World().Tick)
	return nil
}

// sleep waits out the tick interval, returning false when the context ends.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
