package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"fabula/internal/snapshot"
	"fabula/internal/world"
)

var showTick int

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Inspect stored world snapshots",
}

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored snapshots, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := snapshot.NewStore(cfg.Snapshot.DatabasePath, cfg.Snapshot.KeepHistory)
		if err != nil {
			return err
		}
		defer store.Close()

		infos, err := store.History(0)
		if err != nil {
			return err
		}
		if len(infos) == 0 {
			fmt.Println("no snapshots stored")
			return nil
		}
		for _, info := range infos {
			fmt.Printf("tick %-6d saved %s\n", info.Tick, info.SavedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var snapshotShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print one snapshot as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := snapshot.NewStore(cfg.Snapshot.DatabasePath, cfg.Snapshot.KeepHistory)
		if err != nil {
			return err
		}
		defer store.Close()

		var w *world.World
		if cmd.Flags().Changed("tick") {
			w, err = store.LoadTick(showTick)
		} else {
			w, err = store.LoadLatest()
		}
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(w)
	},
}

func init() {
	snapshotShowCmd.Flags().IntVar(&showTick, "tick", 0, "Tick to show (default: latest)")
	snapshotCmd.AddCommand(snapshotListCmd)
	snapshotCmd.AddCommand(snapshotShowCmd)
}
