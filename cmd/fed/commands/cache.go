package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfed/openfed/pkg/stores"
)

func newCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect persisted artifact and resolution history",
	}

	cmd.AddCommand(newCacheListCommand())
	cmd.AddCommand(newCacheEventsCommand())
	cmd.AddCommand(newCachePruneCommand())

	return cmd
}

// openStore opens the SQLite store configured under store.path.
func openStore(ctx context.Context) (*stores.SQLiteStore, error) {
	cfg, _, err := loadConfig(ctx)
	if err != nil {
		return nil, err
	}

	if cfg.Store == nil || cfg.Store.Path == "" {
		return nil, fmt.Errorf("no store configured: set store.path in the host config")
	}

	store, err := stores.NewSQLiteStore(stores.Config{Path: cfg.Store.Path})
	if err != nil {
		return nil, err
	}

	if err := store.Init(ctx); err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}

	return store, nil
}

func newCacheListCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded artifacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.ListArtifacts(ctx, limit, 0)
			if err != nil {
				return err
			}

			if jsonOutput {
				return json.NewEncoder(os.Stdout).Encode(records)
			}

			if len(records) == 0 {
				fmt.Println("No artifacts recorded")
				return nil
			}

			for _, record := range records {
				fmt.Printf("%-8s %-20s %s\n", record.State, record.Container, record.Location)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of records")

	return cmd
}

func newCacheEventsCommand() *cobra.Command {
	var (
		remote string
		level  string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show the persisted event log",
		Example: `  # Last 50 events
  fed cache events

  # Errors for one remote
  fed cache events --remote checkout --level error`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			var remoteFilter *string
			if remote != "" {
				remoteFilter = &remote
			}
			var levelFilter *stores.EventLevel
			if level != "" {
				l := stores.EventLevel(level)
				levelFilter = &l
			}

			events, err := store.GetEvents(ctx, remoteFilter, levelFilter, limit, 0)
			if err != nil {
				return err
			}

			if jsonOutput {
				return json.NewEncoder(os.Stdout).Encode(events)
			}

			for _, event := range events {
				fmt.Printf("%s %-7s %-20s %s\n",
					event.Timestamp.Format(time.RFC3339), event.Level, event.Type, event.Message)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&remote, "remote", "", "filter by remote name")
	cmd.Flags().StringVar(&level, "level", "", "filter by level (debug, info, warning, error)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of events")

	return cmd
}

func newCachePruneCommand() *cobra.Command {
	var olderThanDays int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old resolution records",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			cutoff := time.Now().UTC().AddDate(0, 0, -olderThanDays)
			pruned, err := store.PruneResolutions(ctx, cutoff)
			if err != nil {
				return err
			}

			fmt.Printf("Pruned %d resolution record(s) older than %d day(s)\n", pruned, olderThanDays)
			return nil
		},
	}

	cmd.Flags().IntVar(&olderThanDays, "older-than", 30, "age threshold in days")

	return cmd
}
