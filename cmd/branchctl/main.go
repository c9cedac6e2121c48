// Command branchctl runs maintenance tasks against the branch store and the
// notification queue.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/branchdesk/cmd/branchctl/cli"
	"github.com/odyssey-erp/branchdesk/internal/app"
	"github.com/odyssey-erp/branchdesk/internal/branches"
	"github.com/odyssey-erp/branchdesk/internal/platform/docstore"
	"github.com/odyssey-erp/branchdesk/jobs"
)

var jsonOutput bool

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "branchctl",
		Short:        "Maintenance commands for branchdesk",
		SilenceUsage: true,
	}
	root.AddCommand(indexesCmd(), renotifyCmd(), queueCmd())
	return root
}

func indexesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "indexes",
		Short: "Create the branch collection indexes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			store, err := docstore.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
			if err != nil {
				return err
			}
			defer store.Close(context.Background())

			repo := branches.NewMongoRepository(store.Collection(branches.CollectionName))
			if err := cli.NewOpsCLI(repo, repo, nil, nil).EnsureIndexes(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "branch indexes ensured")
			return nil
		},
	}
}

func renotifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "renotify <branch-id>",
		Short: "Queue the deactivation notification of an inactive branch again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			store, err := docstore.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
			if err != nil {
				return err
			}
			defer store.Close(context.Background())
			client := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
			defer client.Close()

			repo := branches.NewMongoRepository(store.Collection(branches.CollectionName))
			branch, err := cli.NewOpsCLI(repo, repo, client, nil).Renotify(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "notification queued for branch %s (%s)\n", branch.ID.Hex(), branch.Name)
			return nil
		},
	}
}

func queueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Show the state of the job queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
			defer inspector.Close()

			stats, err := cli.NewOpsCLI(nil, nil, nil, inspector).InspectQueue()
			if err != nil {
				return err
			}
			return cli.WriteQueueStats(cmd.OutOrStdout(), stats, jsonOutput)
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print JSON")
	return cmd
}
