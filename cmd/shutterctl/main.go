// Command shutterctl runs operator tasks against a Shutter deployment:
// schema migration, search reindexing and cache purging.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"shutter/internal/bootstrap"
	"shutter/internal/config"
	"shutter/internal/observability"

	"github.com/spf13/cobra"
)

// opener assembles the runtime a subcommand works on.
type opener func(ctx context.Context) (*bootstrap.Components, error)

func openFromConfig(ctx context.Context) (*bootstrap.Components, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	observability.InitLogger(cfg.Env)

	db, rdb, err := bootstrap.InitRuntime(cfg)
	if err != nil {
		return nil, err
	}
	return bootstrap.Build(ctx, cfg, db, rdb)
}

func newRootCmd(open opener) *cobra.Command {
	root := &cobra.Command{
		Use:           "shutterctl",
		Short:         "Operator tasks for the Shutter backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newMigrateCmd(open),
		newReindexCmd(open),
		newCacheCmd(open),
	)
	return root
}

// withRuntime opens the runtime, runs fn and closes it again.
func withRuntime(cmd *cobra.Command, open opener, fn func(*bootstrap.Components) error) error {
	c, err := open(cmd.Context())
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(c)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(openFromConfig).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
