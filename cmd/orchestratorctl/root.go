package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/fairyhunter13/ai-orchestrator/internal/adapter/observability"
	"github.com/fairyhunter13/ai-orchestrator/internal/app"
	"github.com/fairyhunter13/ai-orchestrator/internal/config"
)

// commandContext builds the runtime lazily so that --help never touches the store.
type commandContext struct {
	catalogFlag *string
	storeFlag   *string
}

func (c *commandContext) withRuntime(cmd *cobra.Command, fn func(rt *app.Runtime) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if c.catalogFlag != nil && *c.catalogFlag != "" {
		cfg.CatalogPath = *c.catalogFlag
	}
	if c.storeFlag != nil && *c.storeFlag != "" {
		cfg.StoreDriver = *c.storeFlag
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	slog.SetDefault(observability.NewLogger(cmd.ErrOrStderr(), cfg))

	rt, err := app.Build(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := rt.Close(ctx); err != nil {
			slog.Warn("state flush failed", slog.Any("error", err))
		}
	}()
	return fn(rt)
}

func newRootCommand() *cobra.Command {
	var catalogFlag string
	var storeFlag string
	ctx := &commandContext{catalogFlag: &catalogFlag, storeFlag: &storeFlag}

	rootCmd := &cobra.Command{
		Use:           "orchestratorctl",
		Short:         "Operate the AI orchestrator from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&catalogFlag, "catalog", "", "Service catalog YAML (overrides CATALOG_PATH)")
	rootCmd.PersistentFlags().StringVar(&storeFlag, "store", "", "State store driver (overrides STORE_DRIVER)")

	rootCmd.AddCommand(newDiagnoseCommand(ctx))
	rootCmd.AddCommand(newChatCommand(ctx))
	rootCmd.AddCommand(newTasksCommand(ctx))
	return rootCmd
}
