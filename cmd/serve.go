package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/conneroisu/scribe/internal/config"
	"github.com/conneroisu/scribe/internal/server"
)

var serveFlags *StandardFlags

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Serve the blog with live reload",
	Long: `Serve the posts in the base path through a Handlebars theme.

Posts, theme templates and theme CSS are watched; changes are applied without
a restart and connected browsers reload.

Examples:
  scribe serve --handlebars-theme ./theme
  scribe serve -b posts -t ./theme --port 8080
  SCRIBE_THEME_PATH=./theme scribe serve`,
	PreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := ValidateFlags(serveFlags); err != nil {
			return err
		}
		return bindFlags(cmd)
	},
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveFlags = AddStandardFlags(serveCmd, "server", "content", "theme")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}

	app, err := server.NewApp(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "Serving %s at http://%s/blog\n", cfg.Content.BasePath, cfg.Server.Addr())

	if err := app.Run(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}
