// Package cmd defines and implements the CLI commands for the lognorm executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/weblog-normalizer/internal/app"
	"github.com/JakeFAU/weblog-normalizer/internal/config"
)

// appKeyType is the key for storing the App holder in the context.
type appKeyType string

const appKey appKeyType = "app"

// holder carries the App built by the root pre-run hook back to Execute,
// which closes it even when the subcommand fails.
type holder struct {
	app *app.App
}

// newApp is the application factory. It's a variable so tests can build the
// App against an isolated metrics registry.
var newApp = func(ctx context.Context, cfg config.Config) (*app.App, error) {
	return app.New(ctx, cfg, app.Options{})
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "lognorm",
		Short: "Normalizes web server access logs into an analytics-ready store.",
		Long: `lognorm picks the newest raw access-log store in the input directory,
classifies every request's user agent, joins client IPs against a reference
geo table and atomically replaces the normalized output store.`,
		SilenceUsage: true,

		// This hook runs BEFORE the subcommand's RunE and injects the App.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			appInstance, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			if h, ok := cmd.Context().Value(appKey).(*holder); ok {
				h.app = appInstance
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (defaults and LOGNORM_* env vars otherwise)")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newInputsCmd())
	return cmd
}

// resolveApp fetches the App injected by the root command.
func resolveApp(ctx context.Context) (*app.App, error) {
	h, ok := ctx.Value(appKey).(*holder)
	if !ok || h.app == nil {
		return nil, errors.New("application not initialized")
	}
	return h.app, nil
}

// execute runs the root command with args and closes the App afterwards.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	h := &holder{}
	ctx = context.WithValue(ctx, appKey, h)

	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)

	if h.app != nil {
		// The run context may already be canceled; closing still drains the hub.
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if cerr := h.app.Close(closeCtx); cerr != nil {
			fmt.Fprintf(stderr, "shutdown: %v\n", cerr)
		}
	}
	return err
}

// Execute is the main entry point. It exits with status 1 when the command
// fails.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
