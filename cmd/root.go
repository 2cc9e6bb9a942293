// Package cmd defines and implements the CLI commands for the jobwatch executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobwatch/internal/config"
	"github.com/JakeFAU/jobwatch/internal/runner"
	"github.com/JakeFAU/jobwatch/internal/server"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands will use.
// This allows us to inject a mock app during tests.
type App interface {
	Logger() *zap.Logger
	Runner() *runner.Runner
	Serve(ctx context.Context) error
	Close() error
}

// newApp is the application factory. It's a variable so we can
// replace it with a mock factory in our tests.
var newApp = func(ctx context.Context, cfg *config.Config) (App, error) {
	return server.Build(ctx, cfg)
}

// loadConfig is swapped in tests to skip the filesystem.
var loadConfig = config.Load

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "jobwatch",
		Short: "Watches job-listing sites and reports new postings.",
		Long: `jobwatch scrapes configured job-listing sites, remembers every posting it
has seen and reports the new ones through the configured delivery method.
It can also serve the stored postings over HTTP.`,
		SilenceUsage: true,

		// Build the application once flags are parsed and before the subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if needsSites(cmd) {
				if err := cfg.RequireSites(); err != nil {
					return err
				}
			}
			appInstance, err := newApp(cmd.Context(), &cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				if err := appInstance.Close(); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "shutdown: %v\n", err)
				}
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); environment uses the JOBWATCH_ prefix")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newReportCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

const requiresSitesAnnotation = "requires-sites"

func needsSites(cmd *cobra.Command) bool {
	_, ok := cmd.Annotations[requiresSitesAnnotation]
	return ok
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// loadEnvFiles reads .env when present; variables already set win.
func loadEnvFiles() error {
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// Execute is the main entry point.
func Execute() {
	if err := loadEnvFiles(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
