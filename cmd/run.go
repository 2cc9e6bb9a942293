package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobwatch/internal/runner"
)

// newRunCmd creates the 'run' subcommand: one scrape, store and report pass.
func newRunCmd() *cobra.Command {
	var opts runner.Options
	cmd := &cobra.Command{
		Use:         "run",
		Short:       "Scrape every configured site once and report new postings",
		Annotations: map[string]string{requiresSitesAnnotation: ""},
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			summary, err := appInstance.Runner().Run(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("run: %w", err)
			}
			appInstance.Logger().Info("Run command finished.",
				zap.String("run_id", summary.RunID),
				zap.Int("count", summary.Reported),
				zap.Bool("delivered", summary.Delivered),
			)
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.Backfill, "backfill", false, "use each site's backfill_pages instead of daily_pages")
	cmd.Flags().BoolVar(&opts.ReportAll, "report-all", false, "report every matched posting, not only new ones")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "skip the database and report every matched posting")
	return cmd
}
