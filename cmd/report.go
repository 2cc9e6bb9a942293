package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobwatch/internal/crawler"
)

// newReportCmd creates the 'report' subcommand, which sends a digest built
// from postings already in the database.
func newReportCmd() *cobra.Command {
	var (
		filter   crawler.Filter
		titleAny string
		titleAll string
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Deliver a digest of stored postings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			filter.TitleAny = crawler.SplitTerms(titleAny)
			filter.TitleAll = crawler.SplitTerms(titleAll)
			summary, err := appInstance.Runner().ReportStored(cmd.Context(), filter)
			if err != nil {
				return fmt.Errorf("report: %w", err)
			}
			appInstance.Logger().Info("Report command finished.",
				zap.Int("count", summary.Reported),
				zap.Bool("delivered", summary.Delivered),
			)
			return nil
		},
	}
	cmd.Flags().IntVar(&filter.Year, "year", 0, "only postings whose posted_at falls in this year")
	cmd.Flags().StringVar(&titleAny, "title-any", "", "pipe-delimited terms; title must contain at least one")
	cmd.Flags().StringVar(&titleAll, "title-all", "", "pipe-delimited terms; title must contain every one")
	cmd.Flags().IntVar(&filter.Limit, "limit", 0, "maximum postings in the digest (0 = no limit)")
	return cmd
}
