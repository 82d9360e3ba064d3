package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/brandpulse/internal/audit"
	"github.com/sells-group/brandpulse/internal/export"
	"github.com/sells-group/brandpulse/pkg/pipelineapi"
)

var auditCmd = &cobra.Command{
	Use:   "audit <subject-id>",
	Short: "Stream a domain-readiness audit and show live scores",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		subjectID := args[0]
		client, err := initClient()
		if err != nil {
			return err
		}

		trigger, _ := cmd.Flags().GetBool("trigger")
		save, _ := cmd.Flags().GetBool("save")
		xlsxPath, _ := cmd.Flags().GetString("xlsx")
		format, _ := cmd.Flags().GetString("output")

		view, err := runAudit(ctx, client, subjectID, trigger)
		if err != nil {
			return err
		}

		if view.Status == audit.StatusComplete && view.Result != nil {
			if save {
				if err := saveAudit(ctx, subjectID, view); err != nil {
					return err
				}
			}
			if xlsxPath != "" {
				if err := export.WriteXLSX(xlsxPath, subjectID, view.Result); err != nil {
					return err
				}
				zap.L().Info("audit exported", zap.String("path", xlsxPath))
			}
		}

		if handled, err := writeStructured(os.Stdout, format, view); handled {
			return err
		}
		formatView(os.Stdout, view)
		return nil
	},
}

// runAudit optionally triggers the stage, then streams the audit to a
// terminal state while printing live scores to stderr.
func runAudit(ctx context.Context, client pipelineapi.Client, subjectID string, trigger bool) (audit.View, error) {
	if trigger {
		if err := client.StartDomainAudit(ctx, subjectID); err != nil {
			return audit.View{}, eris.Wrap(err, "audit: trigger")
		}
	}

	agg := audit.NewAggregator()
	unsubscribe := agg.Subscribe(func(v audit.View) {
		fmt.Fprintln(os.Stderr, formatLiveScore(v))
	})
	defer unsubscribe()

	if err := agg.Run(ctx, subjectID, client.StreamAudit); err != nil {
		var streamErr *audit.StreamError
		if !eris.As(err, &streamErr) {
			return agg.View(), err
		}
		zap.L().Warn("audit stream reported an error", zap.String("subject_id", subjectID), zap.Error(err))
	}
	return agg.View(), nil
}

func saveAudit(ctx context.Context, subjectID string, view audit.View) error {
	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	rec, err := st.SaveAudit(ctx, subjectID, view.Result)
	if err != nil {
		return err
	}
	zap.L().Info("audit saved",
		zap.String("subject_id", subjectID),
		zap.String("id", rec.ID),
		zap.Int("overall_score", view.Result.OverallScore),
	)
	return nil
}

func init() {
	auditCmd.Flags().Bool("trigger", false, "start the domain-readiness stage before streaming")
	auditCmd.Flags().Bool("save", true, "save the final result to the local history store")
	auditCmd.Flags().String("xlsx", "", "also write the final result to this xlsx file")
	auditCmd.Flags().StringP("output", "o", "table", "output format: table, json or yaml")
	rootCmd.AddCommand(auditCmd)
}
