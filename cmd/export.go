package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/brandpulse/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export <subject-id>",
	Short: "Write the latest stored audit to an xlsx workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		subjectID := args[0]

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rec, err := st.LatestAudit(ctx, subjectID)
		if err != nil {
			return err
		}
		if rec == nil {
			return eris.Errorf("export: no stored audit for %s", subjectID)
		}

		out, _ := cmd.Flags().GetString("out")
		if out == "" {
			out = fmt.Sprintf("%s-audit.xlsx", subjectID)
		}
		if err := export.WriteXLSX(out, subjectID, rec.Result); err != nil {
			return err
		}

		zap.L().Info("audit exported",
			zap.String("subject_id", subjectID),
			zap.String("audit_id", rec.ID),
			zap.String("path", out),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().String("out", "", "output path (default <subject-id>-audit.xlsx)")
	rootCmd.AddCommand(exportCmd)
}
