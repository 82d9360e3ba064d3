package main

import (
	"os"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history <subject-id>",
	Short: "List stored audits for a subject",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		recs, err := st.ListAudits(ctx, args[0], limit)
		if err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("output")
		if handled, err := writeStructured(os.Stdout, format, recs); handled {
			return err
		}
		formatHistory(os.Stdout, recs)
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum number of audits to list")
	historyCmd.Flags().StringP("output", "o", "table", "output format: table, json or yaml")
	rootCmd.AddCommand(historyCmd)
}
