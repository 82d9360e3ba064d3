package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <subject-id>",
	Short: "Show the current pipeline status of a subject",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := initClient()
		if err != nil {
			return err
		}

		snap, err := client.GetStatus(cmd.Context(), args[0])
		if err != nil {
			return eris.Wrap(err, "status")
		}

		format, _ := cmd.Flags().GetString("output")
		if handled, err := writeStructured(os.Stdout, format, snap); handled {
			return err
		}
		formatSnapshot(os.Stdout, args[0], snap)
		return nil
	},
}

func init() {
	statusCmd.Flags().StringP("output", "o", "table", "output format: table, json or yaml")
	rootCmd.AddCommand(statusCmd)
}
