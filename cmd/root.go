package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/brandpulse/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "brandpulse",
	Short: "Follow brand analytics pipeline runs from the terminal",
	Long:  "Polls pipeline progress, triggers the domain-readiness audit and recommendations when their prerequisites finish, streams live audit scores, and keeps a local audit history.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
