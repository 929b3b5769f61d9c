package cmd

import (
	"fmt"
	"os"

	"github.com/Misgexx/mintguard/internal/bootstrap"
	"github.com/Misgexx/mintguard/internal/config"
	"github.com/spf13/cobra"
)

var outboxCmd = &cobra.Command{
	Use:   "outbox-worker",
	Short: "Publish ledger events to NATS JetStream",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, "config error:", err)
			os.Exit(1)
		}
		if err := bootstrap.RunOutboxWorker(cmd.Context(), cfg); err != nil {
			fmt.Fprintln(os.Stderr, "outbox-worker error:", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(outboxCmd)
}
