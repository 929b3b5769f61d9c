package cmd

import (
	"fmt"
	"os"

	"github.com/Misgexx/mintguard/internal/bootstrap"
	"github.com/Misgexx/mintguard/internal/config"
	"github.com/spf13/cobra"
)

var seedCount int

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert PENDING sample orders",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, "config error:", err)
			os.Exit(1)
		}
		if err := bootstrap.Seed(cmd.Context(), cfg, seedCount); err != nil {
			fmt.Fprintln(os.Stderr, "seed error:", err)
			os.Exit(1)
		}
	},
}

func init() {
	seedCmd.Flags().IntVar(&seedCount, "count", 10, "number of orders to seed")
	rootCmd.AddCommand(seedCmd)
}
