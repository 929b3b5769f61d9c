package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/Misgexx/mintguard/internal/bootstrap"
	"github.com/Misgexx/mintguard/internal/config"
	"github.com/Misgexx/mintguard/internal/probe"
	"github.com/spf13/cobra"
)

var probeCfg probe.Config

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Send concurrent requests with one Idempotency-Key and tally the results",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, "config error:", err)
			os.Exit(1)
		}
		log, err := bootstrap.BuildLogger(cfg)
		if err != nil {
			fmt.Fprintln(os.Stderr, "log error:", err)
			os.Exit(1)
		}

		report, err := probe.Run(cmd.Context(), probeCfg, log)
		if err != nil {
			fmt.Fprintln(os.Stderr, "probe error:", err)
			os.Exit(1)
		}
		fmt.Println(report.String())
		if !report.Consistent() {
			fmt.Fprintln(os.Stderr, "probe: successful responses differ")
			os.Exit(2)
		}
	},
}

func init() {
	probeCmd.Flags().StringVar(&probeCfg.BaseURL, "base-url", "http://localhost:8000", "server base url")
	probeCmd.Flags().StringVar(&probeCfg.OrderID, "order", "", "order id")
	probeCmd.Flags().StringVar(&probeCfg.Key, "key", "", "Idempotency-Key to reuse")
	probeCmd.Flags().StringVar(&probeCfg.Operation, "op", "pay", "pay or refund")
	probeCmd.Flags().IntVar(&probeCfg.Concurrency, "concurrency", 10, "parallel requests")
	probeCmd.Flags().DurationVar(&probeCfg.Timeout, "timeout", 10*time.Second, "per-request timeout")
	_ = probeCmd.MarkFlagRequired("order")
	_ = probeCmd.MarkFlagRequired("key")
	rootCmd.AddCommand(probeCmd)
}
