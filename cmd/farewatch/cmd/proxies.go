package cmd

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"farewatch/internal/proxypool"
	"farewatch/lib/configutil"
	"farewatch/lib/serviceutil"
)

func init() {
	rootCmd.AddCommand(proxiesCmd)
}

var proxiesCmd = &cobra.Command{
	Use:   "proxies",
	Short: "Health-check the configured proxies and report their latencies.",
	Run: func(cmd *cobra.Command, args []string) {
		config, err := configutil.ReadConfig[Config]("config.json5")
		if err != nil {
			serviceutil.Fatal("failed to load configuration", err)
		}

		pool := proxypool.New(config.Proxies)
		pool.HealthCheck(cmd.Context(), 10*time.Second)

		working := pool.Working()
		t := newTable()
		t.AppendHeader(table.Row{"proxy", "latency"})
		for _, endpoint := range working {
			t.AppendRow(table.Row{endpoint.Address, endpoint.Latency.Round(time.Millisecond)})
		}
		t.Render()
		fmt.Printf("%d of %d configured proxies responded\n", len(working), len(config.Proxies))
	},
}
