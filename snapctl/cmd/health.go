package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Query node health summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		health, err := client().GetHealthMetrics(cmd.Context())
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		m := health.Metrics
		fmt.Fprintf(w, "Node Health: %s\n", health.Status)
		fmt.Fprintf(w, "Uptime: %ds\n", m.UptimeSeconds)
		fmt.Fprintf(w, "Active Shares: %d (archived %d)\n", m.ActiveShares, m.ArchivedShares)
		fmt.Fprintf(w, "Ledger: %s, %d anchors, healthy=%v\n", m.LedgerBackend, m.AnchorCount, m.LedgerHealthy)
		fmt.Fprintf(w, "CPU Load: %.2f%%\n", m.CPULoadPercent)
		fmt.Fprintf(w, "Memory Usage: %.2f MB\n", m.MemoryMB)
		fmt.Fprintf(w, "Disk Free: %.2f MB\n", m.DiskFreeMB)
		return nil
	},
}

var livenessCmd = &cobra.Command{
	Use:   "liveness",
	Short: "Check node liveness",
	RunE: func(cmd *cobra.Command, args []string) error {
		alive, err := client().GetLiveness(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Liveness: %v\n", alive)
		return nil
	},
}

var readinessCmd = &cobra.Command{
	Use:   "readiness",
	Short: "Check node readiness",
	RunE: func(cmd *cobra.Command, args []string) error {
		ready, err := client().GetReadiness(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Readiness: %v\n", ready)
		return nil
	},
}

func init() {
	healthCmd.AddCommand(livenessCmd)
	healthCmd.AddCommand(readinessCmd)
	rootCmd.AddCommand(healthCmd)
}
