package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query node status",
	Example: `  snapctl status
  snapctl status --output json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		status, err := client().GetStatus(cmd.Context())
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if output == "json" {
			b, _ := json.MarshalIndent(status, "", "  ")
			fmt.Fprintln(w, string(b))
			return nil
		}
		fmt.Fprintf(w, "Status: %s\nVersion: %s (API %s)\nUptime: %ds\nActive shares: %d\nAnchors: %d\nRedemption path: %s\nDefault TTL: %ds\n",
			status.Status, status.Version, status.APIVersion, status.Uptime, status.ActiveShares, status.AnchorCount, status.RedemptionPath, status.DefaultTTL)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringP("output", "o", "plain", "Output format: plain|json")
}
