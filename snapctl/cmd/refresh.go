package cmd

import (
	"github.com/spf13/cobra"
)

var refreshQROut string

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Replace the caller's active share with a fresh token",
	RunE: func(cmd *cobra.Command, args []string) error {
		share, err := client().RefreshShare(cmd.Context())
		if err != nil {
			return err
		}
		return printShare(cmd.OutOrStdout(), share, refreshQROut)
	},
}

func init() {
	rootCmd.AddCommand(refreshCmd)
	refreshCmd.Flags().StringVar(&refreshQROut, "qr-out", "", "write the QR code PNG here")
}
