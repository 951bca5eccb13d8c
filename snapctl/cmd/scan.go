package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"healthsnap/core/reader"
)

var scanRedeem bool

var scanCmd = &cobra.Command{
	Use:   "scan <image>",
	Short: "Read a share QR code from an image file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		if scanRedeem {
			sc, code, err := client().Scan(cmd.Context(), filepath.Base(args[0]), f)
			if err != nil {
				return err
			}
			return printScreen(cmd.OutOrStdout(), sc, code)
		}

		content, ok := reader.ScanImage(f)
		if !ok {
			return reader.ErrNoCode
		}
		fmt.Fprintln(cmd.OutOrStdout(), content)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().BoolVar(&scanRedeem, "redeem", false, "upload the image to the node and redeem it")
}
