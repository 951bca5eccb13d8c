package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"healthsnap/core/redemption"
	"healthsnap/core/verification"
	"healthsnap/core/view"
)

var (
	redeemLocal bool
	redeemAt    string
	redeemDelay time.Duration
)

var redeemCmd = &cobra.Command{
	Use:   "redeem <url-or-opaque>",
	Short: "Redeem a scanned share and print the resulting screen",
	Example: `  snapctl redeem 'http://localhost:3000/doctor-dashboard?data=eyJ...'
  snapctl redeem --local --at 2024-05-01T13:00:01Z eyJ...`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !redeemLocal {
			sc, code, err := client().Redeem(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printScreen(cmd.OutOrStdout(), sc, code)
		}

		ctrl, err := localController(redeemAt, redeemDelay)
		if err != nil {
			return err
		}
		res, err := ctrl.RedeemScan(cmd.Context(), args[0])
		return printScreen(cmd.OutOrStdout(), view.ScreenFor(nil, res, err), 0)
	},
}

// localController runs the simulated pipeline in-process. It can only check
// the token's shape and expiry, not its integrity.
func localController(at string, delay time.Duration) (*redemption.Controller, error) {
	ctrl := &redemption.Controller{
		Machine: &verification.Machine{Pipeline: verification.SimulatedPipeline(verification.UniformDelays(delay))},
	}
	if at != "" {
		now, err := time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, fmt.Errorf("--at: %w", err)
		}
		ctrl.Now = func() time.Time { return now }
	}
	return ctrl, nil
}

func printScreen(w io.Writer, sc view.Screen, code int) error {
	b, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(b))
	if sc.Kind == view.ScreenError && sc.Error != nil {
		if code != 0 {
			return fmt.Errorf("%s (HTTP %d)", sc.Error.Message, code)
		}
		return fmt.Errorf("%s", sc.Error.Message)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(redeemCmd)
	redeemCmd.Flags().BoolVar(&redeemLocal, "local", false, "verify in-process with simulated steps")
	redeemCmd.Flags().StringVar(&redeemAt, "at", "", "evaluate expiry at this RFC3339 instant (with --local)")
	redeemCmd.Flags().DurationVar(&redeemDelay, "delay", 0, "per-step delay (with --local)")
}
