package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"healthsnap/core/token"
)

var decodeCmd = &cobra.Command{
	Use:   "decode <url-or-opaque>",
	Short: "Decode a share token without verifying it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opaque, err := token.OpaqueFromScan(args[0])
		if err != nil {
			return err
		}
		tok, err := token.Decode(opaque)
		if err != nil {
			return err
		}
		var out bytes.Buffer
		if err := json.Indent(&out, token.Canonical(tok), "", "  "); err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		fmt.Fprintln(w, out.String())
		fmt.Fprintf(w, "digest:  %s\n", token.Digest(tok))
		fmt.Fprintf(w, "expires: %s", tok.ExpiresAt().Format(token.TimestampLayout))
		if tok.Expired(time.Now()) {
			fmt.Fprintln(w, " (expired)")
		} else {
			fmt.Fprintln(w)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(decodeCmd)
}
