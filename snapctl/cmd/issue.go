package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"healthsnap/api/server"
	"healthsnap/core/carrier"
	"healthsnap/core/snapshot"
)

var (
	issuePayload string
	issueTTL     int
	issueSubject string
	issueLocal   bool
	issueOrigin  string
	issuePath    string
	issueQROut   string
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a share token for a snapshot payload",
	Example: `  snapctl issue --payload snapshot.yaml --token $JWT
  snapctl issue --local --subject p-001 --payload snapshot.json --qr-out share.png`,
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, payload, err := loadPayload(issuePayload)
		if err != nil {
			return err
		}

		var share server.ShareResponse
		if issueLocal {
			share, err = issueLocally(cmd.Context(), issueSubject, issueTTL, payload)
		} else {
			share, err = client().IssueShare(cmd.Context(), issueTTL, raw)
		}
		if err != nil {
			return err
		}
		return printShare(cmd.OutOrStdout(), share, issueQROut)
	},
}

// issueLocally encodes without a node: no anchor and no registry.
func issueLocally(ctx context.Context, subject string, ttl int, payload snapshot.Payload) (server.ShareResponse, error) {
	if ttl == 0 {
		ttl = 3600
	}
	c := &carrier.Carrier{Origin: issueOrigin, RedemptionPath: issuePath}
	share, err := c.Issue(ctx, subject, ttl, payload)
	if err != nil {
		return server.ShareResponse{}, err
	}
	return server.NewShareResponse(share, share.Token.IssuedAt()), nil
}

func printShare(w io.Writer, s server.ShareResponse, qrOut string) error {
	if qrOut != "" {
		if err := os.WriteFile(qrOut, s.QRPNG, 0o644); err != nil {
			return err
		}
	}
	s.QRPNG = nil
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(b))
	return nil
}

func init() {
	rootCmd.AddCommand(issueCmd)
	issueCmd.Flags().StringVarP(&issuePayload, "payload", "p", "", "payload file (.json, .yaml)")
	issueCmd.Flags().IntVar(&issueTTL, "ttl", 0, "time to live in seconds (node default when 0)")
	issueCmd.Flags().BoolVar(&issueLocal, "local", false, "encode locally instead of asking a node")
	issueCmd.Flags().StringVar(&issueSubject, "subject", "", "subject id (with --local)")
	issueCmd.Flags().StringVar(&issueOrigin, "origin", carrier.DefaultOrigin, "redemption origin (with --local)")
	issueCmd.Flags().StringVar(&issuePath, "path", carrier.DefaultRedemptionPath, "redemption path (with --local)")
	issueCmd.Flags().StringVar(&issueQROut, "qr-out", "", "write the QR code PNG here")
}
