package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"healthsnap/snapctl/api"
)

var (
	nodeURL   string
	authToken string
)

var rootCmd = &cobra.Command{
	Use:           "snapctl",
	Short:         "healthsnap share and redemption CLI",
	Long:          "A command-line tool for issuing, inspecting and redeeming ephemeral health snapshot shares.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}
}

func client() *api.Client {
	return api.NewClient(nodeURL, authToken)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&nodeURL, "node", envOr("SNAPCTL_NODE", api.DefaultBaseURL), "healthsnap node base URL")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", os.Getenv("SNAPCTL_TOKEN"), "bearer token for patient endpoints")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
