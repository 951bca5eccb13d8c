package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"healthsnap/core/auth"
)

var (
	jwtSecret  string
	jwtSubject string
	jwtRoles   []string
	jwtTTL     time.Duration
)

var jwtCmd = &cobra.Command{
	Use:     "jwt",
	Short:   "Mint a development bearer token",
	Example: `  snapctl jwt --secret $JWT_SECRET --sub p-001 --role patient`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if jwtSubject == "" {
			return fmt.Errorf("--sub is required")
		}
		tok, err := auth.Mint([]byte(jwtSecret), jwtSubject, jwtRoles, jwtTTL, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(jwtCmd)
	jwtCmd.Flags().StringVar(&jwtSecret, "secret", os.Getenv("JWT_SECRET"), "HS256 secret (JWT_SECRET)")
	jwtCmd.Flags().StringVar(&jwtSubject, "sub", "", "subject id")
	jwtCmd.Flags().StringSliceVar(&jwtRoles, "role", []string{auth.RolePatient}, "roles (patient, clinician)")
	jwtCmd.Flags().DurationVar(&jwtTTL, "ttl", time.Hour, "token lifetime")
}
