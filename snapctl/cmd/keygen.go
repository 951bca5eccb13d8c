package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"healthsnap/core/seal"
	"healthsnap/core/storage"
)

var (
	keygenAlgo string
	keygenOut  string
	keygenDEK  bool
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a sealing key (Ed25519 or Schnorr) or a storage DEK",
	Example: `  snapctl keygen --algo ed25519 --out seal_ed25519.key
  snapctl keygen --dek`,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		if keygenDEK {
			dek, err := storage.GenerateDEK()
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "SNAPSHOT_DEK=%s\n", dek)
			return nil
		}
		if _, err := os.Stat(keygenOut); err == nil {
			return fmt.Errorf("%s already exists", keygenOut)
		}

		switch strings.ToLower(keygenAlgo) {
		case "ed25519":
			_, priv, err := seal.GenerateAndSaveKeypair(keygenOut, keygenOut+".pub")
			if err != nil {
				return err
			}
			s, err := seal.NewEd25519Signer(priv)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "Ed25519 key written to %s (public key %s.pub)\nAddress: %s\n", keygenOut, keygenOut, s.Address())
		case "schnorr":
			x, err := seal.LoadOrCreateSchnorrKey(keygenOut)
			if err != nil {
				return err
			}
			s, err := seal.NewSchnorrSigner(x)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "Schnorr key written to %s\nPublic key: %s\nAddress: %s\n", keygenOut, s.PublicKey(), s.Address())
		default:
			return fmt.Errorf("%w: %s", seal.ErrUnsupported, keygenAlgo)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)
	keygenCmd.Flags().StringVar(&keygenAlgo, "algo", "ed25519", "ed25519|schnorr")
	keygenCmd.Flags().StringVarP(&keygenOut, "out", "o", "seal_ed25519.key", "private key file")
	keygenCmd.Flags().BoolVar(&keygenDEK, "dek", false, "print a fresh base64 SNAPSHOT_DEK instead")
}
