package cmd

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var keygenBytes int

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a JWT_SIGNING_KEY value",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if keygenBytes < 32 {
			return fmt.Errorf("--bytes must be at least 32, got %d", keygenBytes)
		}

		raw := make([]byte, keygenBytes)
		if _, err := rand.Read(raw); err != nil {
			return fmt.Errorf("failed to read random bytes: %w", err)
		}
		key := "base64:" + base64.StdEncoding.EncodeToString(raw)

		return render(cmd.OutOrStdout(), map[string]string{"key": key}, func(w io.Writer) error {
			_, err := fmt.Fprintln(w, key)
			return err
		})
	},
}

func init() {
	keygenCmd.Flags().IntVar(&keygenBytes, "bytes", 32, "Key length in bytes")
	rootCmd.AddCommand(keygenCmd)
}
