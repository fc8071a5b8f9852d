package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

var outputDir string

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new secp256k1 key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := crypto.GenerateKey()
		if err != nil {
			return fmt.Errorf("failed to generate key: %w", err)
		}

		address := crypto.PubkeyToAddress(key.PublicKey)
		privateHex := hex.EncodeToString(crypto.FromECDSA(key))

		if outputDir != "" {
			if err := os.MkdirAll(outputDir, 0755); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
			keyPath := filepath.Join(outputDir, fmt.Sprintf("%s.key", address.Hex()))
			if err := os.WriteFile(keyPath, []byte(privateHex), 0600); err != nil {
				return fmt.Errorf("failed to write key file: %w", err)
			}
			fmt.Printf("address: %s\nkey file: %s\n", address.Hex(), keyPath)
			return nil
		}

		fmt.Printf("address: %s\nprivate key: %s\n", address.Hex(), privateHex)
		return nil
	},
}

func init() {
	generateCmd.Flags().StringVar(&outputDir, "output-dir", "", "directory to save the generated key (prints to stdout when empty)")
}
