package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate secp256k1 identity keys for agent-forge",
	Long:  `A tool for generating the secp256k1 keys that identify creators and agents on the marketplace.`,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(generateCmd)
}

func main() {
	Execute()
}
