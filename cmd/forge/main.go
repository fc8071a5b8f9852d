package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jeka-org/agent-forge/pkg/marketplace/marketplaceConfig"
)

var rootCmd = &cobra.Command{
	Use:   "forge",
	Short: "Run the agent-forge task marketplace node",
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

var configFile string
var Config *marketplaceConfig.MarketplaceConfig

func init() {
	cobra.OnInitialize(initConfigIfPresent)

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	rootCmd.PersistentFlags().Bool(marketplaceConfig.Debug, false, `"true" or "false"`)

	viper.SetEnvPrefix(marketplaceConfig.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(runCmd)
}

func initConfigIfPresent() {
	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			panic(err)
		}
		config, err := marketplaceConfig.NewMarketplaceConfigFromYamlBytes(data)
		if err != nil {
			panic(err)
		}
		Config = config
	} else {
		Config = marketplaceConfig.NewMarketplaceConfig()
	}
}

func main() {
	Execute()
}
