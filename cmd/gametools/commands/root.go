package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "gametools",
		Short: "gametools - observe and drive a running game window",
		Long: `gametools watches a running game window and turns what it sees into a
cooperative event loop for building desktop game tools.

Features:
  • Locate the game window by title and track whether it is open/focused
  • Screenshot regions and sample pixels of the game window
  • Inject mouse and keyboard input
  • Turn appended game log lines into loop events
  • Overlay elements with persisted positions
  • REST/WebSocket API for integration`,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/gametools/config.yaml)")
	rootCmd.PersistentFlags().Int("port", 0, "API server port (default is 8080)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("pretty", false, "human-readable console logging")

	viper.BindPFlag("server_port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("pretty", rootCmd.PersistentFlags().Lookup("pretty"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path.
func GetConfigFile() string {
	return cfgFile
}
