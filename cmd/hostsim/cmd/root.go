// Package cmd provides the command-line interface of hostsim.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/hostsim/config"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "hostsim",
	Short: "hostsim simulates an infection spreading in a host population.",
	Long: `hostsim simulates an infection spreading in a host population. ` +
		`Long runs checkpoint themselves and resume from the last ` +
		`checkpoint when started again.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var envFiles []string

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil,
		"Load settings from these .env files instead of "+
			config.DefaultEnvFile)
}

// Execute adds all child commands to the root command and sets flags
// appropriately. Registered exit handlers run before the process exits.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		atexit.Exit(1)
	}

	atexit.Exit(0)
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return config.Config{}, err
	}

	return cfg, nil
}
