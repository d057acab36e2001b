package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove the checkpoint files so that the next run starts over.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		err = applyRunFlags(cmd, &cfg)
		if err != nil {
			return err
		}

		store := newStore(cfg, newRandom(cfg), log.Default())

		err = store.Clear()
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Removed checkpoint %s\n",
			store.MarkerPath())

		return nil
	},
}

func init() {
	rootCmd.AddCommand(cleanCmd)

	f := cleanCmd.Flags()
	f.String("checkpoint-dir", "", "Directory of the checkpoint files")
	f.String("checkpoint-base", "", "Base name of the checkpoint files")
}
