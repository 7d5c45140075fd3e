package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/catechiseme/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize catechiseme configuration with an interactive wizard",
	Long:  `Runs an interactive wizard and writes the config file given by --config.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := config.RunWizard(cfgFile)
		return err
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
