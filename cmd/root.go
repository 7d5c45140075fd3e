package cmd

import (
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "catechiseme",
	Short: "Catechism study viewer with an offline asset cache",
	Long: `CatechiseMe serves a question-and-answer catechism viewer. Views are
rendered on the server from an embedded catalog, and the viewer's shell
assets are kept in a versioned offline cache that is updated only when
a page asks for the waiting version to be promoted.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "catechiseme.yml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
