package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/catechiseme/internal/site"
	"github.com/ziadkadry99/catechiseme/internal/web"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a static snapshot of every view",
	Long:  `Writes the welcome, index, resources and every detail view as standalone pages, plus the printable page, the catalog and the static assets.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		r, err := newRenderer(cfg)
		if err != nil {
			return err
		}
		assets, err := web.Assets(cfg.AssetsDir)
		if err != nil {
			return err
		}

		outputDir, _ := cmd.Flags().GetString("output")
		res, err := site.NewExporter(r, assets, outputDir).Export()
		if err != nil {
			return fmt.Errorf("exporting: %w", err)
		}
		fmt.Printf("Exported %d pages and %d assets to %s\n", res.Pages, res.Assets, outputDir)
		return nil
	},
}

func init() {
	exportCmd.Flags().String("output", "dist", "output directory")
	rootCmd.AddCommand(exportCmd)
}
