package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/catechiseme/internal/view"
)

var renderJSON bool

var renderCmd = &cobra.Command{
	Use:   "render <welcome|index|resources|detail ID>",
	Short: "Render one view fragment to stdout",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		r, err := newRenderer(cfg)
		if err != nil {
			return err
		}

		v := view.ID(args[0])
		id := 0
		if v == view.Detail {
			if len(args) != 2 {
				return fmt.Errorf("detail needs an entry id")
			}
			if id, err = strconv.Atoi(args[1]); err != nil {
				return fmt.Errorf("invalid entry id %q: %w", args[1], err)
			}
		}

		region := &view.Region{}
		ok, err := r.Render(region, v, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no entry with id %d", id)
		}

		f, _ := region.Current()
		if renderJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(f)
		}
		fmt.Println(f.HTML)
		return nil
	},
}

func init() {
	renderCmd.Flags().BoolVar(&renderJSON, "json", false, "print the fragment with its dispatch table as JSON")
	rootCmd.AddCommand(renderCmd)
}
