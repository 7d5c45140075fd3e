package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/catechiseme/internal/assetcache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and manage the offline asset cache",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List asset buckets",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			store := assetcache.NewSQLStore(a.db)
			rec, err := store.LoadRecord(ctx)
			if err != nil {
				return err
			}
			keys, err := store.Keys(ctx)
			if err != nil {
				return err
			}
			if len(keys) == 0 {
				fmt.Println("No asset buckets. Run `catechiseme cache install` to create one.")
				return nil
			}

			marks := map[string]string{}
			if rec.Active != "" {
				marks[assetcache.BucketName(a.cfg.Cache.Prefix, rec.Active)] = "active"
			}
			if rec.Waiting != "" {
				marks[assetcache.BucketName(a.cfg.Cache.Prefix, rec.Waiting)] = "waiting"
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			configured := a.cfg.Cache.BucketName()
			fmt.Fprintln(tw, "BUCKET\tASSETS\tSTATE\tCONFIGURED")
			for _, k := range keys {
				entries, err := store.Entries(ctx, k)
				if err != nil {
					return err
				}
				state := marks[k]
				if state == "" {
					state = "stale"
				}
				mark := ""
				if k == configured {
					mark = "*"
				}
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", k, len(entries), state, mark)
			}
			return tw.Flush()
		})
	},
}

var cacheInstallCmd = &cobra.Command{
	Use:   "install [version]",
	Short: "Install a cache version (defaults to the configured one)",
	Long: `Fetches every manifest asset and stores them in the version's bucket,
all or nothing. With nothing active the version is activated at once;
otherwise it waits for promotion.

This works on the store directly. A running server only notices the new
version after a restart; to update a live server, change cache.version and
restart serve, or enable cache.watch.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			version := a.cfg.Cache.Version
			if len(args) == 1 {
				version = args[0]
			}
			info, err := a.cache.Register(ctx, version)
			if err != nil {
				return err
			}
			fmt.Printf("%s is %s (%d assets in %s)\n", info.Version, info.State, len(a.cache.Manifest()), info.Bucket)
			return nil
		})
	},
}

var cachePromoteCmd = &cobra.Command{
	Use:   "promote",
	Short: "Activate the waiting cache version",
	Long: `Activates the waiting version and deletes every other bucket.

When a server is running (see --server) the request goes through it, so its
pages are told to reload. With --local, or when no server answers, the store
is changed directly; a server started later picks the result up.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if c, ok := runningServer(cmd.Context(), cfg.Port); ok {
			info, err := c.promote(cmd.Context())
			return printPromoted(info, err)
		}
		return withApp(func(ctx context.Context, a *app) error {
			if err := a.cache.Restore(ctx); err != nil {
				return err
			}
			return printPromoted(a.cache.Promote(ctx))
		})
	},
}

func printPromoted(info assetcache.WorkerInfo, err error) error {
	if errors.Is(err, assetcache.ErrNoWaiting) {
		fmt.Println("No version is waiting.")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Printf("%s is now active\n", info.Version)
	return nil
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete buckets that belong to neither the active nor the waiting version",
	Long: `Deletes stale buckets. Like promote, it goes through a running server
when one answers, so the buckets the server is using are never removed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if c, ok := runningServer(cmd.Context(), cfg.Port); ok {
			n, err := c.prune(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d stale bucket(s) via %s\n", n, c.baseURL)
			return nil
		}
		return withApp(func(ctx context.Context, a *app) error {
			if err := a.cache.Restore(ctx); err != nil {
				return err
			}
			n, err := a.cache.Prune(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d stale bucket(s)\n", n)
			return nil
		})
	},
}

// withApp loads the config and wires the app for a one-shot command.
func withApp(fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(context.Background(), a)
}

func init() {
	cacheCmd.PersistentFlags().StringVar(&cacheServer, "server", "", "base URL of a running server (default http://127.0.0.1:<port>)")
	cacheCmd.PersistentFlags().BoolVar(&cacheLocal, "local", false, "change the store directly even if a server is running")
	cacheCmd.AddCommand(cacheListCmd, cacheInstallCmd, cachePromoteCmd, cachePruneCmd)
	rootCmd.AddCommand(cacheCmd)
}
