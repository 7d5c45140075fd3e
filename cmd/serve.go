package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ziadkadry99/catechiseme/internal/watch"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the viewer server",
	Long: `Starts the HTTP server: the viewer shell, server-rendered views, the
catalog, the printable page and static assets, fronted by the offline asset
cache. The configured cache version is registered in the background; a
failed registration is logged and the viewer keeps serving from the network.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("port") {
			cfg.Port = servePort
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

		// Graceful shutdown.
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			if err := a.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})

		g.Go(func() error {
			<-gctx.Done()
			logger.Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return a.server.Shutdown(shutdownCtx)
		})

		g.Go(func() error {
			info, err := a.cache.Register(gctx, cfg.Cache.Version)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					logger.Error("asset cache registration failed", zap.String("version", cfg.Cache.Version), zap.Error(err))
				}
				return nil
			}
			logger.Info("asset cache registered",
				zap.String("version", info.Version),
				zap.String("state", string(info.State)))
			return nil
		})

		g.Go(func() error {
			a.server.PruneSessions(gctx, 10*time.Minute, time.Hour)
			return nil
		})

		if cfg.Cache.Watch {
			if cfg.AssetsDir == "" {
				logger.Warn("cache.watch is set but assets_dir is empty; not watching")
			} else {
				w, err := watch.New(cfg.AssetsDir, cfg.Cache.Version, func(ctx context.Context, version string) error {
					_, err := a.cache.Update(ctx, version)
					return err
				}, logger.Named("watch"))
				if err != nil {
					return err
				}
				g.Go(func() error { return w.Run(gctx) })
			}
		}

		logger.Info("catechiseme starting",
			zap.String("version", Version),
			zap.Int("port", cfg.Port),
			zap.String("database", a.db.Path()),
			zap.String("cache_version", cfg.Cache.Version))

		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}
