package cmd

import (
	"fmt"
	"io/fs"
	"net/http"

	"go.uber.org/zap"

	"github.com/ziadkadry99/catechiseme/internal/assetcache"
	"github.com/ziadkadry99/catechiseme/internal/catalog"
	"github.com/ziadkadry99/catechiseme/internal/config"
	"github.com/ziadkadry99/catechiseme/internal/db"
	"github.com/ziadkadry99/catechiseme/internal/logging"
	"github.com/ziadkadry99/catechiseme/internal/metrics"
	"github.com/ziadkadry99/catechiseme/internal/server"
	"github.com/ziadkadry99/catechiseme/internal/view"
	"github.com/ziadkadry99/catechiseme/internal/web"
)

// loadConfig loads and validates the config, providing a user-friendly error.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w\nRun `catechiseme init` to create a config file", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cfgFile, err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(string(cfg.LogLevel), verbose)
}

// newRenderer loads the configured catalog, or the embedded one.
func newRenderer(cfg *config.Config) (*view.Renderer, error) {
	var (
		c   *catalog.Catalog
		err error
	)
	if cfg.CatalogFile != "" {
		c, err = catalog.LoadFile(cfg.CatalogFile)
	} else {
		c, err = catalog.Default()
	}
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}
	return view.NewRenderer(c, view.WithDonationURL(cfg.DonationURL))
}

// app is everything serve and the cache commands share.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	db       *db.DB
	assets   fs.FS
	renderer *view.Renderer
	metrics  *metrics.Metrics
	cache    *assetcache.Registration
	channel  *assetcache.Channel
	server   *server.Server
}

// newApp wires the renderer, the asset cache and the HTTP server. Unless an
// origin is configured, the cache fetches assets from the server in-process.
func newApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, metrics: metrics.New()}

	var err error
	if a.assets, err = web.Assets(cfg.AssetsDir); err != nil {
		return nil, err
	}
	if a.renderer, err = newRenderer(cfg); err != nil {
		return nil, err
	}

	manifest, err := assetcache.ExpandManifest(a.assets, cfg.Cache.Manifest)
	if err != nil {
		return nil, fmt.Errorf("expanding cache manifest: %w", err)
	}

	var fetcher assetcache.Fetcher = assetcache.HandlerFetcher{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			a.server.ServeHTTP(w, r)
		}),
	}
	if cfg.Cache.OriginURL != "" {
		fetcher = assetcache.HTTPFetcher{Client: &http.Client{}, BaseURL: cfg.Cache.OriginURL}
	}

	if a.db, err = db.Open(cfg.DBPath()); err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	a.cache, err = assetcache.NewRegistration(assetcache.Options{
		Prefix:   cfg.Cache.Prefix,
		Manifest: manifest,
		Store:    assetcache.NewSQLStore(a.db),
		Fetcher:  fetcher,
		Logger:   logger.Named("assetcache"),
		Observer: a.metrics,
	})
	if err != nil {
		a.db.Close()
		return nil, err
	}
	a.channel = assetcache.NewChannel(a.cache, logger.Named("channel"))

	a.server = server.New(server.Config{
		Port:     cfg.Port,
		AllowAll: cfg.AllowAllOrigins,
	}, server.Deps{
		Renderer: a.renderer,
		Assets:   a.assets,
		Cache:    a.cache,
		Channel:  a.channel,
		Metrics:  a.metrics,
		Logger:   logger.Named("server"),
	})
	return a, nil
}

func (a *app) Close() error {
	a.channel.Close()
	return a.db.Close()
}
