package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/tendant/assetsync/pkg/assetsync/api"
	"github.com/tendant/assetsync/pkg/assetsync/config"
	"github.com/tendant/chi-demo/app"
)

// Config holds the settings owned by the server binary. Storage, index and
// cache settings are read by config.WithEnv under EnvPrefix.
type Config struct {
	EnvPrefix   string   `env:"ASSETSYNC_ENV_PREFIX" env-default:""`
	APIPrefix   string   `env:"API_PREFIX" env-default:"/api/v1"`
	EnableCORS  bool     `env:"ENABLE_CORS" env-default:"false"`
	CORSOrigins []string `env:"CORS_ALLOWED_ORIGINS" env-separator:"," env-default:"*"`
}

// mountAPI registers the asset routes on r under the configured prefix.
func mountAPI(r chi.Router, rt *config.Runtime, serverCfg *config.ServerConfig, cfg Config, logger *slog.Logger) {
	handler := api.NewAssetsHandler(rt.Service,
		api.WithLogger(logger),
		api.WithMaxUploadBytes(serverCfg.MaxUploadBytes),
		api.WithURLStrategy(rt.URLs),
	)

	r.Route(cfg.APIPrefix, func(r chi.Router) {
		if cfg.EnableCORS || serverCfg.IsDevelopment() {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins: cfg.CORSOrigins,
				AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
				ExposedHeaders: []string{"ETag", "Content-Length"},
				MaxAge:         300,
			}))
		}
		r.Use(api.RequestLogger(logger))
		r.Mount("/assets", handler.Routes())
	})
}

func main() {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		slog.Error("Failed to read configuration", "err", err)
		os.Exit(1)
	}

	serverCfg, err := config.Load(config.WithEnv(cfg.EnvPrefix))
	if err != nil {
		slog.Error("Failed to load service configuration", "err", err)
		os.Exit(1)
	}

	logger := serverCfg.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	rt, err := serverCfg.BuildService(context.Background(), logger)
	if err != nil {
		logger.Error("Failed to build service", "err", err)
		os.Exit(1)
	}
	defer rt.Close()

	logger.Info("assetsync configured",
		"environment", serverCfg.Environment,
		"storage", serverCfg.Storage.Type,
		"index", serverCfg.Index.Type,
		"cache", serverCfg.Cache.RedisURL != "",
		"url_strategy", serverCfg.URLs.Strategy,
	)

	server := app.DefaultApp()

	app.RoutesHealthz(server.R)
	app.RoutesHealthzReady(server.R)

	mountAPI(server.R, rt, serverCfg, cfg, logger)

	server.Run()
}
