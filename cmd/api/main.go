package main

import (
	"context"
	"fmt"
	"log/slog"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/samirrijal/geofield/internal/adapters/geocoder"
	"github.com/samirrijal/geofield/internal/adapters/http"
	"github.com/samirrijal/geofield/internal/adapters/icons"
	"github.com/samirrijal/geofield/internal/adapters/maplib"
	"github.com/samirrijal/geofield/internal/adapters/memory"
	natsadapter "github.com/samirrijal/geofield/internal/adapters/nats"
	"github.com/samirrijal/geofield/internal/adapters/postgres"
	"github.com/samirrijal/geofield/internal/adapters/valkey"
	"github.com/samirrijal/geofield/internal/core/domain"
	"github.com/samirrijal/geofield/internal/core/ports"
	"github.com/samirrijal/geofield/internal/core/usecases"
	"github.com/samirrijal/geofield/internal/pkg/config"
	"github.com/samirrijal/geofield/internal/pkg/logging"
	"github.com/samirrijal/geofield/internal/pkg/telemetry"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load("geofield-api")
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format, "geofield-api")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			logger.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	deps := &http.Dependencies{
		Version:        version,
		DefaultLibrary: domain.Library(cfg.Maps.DefaultLibrary),
		Maps: maplib.Options{
			GoogleAPIKey:    cfg.Maps.GoogleAPIKey,
			TileURL:         cfg.Maps.TileURL,
			TileAttribution: cfg.Maps.TileAttribution,
		},
	}

	// Cache: Valkey when reachable, else in-process.
	var cache ports.CacheService
	if cfg.Valkey.Enabled {
		vc, err := valkey.New(cfg.Valkey.Addr, "geofield:")
		if err != nil {
			logger.Warn("valkey unavailable, using in-process cache", "error", err)
		} else {
			defer vc.Close()
			cache = vc
			deps.Cache = vc
		}
	}
	if cache == nil {
		mc := memory.NewCache()
		go sweep(ctx, mc, time.Minute)
		cache = mc
	}

	// Geocoding
	provider, err := newGeocodeProvider(cfg.Geocoder)
	if err != nil {
		logger.Error("geocoder", "error", err)
		os.Exit(1)
	}
	deps.Geocode = usecases.NewGeocodeService(provider, cache, cfg.Geocoder.CacheTTL)
	logger.Info("geocoder ready", "provider", provider.Name())

	// Themers
	themers := usecases.NewDefaultRegistry()
	if cfg.Themers.PresetsFile != "" {
		n, err := themers.LoadPresets(cfg.Themers.PresetsFile)
		if err != nil {
			logger.Error("themer presets", "error", err)
			os.Exit(1)
		}
		logger.Info("themer presets loaded", "count", n, "file", cfg.Themers.PresetsFile)
	}
	deps.Themers = themers

	// Icons
	resolver, err := icons.NewResolver(cfg.Icons.BaseURL)
	if err != nil {
		logger.Error("icons", "error", err)
		os.Exit(1)
	}
	validator := icons.NewValidator(time.Duration(cfg.Icons.HeadTimeout)*time.Second, cache, cfg.Icons.CacheTTL)

	opts := []usecases.PipelineOption{
		usecases.WithIconResolver(resolver),
		usecases.WithIconValidator(validator),
		usecases.WithLogger(logger),
	}

	// Stored geometries (optional, read-only)
	if cfg.Database.Enabled {
		db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
		if err != nil {
			logger.Error("database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		go db.ReportPoolStats(ctx, 15*time.Second)

		repo := postgres.NewFeatureRepo(db)
		opts = append(opts,
			usecases.WithFeatureRepository(repo),
			usecases.WithClassificationSource(repo),
		)
		deps.DB = db
	}

	adapters := func(lib domain.Library) (ports.MapLibraryAdapter, error) {
		return maplib.New(lib, deps.Maps, nil)
	}
	deps.Pipeline = usecases.NewFeatureRenderPipeline(adapters, themers, opts...)

	// NATS: widget point changes out, /ws/points relay in.
	if cfg.NATS.Enabled {
		nc, err := natsadapter.Connect(cfg.NATS.URL)
		if err != nil {
			logger.Warn("nats unavailable", "error", err)
		} else {
			pub, err := natsadapter.NewPublisher(nc)
			if err != nil {
				logger.Warn("nats jetstream unavailable", "error", err)
				nc.Close()
			} else {
				defer pub.Close()
				deps.Events = pub
				deps.Watcher = natsadapter.NewWatcher(nc)
				deps.NATS = nc
			}
		}
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    4 * 1024 * 1024, // inline GeoJSON can be large
		AppName:      "geofield API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowOrigins,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, If-None-Match",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		logger.Info("API server starting", "addr", addr, "default_library", cfg.Maps.DefaultLibrary)
		if err := app.Listen(addr); err != nil {
			logger.Error("listen", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("shutdown signal received, draining connections...", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("forced shutdown", "error", err)
	}

	logger.Info("server stopped")
}

func newGeocodeProvider(cfg config.GeocoderConfig) (ports.GeocodeProvider, error) {
	switch cfg.Provider {
	case "google":
		return geocoder.NewGoogle(cfg.Google.APIKey)
	default:
		return geocoder.NewNominatim(geocoder.NominatimOptions{
			BaseURL:   cfg.Nominatim.URL,
			UserAgent: cfg.Nominatim.UserAgent,
			Email:     cfg.Nominatim.Email,
			Language:  cfg.Nominatim.Language,
			RateLimit: cfg.Nominatim.RateLimit,
			Client:    &nethttp.Client{Timeout: cfg.NominatimTimeout()},
		})
	}
}

func sweep(ctx context.Context, c *memory.Cache, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := c.Sweep(); n > 0 {
				slog.Debug("cache sweep", "expired", n)
			}
		}
	}
}
