/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the payroll engine server: configuration,
  dependency wiring, background workers, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (godotenv) then PAYROLL_* environment into Config
  2. Open SQLite store (WAL) and Redis (optional; in-memory fallback)
  3. Build the time catalog, worklog service, bulk payroll service
  4. Register task handlers, start the runner and the cron scheduler
  5. Serve HTTP with graceful shutdown on SIGINT/SIGTERM

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080)
  -db      SQLite database path (default: payroll.db; ":memory:" works)
  -redis   Redis address (default: $PAYROLL_REDIS_ADDR; empty = in-memory
           cache)

SEE ALSO:
  - config/config.go: the full environment surface
  - api/server.go:    router configuration
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/shiftwise/payroll-engine/api"
	"github.com/shiftwise/payroll-engine/cache"
	"github.com/shiftwise/payroll-engine/calendar"
	"github.com/shiftwise/payroll-engine/config"
	"github.com/shiftwise/payroll-engine/payroll"
	"github.com/shiftwise/payroll-engine/store/sqlite"
	"github.com/shiftwise/payroll-engine/tasks"
	"github.com/shiftwise/payroll-engine/worklog"
)

func main() {
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "payroll.db", "SQLite database path")
	redisAddr := flag.String("redis", os.Getenv("PAYROLL_REDIS_ADDR"), "Redis address (empty = in-memory cache)")
	flag.Parse()

	_ = godotenv.Load() // optional; absence is not an error

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	loc := cfg.Location()

	store, err := sqlite.New(*dbPath, loc)
	if err != nil {
		log.Fatal().Err(err).Str("db", *dbPath).Msg("database init failed")
	}
	defer store.Close()

	var client cache.Client
	if *redisAddr != "" {
		redis := cache.NewRedis(*redisAddr)
		if err := redis.Ping(context.Background()); err != nil {
			log.Fatal().Err(err).Str("addr", *redisAddr).Msg("redis unreachable")
		}
		defer redis.Close()
		client = redis
		log.Info().Str("addr", *redisAddr).Msg("redis cache connected")
	} else {
		client = cache.NewMemory()
		log.Warn().Msg("no redis configured, using in-process cache")
	}
	vc := cache.NewVersioned(client, cfg.CachePrefix, cfg.CacheVersion)

	catalog := calendar.NewCatalog(store,
		&calendar.StaticHolidaySource{}, // swapped for the live fetcher by ops config
		&calendar.StaticSunSource{},
		vc,
		calendar.Options{
			Location:       loc,
			CandleOffset:   cfg.CandleOffset,
			HavdalahOffset: cfg.HavdalahOffset,
			HolidayTTL:     cfg.HolidayTTL,
			SourceTimeout:  cfg.SourceTimeout,
			AllowEstimates: cfg.AllowEstimates,
			DefaultLat:     cfg.DefaultLat,
			DefaultLng:     cfg.DefaultLng,
		}, log)

	worklogs := worklog.NewService(store, cfg.MaxShiftHours, log)
	bulk := payroll.NewBulkService(store, store, store, catalog, vc, cfg, log)

	runner := tasks.NewRunner(256, 2, cfg.TaskRetries, log)
	tasks.RegisterRecalculate(runner, bulk, client, cfg.RecalcDebounceTTL, log)
	worklogs.RegisterHook(tasks.NewWorkLogHook(runner, vc, loc, log))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	runner.Start(ctx)
	defer runner.Stop()

	scheduler := tasks.NewScheduler(cfg, client, catalog, store, log)
	scheduler.Start()
	defer scheduler.Stop()

	handler := &api.Handler{
		Worklogs:  worklogs,
		Bulk:      bulk,
		Payroll:   store,
		Directory: store,
		Catalog:   catalog,
		Refresher: catalog,
		Cfg:       cfg,
		Log:       log,
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      api.NewRouter(handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Int("port", *port).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}
	log.Info().Msg("server stopped")
}
