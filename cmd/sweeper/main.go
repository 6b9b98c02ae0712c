package main

import (
	"context"
	"database/sql"
	"flag"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"hotel_booking/internal/adapters/observability"
	"hotel_booking/internal/app"
	"hotel_booking/internal/shared"
	mysqlrepo "hotel_booking/internal/storage/mysql"
)

func main() {
	once := flag.Bool("once", false, "run a single sweep and exit")
	flag.Parse()

	cfg := shared.Load()

	// initialize global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().
		Int("batch", cfg.SweepBatch).
		Int("workers", cfg.Workers).
		Dur("interval", cfg.SweepInterval).
		Bool("once", *once).
		Msg("sweeper starting")

	if !*once {
		observability.Serve(cfg.MetricsAddr, observability.InitRegistry())
	}

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")

	rec := app.NewReconcileService(mysqlrepo.New(db))

	sweep := func() {
		start := time.Now()
		for {
			n, err := rec.SweepExpired(ctx, cfg.SweepBatch, cfg.Workers)
			if err != nil {
				log.Warn().Err(err).Msg("sweep failed")
				return
			}
			log.Info().Int("expired", n).Dur("took", time.Since(start)).Msg("sweep ok")
			// a full batch may have more behind it
			if n < cfg.SweepBatch {
				return
			}
		}
	}

	sweep()
	if *once {
		return
	}

	t := time.NewTicker(cfg.SweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("sweeper stopped")
			return
		case <-t.C:
			sweep()
		}
	}
}
