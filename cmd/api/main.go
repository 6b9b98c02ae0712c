package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	server "hotel_booking/internal/adapters/http_server"
	"hotel_booking/internal/adapters/observability"
	"hotel_booking/internal/adapters/payments"
	redisad "hotel_booking/internal/adapters/redis"
	"hotel_booking/internal/app"
	"hotel_booking/internal/domain"
	"hotel_booking/internal/shared"
	mysqlrepo "hotel_booking/internal/storage/mysql"
)

func main() {
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := observability.InitRegistry()
	observability.Serve(cfg.MetricsAddr, reg)

	// db
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	defer db.Close()
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("database connection ok")

	// deps
	repo := mysqlrepo.New(db)
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	defer cache.Close()
	if err := cache.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("redis unavailable; catalog reads go to MySQL")
	}

	gateway, webhooks := paymentGateways(cfg)
	catalog := app.NewCatalogService(repo, cache, cfg.CacheTTL)
	pricing := app.NewPricingService(catalog, shared.NewValidator(), app.StayRules{
		MaxNights:       cfg.MaxNights,
		MaxRoomsPerLine: cfg.MaxRoomsPerLine,
	})
	booking := app.NewBookingService(pricing, repo, payments.NewThrottled(gateway, cfg.GatewayRPS), cfg.CheckoutTTL)

	// http
	srv := server.New()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{
		Pricing:      pricing,
		Booking:      booking,
		Reconcile:    app.NewReconcileService(repo),
		Catalog:      catalog,
		Reservations: app.NewReservationService(repo),
		Webhooks:     webhooks,
		JWTSecret:    cfg.JWTSecret,
		Checks: map[string]func(context.Context) error{
			"mysql": repo.Ping,
			"redis": cache.Ping,
		},
	})

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Str("provider", gateway.Name()).Msg("API listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

// paymentGateways returns the checkout gateway and a webhook parser for every provider with credentials.
func paymentGateways(cfg shared.Config) (domain.PaymentGateway, map[string]server.WebhookParser) {
	hooks := map[string]server.WebhookParser{}
	var stripe *payments.Stripe
	var midtrans *payments.Midtrans

	if cfg.StripeSecretKey != "" || cfg.PaymentProvider == payments.ProviderStripe {
		stripe = payments.NewStripe(payments.StripeConfig{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.StripeWebhookSecret,
			SuccessURL:    cfg.SuccessURL,
			CancelURL:     cfg.CancelURL,
		})
		hooks[payments.ProviderStripe] = stripe
	}
	if cfg.MidtransServerKey != "" || cfg.PaymentProvider == payments.ProviderMidtrans {
		midtrans = payments.NewMidtrans(payments.MidtransConfig{
			ServerKey:  cfg.MidtransServerKey,
			Production: cfg.MidtransProduction,
			FinishURL:  cfg.SuccessURL,
		})
		hooks[payments.ProviderMidtrans] = midtrans
	}

	if cfg.PaymentProvider == payments.ProviderMidtrans {
		return midtrans, hooks
	}
	return stripe, hooks
}
