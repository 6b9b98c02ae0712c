package shared

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Stripe refuses checkout sessions that expire in under 30 minutes.
const minStripeCheckoutTTL = 31 * time.Minute

type Config struct {
	AppEnv      string        `envconfig:"APP_ENV" default:"prod"`
	LogLevel    string        `envconfig:"LOG_LEVEL" default:"info"`
	HTTPAddr    string        `envconfig:"HTTP_ADDR" default:":8080"`
	MetricsAddr string        `envconfig:"METRICS_ADDR" default:":9100"`
	MySQLDSN    string        `envconfig:"MYSQL_DSN" default:"root:root@tcp(localhost:3306)/hotel?parseTime=true&charset=utf8mb4,utf8&loc=UTC"`
	RedisAddr   string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisDB     int           `envconfig:"REDIS_DB" default:"0"`
	RedisPass   string        `envconfig:"REDIS_PASSWORD"`
	CacheTTL    time.Duration `envconfig:"CACHE_TTL" default:"15m"`

	PaymentProvider     string        `envconfig:"PAYMENT_PROVIDER" default:"stripe"` // stripe|midtrans
	StripeSecretKey     string        `envconfig:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string        `envconfig:"STRIPE_WEBHOOK_SECRET"`
	MidtransServerKey   string        `envconfig:"MIDTRANS_SERVER_KEY"`
	MidtransProduction  bool          `envconfig:"MIDTRANS_PRODUCTION" default:"false"`
	SuccessURL          string        `envconfig:"CHECKOUT_SUCCESS_URL" default:"http://localhost:3000/booking/success"`
	CancelURL           string        `envconfig:"CHECKOUT_CANCEL_URL" default:"http://localhost:3000/booking/cancelled"`
	CheckoutTTL         time.Duration `envconfig:"CHECKOUT_TTL" default:"30m"`
	GatewayRPS          int           `envconfig:"GATEWAY_RPS" default:"20"`

	JWTSecret string `envconfig:"JWT_SECRET"`

	MaxNights       int `envconfig:"BOOKING_MAX_NIGHTS" default:"30"`
	MaxRoomsPerLine int `envconfig:"BOOKING_MAX_ROOMS_PER_LINE" default:"5"`

	SweepBatch      int           `envconfig:"SWEEP_BATCH" default:"200"`
	SweepInterval   time.Duration `envconfig:"SWEEP_INTERVAL" default:"1m"`
	Workers         int           `envconfig:"SWEEP_WORKERS" default:"8"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"20s"`
}

// Load reads .env when present, then the process environment. Invalid settings are fatal.
func Load() Config {
	_ = godotenv.Load()

	c, err := Parse()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	return c
}

// Parse reads the process environment only.
func Parse() (Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return Config{}, err
	}
	switch c.PaymentProvider {
	case "stripe":
		if c.StripeSecretKey == "" {
			log.Warn().Msg("STRIPE_SECRET_KEY is empty")
		}
		if c.StripeWebhookSecret == "" {
			log.Warn().Msg("STRIPE_WEBHOOK_SECRET is empty; webhooks will be rejected")
		}
		if c.CheckoutTTL < minStripeCheckoutTTL {
			log.Warn().Dur("checkout_ttl", c.CheckoutTTL).Dur("raised_to", minStripeCheckoutTTL).
				Msg("CHECKOUT_TTL below the Stripe minimum")
			c.CheckoutTTL = minStripeCheckoutTTL
		}
	case "midtrans":
		if c.MidtransServerKey == "" {
			log.Warn().Msg("MIDTRANS_SERVER_KEY is empty")
		}
	default:
		return Config{}, fmt.Errorf("PAYMENT_PROVIDER must be stripe or midtrans, got %q", c.PaymentProvider)
	}
	if c.CheckoutTTL <= 0 {
		return Config{}, fmt.Errorf("CHECKOUT_TTL must be positive")
	}
	if c.JWTSecret == "" {
		log.Warn().Msg("JWT_SECRET is empty; admin routes are disabled")
	}
	return c, nil
}
