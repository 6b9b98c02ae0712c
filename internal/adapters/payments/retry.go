package payments

import (
	"context"
	crand "crypto/rand"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"hotel_booking/internal/adapters/observability"
	"hotel_booking/internal/domain"
)

const maxAttempts = 4

// Throttled wraps a gateway with client-side rate limiting and retries of transient failures.
// Webhook parsing is passed through untouched.
type Throttled struct {
	next    domain.PaymentGateway
	rl      *rate.Limiter
	backoff func(attempt int) time.Duration
}

func NewThrottled(next domain.PaymentGateway, rps int) *Throttled {
	if rps <= 0 {
		rps = 5
	}
	return &Throttled{next: next, rl: rate.NewLimiter(rate.Limit(rps), rps), backoff: backoff}
}

// WithBackoff replaces the retry delay schedule.
func (t *Throttled) WithBackoff(fn func(attempt int) time.Duration) *Throttled {
	t.backoff = fn
	return t
}

func (t *Throttled) Name() string { return t.next.Name() }

func (t *Throttled) ParseWebhook(payload []byte, h http.Header) (domain.PaymentEvent, error) {
	return t.next.ParseWebhook(payload, h)
}

func (t *Throttled) CreateCheckout(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutSession, error) {
	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		// client-side rate limiting
		if err := t.rl.Wait(ctx); err != nil {
			return domain.CheckoutSession{}, err
		}

		start := time.Now()
		sess, err := t.next.CreateCheckout(ctx, req)
		observability.ObserveGateway(t.next.Name(), "create_checkout", err, time.Since(start))
		if err == nil {
			return sess, nil
		}
		lastErr = err

		var pe *ProviderError
		if !errors.As(err, &pe) || !pe.Retryable() {
			return domain.CheckoutSession{}, err
		}
		log.Warn().Err(err).Str("payment_id", req.PaymentID).Int("attempt", i+1).Msg("checkout attempt failed")
		if i < maxAttempts-1 && !sleepCtx(ctx, t.backoff(i)) {
			return domain.CheckoutSession{}, ctx.Err()
		}
	}
	return domain.CheckoutSession{}, lastErr
}

// sleepCtx waits for d or returns false if ctx is done first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// backoff doubles from 200ms with up to +50% jitter.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	return base + time.Duration(0.5*f*float64(base))
}
