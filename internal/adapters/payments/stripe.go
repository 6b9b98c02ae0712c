package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/webhook"

	"hotel_booking/internal/domain"
)

const ProviderStripe = "stripe"

// Stripe never lets a checkout session expire sooner than this.
const stripeMinExpiry = 30 * time.Minute

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
	BaseURL       string // API override, empty for api.stripe.com
	HTTPClient    *http.Client
}

// Stripe opens hosted Checkout sessions and verifies Stripe webhooks.
type Stripe struct {
	client *stripe.Client
	cfg    StripeConfig
	now    func() time.Time
}

func NewStripe(cfg StripeConfig) *Stripe {
	bc := &stripe.BackendConfig{
		HTTPClient:        cfg.HTTPClient,
		MaxNetworkRetries: stripe.Int64(0), // Throttled owns retries
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
	}
	if bc.HTTPClient == nil {
		bc.HTTPClient = &http.Client{Timeout: 20 * time.Second}
	}
	if cfg.BaseURL != "" {
		bc.URL = stripe.String(cfg.BaseURL)
	}
	backends := &stripe.Backends{API: stripe.GetBackendWithConfig(stripe.APIBackend, bc)}
	return &Stripe{
		client: stripe.NewClient(cfg.SecretKey, stripe.WithBackends(backends)),
		cfg:    cfg,
		now:    time.Now,
	}
}

func (s *Stripe) Name() string { return ProviderStripe }

func (s *Stripe) CreateCheckout(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutSession, error) {
	cur := strings.ToLower(req.Currency)
	params := &stripe.CheckoutSessionCreateParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(withConfirmation(s.cfg.SuccessURL, req.ConfirmationNumber)),
		CancelURL:         stripe.String(s.cfg.CancelURL),
		CustomerEmail:     stripe.String(req.Guest.Email),
		ClientReferenceID: stripe.String(req.PaymentID),
		PaymentIntentData: &stripe.CheckoutSessionCreatePaymentIntentDataParams{
			Metadata: map[string]string{
				"payment_id":     req.PaymentID,
				"reservation_id": req.ReservationID,
			},
		},
	}
	if until := req.ExpiresAt.Sub(s.now()); until >= stripeMinExpiry {
		params.ExpiresAt = stripe.Int64(req.ExpiresAt.Unix())
	}
	for _, li := range req.LineItems {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionCreateLineItemParams{
			PriceData: &stripe.CheckoutSessionCreateLineItemPriceDataParams{
				Currency:    stripe.String(cur),
				UnitAmount:  stripe.Int64(li.UnitAmount),
				ProductData: &stripe.CheckoutSessionCreateLineItemPriceDataProductDataParams{Name: stripe.String(li.Description)},
			},
			Quantity: stripe.Int64(li.Quantity),
		})
	}
	params.AddMetadata("payment_id", req.PaymentID)
	params.AddMetadata("reservation_id", req.ReservationID)
	params.AddMetadata("confirmation_number", req.ConfirmationNumber)
	params.SetIdempotencyKey("checkout-" + req.PaymentID)

	cs, err := s.client.V1CheckoutSessions.Create(ctx, params)
	if err != nil {
		if ctx.Err() != nil {
			return domain.CheckoutSession{}, ctx.Err()
		}
		return domain.CheckoutSession{}, stripeError(err)
	}
	out := domain.CheckoutSession{SessionID: cs.ID, URL: cs.URL}
	if cs.PaymentIntent != nil {
		out.ProviderRef = cs.PaymentIntent.ID
	}
	return out, nil
}

func stripeError(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		return &ProviderError{Provider: ProviderStripe, Status: se.HTTPStatusCode, Message: se.Msg}
	}
	return &ProviderError{Provider: ProviderStripe, Message: err.Error()}
}

// withConfirmation appends the confirmation number so the landing page can look the booking up.
func withConfirmation(u, confirmation string) string {
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return u + sep + "confirmation=" + confirmation
}

// ParseWebhook verifies the Stripe-Signature header and normalizes the events we act on.
// Other event types come back with OutcomeNone.
func (s *Stripe) ParseWebhook(payload []byte, h http.Header) (domain.PaymentEvent, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, h.Get("Stripe-Signature"), s.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return domain.PaymentEvent{}, fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
	}

	out := domain.PaymentEvent{Provider: ProviderStripe, EventID: ev.ID, Type: string(ev.Type), Payload: payload}
	if ev.Data == nil {
		return out, nil
	}

	switch ev.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded",
		"checkout.session.async_payment_failed", "checkout.session.expired":
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &cs); err != nil {
			return domain.PaymentEvent{}, fmt.Errorf("decode checkout session: %w", err)
		}
		out.SessionID = cs.ID
		out.PaymentID = cs.Metadata["payment_id"]
		if out.PaymentID == "" {
			out.PaymentID = cs.ClientReferenceID
		}
		if cs.PaymentIntent != nil {
			out.ProviderRef = cs.PaymentIntent.ID
		}
		amount := cs.AmountTotal
		out.Amount = &amount

		switch ev.Type {
		case "checkout.session.completed":
			// delayed methods complete unpaid and settle through async_payment_*
			if cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
				out.Outcome = domain.OutcomeSucceeded
			} else {
				out.Outcome = domain.OutcomePending
			}
		case "checkout.session.async_payment_succeeded":
			out.Outcome = domain.OutcomeSucceeded
		case "checkout.session.async_payment_failed":
			out.Outcome = domain.OutcomeFailed
		case "checkout.session.expired":
			out.Outcome = domain.OutcomeExpired
		}

	case "charge.refunded":
		var ch stripe.Charge
		if err := json.Unmarshal(ev.Data.Raw, &ch); err != nil {
			return domain.PaymentEvent{}, fmt.Errorf("decode charge: %w", err)
		}
		if ch.PaymentIntent != nil {
			out.ProviderRef = ch.PaymentIntent.ID
		}
		out.PaymentID = ch.Metadata["payment_id"]
		// partial refunds leave the booking in place
		if ch.Refunded {
			out.Outcome = domain.OutcomeRefunded
		}
	}
	return out, nil
}
