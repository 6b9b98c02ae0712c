package payments

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	midtrans "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/shopspring/decimal"

	"hotel_booking/internal/domain"
)

const ProviderMidtrans = "midtrans"

// snapAPI is the part of snap.Client we call.
type snapAPI interface {
	CreateTransaction(req *snap.Request) (*snap.Response, *midtrans.Error)
}

type MidtransConfig struct {
	ServerKey  string
	Production bool
	FinishURL  string
}

// Midtrans opens Snap payment pages and verifies HTTP notifications. The Snap order id is our payment id.
type Midtrans struct {
	snap      snapAPI
	serverKey string
	finishURL string
	now       func() time.Time
}

func NewMidtrans(cfg MidtransConfig) *Midtrans {
	var c snap.Client
	if cfg.Production {
		c.New(cfg.ServerKey, midtrans.Production)
	} else {
		c.New(cfg.ServerKey, midtrans.Sandbox)
	}
	return &Midtrans{snap: &c, serverKey: cfg.ServerKey, finishURL: cfg.FinishURL, now: time.Now}
}

func (m *Midtrans) Name() string { return ProviderMidtrans }

func (m *Midtrans) CreateCheckout(_ context.Context, req domain.CheckoutRequest) (domain.CheckoutSession, error) {
	if req.Currency != "IDR" {
		return domain.CheckoutSession{}, &ProviderError{Provider: ProviderMidtrans, Status: http.StatusBadRequest,
			Message: fmt.Sprintf("currency %s is not supported", req.Currency)}
	}

	items := make([]midtrans.ItemDetails, 0, len(req.LineItems))
	for i, li := range req.LineItems {
		items = append(items, midtrans.ItemDetails{
			ID:    fmt.Sprintf("%s-%d", req.ConfirmationNumber, i+1),
			Name:  truncate(li.Description, 50),
			Price: li.UnitAmount,
			Qty:   int32(li.Quantity),
		})
	}
	sr := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{OrderID: req.PaymentID, GrossAmt: req.Amount},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: req.Guest.FirstName,
			LName: req.Guest.LastName,
			Email: req.Guest.Email,
			Phone: deref(req.Guest.Phone),
		},
		Items:        &items,
		CustomField1: req.ReservationID,
		CustomField2: req.ConfirmationNumber,
	}
	if mins := int64(req.ExpiresAt.Sub(m.now()) / time.Minute); mins > 0 {
		sr.Expiry = &snap.ExpiryDetails{
			StartTime: m.now().Format("2006-01-02 15:04:05 -0700"),
			Unit:      "minute",
			Duration:  mins,
		}
	}
	if m.finishURL != "" {
		sr.Callbacks = &snap.Callbacks{Finish: withConfirmation(m.finishURL, req.ConfirmationNumber)}
	}

	resp, merr := m.snap.CreateTransaction(sr)
	if merr != nil {
		return domain.CheckoutSession{}, &ProviderError{Provider: ProviderMidtrans, Status: merr.StatusCode, Message: merr.Message}
	}
	return domain.CheckoutSession{SessionID: resp.Token, URL: resp.RedirectURL}, nil
}

type midtransNotification struct {
	TransactionStatus string `json:"transaction_status"`
	StatusCode        string `json:"status_code"`
	SignatureKey      string `json:"signature_key"`
	OrderID           string `json:"order_id"`
	GrossAmount       string `json:"gross_amount"`
	FraudStatus       string `json:"fraud_status"`
	TransactionID     string `json:"transaction_id"`
}

// ParseWebhook checks SHA512(order_id+status_code+gross_amount+server_key) and maps the transaction status.
func (m *Midtrans) ParseWebhook(payload []byte, _ http.Header) (domain.PaymentEvent, error) {
	var n midtransNotification
	if err := json.Unmarshal(payload, &n); err != nil {
		return domain.PaymentEvent{}, domain.Invalid("", "invalid notification payload")
	}
	want := strings.ToLower(n.SignatureKey)
	got := MidtransSignature(n.OrderID, n.StatusCode, n.GrossAmount, m.serverKey)
	if want == "" || subtle.ConstantTimeCompare([]byte(want), []byte(got)) != 1 {
		return domain.PaymentEvent{}, domain.ErrInvalidSignature
	}

	out := domain.PaymentEvent{
		Provider:    ProviderMidtrans,
		EventID:     n.TransactionID + ":" + n.TransactionStatus + ":" + n.FraudStatus,
		Type:        n.TransactionStatus,
		PaymentID:   n.OrderID,
		ProviderRef: n.TransactionID,
		Outcome:     midtransOutcome(n.TransactionStatus, n.FraudStatus),
		Payload:     payload,
	}
	if amt, err := decimal.NewFromString(n.GrossAmount); err == nil {
		v := amt.Round(0).IntPart()
		out.Amount = &v
	}
	return out, nil
}

func midtransOutcome(status, fraud string) domain.PaymentOutcome {
	switch status {
	case "capture":
		if fraud == "challenge" {
			return domain.OutcomePending
		}
		if fraud == "deny" {
			return domain.OutcomeFailed
		}
		return domain.OutcomeSucceeded
	case "settlement":
		return domain.OutcomeSucceeded
	case "pending":
		return domain.OutcomePending
	case "deny", "failure":
		return domain.OutcomeFailed
	case "cancel", "expire":
		return domain.OutcomeExpired
	case "refund", "partial_refund":
		return domain.OutcomeRefunded
	}
	return domain.OutcomeNone
}

func MidtransSignature(orderID, statusCode, grossAmount, serverKey string) string {
	h := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(h[:])
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
