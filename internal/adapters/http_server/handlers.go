package httpserver

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"hotel_booking/internal/domain"
)

const maxBodyBytes = 1 << 20

type Pricer interface {
	Calculate(ctx context.Context, req domain.QuoteRequest) (domain.Quote, error)
}

type Booker interface {
	CreateWithPayment(ctx context.Context, req domain.BookingRequest) (domain.BookingResult, error)
}

type Reconciler interface {
	HandleEvent(ctx context.Context, e domain.PaymentEvent) (string, error)
}

type RoomCatalog interface {
	RoomTypes(ctx context.Context, businessUnitID int64) ([]domain.RoomType, error)
	Invalidate(ctx context.Context, businessUnitID int64)
}

type ReservationDesk interface {
	Lookup(ctx context.Context, confirmation, email string) (domain.ReservationDetail, error)
	Get(ctx context.Context, id string) (domain.ReservationDetail, error)
	List(ctx context.Context, q domain.ReservationsQuery) (domain.ReservationsPage, error)
	Cancel(ctx context.Context, id, actor string) (domain.Reservation, error)
}

// WebhookParser verifies and decodes one provider's notifications.
type WebhookParser interface {
	ParseWebhook(payload []byte, h http.Header) (domain.PaymentEvent, error)
}

type Handlers struct {
	Pricing      Pricer
	Booking      Booker
	Reconcile    Reconciler
	Catalog      RoomCatalog
	Reservations ReservationDesk
	Webhooks     map[string]WebhookParser // keyed by provider name
	JWTSecret    string
	Checks       map[string]func(context.Context) error
}

type problem struct {
	Type      string `json:"type"`
	Title     string `json:"title"`
	Status    int    `json:"status"`
	Detail    string `json:"detail,omitempty"`
	Field     string `json:"field,omitempty"`
	Instance  string `json:"instance,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })
	s.mux.Get("/readyz", h.ready)

	s.mux.Route("/v1", func(r chi.Router) {
		r.Post("/pricing/calculate", h.calculate)
		r.Post("/bookings", h.createBooking)
		r.Get("/bookings/{confirmation}", h.lookupBooking)
		r.Get("/business-units/{id}/room-types", h.listRoomTypes)
		r.Post("/payments/webhooks/{provider}", h.webhook)

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireStaff(h.JWTSecret, "admin", "staff"))
			r.Get("/reservations", h.listReservations)
			r.Get("/reservations/{id}", h.getReservation)
			r.Post("/reservations/{id}/cancel", h.cancelReservation)
			r.With(RequireStaff(h.JWTSecret, "admin")).
				Post("/business-units/{id}/catalog/refresh", h.refreshCatalog)
		})
	})
}

func writeProblem(w http.ResponseWriter, r *http.Request, status int, title, detail string) {
	writeProblemDoc(w, problem{Title: title, Status: status, Detail: detail}, r)
}

func writeProblemDoc(w http.ResponseWriter, p problem, r *http.Request) {
	p.Type = "about:blank"
	p.Instance = r.URL.Path
	p.RequestID = chimw.GetReqID(r.Context())
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	if err := json.NewEncoder(w).Encode(p); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// writeError maps domain errors to problem responses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		writeProblemDoc(w, problem{Title: "Invalid request", Status: http.StatusBadRequest, Detail: ve.Message, Field: ve.Field}, r)
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, r, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, domain.ErrNoAvailability):
		writeProblem(w, r, http.StatusConflict, "No availability", err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		writeProblem(w, r, http.StatusConflict, "Invalid status change", err.Error())
	case errors.Is(err, domain.ErrDuplicate):
		writeProblem(w, r, http.StatusConflict, "Conflict", "please retry")
	case errors.Is(err, domain.ErrInvalidPromo):
		writeProblemDoc(w, problem{Title: "Invalid promo code", Status: http.StatusUnprocessableEntity, Detail: err.Error(), Field: "promo_code"}, r)
	case errors.Is(err, domain.ErrInactive):
		writeProblem(w, r, http.StatusUnprocessableEntity, "Not bookable", err.Error())
	case errors.Is(err, domain.ErrAmountMismatch):
		writeProblem(w, r, http.StatusUnprocessableEntity, "Amount mismatch", err.Error())
	case errors.Is(err, domain.ErrInvalidSignature):
		writeProblem(w, r, http.StatusBadRequest, "Invalid signature", "webhook signature verification failed")
	case errors.Is(err, domain.ErrGateway):
		writeProblem(w, r, http.StatusBadGateway, "Payment provider error", domain.ErrGateway.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeProblem(w, r, http.StatusGatewayTimeout, "Timeout", "request took too long")
	default:
		log.Error().Err(err).Str("request_id", chimw.GetReqID(r.Context())).Str("path", r.URL.Path).Msg("request failed")
		writeProblem(w, r, http.StatusInternalServerError, "Internal Server Error", "")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var te *json.UnmarshalTypeError
		if errors.As(err, &te) && te.Field != "" {
			return domain.Invalid(te.Field, "must be a %s", te.Type.String())
		}
		return domain.Invalid("", "malformed JSON body: %v", err)
	}
	return nil
}

// etagMatches applies the weak comparison of If-None-Match: any listed tag or "*".
func etagMatches(headers []string, etag string) bool {
	if etag == "" {
		return false
	}
	want := strings.TrimPrefix(etag, "W/")
	for _, h := range headers {
		for _, tag := range strings.Split(h, ",") {
			tag = strings.TrimSpace(tag)
			if tag == "*" || strings.TrimPrefix(tag, "W/") == want {
				return true
			}
		}
	}
	return false
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

func (h *Handlers) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	status := map[string]string{}
	ok := true
	for name, check := range h.Checks {
		if err := check(ctx); err != nil {
			status[name] = err.Error()
			ok = false
			continue
		}
		status[name] = "ok"
	}
	code := http.StatusOK
	if !ok {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func (h *Handlers) calculate(w http.ResponseWriter, r *http.Request) {
	var req domain.QuoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	q, err := h.Pricing.Calculate(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (h *Handlers) createBooking(w http.ResponseWriter, r *http.Request) {
	var req domain.BookingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.Booking.CreateWithPayment(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/bookings/"+res.ConfirmationNumber)
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handlers) lookupBooking(w http.ResponseWriter, r *http.Request) {
	d, err := h.Reservations.Lookup(r.Context(), chi.URLParam(r, "confirmation"), r.URL.Query().Get("email"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, bookingLookup(d))
}

func (h *Handlers) listRoomTypes(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeProblem(w, r, http.StatusBadRequest, "Invalid ID", "id must be a positive number")
		return
	}
	rts, err := h.Catalog.RoomTypes(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	etag, body := calcETagAndBody(roomTypes(id, rts))
	// If client already has this version, short-circuit.
	if etagMatches(r.Header.Values("If-None-Match"), etag) {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write room types body")
	}
}

func (h *Handlers) webhook(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	parser, ok := h.Webhooks[provider]
	if !ok {
		writeProblem(w, r, http.StatusNotFound, "Not Found", fmt.Sprintf("provider %q is not configured", provider))
		return
	}
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeProblem(w, r, http.StatusBadRequest, "Invalid body", "could not read request body")
		return
	}

	e, err := parser.ParseWebhook(payload, r.Header)
	if err != nil {
		log.Warn().Err(err).Str("provider", provider).Msg("webhook rejected")
		writeError(w, r, err)
		return
	}
	result, err := h.Reconcile.HandleEvent(r.Context(), e)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": result})
}

var reservationStatuses = map[domain.ReservationStatus]struct{}{
	domain.ReservationPending:    {},
	domain.ReservationConfirmed:  {},
	domain.ReservationCancelled:  {},
	domain.ReservationCheckedIn:  {},
	domain.ReservationCheckedOut: {},
	domain.ReservationNoShow:     {},
}

func (h *Handlers) listReservations(w http.ResponseWriter, r *http.Request) {
	qs := r.URL.Query()
	var q domain.ReservationsQuery

	if v := qs.Get("business_unit_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			writeError(w, r, domain.Invalid("business_unit_id", "must be a positive number"))
			return
		}
		q.BusinessUnitID = &id
	}
	if v := qs.Get("status"); v != "" {
		st := domain.ReservationStatus(strings.ToUpper(v))
		if _, ok := reservationStatuses[st]; !ok {
			writeError(w, r, domain.Invalid("status", "unknown status %q", v))
			return
		}
		q.Status = &st
	}
	if v := qs.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, r, domain.Invalid("limit", "must be a positive integer"))
			return
		}
		q.Limit = n
	}
	if v := qs.Get("cursor"); v != "" {
		q.Cursor = &v
	}

	page, err := h.Reservations.List(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if page.Items == nil {
		page.Items = []domain.ReservationSummary{}
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *Handlers) getReservation(w http.ResponseWriter, r *http.Request) {
	d, err := h.Reservations.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reservationDetail(d))
}

func (h *Handlers) cancelReservation(w http.ResponseWriter, r *http.Request) {
	staff, _ := staffFrom(r.Context())
	res, err := h.Reservations.Cancel(r.Context(), chi.URLParam(r, "id"), staff.Subject)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reservation(res))
}

func (h *Handlers) refreshCatalog(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeProblem(w, r, http.StatusBadRequest, "Invalid ID", "id must be a positive number")
		return
	}
	h.Catalog.Invalidate(r.Context(), id)
	staff, _ := staffFrom(r.Context())
	log.Info().Int64("business_unit_id", id).Str("actor", staff.Subject).Msg("catalog cache dropped")
	w.WriteHeader(http.StatusNoContent)
}
