package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"hotel_booking/internal/domain"
)

// ---- in-memory store: catalog + booking repositories and the transaction side ----

type memStore struct {
	mu sync.Mutex

	units     map[int64]domain.BusinessUnit
	roomTypes []domain.RoomType
	overrides []domain.RateOverride
	promos    map[string]domain.PromoCode

	guests       map[string]domain.Guest // by email
	reservations map[string]domain.Reservation
	payments     map[string]domain.Payment
	events       map[string]string // provider|event_id -> outcome

	unitReads  int
	duplicates int // InsertReservation fails with ErrDuplicate this many times
	sessionErr error
}

func newStore() *memStore {
	return &memStore{
		units: map[int64]domain.BusinessUnit{
			1: {ID: 1, Name: "Harbour Hotel", Currency: "USD", TaxRate: dec("0.10"), ServiceChargeRate: dec("0.05"), Active: true},
		},
		roomTypes: []domain.RoomType{
			{ID: 10, BusinessUnitID: 1, Name: "Deluxe King", BaseRate: dec("100"), BaseOccupancy: 2,
				MaxAdults: 3, MaxChildren: 2, MaxOccupancy: 4, TotalRooms: 2, Active: true},
			{ID: 11, BusinessUnitID: 1, Name: "Closed Wing", BaseRate: dec("80"), BaseOccupancy: 2,
				MaxAdults: 2, MaxOccupancy: 2, TotalRooms: 4, Active: false},
		},
		promos: map[string]domain.PromoCode{
			"FREE": {Code: "FREE", PercentOff: pdec("100"), Active: true},
		},
		guests:       map[string]domain.Guest{},
		reservations: map[string]domain.Reservation{},
		payments:     map[string]domain.Payment{},
		events:       map[string]string{},
	}
}

func (m *memStore) GetBusinessUnit(_ context.Context, id int64) (domain.BusinessUnit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unitReads++
	bu, ok := m.units[id]
	if !ok {
		return domain.BusinessUnit{}, domain.ErrNotFound
	}
	return bu, nil
}

func (m *memStore) ListRoomTypes(_ context.Context, id int64) ([]domain.RoomType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.RoomType
	for _, rt := range m.roomTypes {
		if rt.BusinessUnitID == id {
			out = append(out, rt)
		}
	}
	return out, nil
}

func (m *memStore) ListRateOverrides(_ context.Context, _ int64, _, _ time.Time) ([]domain.RateOverride, error) {
	return m.overrides, nil
}

func (m *memStore) GetPromoCode(_ context.Context, code string) (domain.PromoCode, error) {
	p, ok := m.promos[code]
	if !ok {
		return domain.PromoCode{}, domain.ErrNotFound
	}
	return p, nil
}

// WithinTx holds the store lock for the whole callback and restores a snapshot when fn fails.
func (m *memStore) WithinTx(ctx context.Context, fn func(tx domain.BookingTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	guests, res, pays, evs := clone(m.guests), clone(m.reservations), clone(m.payments), clone(m.events)
	if err := fn(&memTx{m: m}); err != nil {
		m.guests, m.reservations, m.payments, m.events = guests, res, pays, evs
		return err
	}
	return nil
}

func clone[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (m *memStore) SetCheckoutSession(_ context.Context, paymentID string, s domain.CheckoutSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessionErr != nil {
		return m.sessionErr
	}
	p, ok := m.payments[paymentID]
	if !ok {
		return domain.ErrNotFound
	}
	p.SessionID, p.CheckoutURL = ptr(s.SessionID), ptr(s.URL)
	if s.ProviderRef != "" {
		p.ProviderRef = ptr(s.ProviderRef)
	}
	m.payments[paymentID] = p
	return nil
}

func (m *memStore) GetReservation(_ context.Context, id string) (domain.ReservationDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reservations[id]
	if !ok {
		return domain.ReservationDetail{}, domain.ErrNotFound
	}
	return m.detail(r), nil
}

func (m *memStore) FindByConfirmation(_ context.Context, c string) (domain.ReservationDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.reservations {
		if r.ConfirmationNumber == c {
			return m.detail(r), nil
		}
	}
	return domain.ReservationDetail{}, domain.ErrNotFound
}

func (m *memStore) detail(r domain.Reservation) domain.ReservationDetail {
	d := domain.ReservationDetail{Reservation: r}
	for _, g := range m.guests {
		if g.ID == r.GuestID {
			d.Guest = g
		}
	}
	for _, p := range m.payments {
		if p.ReservationID == r.ID {
			d.Payments = append(d.Payments, p)
		}
	}
	return d
}

func (m *memStore) ListReservations(_ context.Context, q domain.ReservationsQuery) (domain.ReservationsPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out domain.ReservationsPage
	for _, r := range m.reservations {
		if len(out.Items) == q.Limit {
			break
		}
		out.Items = append(out.Items, domain.ReservationSummary{ID: r.ID, Status: r.Status})
	}
	return out, nil
}

func (m *memStore) ListExpiredPayments(_ context.Context, now time.Time, limit int) ([]domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Payment
	for _, p := range m.payments {
		if p.Status == domain.PaymentPending && p.ExpiresAt.Before(now) && len(out) < limit {
			out = append(out, p)
		}
	}
	return out, nil
}

// reservation / payment accessors for assertions
func (m *memStore) reservation(id string) domain.Reservation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reservations[id]
}

func (m *memStore) payment(id string) domain.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.payments[id]
}

type memTx struct{ m *memStore }

func (t *memTx) LockRoomTypes(_ context.Context, ids []int64) (map[int64]domain.RoomType, error) {
	out := map[int64]domain.RoomType{}
	for _, id := range ids {
		for _, rt := range t.m.roomTypes {
			if rt.ID == id {
				out[id] = rt
			}
		}
	}
	return out, nil
}

func (t *memTx) BookedRooms(_ context.Context, ids []int64, stay domain.Stay) (map[int64]int, error) {
	out := map[int64]int{}
	for _, r := range t.m.reservations {
		if !r.Status.Holds() || !r.CheckIn.Before(stay.CheckOut) || !r.CheckOut.After(stay.CheckIn) {
			continue
		}
		for _, room := range r.Rooms {
			out[room.RoomTypeID] += room.Quantity
		}
	}
	return out, nil
}

func (t *memTx) UpsertGuest(_ context.Context, g domain.Guest) (domain.Guest, error) {
	if old, ok := t.m.guests[g.Email]; ok {
		g.ID = old.ID
	} else {
		g.ID = "guest-" + g.Email
	}
	t.m.guests[g.Email] = g
	return g, nil
}

func (t *memTx) InsertReservation(_ context.Context, r domain.Reservation) error {
	if t.m.duplicates > 0 {
		t.m.duplicates--
		return domain.ErrDuplicate
	}
	t.m.reservations[r.ID] = r
	return nil
}

func (t *memTx) InsertPayment(_ context.Context, p domain.Payment) error {
	t.m.payments[p.ID] = p
	return nil
}

func (t *memTx) RecordPaymentEvent(_ context.Context, e domain.PaymentEvent) (bool, error) {
	key := e.Provider + "|" + e.EventID
	if _, ok := t.m.events[key]; ok {
		return false, nil
	}
	t.m.events[key] = "received"
	return true, nil
}

func (t *memTx) ResolvePaymentEvent(_ context.Context, provider, eventID string, _ *string, outcome string) error {
	t.m.events[provider+"|"+eventID] = outcome
	return nil
}

func (t *memTx) LockPayment(_ context.Context, by domain.PaymentLookup) (domain.Payment, error) {
	if p, ok := t.m.payments[by.ID]; ok {
		return p, nil
	}
	for _, p := range t.m.payments {
		if p.Provider != by.Provider {
			continue
		}
		if (by.SessionID != "" && deref(p.SessionID) == by.SessionID) ||
			(by.ProviderRef != "" && deref(p.ProviderRef) == by.ProviderRef) {
			return p, nil
		}
	}
	return domain.Payment{}, domain.ErrNotFound
}

func (t *memTx) UpdatePayment(_ context.Context, p domain.Payment) error {
	t.m.payments[p.ID] = p
	return nil
}

func (t *memTx) LockReservation(_ context.Context, id string) (domain.Reservation, error) {
	r, ok := t.m.reservations[id]
	if !ok {
		return domain.Reservation{}, domain.ErrNotFound
	}
	return r, nil
}

func (t *memTx) UpdateReservationStatus(_ context.Context, id string, s domain.ReservationStatus, ps domain.ReservationPaymentStatus) error {
	r := t.m.reservations[id]
	r.Status, r.PaymentStatus = s, ps
	t.m.reservations[id] = r
	return nil
}

// ---- cache that round-trips through JSON like the Redis adapter ----

type jsonCache struct {
	mu    sync.Mutex
	store map[string][]byte
}

func (c *jsonCache) Get(_ context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.store[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (c *jsonCache) Set(_ context.Context, key string, v any, _ int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		c.store = map[string][]byte{}
	}
	b, err := json.Marshal(v)
	c.store[key] = b
	return err
}

func (c *jsonCache) Del(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, key)
	return nil
}

// ---- payment gateway ----

type fakeGateway struct {
	mu   sync.Mutex
	err  error
	reqs []domain.CheckoutRequest
}

func (g *fakeGateway) Name() string { return "stripe" }

func (g *fakeGateway) CreateCheckout(_ context.Context, req domain.CheckoutRequest) (domain.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reqs = append(g.reqs, req)
	if g.err != nil {
		return domain.CheckoutSession{}, g.err
	}
	return domain.CheckoutSession{SessionID: "cs_" + req.PaymentID, URL: "https://pay.example/" + req.PaymentID}, nil
}

func (g *fakeGateway) ParseWebhook([]byte, http.Header) (domain.PaymentEvent, error) {
	return domain.PaymentEvent{}, errors.New("not used")
}

// ---- helpers ----

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }
func pdec(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}
func ptr[T any](v T) *T { return &v }
func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

var fixedNow = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }
