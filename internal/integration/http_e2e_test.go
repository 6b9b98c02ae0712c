//go:build integration || !unit

package integration

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	_ "github.com/go-sql-driver/mysql"
	"github.com/golang-jwt/jwt/v4"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v83/webhook"

	server "hotel_booking/internal/adapters/http_server"
	"hotel_booking/internal/adapters/payments"
	redisad "hotel_booking/internal/adapters/redis"
	"hotel_booking/internal/app"
	"hotel_booking/internal/domain"
	"hotel_booking/internal/shared"
	mysqlrepo "hotel_booking/internal/storage/mysql"
)

const (
	whsec     = "whsec_e2e"
	jwtSecret = "e2e-secret"
)

// ---------- helpers ----------
func mustEnv(t *testing.T, k string) string {
	t.Helper()
	v := os.Getenv(k)
	if v == "" {
		t.Skipf("%s not set; export it (e.g. MIGRATIONS_DIR=/path/to/migrations)", k)
	}
	return v
}

func applyMigrations(t *testing.T, db *sql.DB) {
	t.Helper()
	dir := mustEnv(t, "MIGRATIONS_DIR")

	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}
	var files []string
	for _, e := range ents {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".sql" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		t.Fatalf("no .sql files in %s", dir)
	}
	sort.Strings(files)
	for _, f := range files {
		sqlBytes, err := os.ReadFile(f)
		if err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
		if _, err := db.Exec(string(sqlBytes)); err != nil {
			t.Fatalf("exec %s: %v", f, err)
		}
	}
}

func startMySQL(t *testing.T) *sql.DB {
	t.Helper()
	mustEnv(t, "MIGRATIONS_DIR")

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Fatalf("dockertest: %v", err)
	}
	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "mysql",
		Tag:        "8.0.36",
		Env:        []string{"MYSQL_ROOT_PASSWORD=root", "MYSQL_DATABASE=hotel"},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("run mysql: %v", err)
	}
	t.Cleanup(func() { _ = pool.Purge(resource) })

	dsn := fmt.Sprintf("root:root@tcp(127.0.0.1:%s)/hotel?parseTime=true&multiStatements=true&charset=utf8mb4,utf8&loc=UTC",
		resource.GetPort("3306/tcp"))

	var db *sql.DB
	if err := pool.Retry(func() error {
		var e error
		db, e = sql.Open("mysql", dsn)
		if e != nil {
			return e
		}
		return db.Ping()
	}); err != nil {
		t.Fatalf("connect mysql: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	applyMigrations(t, db)
	return db
}

// fakeStripe answers checkout session creation like the Stripe API does.
type fakeStripe struct {
	mu       sync.Mutex
	sessions map[string]string // session id -> payment id
}

func (f *fakeStripe) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	f.mu.Lock()
	id := fmt.Sprintf("cs_test_%d", len(f.sessions)+1)
	f.sessions[id] = r.PostForm.Get("client_reference_id")
	f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_, _ = fmt.Fprintf(w, `{"id":%q,"object":"checkout.session","url":"https://checkout.stripe.com/c/pay/%s"}`, id, id)
}

type env struct {
	url    string
	stripe *fakeStripe
}

func setup(t *testing.T) env {
	t.Helper()
	db := startMySQL(t)
	_, err := db.Exec(`
INSERT INTO business_units (id, name, currency, tax_rate, service_charge_rate) VALUES (1, 'Harbour Hotel', 'USD', 0.10, 0.05);
INSERT INTO room_types (id, business_unit_id, name, base_rate, base_occupancy, max_adults, max_children, max_occupancy, total_rooms, amenities)
VALUES (10, 1, 'Deluxe King', 100.00, 2, 3, 1, 4, 1, '["wifi"]');`)
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	cache := redisad.New(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = cache.Close() })

	fs := &fakeStripe{sessions: map[string]string{}}
	stripeAPI := httptest.NewServer(fs)
	t.Cleanup(stripeAPI.Close)
	gw := payments.NewStripe(payments.StripeConfig{
		SecretKey:     "sk_test",
		WebhookSecret: whsec,
		SuccessURL:    "https://hotel.example/ok",
		CancelURL:     "https://hotel.example/cancel",
		BaseURL:       stripeAPI.URL,
	})

	repo := mysqlrepo.New(db)
	catalog := app.NewCatalogService(repo, cache, time.Minute)
	pricing := app.NewPricingService(catalog, shared.NewValidator(), app.StayRules{MaxNights: 30, MaxRoomsPerLine: 5})

	srv := server.New()
	srv.MountHandlers(&server.Handlers{
		Pricing:      pricing,
		Booking:      app.NewBookingService(pricing, repo, payments.NewThrottled(gw, 50), 45*time.Minute),
		Reconcile:    app.NewReconcileService(repo),
		Catalog:      catalog,
		Reservations: app.NewReservationService(repo),
		Webhooks:     map[string]server.WebhookParser{payments.ProviderStripe: gw},
		JWTSecret:    jwtSecret,
	})
	ts := httptest.NewServer(srv.Mux())
	t.Cleanup(ts.Close)
	return env{url: ts.URL, stripe: fs}
}

func post(t *testing.T, url string, body []byte, hdr http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header[k] = v
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = res.Body.Close() })
	return res
}

func get(t *testing.T, url string, hdr ...string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = res.Body.Close() })
	return res
}

// ---------- the test ----------
func TestHTTP_EndToEnd_BookAndPay(t *testing.T) {
	e := setup(t)

	// catalog with ETag revalidation
	res := get(t, e.url+"/v1/business-units/1/room-types")
	require.Equal(t, http.StatusOK, res.StatusCode)
	etag := res.Header.Get("ETag")
	require.NotEmpty(t, etag)
	res = get(t, e.url+"/v1/business-units/1/room-types", "If-None-Match", etag)
	assert.Equal(t, http.StatusNotModified, res.StatusCode)

	// weekday-independent stay: no weekend rate on the room type
	in := time.Now().UTC().AddDate(0, 0, 21)
	stay := fmt.Sprintf(`"business_unit_id":1,"check_in":%q,"check_out":%q,"rooms":[{"room_type_id":10,"quantity":1,"adults":2}]`,
		in.Format("2006-01-02"), in.AddDate(0, 0, 2).Format("2006-01-02"))

	res = post(t, e.url+"/v1/pricing/calculate", []byte("{"+stay+"}"), nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var quote domain.Quote
	require.NoError(t, json.NewDecoder(res.Body).Decode(&quote))
	assert.Equal(t, "231", quote.Total.String())

	booking := []byte(`{` + stay + `,"guest":{"first_name":"Ana","last_name":"Silva","email":"ana@example.com"}}`)
	res = post(t, e.url+"/v1/bookings", booking, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	var created domain.BookingResult
	require.NoError(t, json.NewDecoder(res.Body).Decode(&created))
	require.Len(t, created.ConfirmationNumber, 10)
	assert.Equal(t, created.PaymentID, e.stripe.sessions[created.SessionID])

	// the only room is now held
	res = post(t, e.url+"/v1/bookings", booking, nil)
	assert.Equal(t, http.StatusConflict, res.StatusCode)

	// Stripe reports the payment
	amount := created.Quote.Total.Shift(2).IntPart()
	ev, err := json.Marshal(map[string]any{
		"id": "evt_e2e_1", "object": "event", "type": "checkout.session.completed", "api_version": "2020-08-27",
		"data": map[string]any{"object": map[string]any{
			"id": created.SessionID, "object": "checkout.session", "payment_status": "paid",
			"amount_total": amount, "payment_intent": "pi_e2e",
			"metadata": map[string]string{"payment_id": created.PaymentID},
		}},
	})
	require.NoError(t, err)
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: ev, Secret: whsec})
	hdr := http.Header{}
	hdr.Set("Stripe-Signature", sp.Header)

	res = post(t, e.url+"/v1/payments/webhooks/stripe", sp.Payload, hdr)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var ack map[string]string
	require.NoError(t, json.NewDecoder(res.Body).Decode(&ack))
	assert.Equal(t, app.ResultApplied, ack["status"])

	res = post(t, e.url+"/v1/payments/webhooks/stripe", sp.Payload, hdr)
	require.NoError(t, json.NewDecoder(res.Body).Decode(&ack))
	assert.Equal(t, app.ResultDuplicate, ack["status"])

	res = post(t, e.url+"/v1/payments/webhooks/stripe", sp.Payload, http.Header{"Stripe-Signature": {"t=1,v1=bad"}})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	// guest lookup
	res = get(t, e.url+"/v1/bookings/"+created.ConfirmationNumber+"?email=ANA@example.com")
	require.Equal(t, http.StatusOK, res.StatusCode)
	var lookup map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&lookup))
	assert.Equal(t, "CONFIRMED", lookup["status"])
	assert.Equal(t, "PAID", lookup["payment_status"])

	res = get(t, e.url+"/v1/bookings/"+created.ConfirmationNumber+"?email=eve@example.com")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	// admin desk
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "staff-1", "role": "staff", "exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(jwtSecret))
	require.NoError(t, err)
	auth := "Bearer " + tok

	res = get(t, e.url+"/v1/admin/reservations?status=confirmed", "Authorization", auth)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var page domain.ReservationsPage
	require.NoError(t, json.NewDecoder(res.Body).Decode(&page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, created.ReservationID, page.Items[0].ID)

	res = post(t, e.url+"/v1/admin/reservations/"+created.ReservationID+"/cancel", nil, http.Header{"Authorization": {auth}})
	require.Equal(t, http.StatusOK, res.StatusCode)

	// cancelling freed the room
	res = post(t, e.url+"/v1/bookings", booking, nil)
	assert.Equal(t, http.StatusCreated, res.StatusCode)
}

func TestReconcile_SweepAgainstMySQL(t *testing.T) {
	db := startMySQL(t)
	_, err := db.Exec(`
INSERT INTO business_units (id, name, currency) VALUES (1, 'Harbour Hotel', 'USD');
INSERT INTO guests (id, first_name, last_name, email) VALUES ('g-1', 'Bo', 'Li', 'bo@example.com');
INSERT INTO reservations (id, confirmation_number, business_unit_id, guest_id, check_in, check_out, nights, adults,
                          status, payment_status, subtotal, total, currency)
VALUES ('res-1', 'SWEEP00001', 1, 'g-1', '2027-01-01', '2027-01-02', 1, 1, 'PENDING', 'UNPAID', 100, 100, 'USD');
INSERT INTO payments (id, reservation_id, provider, amount, currency, status, expires_at)
VALUES ('pay-1', 'res-1', 'stripe', 10000, 'USD', 'PENDING', '2026-01-01 00:00:00');`)
	require.NoError(t, err)

	repo := mysqlrepo.New(db)
	rec := app.NewReconcileService(repo)
	n, err := rec.SweepExpired(context.Background(), 10, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	d, err := repo.GetReservation(context.Background(), "res-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationCancelled, d.Reservation.Status)
	require.Len(t, d.Payments, 1)
	assert.Equal(t, domain.PaymentExpired, d.Payments[0].Status)

	n, err = rec.SweepExpired(context.Background(), 10, 2)
	require.NoError(t, err)
	assert.Zero(t, n)
}
