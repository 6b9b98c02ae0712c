//go:build integration || !unit

package mysql_test

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hotel_booking/internal/domain"
	mysqlrepo "hotel_booking/internal/storage/mysql"
)

// ---------- helpers ----------
func pstr(s string) *string { return &s }

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

	st, err := os.Stat(dir)
	if err != nil || !st.IsDir() {
		t.Fatalf("MIGRATIONS_DIR=%s is not a directory or missing", dir)
	}
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

// startMySQL runs an isolated MySQL; Docker picks a free host port.
func startMySQL(t *testing.T) *sql.DB {
	t.Helper()
	mustEnv(t, "MIGRATIONS_DIR")

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Fatalf("dockertest: %v", err)
	}
	runOpts := &dockertest.RunOptions{
		Repository: "mysql",
		Tag:        "8.0.36",
		Env: []string{
			"MYSQL_ROOT_PASSWORD=root",
			"MYSQL_DATABASE=hotel",
		},
	}
	resource, err := pool.RunWithOptions(runOpts, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("run mysql: %v", err)
	}
	t.Cleanup(func() { _ = pool.Purge(resource) })

	hostPort := resource.GetPort("3306/tcp")
	dsn := fmt.Sprintf("root:%s@tcp(127.0.0.1:%s)/%s?parseTime=true&multiStatements=true&charset=utf8mb4,utf8&loc=UTC",
		"root", hostPort, "hotel")

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

const seedSQL = `
INSERT INTO business_units (id, name, currency, tax_rate, service_charge_rate, timezone)
VALUES (1, 'Harbour Hotel', 'USD', 0.1000, 0.0500, 'Europe/Lisbon');
INSERT INTO room_types (id, business_unit_id, name, base_rate, weekend_rate, base_occupancy, extra_guest_fee,
                        max_adults, max_children, max_occupancy, total_rooms, amenities)
VALUES (10, 1, 'Deluxe King', 100.00, 120.00, 2, 15.00, 3, 1, 4, 1, '["wifi","minibar"]'),
       (11, 1, 'Closed Wing', 80.00, NULL, 2, 0, 2, 0, 2, 5, NULL);
UPDATE room_types SET active = FALSE WHERE id = 11;
INSERT INTO rate_overrides (room_type_id, start_date, end_date, rate)
VALUES (10, '2026-12-24', '2026-12-26', 250.00);
INSERT INTO promo_codes (code, business_unit_id, percent_off, min_nights)
VALUES ('WINTER10', 1, 10.00, 2);
`

func seed(t *testing.T, db *sql.DB) {
	t.Helper()
	if _, err := db.Exec(seedSQL); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func day(s string) time.Time {
	d, _ := time.Parse("2006-01-02", s)
	return d
}

func newReservation(id, confirmation, guestID, in, out string) domain.Reservation {
	total := decimal.RequireFromString("231.00")
	return domain.Reservation{
		ID:                 id,
		ConfirmationNumber: confirmation,
		BusinessUnitID:     1,
		GuestID:            guestID,
		CheckIn:            day(in),
		CheckOut:           day(out),
		Nights:             int(day(out).Sub(day(in)).Hours() / 24),
		Adults:             2,
		Status:             domain.ReservationPending,
		PaymentStatus:      domain.ReservationUnpaid,
		Subtotal:           decimal.RequireFromString("200.00"),
		ServiceCharge:      decimal.RequireFromString("10.00"),
		Tax:                decimal.RequireFromString("21.00"),
		Total:              total,
		Currency:           "USD",
		Rooms: []domain.ReservationRoom{{
			RoomTypeID:   10,
			Quantity:     1,
			Adults:       2,
			NightlyRates: []decimal.Decimal{decimal.NewFromInt(100), decimal.NewFromInt(100)},
			Subtotal:     decimal.RequireFromString("200.00"),
		}},
	}
}

// ---------- the tests ----------
func TestRepo_MySQL_Catalog(t *testing.T) {
	db := startMySQL(t)
	seed(t, db)
	repo := mysqlrepo.New(db)
	ctx := context.Background()

	bu, err := repo.GetBusinessUnit(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "USD", bu.Currency)
	assert.Equal(t, "0.1", bu.TaxRate.String())
	assert.True(t, bu.Active)

	_, err = repo.GetBusinessUnit(ctx, 99)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	rts, err := repo.ListRoomTypes(ctx, 1)
	require.NoError(t, err)
	require.Len(t, rts, 2)
	assert.Equal(t, []string{"wifi", "minibar"}, rts[0].Amenities)
	require.NotNil(t, rts[0].WeekendRate)
	assert.Equal(t, "120", rts[0].WeekendRate.String())
	assert.False(t, rts[1].Active)

	ovs, err := repo.ListRateOverrides(ctx, 1, day("2026-12-20"), day("2026-12-24"))
	require.NoError(t, err)
	require.Len(t, ovs, 1)
	assert.True(t, ovs[0].Covers(day("2026-12-25")))

	ovs, err = repo.ListRateOverrides(ctx, 1, day("2026-11-01"), day("2026-11-03"))
	require.NoError(t, err)
	assert.Empty(t, ovs)

	promo, err := repo.GetPromoCode(ctx, "WINTER10")
	require.NoError(t, err)
	require.NotNil(t, promo.PercentOff)
	assert.Equal(t, "10", promo.PercentOff.String())
	assert.Equal(t, 2, promo.MinNights)

	_, err = repo.GetPromoCode(ctx, "NOPE")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRepo_MySQL_BookingLifecycle(t *testing.T) {
	db := startMySQL(t)
	seed(t, db)
	repo := mysqlrepo.New(db)
	ctx := context.Background()
	stay := domain.Stay{CheckIn: day("2026-11-02"), CheckOut: day("2026-11-04")}
	expires := time.Date(2026, 10, 14, 12, 30, 0, 0, time.UTC)

	var guestID string
	err := repo.WithinTx(ctx, func(tx domain.BookingTx) error {
		rts, err := tx.LockRoomTypes(ctx, []int64{10})
		require.NoError(t, err)
		require.Contains(t, rts, int64(10))

		booked, err := tx.BookedRooms(ctx, []int64{10}, stay)
		require.NoError(t, err)
		assert.Zero(t, booked[10])

		g, err := tx.UpsertGuest(ctx, domain.Guest{FirstName: "Ana", LastName: "Silva", Email: "Ana@Example.com"})
		require.NoError(t, err)
		guestID = g.ID

		require.NoError(t, tx.InsertReservation(ctx, newReservation("res-1", "K7PQ2M9XRT", g.ID, "2026-11-02", "2026-11-04")))
		return tx.InsertPayment(ctx, domain.Payment{
			ID: "pay-1", ReservationID: "res-1", Provider: "stripe",
			Amount: 23100, Currency: "USD", Status: domain.PaymentPending, ExpiresAt: expires,
			LineItems: []domain.LineItem{
				{Description: "1 x Deluxe King, 2 nights", Quantity: 1, UnitAmount: 20000, Amount: 20000},
				{Description: "Service charge", Quantity: 1, UnitAmount: 1000, Amount: 1000},
				{Description: "Tax", Quantity: 1, UnitAmount: 2100, Amount: 2100},
			},
		})
	})
	require.NoError(t, err)

	// same guest by email, fresh contact details
	err = repo.WithinTx(ctx, func(tx domain.BookingTx) error {
		g, err := tx.UpsertGuest(ctx, domain.Guest{FirstName: "Ana", LastName: "Costa", Email: "ana@example.com", Phone: pstr("+351")})
		require.NoError(t, err)
		assert.Equal(t, guestID, g.ID)
		assert.Equal(t, "Costa", g.LastName)

		overlap, err := tx.BookedRooms(ctx, []int64{10}, domain.Stay{CheckIn: day("2026-11-03"), CheckOut: day("2026-11-05")})
		require.NoError(t, err)
		assert.Equal(t, 1, overlap[10])

		adjacent, err := tx.BookedRooms(ctx, []int64{10}, domain.Stay{CheckIn: day("2026-11-04"), CheckOut: day("2026-11-06")})
		require.NoError(t, err)
		assert.Zero(t, adjacent[10])

		err = tx.InsertReservation(ctx, newReservation("res-2", "K7PQ2M9XRT", g.ID, "2026-12-01", "2026-12-02"))
		assert.ErrorIs(t, err, domain.ErrDuplicate)
		return err
	})
	require.ErrorIs(t, err, domain.ErrDuplicate)

	require.NoError(t, repo.SetCheckoutSession(ctx, "pay-1", domain.CheckoutSession{SessionID: "cs_1", URL: "https://pay.example/cs_1"}))

	// webhook path: dedup, lock by session, apply
	err = repo.WithinTx(ctx, func(tx domain.BookingTx) error {
		e := domain.PaymentEvent{Provider: "stripe", EventID: "evt_1", Type: "checkout.session.completed", Payload: []byte(`{"id":"evt_1"}`)}
		fresh, err := tx.RecordPaymentEvent(ctx, e)
		require.NoError(t, err)
		assert.True(t, fresh)
		fresh, err = tx.RecordPaymentEvent(ctx, e)
		require.NoError(t, err)
		assert.False(t, fresh)

		p, err := tx.LockPayment(ctx, domain.PaymentLookup{Provider: "stripe", SessionID: "cs_1"})
		require.NoError(t, err)
		assert.Equal(t, "pay-1", p.ID)

		_, err = tx.LockPayment(ctx, domain.PaymentLookup{Provider: "midtrans", SessionID: "cs_1"})
		assert.ErrorIs(t, err, domain.ErrNotFound)

		paid := expires.Add(-10 * time.Minute)
		p.Status, p.PaidAt, p.ProviderRef = domain.PaymentSucceeded, &paid, pstr("pi_1")
		require.NoError(t, tx.UpdatePayment(ctx, p))
		require.NoError(t, tx.UpdateReservationStatus(ctx, p.ReservationID, domain.ReservationConfirmed, domain.ReservationPaid))
		return tx.ResolvePaymentEvent(ctx, "stripe", "evt_1", &p.ID, "applied")
	})
	require.NoError(t, err)

	d, err := repo.FindByConfirmation(ctx, "k7pq2m9xrt")
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationConfirmed, d.Reservation.Status)
	assert.Equal(t, domain.ReservationPaid, d.Reservation.PaymentStatus)
	assert.Equal(t, "ana@example.com", d.Guest.Email)
	require.Len(t, d.Reservation.Rooms, 1)
	assert.Len(t, d.Reservation.Rooms[0].NightlyRates, 2)
	require.Len(t, d.Payments, 1)
	assert.Equal(t, domain.PaymentSucceeded, d.Payments[0].Status)
	assert.Equal(t, "pi_1", *d.Payments[0].ProviderRef)
	assert.Len(t, d.Payments[0].LineItems, 3)

	// paid payments are never swept
	due, err := repo.ListExpiredPayments(ctx, expires.Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	_, err = repo.GetReservation(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRepo_MySQL_ListReservationsCursor(t *testing.T) {
	db := startMySQL(t)
	seed(t, db)
	repo := mysqlrepo.New(db)
	ctx := context.Background()

	err := repo.WithinTx(ctx, func(tx domain.BookingTx) error {
		g, err := tx.UpsertGuest(ctx, domain.Guest{FirstName: "Bo", LastName: "Li", Email: "bo@example.com"})
		if err != nil {
			return err
		}
		for i := 0; i < 3; i++ {
			in := day("2027-01-01").AddDate(0, 0, i*3)
			r := newReservation(fmt.Sprintf("res-%d", i), fmt.Sprintf("CONF%06d", i), g.ID,
				in.Format("2006-01-02"), in.AddDate(0, 0, 2).Format("2006-01-02"))
			if err := tx.InsertReservation(ctx, r); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	_, err = db.Exec(`UPDATE reservations SET created_at = CASE id
		WHEN 'res-0' THEN '2026-10-01 10:00:00' WHEN 'res-1' THEN '2026-10-02 10:00:00' ELSE '2026-10-03 10:00:00' END`)
	require.NoError(t, err)

	page, err := repo.ListReservations(ctx, domain.ReservationsQuery{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "res-2", page.Items[0].ID)
	assert.Equal(t, "res-1", page.Items[1].ID)
	assert.Equal(t, "Bo Li", page.Items[0].GuestName)
	require.NotNil(t, page.NextCursor)

	page, err = repo.ListReservations(ctx, domain.ReservationsQuery{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "res-0", page.Items[0].ID)
	assert.Nil(t, page.NextCursor)

	st := domain.ReservationConfirmed
	page, err = repo.ListReservations(ctx, domain.ReservationsQuery{Limit: 10, Status: &st})
	require.NoError(t, err)
	assert.Empty(t, page.Items)

	_, err = repo.ListReservations(ctx, domain.ReservationsQuery{Limit: 2, Cursor: pstr("%%%")})
	assert.True(t, domain.IsValidation(err))
}
