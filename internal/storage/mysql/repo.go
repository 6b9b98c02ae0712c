package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"hotel_booking/internal/domain"
)

const dateLayout = "2006-01-02"

func valStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
func valNonEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
func valTime(p *time.Time) any {
	if p == nil {
		return nil
	}
	return *p
}
func ptrNull(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface{ Scan(dest ...any) error }

type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

// Ping is used by the readiness probe.
func (r *Repo) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

func (r *Repo) GetBusinessUnit(ctx context.Context, id int64) (domain.BusinessUnit, error) {
	var bu domain.BusinessUnit
	err := r.db.QueryRowContext(ctx, getBusinessUnitSQL, id).Scan(
		&bu.ID, &bu.Name, &bu.Currency, &bu.TaxRate, &bu.ServiceChargeRate, &bu.Timezone, &bu.Active,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.BusinessUnit{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.BusinessUnit{}, fmt.Errorf("get business unit %d: %w", id, err)
	}
	return bu, nil
}

func (r *Repo) ListRoomTypes(ctx context.Context, businessUnitID int64) ([]domain.RoomType, error) {
	return listRoomTypes(ctx, r.db, listRoomTypesSQL, businessUnitID)
}

func listRoomTypes(ctx context.Context, q querier, query string, args ...any) ([]domain.RoomType, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query room types: %w", err)
	}
	defer rows.Close()

	var out []domain.RoomType
	for rows.Next() {
		rt, err := scanRoomType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate room types: %w", err)
	}
	return out, nil
}

func scanRoomType(s scanner) (domain.RoomType, error) {
	var rt domain.RoomType
	var desc sql.NullString
	var weekend decimal.NullDecimal
	var amenities []byte
	if err := s.Scan(
		&rt.ID, &rt.BusinessUnitID, &rt.Name, &desc, &rt.BaseRate, &weekend,
		&rt.BaseOccupancy, &rt.ExtraGuestFee, &rt.MaxAdults, &rt.MaxChildren, &rt.MaxOccupancy,
		&rt.TotalRooms, &amenities, &rt.Active,
	); err != nil {
		return domain.RoomType{}, fmt.Errorf("scan room type: %w", err)
	}
	rt.Description = ptrNull(desc)
	if weekend.Valid {
		w := weekend.Decimal
		rt.WeekendRate = &w
	}
	if len(amenities) > 0 {
		_ = json.Unmarshal(amenities, &rt.Amenities)
	}
	return rt, nil
}

func (r *Repo) ListRateOverrides(ctx context.Context, businessUnitID int64, from, to time.Time) ([]domain.RateOverride, error) {
	rows, err := r.db.QueryContext(ctx, listRateOverridesSQL,
		businessUnitID, to.Format(dateLayout), from.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("query rate overrides: %w", err)
	}
	defer rows.Close()

	var out []domain.RateOverride
	for rows.Next() {
		var o domain.RateOverride
		if err := rows.Scan(&o.ID, &o.RoomTypeID, &o.Start, &o.End, &o.Rate); err != nil {
			return nil, fmt.Errorf("scan rate override: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *Repo) GetPromoCode(ctx context.Context, code string) (domain.PromoCode, error) {
	var p domain.PromoCode
	var bu sql.NullInt64
	var pct, amt decimal.NullDecimal
	var from, to sql.NullTime
	err := r.db.QueryRowContext(ctx, getPromoCodeSQL, code).Scan(
		&p.Code, &bu, &pct, &amt, &p.MinNights, &from, &to, &p.Active,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PromoCode{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.PromoCode{}, fmt.Errorf("get promo %q: %w", code, err)
	}
	if bu.Valid {
		id := bu.Int64
		p.BusinessUnitID = &id
	}
	if pct.Valid {
		v := pct.Decimal
		p.PercentOff = &v
	}
	if amt.Valid {
		v := amt.Decimal
		p.AmountOff = &v
	}
	if from.Valid {
		v := from.Time
		p.ValidFrom = &v
	}
	if to.Valid {
		v := to.Time
		p.ValidTo = &v
	}
	return p, nil
}

// WithinTx runs fn in a transaction. The deferred rollback is a no-op after commit.
func (r *Repo) WithinTx(ctx context.Context, fn func(tx domain.BookingTx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&txRepo{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *Repo) SetCheckoutSession(ctx context.Context, paymentID string, s domain.CheckoutSession) error {
	res, err := r.db.ExecContext(ctx, setCheckoutSessionSQL,
		s.SessionID, valNonEmpty(s.URL), valNonEmpty(s.ProviderRef), paymentID)
	if err != nil {
		return fmt.Errorf("set checkout session for %s: %w", paymentID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *Repo) ListExpiredPayments(ctx context.Context, now time.Time, limit int) ([]domain.Payment, error) {
	rows, err := r.db.QueryContext(ctx, listExpiredPaymentsSQL, now, limit)
	if err != nil {
		return nil, fmt.Errorf("query expired payments: %w", err)
	}
	defer rows.Close()

	var out []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPayment(s scanner) (domain.Payment, error) {
	var p domain.Payment
	var sess, ref, url sql.NullString
	var paid sql.NullTime
	var status string
	if err := s.Scan(
		&p.ID, &p.ReservationID, &p.Provider, &sess, &ref, &url,
		&p.Amount, &p.Currency, &status, &p.ExpiresAt, &paid, &p.CreatedAt,
	); err != nil {
		return domain.Payment{}, err
	}
	p.Status = domain.PaymentStatus(status)
	p.SessionID = ptrNull(sess)
	p.ProviderRef = ptrNull(ref)
	p.CheckoutURL = ptrNull(url)
	if paid.Valid {
		t := paid.Time
		p.PaidAt = &t
	}
	return p, nil
}
