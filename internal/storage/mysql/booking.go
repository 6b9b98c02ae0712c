package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	mysqldrv "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"hotel_booking/internal/domain"
)

const errDupEntry = 1062

func isDuplicate(err error) bool {
	var me *mysqldrv.MySQLError
	return errors.As(err, &me) && me.Number == errDupEntry
}

// txRepo is the write side of a booking transaction.
type txRepo struct{ q querier }

func (t *txRepo) LockRoomTypes(ctx context.Context, ids []int64) (map[int64]domain.RoomType, error) {
	if len(ids) == 0 {
		return map[int64]domain.RoomType{}, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rts, err := listRoomTypes(ctx, t.q, lockRoomTypesPrefix+placeholders(len(ids))+lockRoomTypesSuffix, args...)
	if err != nil {
		return nil, fmt.Errorf("lock room types: %w", err)
	}
	out := make(map[int64]domain.RoomType, len(rts))
	for _, rt := range rts {
		out[rt.ID] = rt
	}
	return out, nil
}

func (t *txRepo) BookedRooms(ctx context.Context, roomTypeIDs []int64, stay domain.Stay) (map[int64]int, error) {
	out := make(map[int64]int, len(roomTypeIDs))
	if len(roomTypeIDs) == 0 {
		return out, nil
	}
	args := []any{stay.CheckOut.Format(dateLayout), stay.CheckIn.Format(dateLayout)}
	for _, id := range roomTypeIDs {
		args = append(args, id)
	}
	rows, err := t.q.QueryContext(ctx, bookedRoomsPrefix+placeholders(len(roomTypeIDs))+bookedRoomsSuffix, args...)
	if err != nil {
		return nil, fmt.Errorf("query booked rooms: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scan booked rooms: %w", err)
		}
		out[id] = n
	}
	return out, rows.Err()
}

// UpsertGuest keys guests by email; an existing guest keeps its id and gets fresh contact details.
func (t *txRepo) UpsertGuest(ctx context.Context, g domain.Guest) (domain.Guest, error) {
	email := strings.ToLower(strings.TrimSpace(g.Email))
	if _, err := t.q.ExecContext(ctx, upsertGuestSQL,
		uuid.NewString(), g.FirstName, g.LastName, email, valStr(g.Phone), valStr(g.Country),
	); err != nil {
		return domain.Guest{}, fmt.Errorf("upsert guest: %w", err)
	}

	var out domain.Guest
	var phone, country sql.NullString
	if err := t.q.QueryRowContext(ctx, getGuestByEmailSQL, email).Scan(
		&out.ID, &out.FirstName, &out.LastName, &out.Email, &phone, &country,
	); err != nil {
		return domain.Guest{}, fmt.Errorf("reload guest: %w", err)
	}
	out.Phone = ptrNull(phone)
	out.Country = ptrNull(country)
	return out, nil
}

func (t *txRepo) InsertReservation(ctx context.Context, r domain.Reservation) error {
	if _, err := t.q.ExecContext(ctx, insertReservationSQL,
		r.ID, r.ConfirmationNumber, r.BusinessUnitID, r.GuestID,
		r.CheckIn.Format(dateLayout), r.CheckOut.Format(dateLayout), r.Nights,
		r.Adults, r.Children, string(r.Status), string(r.PaymentStatus),
		r.Subtotal, r.Discount, r.ServiceCharge, r.Tax, r.Total, r.Currency,
		valStr(r.PromoCode), valStr(r.SpecialRequests),
	); err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("insert reservation %s: %w", r.ConfirmationNumber, domain.ErrDuplicate)
		}
		return fmt.Errorf("insert reservation: %w", err)
	}
	for _, room := range r.Rooms {
		rates, _ := json.Marshal(room.NightlyRates)
		if _, err := t.q.ExecContext(ctx, insertReservationRoomSQL,
			r.ID, room.RoomTypeID, room.Quantity, room.Adults, room.Children, string(rates), room.Subtotal,
		); err != nil {
			return fmt.Errorf("insert reservation room: %w", err)
		}
	}
	return nil
}

func (t *txRepo) InsertPayment(ctx context.Context, p domain.Payment) error {
	if _, err := t.q.ExecContext(ctx, insertPaymentSQL,
		p.ID, p.ReservationID, p.Provider, valStr(p.SessionID), valStr(p.ProviderRef), valStr(p.CheckoutURL),
		p.Amount, p.Currency, string(p.Status), p.ExpiresAt,
	); err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	if len(p.LineItems) == 0 {
		return nil
	}
	values := make([]string, 0, len(p.LineItems))
	args := make([]any, 0, len(p.LineItems)*6)
	for i, li := range p.LineItems {
		values = append(values, "(?,?,?,?,?,?)")
		args = append(args, p.ID, i, li.Description, li.Quantity, li.UnitAmount, li.Amount)
	}
	if _, err := t.q.ExecContext(ctx, insertLineItemsPrefix+strings.Join(values, ","), args...); err != nil {
		return fmt.Errorf("insert payment line items: %w", err)
	}
	return nil
}

func (t *txRepo) RecordPaymentEvent(ctx context.Context, e domain.PaymentEvent) (bool, error) {
	var payload any
	if json.Valid(e.Payload) {
		payload = string(e.Payload)
	}
	res, err := t.q.ExecContext(ctx, insertPaymentEventSQL, e.Provider, e.EventID, e.Type, payload)
	if err != nil {
		return false, fmt.Errorf("record payment event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (t *txRepo) ResolvePaymentEvent(ctx context.Context, provider, eventID string, paymentID *string, outcome string) error {
	if _, err := t.q.ExecContext(ctx, resolvePaymentEventSQL, valStr(paymentID), outcome, provider, eventID); err != nil {
		return fmt.Errorf("resolve payment event: %w", err)
	}
	return nil
}

func (t *txRepo) LockPayment(ctx context.Context, by domain.PaymentLookup) (domain.Payment, error) {
	id := valNonEmpty(by.ID)
	p, err := scanPayment(t.q.QueryRowContext(ctx, lockPaymentSQL,
		id, by.Provider, valNonEmpty(by.SessionID), valNonEmpty(by.ProviderRef), id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Payment{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Payment{}, fmt.Errorf("lock payment: %w", err)
	}
	return p, nil
}

func (t *txRepo) UpdatePayment(ctx context.Context, p domain.Payment) error {
	if _, err := t.q.ExecContext(ctx, updatePaymentSQL,
		string(p.Status), valStr(p.ProviderRef), valTime(p.PaidAt), p.ID,
	); err != nil {
		return fmt.Errorf("update payment %s: %w", p.ID, err)
	}
	return nil
}

func (t *txRepo) LockReservation(ctx context.Context, id string) (domain.Reservation, error) {
	r, err := scanReservation(t.q.QueryRowContext(ctx, lockReservationSQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Reservation{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Reservation{}, fmt.Errorf("lock reservation: %w", err)
	}
	return r, nil
}

func (t *txRepo) UpdateReservationStatus(ctx context.Context, id string, s domain.ReservationStatus, ps domain.ReservationPaymentStatus) error {
	if _, err := t.q.ExecContext(ctx, updateReservationStatusSQL, string(s), string(ps), id); err != nil {
		return fmt.Errorf("update reservation %s: %w", id, err)
	}
	return nil
}
