package mysql

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"hotel_booking/internal/domain"
)

func scanReservation(s scanner, extra ...any) (domain.Reservation, error) {
	var r domain.Reservation
	var status, payStatus string
	var promo, requests sql.NullString
	dest := []any{
		&r.ID, &r.ConfirmationNumber, &r.BusinessUnitID, &r.GuestID, &r.CheckIn, &r.CheckOut,
		&r.Nights, &r.Adults, &r.Children, &status, &payStatus, &r.Subtotal, &r.Discount,
		&r.ServiceCharge, &r.Tax, &r.Total, &r.Currency, &promo, &requests,
		&r.CreatedAt, &r.UpdatedAt,
	}
	if err := s.Scan(append(dest, extra...)...); err != nil {
		return domain.Reservation{}, err
	}
	r.Status = domain.ReservationStatus(status)
	r.PaymentStatus = domain.ReservationPaymentStatus(payStatus)
	r.PromoCode = ptrNull(promo)
	r.SpecialRequests = ptrNull(requests)
	return r, nil
}

func (r *Repo) GetReservation(ctx context.Context, id string) (domain.ReservationDetail, error) {
	return r.reservationDetail(ctx, "WHERE r.id = ?", id)
}

func (r *Repo) FindByConfirmation(ctx context.Context, confirmation string) (domain.ReservationDetail, error) {
	return r.reservationDetail(ctx, "WHERE r.confirmation_number = ?", strings.ToUpper(confirmation))
}

func (r *Repo) reservationDetail(ctx context.Context, where string, arg any) (domain.ReservationDetail, error) {
	var d domain.ReservationDetail
	var phone, country sql.NullString
	res, err := scanReservation(r.db.QueryRowContext(ctx, getReservationDetailSQL+where, arg),
		&d.Guest.ID, &d.Guest.FirstName, &d.Guest.LastName, &d.Guest.Email, &phone, &country)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ReservationDetail{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.ReservationDetail{}, fmt.Errorf("get reservation: %w", err)
	}
	d.Guest.Phone = ptrNull(phone)
	d.Guest.Country = ptrNull(country)

	if res.Rooms, err = r.listRooms(ctx, res.ID); err != nil {
		return domain.ReservationDetail{}, err
	}
	d.Reservation = res
	if d.Payments, err = r.listPayments(ctx, res.ID); err != nil {
		return domain.ReservationDetail{}, err
	}
	return d, nil
}

func (r *Repo) listRooms(ctx context.Context, reservationID string) ([]domain.ReservationRoom, error) {
	rows, err := r.db.QueryContext(ctx, listReservationRoomsSQL, reservationID)
	if err != nil {
		return nil, fmt.Errorf("query reservation rooms: %w", err)
	}
	defer rows.Close()

	var out []domain.ReservationRoom
	for rows.Next() {
		var rr domain.ReservationRoom
		var rates []byte
		if err := rows.Scan(&rr.RoomTypeID, &rr.Quantity, &rr.Adults, &rr.Children, &rates, &rr.Subtotal); err != nil {
			return nil, fmt.Errorf("scan reservation room: %w", err)
		}
		_ = json.Unmarshal(rates, &rr.NightlyRates)
		out = append(out, rr)
	}
	return out, rows.Err()
}

func (r *Repo) listPayments(ctx context.Context, reservationID string) ([]domain.Payment, error) {
	rows, err := r.db.QueryContext(ctx, listPaymentsSQL, reservationID)
	if err != nil {
		return nil, fmt.Errorf("query payments: %w", err)
	}
	var out []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		out = append(out, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		items, err := r.listLineItems(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].LineItems = items
	}
	return out, nil
}

func (r *Repo) listLineItems(ctx context.Context, paymentID string) ([]domain.LineItem, error) {
	rows, err := r.db.QueryContext(ctx, listLineItemsSQL, paymentID)
	if err != nil {
		return nil, fmt.Errorf("query line items: %w", err)
	}
	defer rows.Close()

	var out []domain.LineItem
	for rows.Next() {
		var li domain.LineItem
		if err := rows.Scan(&li.Description, &li.Quantity, &li.UnitAmount, &li.Amount); err != nil {
			return nil, fmt.Errorf("scan line item: %w", err)
		}
		out = append(out, li)
	}
	return out, rows.Err()
}

// ListReservations pages newest first; the cursor is the last row's created_at and id.
func (r *Repo) ListReservations(ctx context.Context, q domain.ReservationsQuery) (domain.ReservationsPage, error) {
	var bu, status, curTime, curID any
	if q.BusinessUnitID != nil {
		bu = *q.BusinessUnitID
	}
	if q.Status != nil {
		status = string(*q.Status)
	}
	if q.Cursor != nil {
		t, id, err := DecodeCursor(*q.Cursor)
		if err != nil {
			return domain.ReservationsPage{}, domain.Invalid("cursor", "malformed cursor")
		}
		curTime, curID = t, id
	}

	rows, err := r.db.QueryContext(ctx, listReservationsSQL,
		bu, bu, status, status, curTime, curTime, curID, q.Limit+1)
	if err != nil {
		return domain.ReservationsPage{}, fmt.Errorf("list reservations: %w", err)
	}
	defer rows.Close()

	var out []domain.ReservationSummary
	for rows.Next() {
		var s domain.ReservationSummary
		var in, outDate time.Time
		var st, ps string
		if err := rows.Scan(&s.ID, &s.ConfirmationNumber, &s.BusinessUnitID, &s.GuestName, &s.GuestEmail,
			&in, &outDate, &s.Nights, &st, &ps, &s.Total, &s.Currency, &s.CreatedAt); err != nil {
			return domain.ReservationsPage{}, fmt.Errorf("scan reservation summary: %w", err)
		}
		s.CheckIn, s.CheckOut = in.Format(dateLayout), outDate.Format(dateLayout)
		s.Status = domain.ReservationStatus(st)
		s.PaymentStatus = domain.ReservationPaymentStatus(ps)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return domain.ReservationsPage{}, err
	}

	page := domain.ReservationsPage{Items: out}
	if len(out) > q.Limit {
		page.Items = out[:q.Limit]
		last := page.Items[len(page.Items)-1]
		c := EncodeCursor(last.CreatedAt, last.ID)
		page.NextCursor = &c
	}
	return page, nil
}

func EncodeCursor(t time.Time, id string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatInt(t.UnixMilli(), 10) + "|" + id))
}

func DecodeCursor(c string) (time.Time, string, error) {
	b, err := base64.RawURLEncoding.DecodeString(c)
	if err != nil {
		return time.Time{}, "", err
	}
	ms, id, ok := strings.Cut(string(b), "|")
	if !ok || id == "" {
		return time.Time{}, "", errors.New("cursor: missing id")
	}
	n, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return time.Time{}, "", err
	}
	return time.UnixMilli(n).UTC(), id, nil
}
