package mysql

// -----------------------------------------------------------------------------
// CATALOG
// -----------------------------------------------------------------------------

const getBusinessUnitSQL = `
SELECT id, name, currency, tax_rate, service_charge_rate, timezone, active
FROM business_units
WHERE id = ?
`

const roomTypeColumns = `
  id, business_unit_id, name, description, base_rate, weekend_rate,
  base_occupancy, extra_guest_fee, max_adults, max_children, max_occupancy,
  total_rooms, amenities, active
`

const listRoomTypesSQL = `SELECT` + roomTypeColumns + `FROM room_types WHERE business_unit_id = ? ORDER BY id`

// Room type rows are locked in primary key order so concurrent bookings queue instead of deadlocking.
const lockRoomTypesPrefix = `SELECT` + roomTypeColumns + `FROM room_types WHERE id IN (`
const lockRoomTypesSuffix = `) ORDER BY id FOR UPDATE`

const listRateOverridesSQL = `
SELECT o.id, o.room_type_id, o.start_date, o.end_date, o.rate
FROM rate_overrides o
JOIN room_types rt ON rt.id = o.room_type_id
WHERE rt.business_unit_id = ?
  AND o.start_date <= ?
  AND o.end_date >= ?
ORDER BY o.start_date, o.id
`

const getPromoCodeSQL = `
SELECT code, business_unit_id, percent_off, amount_off, min_nights, valid_from, valid_to, active
FROM promo_codes
WHERE code = ?
`

// -----------------------------------------------------------------------------
// BOOKING WRITES
// -----------------------------------------------------------------------------

// Reservations overlap a stay when they start before it ends and end after it starts.
const bookedRoomsPrefix = `
SELECT rr.room_type_id, COALESCE(SUM(rr.quantity), 0)
FROM reservation_rooms rr
JOIN reservations r ON r.id = rr.reservation_id
WHERE r.status IN ('PENDING', 'CONFIRMED', 'CHECKED_IN')
  AND r.check_in < ?
  AND r.check_out > ?
  AND rr.room_type_id IN (`
const bookedRoomsSuffix = `) GROUP BY rr.room_type_id`

const upsertGuestSQL = `
INSERT INTO guests (id, first_name, last_name, email, phone, country)
VALUES (?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
  first_name = VALUES(first_name),
  last_name  = VALUES(last_name),
  phone      = COALESCE(VALUES(phone), guests.phone),
  country    = COALESCE(VALUES(country), guests.country),
  updated_at = CURRENT_TIMESTAMP
`

const getGuestByEmailSQL = `
SELECT id, first_name, last_name, email, phone, country
FROM guests
WHERE email = ?
`

const insertReservationSQL = `
INSERT INTO reservations
  (id, confirmation_number, business_unit_id, guest_id, check_in, check_out, nights,
   adults, children, status, payment_status, subtotal, discount, service_charge, tax,
   total, currency, promo_code, special_requests)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const insertReservationRoomSQL = `
INSERT INTO reservation_rooms
  (reservation_id, room_type_id, quantity, adults, children, nightly_rates, subtotal)
VALUES
  (?, ?, ?, ?, ?, ?, ?)
`

const insertPaymentSQL = `
INSERT INTO payments
  (id, reservation_id, provider, provider_session_id, provider_ref, checkout_url,
   amount, currency, status, expires_at)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const insertLineItemsPrefix = "INSERT INTO payment_line_items\n  (payment_id, position, description, quantity, unit_amount, amount)\nVALUES "

const setCheckoutSessionSQL = `
UPDATE payments
SET provider_session_id = ?, checkout_url = ?, provider_ref = COALESCE(?, provider_ref)
WHERE id = ?
`

// -----------------------------------------------------------------------------
// RECONCILIATION
// -----------------------------------------------------------------------------

const insertPaymentEventSQL = `
INSERT IGNORE INTO payment_events (provider, event_id, type, payment_id, outcome, payload)
VALUES (?, ?, ?, NULL, 'received', ?)
`

const resolvePaymentEventSQL = `
UPDATE payment_events SET payment_id = ?, outcome = ?
WHERE provider = ? AND event_id = ?
`

const paymentColumns = `
  id, reservation_id, provider, provider_session_id, provider_ref, checkout_url,
  amount, currency, status, expires_at, paid_at, created_at
`

// NULL lookup args never match, so absent keys are passed as NULL.
const lockPaymentSQL = `SELECT` + paymentColumns + `FROM payments
WHERE id = ?
   OR (provider = ? AND (provider_session_id = ? OR provider_ref = ?))
ORDER BY (id = ?) DESC
LIMIT 1
FOR UPDATE`

const updatePaymentSQL = `
UPDATE payments
SET status = ?, provider_ref = ?, paid_at = ?
WHERE id = ?
`

const lockReservationSQL = `SELECT` + reservationColumns + `FROM reservations r WHERE r.id = ? FOR UPDATE`

const updateReservationStatusSQL = `
UPDATE reservations SET status = ?, payment_status = ? WHERE id = ?
`

// -----------------------------------------------------------------------------
// READ QUERIES
// -----------------------------------------------------------------------------

const reservationColumns = `
  r.id, r.confirmation_number, r.business_unit_id, r.guest_id, r.check_in, r.check_out,
  r.nights, r.adults, r.children, r.status, r.payment_status, r.subtotal, r.discount,
  r.service_charge, r.tax, r.total, r.currency, r.promo_code, r.special_requests,
  r.created_at, r.updated_at
`

const getReservationDetailSQL = `SELECT` + reservationColumns + `,
  g.id, g.first_name, g.last_name, g.email, g.phone, g.country
FROM reservations r
JOIN guests g ON g.id = r.guest_id
`

const listReservationRoomsSQL = `
SELECT room_type_id, quantity, adults, children, nightly_rates, subtotal
FROM reservation_rooms
WHERE reservation_id = ?
ORDER BY id
`

const listPaymentsSQL = `SELECT` + paymentColumns + `FROM payments WHERE reservation_id = ? ORDER BY created_at`

const listLineItemsSQL = `
SELECT description, quantity, unit_amount, amount
FROM payment_line_items
WHERE payment_id = ?
ORDER BY position
`

const listReservationsSQL = `
SELECT r.id, r.confirmation_number, r.business_unit_id,
       CONCAT(g.first_name, ' ', g.last_name), g.email,
       r.check_in, r.check_out, r.nights, r.status, r.payment_status,
       r.total, r.currency, r.created_at
FROM reservations r
JOIN guests g ON g.id = r.guest_id
WHERE (? IS NULL OR r.business_unit_id = ?)
  AND (? IS NULL OR r.status = ?)
  AND (? IS NULL OR (r.created_at, r.id) < (?, ?))
ORDER BY r.created_at DESC, r.id DESC
LIMIT ?
`

const listExpiredPaymentsSQL = `SELECT` + paymentColumns + `FROM payments
WHERE status = 'PENDING' AND expires_at < ?
ORDER BY expires_at
LIMIT ?`
