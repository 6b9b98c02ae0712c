// Package pricing computes authoritative stay prices. It does no I/O: callers load the
// catalog and promo and hand them in, so the same numbers come out of the quote endpoint
// and the booking endpoint.
package pricing

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"hotel_booking/internal/domain"
)

const dateLayout = "2006-01-02"

type Input struct {
	Catalog domain.Catalog
	Stay    domain.Stay
	Rooms   []domain.RoomRequest
	Promo   *domain.PromoCode
}

// ParseStay parses YYYY-MM-DD dates into a stay of at least one night.
func ParseStay(checkIn, checkOut string) (domain.Stay, error) {
	in, err := time.Parse(dateLayout, checkIn)
	if err != nil {
		return domain.Stay{}, domain.Invalid("check_in", "must be a YYYY-MM-DD date")
	}
	out, err := time.Parse(dateLayout, checkOut)
	if err != nil {
		return domain.Stay{}, domain.Invalid("check_out", "must be a YYYY-MM-DD date")
	}
	if !out.After(in) {
		return domain.Stay{}, domain.Invalid("check_out", "must be after check_in")
	}
	return domain.Stay{CheckIn: in, CheckOut: out}, nil
}

// CheckOccupancy validates the per-room guest counts of a request line against its room type.
func CheckOccupancy(i int, rt domain.RoomType, r domain.RoomRequest) error {
	field := fmt.Sprintf("rooms[%d]", i)
	switch {
	case r.Quantity < 1:
		return domain.Invalid(field+".quantity", "must be at least 1")
	case r.Adults < 1:
		return domain.Invalid(field+".adults", "at least one adult per room")
	case r.Children < 0:
		return domain.Invalid(field+".children", "cannot be negative")
	case r.Adults > rt.MaxAdults:
		return domain.Invalid(field+".adults", "%s allows at most %d adults", rt.Name, rt.MaxAdults)
	case r.Children > rt.MaxChildren:
		return domain.Invalid(field+".children", "%s allows at most %d children", rt.Name, rt.MaxChildren)
	case r.Adults+r.Children > rt.MaxOccupancy:
		return domain.Invalid(field, "%s sleeps at most %d guests", rt.Name, rt.MaxOccupancy)
	}
	return nil
}

// Calculate prices every requested room line and applies promo, service charge and tax.
func Calculate(in Input) (domain.Quote, error) {
	bu := in.Catalog.BusinessUnit
	if !bu.Active {
		return domain.Quote{}, fmt.Errorf("business unit %d: %w", bu.ID, domain.ErrInactive)
	}
	nights := in.Stay.Nights()
	if nights < 1 {
		return domain.Quote{}, domain.Invalid("check_out", "stay must be at least one night")
	}
	if len(in.Rooms) == 0 {
		return domain.Quote{}, domain.Invalid("rooms", "at least one room is required")
	}
	cur := bu.Currency

	q := domain.Quote{
		BusinessUnitID: bu.ID,
		Currency:       cur,
		CheckIn:        in.Stay.CheckIn.Format(dateLayout),
		CheckOut:       in.Stay.CheckOut.Format(dateLayout),
		Nights:         nights,
		Subtotal:       decimal.Zero,
		Discount:       decimal.Zero,
	}

	for i, r := range in.Rooms {
		rt, ok := in.Catalog.RoomType(r.RoomTypeID)
		if !ok || rt.BusinessUnitID != bu.ID {
			return domain.Quote{}, domain.Invalid(fmt.Sprintf("rooms[%d].room_type_id", i), "unknown room type %d", r.RoomTypeID)
		}
		if !rt.Active {
			return domain.Quote{}, fmt.Errorf("room type %d: %w", rt.ID, domain.ErrInactive)
		}
		if err := CheckOccupancy(i, rt, r); err != nil {
			return domain.Quote{}, err
		}
		line := priceLine(rt, in.Catalog.Overrides, in.Stay, r, cur)
		q.Lines = append(q.Lines, line)
		q.Subtotal = q.Subtotal.Add(line.Subtotal)
	}

	if in.Promo != nil {
		d, err := discountFor(*in.Promo, bu, in.Stay, q.Subtotal)
		if err != nil {
			return domain.Quote{}, err
		}
		q.Discount = d
		code := in.Promo.Code
		q.PromoCode = &code
		spreadDiscount(q.Lines, q.Discount, q.Subtotal, cur)
	}

	net := q.Subtotal.Sub(q.Discount)
	q.ServiceCharge = Round(net.Mul(bu.ServiceChargeRate), cur)
	q.Tax = Round(net.Add(q.ServiceCharge).Mul(bu.TaxRate), cur)
	q.Total = net.Add(q.ServiceCharge).Add(q.Tax)
	q.LineItems = lineItems(q)
	return q, nil
}

func priceLine(rt domain.RoomType, overrides []domain.RateOverride, stay domain.Stay, r domain.RoomRequest, cur string) domain.QuoteLine {
	line := domain.QuoteLine{
		RoomTypeID:    rt.ID,
		RoomTypeName:  rt.Name,
		Quantity:      r.Quantity,
		Adults:        r.Adults,
		Children:      r.Children,
		ExtraGuestFee: decimal.Zero,
		Discount:      decimal.Zero,
	}

	extra := 0
	if n := r.Adults + r.Children - rt.BaseOccupancy; n > 0 {
		extra = n
	}
	nightlyExtra := rt.ExtraGuestFee.Mul(decimal.NewFromInt(int64(extra)))

	perRoom := decimal.Zero
	stay.EachNight(func(d time.Time) {
		rate, src := NightlyRate(rt, overrides, d)
		line.Nights = append(line.Nights, domain.NightlyRate{Date: d.Format(dateLayout), Rate: rate, Source: src})
		perRoom = perRoom.Add(rate).Add(nightlyExtra)
		line.ExtraGuestFee = line.ExtraGuestFee.Add(nightlyExtra)
	})

	line.PerRoom = Round(perRoom, cur)
	line.ExtraGuestFee = Round(line.ExtraGuestFee, cur)
	line.Subtotal = line.PerRoom.Mul(decimal.NewFromInt(int64(r.Quantity)))
	return line
}

// NightlyRate picks the rate for the night starting on d: the most recent covering override,
// then the weekend rate for Friday and Saturday nights, then the base rate.
func NightlyRate(rt domain.RoomType, overrides []domain.RateOverride, d time.Time) (decimal.Decimal, string) {
	var win *domain.RateOverride
	for i := range overrides {
		o := &overrides[i]
		if o.RoomTypeID != rt.ID || !o.Covers(d) {
			continue
		}
		if win == nil || o.Start.After(win.Start) || (o.Start.Equal(win.Start) && o.ID > win.ID) {
			win = o
		}
	}
	if win != nil {
		return win.Rate, "override"
	}
	if wd := d.Weekday(); rt.WeekendRate != nil && (wd == time.Friday || wd == time.Saturday) {
		return *rt.WeekendRate, "weekend"
	}
	return rt.BaseRate, "base"
}

func discountFor(p domain.PromoCode, bu domain.BusinessUnit, stay domain.Stay, subtotal decimal.Decimal) (decimal.Decimal, error) {
	switch {
	case !p.Active:
		return decimal.Zero, domain.ErrInvalidPromo
	case p.BusinessUnitID != nil && *p.BusinessUnitID != bu.ID:
		return decimal.Zero, domain.ErrInvalidPromo
	case p.ValidFrom != nil && stay.CheckIn.Before(*p.ValidFrom):
		return decimal.Zero, domain.ErrInvalidPromo
	case p.ValidTo != nil && stay.CheckIn.After(*p.ValidTo):
		return decimal.Zero, domain.ErrInvalidPromo
	case stay.Nights() < p.MinNights:
		return decimal.Zero, fmt.Errorf("%w: requires at least %d nights", domain.ErrInvalidPromo, p.MinNights)
	}

	d := decimal.Zero
	switch {
	case p.PercentOff != nil:
		d = subtotal.Mul(*p.PercentOff).Div(decimal.NewFromInt(100))
	case p.AmountOff != nil:
		d = *p.AmountOff
	}
	if d.IsNegative() {
		d = decimal.Zero
	}
	if d.GreaterThan(subtotal) {
		d = subtotal
	}
	return Round(d, bu.Currency), nil
}

// spreadDiscount assigns each line its proportional share, never more than the line subtotal.
// The rounding remainder goes to the lines with the most left to discount.
func spreadDiscount(lines []domain.QuoteLine, discount, subtotal decimal.Decimal, cur string) {
	if discount.IsZero() || subtotal.IsZero() {
		return
	}
	left := discount
	for i := range lines {
		share := Round(discount.Mul(lines[i].Subtotal).Div(subtotal), cur)
		share = decimal.Min(share, lines[i].Subtotal, left)
		lines[i].Discount = share
		left = left.Sub(share)
	}
	for left.IsPositive() {
		best := -1
		var most decimal.Decimal
		for i := range lines {
			if room := lines[i].Subtotal.Sub(lines[i].Discount); room.GreaterThan(most) {
				best, most = i, room
			}
		}
		if best < 0 {
			return
		}
		take := decimal.Min(left, most)
		lines[best].Discount = lines[best].Discount.Add(take)
		left = left.Sub(take)
	}
}

func lineItems(q domain.Quote) []domain.LineItem {
	var out []domain.LineItem
	add := func(desc string, amt decimal.Decimal) {
		m := ToMinor(amt, q.Currency)
		if m <= 0 {
			return
		}
		out = append(out, domain.LineItem{Description: desc, Quantity: 1, UnitAmount: m, Amount: m})
	}
	for _, l := range q.Lines {
		add(describeLine(l, q.Nights), l.Subtotal.Sub(l.Discount))
	}
	add("Service charge", q.ServiceCharge)
	add("Tax", q.Tax)
	return out
}

func describeLine(l domain.QuoteLine, nights int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d x %s, %d night", l.Quantity, l.RoomTypeName, nights)
	if nights != 1 {
		b.WriteString("s")
	}
	return b.String()
}
