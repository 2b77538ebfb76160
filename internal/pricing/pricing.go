// Package pricing turns a vehicle's rate card and a rental period into a
// price breakdown. All money is in integer minor units.
package pricing

import (
	"fmt"
	"math"
	"time"
)

type DurationUnit string

const (
	UnitHour  DurationUnit = "hour"
	UnitDay   DurationUnit = "day"
	UnitWeek  DurationUnit = "week"
	UnitMonth DurationUnit = "month"
)

func (u DurationUnit) Valid() bool {
	switch u {
	case UnitHour, UnitDay, UnitWeek, UnitMonth:
		return true
	}
	return false
}

// Rates is a vehicle rate card. Only DailyRate is mandatory.
type Rates struct {
	HourlyRate  *int64
	DailyRate   int64
	WeeklyRate  *int64
	MonthlyRate *int64
}

func (r Rates) For(unit DurationUnit) (int64, error) {
	var rate *int64
	switch unit {
	case UnitDay:
		return r.DailyRate, nil
	case UnitHour:
		rate = r.HourlyRate
	case UnitWeek:
		rate = r.WeeklyRate
	case UnitMonth:
		rate = r.MonthlyRate
	default:
		return 0, fmt.Errorf("unknown duration unit %q", unit)
	}
	if rate == nil {
		return 0, fmt.Errorf("no %s rate configured", unit)
	}
	return *rate, nil
}

// Duration counts whole units between start and end, never less than one.
// Days, weeks and months are counted on the calendar, so the time of day
// does not matter for them.
func Duration(start, end time.Time, unit DurationUnit) int {
	var n int
	switch unit {
	case UnitHour:
		n = int(end.Sub(start) / time.Hour)
	case UnitDay:
		n = calendarDays(start, end)
	case UnitWeek:
		n = calendarDays(start, end) / 7
	case UnitMonth:
		n = calendarMonths(start, end)
	}
	if n < 1 {
		n = 1
	}
	return n
}

func calendarDays(start, end time.Time) int {
	end = end.In(start.Location())
	s := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	e := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	return int(e.Sub(s).Hours() / 24)
}

func calendarMonths(start, end time.Time) int {
	end = end.In(start.Location())
	months := (end.Year()-start.Year())*12 + int(end.Month()) - int(start.Month())
	if end.Day() < start.Day() {
		months--
	}
	return months
}

// BasePrice is units × the rate for the unit.
func BasePrice(rates Rates, start, end time.Time, unit DurationUnit) (int64, int, error) {
	rate, err := rates.For(unit)
	if err != nil {
		return 0, 0, err
	}
	units := Duration(start, end, unit)
	return rate * int64(units), units, nil
}

type Calculator struct {
	TaxRate        float64
	CommissionRate float64
}

func NewCalculator(taxRate, commissionRate float64) *Calculator {
	return &Calculator{TaxRate: taxRate, CommissionRate: commissionRate}
}

type Input struct {
	Rates    Rates
	Start    time.Time
	End      time.Time
	Unit     DurationUnit
	Discount int64
}

type Breakdown struct {
	Unit       DurationUnit `json:"duration_unit"`
	Units      int          `json:"duration_units"`
	Base       int64        `json:"base_price"`
	Discount   int64        `json:"discount_amount"`
	Tax        int64        `json:"tax_amount"`
	Commission int64        `json:"commission_amount"`
	Total      int64        `json:"total_amount"`
}

// Calculate prices a rental. Commission is the platform's share of the
// taxable amount and is not added to Total.
func (c *Calculator) Calculate(in Input) (Breakdown, error) {
	if !in.End.After(in.Start) {
		return Breakdown{}, fmt.Errorf("end must be after start")
	}
	if !in.Unit.Valid() {
		return Breakdown{}, fmt.Errorf("unknown duration unit %q", in.Unit)
	}
	if in.Discount < 0 {
		return Breakdown{}, fmt.Errorf("discount must not be negative")
	}

	base, units, err := BasePrice(in.Rates, in.Start, in.End, in.Unit)
	if err != nil {
		return Breakdown{}, err
	}

	discount := min(in.Discount, base)
	taxable := base - discount
	tax := ApplyRate(taxable, c.TaxRate)

	return Breakdown{
		Unit:       in.Unit,
		Units:      units,
		Base:       base,
		Discount:   discount,
		Tax:        tax,
		Commission: ApplyRate(taxable, c.CommissionRate),
		Total:      taxable + tax,
	}, nil
}

// ApplyRate multiplies amount by rate, rounding half away from zero.
func ApplyRate(amount int64, rate float64) int64 {
	return int64(math.Round(float64(amount) * rate))
}

type SuggestionInput struct {
	Start          time.Time
	NearbyBookings int
	AverageRating  float64
	TotalBookings  int64
}

const (
	demandStep        = 0.1
	ratingStep        = 0.1
	neutralRating     = 3.0
	popularityStep    = 0.01
	popularityCeiling = 0.5
	// NearbyWindow is how far either side of the start a booking counts
	// towards demand.
	NearbyWindow = 7 * 24 * time.Hour
)

// SuggestedPrice is an advisory price; it never replaces the charged total.
func SuggestedPrice(base int64, in SuggestionInput) int64 {
	demand := 1 + demandStep*float64(in.NearbyBookings)
	popularity := (1 + ratingStep*(in.AverageRating-neutralRating)) *
		(1 + math.Min(popularityStep*float64(in.TotalBookings), popularityCeiling))

	return int64(math.Round(float64(base) * demand * SeasonalFactor(in.Start) * popularity))
}

func SeasonalFactor(t time.Time) float64 {
	switch t.Month() {
	case time.June, time.July, time.August:
		return 1.2
	case time.December, time.January:
		return 1.15
	default:
		return 1.0
	}
}
