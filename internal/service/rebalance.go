package service

import (
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/portfolio-versioning/internal/errors"
	"github.com/portfolio-versioning/internal/models"
	"github.com/portfolio-versioning/internal/types"
)

// targetWeights derives the target weight of every active constituent from
// the weighting methodology. Inactive constituents are targeted at zero.
func targetWeights(method types.WeightingMethodology, cs []*models.Constituent) ([]decimal.Decimal, error) {
	out := make([]decimal.Decimal, len(cs))
	active := 0
	for _, c := range cs {
		if c.IsActive {
			active++
		}
	}
	if active == 0 {
		return out, nil
	}

	switch method {
	case types.WeightingEqual:
		w := one.DivRound(decimal.NewFromInt(int64(active)), models.WeightScale)
		for i, c := range cs {
			if c.IsActive {
				out[i] = w
			}
		}

	case types.WeightingMarketCap, types.WeightingPrice:
		basis := func(c *models.Constituent) decimal.Decimal {
			if method == types.WeightingMarketCap {
				return c.MarketValue()
			}
			return c.MarketPrice
		}
		total := decimal.Zero
		for _, c := range cs {
			if c.IsActive {
				total = total.Add(basis(c))
			}
		}
		if !total.IsPositive() {
			return nil, apperrors.NewValidationError("cannot rebalance by " + string(method) + ": total is zero")
		}
		for i, c := range cs {
			if c.IsActive {
				out[i] = basis(c).DivRound(total, models.WeightScale)
			}
		}

	case types.WeightingFixed:
		for i, c := range cs {
			if !c.IsActive {
				continue
			}
			if c.TargetWeight != nil {
				out[i] = *c.TargetWeight
			} else {
				out[i] = c.Weight
			}
		}

	default:
		return nil, apperrors.NewInvalidParameterError("weightingMethodology", "unknown value "+string(method))
	}
	return out, nil
}

// normalizeWeights scales weights proportionally so they sum to one and
// resets every target weight to the new weight. All-zero weights are left alone.
func normalizeWeights(cs []*models.Constituent) {
	total := decimal.Zero
	for _, c := range cs {
		total = total.Add(c.Weight)
	}
	if !total.IsPositive() {
		return
	}
	for _, c := range cs {
		w := c.Weight.DivRound(total, models.WeightScale)
		c.Weight = w
		c.TargetWeight = &w
	}
}

// nextRebalanceDate returns the next scheduled rebalance after from,
// adjusted to a business day. Frequencies without a calendar period have
// no next date.
func nextRebalanceDate(from time.Time, freq types.RebalanceFrequency, cal types.Calendar, conv types.BusinessDayConvention) *time.Time {
	years, months, days, ok := freq.Period()
	if !ok {
		return nil
	}
	next := adjustBusinessDay(addPeriod(dateOf(from), years, months, days), cal, conv)
	return &next
}

// addPeriod advances a date, clamping month arithmetic to the end of the
// target month so that Jan 31 + 1 month is Feb 28 or 29.
func addPeriod(t time.Time, years, months, days int) time.Time {
	if years != 0 || months != 0 {
		first := time.Date(t.Year()+years, t.Month()+time.Month(months), 1, 0, 0, 0, 0, time.UTC)
		day := t.Day()
		if last := daysIn(first); day > last {
			day = last
		}
		t = time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
	}
	return t.AddDate(0, 0, days)
}

func daysIn(monthStart time.Time) int {
	return monthStart.AddDate(0, 1, -1).Day()
}

// isBusinessDay treats weekends as holidays on every calendar except NULL.
// Exchange holiday tables are not modelled.
func isBusinessDay(t time.Time, cal types.Calendar) bool {
	if cal == types.CalendarNull {
		return true
	}
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

func adjustBusinessDay(t time.Time, cal types.Calendar, conv types.BusinessDayConvention) time.Time {
	following := func(d time.Time) time.Time {
		for !isBusinessDay(d, cal) {
			d = d.AddDate(0, 0, 1)
		}
		return d
	}
	preceding := func(d time.Time) time.Time {
		for !isBusinessDay(d, cal) {
			d = d.AddDate(0, 0, -1)
		}
		return d
	}

	switch conv {
	case types.ConventionUnadjusted:
		return t
	case types.ConventionPreceding:
		return preceding(t)
	case types.ConventionModifiedFollowing:
		if f := following(t); f.Month() == t.Month() {
			return f
		}
		return preceding(t)
	default:
		return following(t)
	}
}

// dateOf truncates a timestamp to its UTC calendar date
func dateOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
