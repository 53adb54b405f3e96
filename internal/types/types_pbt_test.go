package types

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property: every calendar driven frequency moves a date strictly forward
func TestPropertyRebalancePeriodAdvances(t *testing.T) {
	properties := gopter.NewProperties(nil)

	frequencies := []interface{}{
		RebalanceDaily, RebalanceWeekly, RebalanceBiWeekly, RebalanceMonthly,
		RebalanceBiMonthly, RebalanceQuarterly, RebalanceSemiAnnually, RebalanceAnnually,
	}

	properties.Property("period advances the date", prop.ForAll(
		func(f RebalanceFrequency, offset int) bool {
			from := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
			y, m, d, ok := f.Period()
			return ok && from.AddDate(y, m, d).After(from)
		},
		gen.OneConstOf(frequencies...).Map(func(v interface{}) RebalanceFrequency { return v.(RebalanceFrequency) }),
		gen.IntRange(0, 3650),
	))

	properties.TestingRun(t)
}
