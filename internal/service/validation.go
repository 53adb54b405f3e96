package service

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	apperrors "github.com/portfolio-versioning/internal/errors"
	"github.com/portfolio-versioning/internal/models"
)

// Limits enforced on every mutation. Lengths count characters and never
// exceed the width of the column that stores the field.
const (
	MaxConstituents    = 1000
	MaxSymbolLength    = 20
	MaxNameLength      = 200
	MaxAssetIDLength   = 50
	MaxBenchmarkLength = 100
	MaxPartyLength     = 200
	MaxTagLength       = 100
)

var (
	one    = decimal.NewFromInt(1)
	maxFee = decimal.RequireFromString("0.05")
)

func validatePortfolio(p *models.Portfolio) error {
	switch {
	case p.Symbol == "":
		return apperrors.NewInvalidParameterError("symbol", "symbol is required")
	case strings.TrimSpace(p.Name) == "":
		return apperrors.NewInvalidParameterError("name", "name is required")
	}

	texts := []struct {
		field string
		value *string
		max   int
	}{
		{"symbol", &p.Symbol, MaxSymbolLength},
		{"name", &p.Name, MaxNameLength},
		{"description", p.Description, 0},
		{"benchmarkSymbol", p.BenchmarkSymbol, MaxBenchmarkLength},
		{"strategyDescription", p.StrategyDescription, 0},
		{"portfolioManager", p.PortfolioManager, MaxPartyLength},
		{"administrator", p.Administrator, MaxPartyLength},
		{"custodian", p.Custodian, MaxPartyLength},
	}
	for _, t := range texts {
		if t.value == nil {
			continue
		}
		if err := checkText(t.field, *t.value, t.max); err != nil {
			return err
		}
	}
	for _, tag := range p.Tags {
		if err := checkText("tags", tag, MaxTagLength); err != nil {
			return err
		}
	}
	if err := checkCustomFields(p.CustomFields); err != nil {
		return err
	}

	enums := []struct {
		field string
		valid bool
	}{
		{"portfolioType", p.PortfolioType.IsValid()},
		{"baseCurrency", p.BaseCurrency.IsValid()},
		{"assetClass", p.AssetClass.IsValid()},
		{"weightingMethodology", p.WeightingMethodology.IsValid()},
		{"rebalanceFrequency", p.RebalanceFrequency.IsValid()},
		{"status", p.Status.IsValid()},
		{"calendar", p.Calendar.IsValid()},
		{"businessDayConvention", p.BusinessDayConvention.IsValid()},
		{"riskLevel", p.RiskLevel == nil || p.RiskLevel.IsValid()},
	}
	for _, e := range enums {
		if !e.valid {
			return apperrors.NewInvalidParameterError(e.field, "unknown value")
		}
	}

	if p.TerminationDate != nil && p.TerminationDate.Before(p.InceptionDate) {
		return apperrors.NewInvalidParameterError("terminationDate", "must not precede the inception date")
	}

	for field, fee := range map[string]*decimal.Decimal{
		"managementFee":  p.ManagementFee,
		"performanceFee": p.PerformanceFee,
		"expenseRatio":   p.ExpenseRatio,
	} {
		if fee != nil && (fee.IsNegative() || fee.GreaterThan(maxFee)) {
			return apperrors.NewInvalidParameterError(field, "must be between 0 and 0.05")
		}
	}

	for field, w := range map[string]*decimal.Decimal{
		"maxIndividualWeight":  p.MaxIndividualWeight,
		"minIndividualWeight":  p.MinIndividualWeight,
		"cashTargetPercentage": p.CashTargetPercentage,
	} {
		if w != nil && !inUnitRange(*w) {
			return apperrors.NewInvalidParameterError(field, "must be between 0 and 1")
		}
	}
	if p.MaxIndividualWeight != nil && p.MinIndividualWeight != nil &&
		p.MinIndividualWeight.GreaterThan(*p.MaxIndividualWeight) {
		return apperrors.NewInvalidParameterError("minIndividualWeight", "must not exceed maxIndividualWeight")
	}

	for field, v := range map[string]*decimal.Decimal{
		"totalSharesOutstanding": p.TotalSharesOutstanding,
		"navPerShare":            p.NavPerShare,
		"minimumInvestment":      p.MinimumInvestment,
	} {
		if v != nil && v.IsNegative() {
			return apperrors.NewInvalidParameterError(field, "must not be negative")
		}
	}
	return nil
}

func validateConstituent(c *models.Constituent) error {
	switch {
	case strings.TrimSpace(c.AssetID) == "":
		return apperrors.NewInvalidParameterError("assetId", "asset id is required")
	case !c.AssetClass.IsHolding():
		return apperrors.NewInvalidParameterError("assetClass", "constituents must be EQUITY or FIXED_INCOME")
	case !c.Currency.IsValid():
		return apperrors.NewInvalidParameterError("currency", "must be a three letter currency code")
	case !inUnitRange(c.Weight):
		return apperrors.NewInvalidParameterError("weight", "must be between 0 and 1")
	case c.TargetWeight != nil && !inUnitRange(*c.TargetWeight):
		return apperrors.NewInvalidParameterError("targetWeight", "must be between 0 and 1")
	case c.Units.IsNegative():
		return apperrors.NewInvalidParameterError("units", "must not be negative")
	case c.MarketPrice.IsNegative():
		return apperrors.NewInvalidParameterError("marketPrice", "must not be negative")
	}
	if err := checkText("assetId", c.AssetID, MaxAssetIDLength); err != nil {
		return err
	}
	if c.Notes != nil {
		if err := checkText("notes", *c.Notes, 0); err != nil {
			return err
		}
	}
	return checkCustomFields(c.CustomFields)
}

// checkText rejects strings that are not valid UTF-8 or longer than max
// characters. A max of zero means unbounded.
func checkText(field, value string, max int) error {
	if !utf8.ValidString(value) {
		return apperrors.NewInvalidParameterError(field, "must be valid UTF-8")
	}
	if max > 0 && utf8.RuneCountInString(value) > max {
		return apperrors.NewInvalidParameterError(field, fmt.Sprintf("at most %d characters", max))
	}
	return nil
}

// checkCustomFields walks the keys and string values of a custom field map
func checkCustomFields(fields map[string]interface{}) error {
	var walk func(v interface{}) error
	walk = func(v interface{}) error {
		switch val := v.(type) {
		case string:
			return checkText("customFields", val, 0)
		case map[string]interface{}:
			for k, item := range val {
				if err := checkText("customFields", k, 0); err != nil {
					return err
				}
				if err := walk(item); err != nil {
					return err
				}
			}
		case []interface{}:
			for _, item := range val {
				if err := walk(item); err != nil {
					return err
				}
			}
		case []string:
			for _, item := range val {
				if err := checkText("customFields", item, 0); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if fields == nil {
		return nil
	}
	return walk(fields)
}

func inUnitRange(d decimal.Decimal) bool {
	return !d.IsNegative() && d.LessThanOrEqual(one)
}
