package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/portfolio-versioning/internal/types"
)

// Portfolio is the versioned aggregate root.
//
// The snapshot tag names the key a field takes in a version snapshot.
// Options: "date" serializes a time as a calendar date, "identity" marks a
// field that is recorded but never written back by a rollback. Fields tagged
// "-" are volatile and stay out of the state hash.
type Portfolio struct {
	ID          uuid.UUID `json:"id" db:"id" snapshot:"id,identity"`
	Symbol      string    `json:"symbol" db:"symbol" snapshot:"symbol"`
	Name        string    `json:"name" db:"name" snapshot:"name"`
	Description *string   `json:"description,omitempty" db:"description" snapshot:"description"`

	PortfolioType        types.PortfolioType        `json:"portfolioType" db:"portfolio_type" snapshot:"portfolio_type"`
	BaseCurrency         types.Currency             `json:"baseCurrency" db:"base_currency" snapshot:"base_currency"`
	AssetClass           types.AssetClass           `json:"assetClass" db:"asset_class" snapshot:"asset_class"`
	WeightingMethodology types.WeightingMethodology `json:"weightingMethodology" db:"weighting_methodology" snapshot:"weighting_methodology"`
	RebalanceFrequency   types.RebalanceFrequency   `json:"rebalanceFrequency" db:"rebalance_frequency" snapshot:"rebalance_frequency"`
	BenchmarkSymbol      *string                    `json:"benchmarkSymbol,omitempty" db:"benchmark_symbol" snapshot:"benchmark_symbol"`
	StrategyDescription  *string                    `json:"strategyDescription,omitempty" db:"strategy_description" snapshot:"strategy_description"`

	InceptionDate   time.Time             `json:"inceptionDate" db:"inception_date" snapshot:"inception_date,date"`
	TerminationDate *time.Time            `json:"terminationDate,omitempty" db:"termination_date" snapshot:"termination_date,date"`
	Status          types.PortfolioStatus `json:"status" db:"status" snapshot:"status"`

	TotalMarketValue       *decimal.Decimal `json:"totalMarketValue,omitempty" db:"total_market_value" snapshot:"total_market_value"`
	NavPerShare            *decimal.Decimal `json:"navPerShare,omitempty" db:"nav_per_share" snapshot:"nav_per_share"`
	TotalSharesOutstanding *decimal.Decimal `json:"totalSharesOutstanding,omitempty" db:"total_shares_outstanding" snapshot:"total_shares_outstanding"`
	MinimumInvestment      *decimal.Decimal `json:"minimumInvestment,omitempty" db:"minimum_investment" snapshot:"minimum_investment"`

	RiskLevel            *types.RiskLevel `json:"riskLevel,omitempty" db:"risk_level" snapshot:"risk_level"`
	MaxIndividualWeight  *decimal.Decimal `json:"maxIndividualWeight,omitempty" db:"max_individual_weight" snapshot:"max_individual_weight"`
	MinIndividualWeight  *decimal.Decimal `json:"minIndividualWeight,omitempty" db:"min_individual_weight" snapshot:"min_individual_weight"`
	CashTargetPercentage *decimal.Decimal `json:"cashTargetPercentage,omitempty" db:"cash_target_percentage" snapshot:"cash_target_percentage"`

	Calendar              types.Calendar              `json:"calendar" db:"calendar" snapshot:"calendar"`
	BusinessDayConvention types.BusinessDayConvention `json:"businessDayConvention" db:"business_day_convention" snapshot:"business_day_convention"`
	LastRebalanceDate     *time.Time                  `json:"lastRebalanceDate,omitempty" db:"last_rebalance_date" snapshot:"last_rebalance_date,date"`
	NextRebalanceDate     *time.Time                  `json:"nextRebalanceDate,omitempty" db:"next_rebalance_date" snapshot:"next_rebalance_date,date"`

	ManagementFee  *decimal.Decimal `json:"managementFee,omitempty" db:"management_fee" snapshot:"management_fee"`
	PerformanceFee *decimal.Decimal `json:"performanceFee,omitempty" db:"performance_fee" snapshot:"performance_fee"`
	ExpenseRatio   *decimal.Decimal `json:"expenseRatio,omitempty" db:"expense_ratio" snapshot:"expense_ratio"`

	IsActive              bool `json:"isActive" db:"is_active" snapshot:"is_active"`
	IsLocked              bool `json:"isLocked" db:"is_locked" snapshot:"is_locked"`
	AllowFractionalShares bool `json:"allowFractionalShares" db:"allow_fractional_shares" snapshot:"allow_fractional_shares"`
	AutoRebalanceEnabled  bool `json:"autoRebalanceEnabled" db:"auto_rebalance_enabled" snapshot:"auto_rebalance_enabled"`

	CustomFields    map[string]interface{} `json:"customFields,omitempty" db:"custom_fields" snapshot:"custom_fields"`
	ComplianceRules []interface{}          `json:"complianceRules,omitempty" db:"compliance_rules" snapshot:"compliance_rules"`
	Tags            []string               `json:"tags,omitempty" db:"tags" snapshot:"tags"`

	PortfolioManager *string `json:"portfolioManager,omitempty" db:"portfolio_manager" snapshot:"portfolio_manager"`
	Administrator    *string `json:"administrator,omitempty" db:"administrator" snapshot:"administrator"`
	Custodian        *string `json:"custodian,omitempty" db:"custodian" snapshot:"custodian"`

	CreatedAt time.Time `json:"createdAt" db:"created_at" snapshot:"created_at,identity"`

	// Denormalized pointer to the latest version. Maintained by the caller
	// after each successful snapshot.
	UpdatedAt        time.Time  `json:"updatedAt" db:"updated_at" snapshot:"-"`
	Version          int        `json:"version" db:"version" snapshot:"-"`
	CurrentVersionID *uuid.UUID `json:"currentVersionId,omitempty" db:"current_version_id" snapshot:"-"`
	VersionHash      *string    `json:"versionHash,omitempty" db:"version_hash" snapshot:"-"`
}

// SetCurrentVersion points the portfolio at a freshly created version record
func (p *Portfolio) SetCurrentVersion(v *PortfolioVersion) {
	id := v.ID
	hash := v.StateHash
	p.CurrentVersionID = &id
	p.VersionHash = &hash
	p.Version = v.VersionNumber
}

// Clone returns a deep copy of the portfolio
func (p *Portfolio) Clone() *Portfolio {
	if p == nil {
		return nil
	}
	c := *p
	c.Description = cloneString(p.Description)
	c.BenchmarkSymbol = cloneString(p.BenchmarkSymbol)
	c.StrategyDescription = cloneString(p.StrategyDescription)
	c.TerminationDate = cloneTime(p.TerminationDate)
	c.TotalMarketValue = cloneDecimal(p.TotalMarketValue)
	c.NavPerShare = cloneDecimal(p.NavPerShare)
	c.TotalSharesOutstanding = cloneDecimal(p.TotalSharesOutstanding)
	c.MinimumInvestment = cloneDecimal(p.MinimumInvestment)
	if p.RiskLevel != nil {
		r := *p.RiskLevel
		c.RiskLevel = &r
	}
	c.MaxIndividualWeight = cloneDecimal(p.MaxIndividualWeight)
	c.MinIndividualWeight = cloneDecimal(p.MinIndividualWeight)
	c.CashTargetPercentage = cloneDecimal(p.CashTargetPercentage)
	c.LastRebalanceDate = cloneTime(p.LastRebalanceDate)
	c.NextRebalanceDate = cloneTime(p.NextRebalanceDate)
	c.ManagementFee = cloneDecimal(p.ManagementFee)
	c.PerformanceFee = cloneDecimal(p.PerformanceFee)
	c.ExpenseRatio = cloneDecimal(p.ExpenseRatio)
	c.CustomFields = cloneMap(p.CustomFields)
	if p.ComplianceRules != nil {
		c.ComplianceRules = make([]interface{}, len(p.ComplianceRules))
		for i, v := range p.ComplianceRules {
			c.ComplianceRules[i] = cloneValue(v)
		}
	}
	if p.Tags != nil {
		c.Tags = append([]string(nil), p.Tags...)
	}
	c.PortfolioManager = cloneString(p.PortfolioManager)
	c.Administrator = cloneString(p.Administrator)
	c.Custodian = cloneString(p.Custodian)
	if p.CurrentVersionID != nil {
		id := *p.CurrentVersionID
		c.CurrentVersionID = &id
	}
	c.VersionHash = cloneString(p.VersionHash)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return cloneMap(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
