// Package types provides common type definitions for the portfolio versioning system.
package types

// AssetClass classifies a portfolio or one of its holdings
type AssetClass string

const (
	// AssetClassEquity represents listed equities
	AssetClassEquity AssetClass = "EQUITY"
	// AssetClassFixedIncome represents bonds and other fixed income instruments
	AssetClassFixedIncome AssetClass = "FIXED_INCOME"
	// AssetClassMultiAsset represents a mix of equities and fixed income
	AssetClassMultiAsset AssetClass = "MULTI_ASSET"
)

// IsValid reports whether the asset class is a known tag
func (a AssetClass) IsValid() bool {
	switch a {
	case AssetClassEquity, AssetClassFixedIncome, AssetClassMultiAsset:
		return true
	}
	return false
}

// IsHolding reports whether the asset class may be used by a single constituent
func (a AssetClass) IsHolding() bool {
	return a == AssetClassEquity || a == AssetClassFixedIncome
}

// PortfolioStatus represents the lifecycle status of a portfolio
type PortfolioStatus string

const (
	StatusDraft                PortfolioStatus = "DRAFT"
	StatusPendingApproval      PortfolioStatus = "PENDING_APPROVAL"
	StatusActive               PortfolioStatus = "ACTIVE"
	StatusSuspended            PortfolioStatus = "SUSPENDED"
	StatusClosedToNewInvestors PortfolioStatus = "CLOSED_TO_NEW_INVESTORS"
	StatusLiquidating          PortfolioStatus = "LIQUIDATING"
	StatusTerminated           PortfolioStatus = "TERMINATED"
	StatusFrozen               PortfolioStatus = "FROZEN"
	StatusUnderReview          PortfolioStatus = "UNDER_REVIEW"
	StatusRestructuring        PortfolioStatus = "RESTRUCTURING"
)

// IsValid reports whether the status is a known tag
func (s PortfolioStatus) IsValid() bool {
	switch s {
	case StatusDraft, StatusPendingApproval, StatusActive, StatusSuspended,
		StatusClosedToNewInvestors, StatusLiquidating, StatusTerminated,
		StatusFrozen, StatusUnderReview, StatusRestructuring:
		return true
	}
	return false
}

// PortfolioType represents the management style of a portfolio
type PortfolioType string

const (
	PortfolioTypeIndex        PortfolioType = "INDEX"
	PortfolioTypeActive       PortfolioType = "ACTIVE"
	PortfolioTypePassive      PortfolioType = "PASSIVE"
	PortfolioTypeQuantitative PortfolioType = "QUANTITATIVE"
	PortfolioTypeModel        PortfolioType = "MODEL"
	PortfolioTypeCustom       PortfolioType = "CUSTOM"
)

// IsValid reports whether the portfolio type is a known tag
func (p PortfolioType) IsValid() bool {
	switch p {
	case PortfolioTypeIndex, PortfolioTypeActive, PortfolioTypePassive,
		PortfolioTypeQuantitative, PortfolioTypeModel, PortfolioTypeCustom:
		return true
	}
	return false
}

// Currency is an ISO 4217 currency code
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
	CurrencyJPY Currency = "JPY"
	CurrencyCHF Currency = "CHF"
	CurrencyCAD Currency = "CAD"
	CurrencyAUD Currency = "AUD"
	CurrencyHKD Currency = "HKD"
	CurrencySGD Currency = "SGD"
	CurrencyCNY Currency = "CNY"
)

// IsValid reports whether the currency is a three letter upper case code
func (c Currency) IsValid() bool {
	if len(c) != 3 {
		return false
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// WeightingMethodology is the rule used to derive target weights during rebalancing
type WeightingMethodology string

const (
	// WeightingEqual gives every constituent the same weight
	WeightingEqual WeightingMethodology = "EQUAL"
	// WeightingMarketCap weights by units times market price
	WeightingMarketCap WeightingMethodology = "MARKET_CAP"
	// WeightingPrice weights by market price alone
	WeightingPrice WeightingMethodology = "PRICE"
	// WeightingFixed keeps the configured target weights
	WeightingFixed WeightingMethodology = "FIXED"
)

// IsValid reports whether the methodology is a known tag
func (w WeightingMethodology) IsValid() bool {
	switch w {
	case WeightingEqual, WeightingMarketCap, WeightingPrice, WeightingFixed:
		return true
	}
	return false
}

// RebalanceFrequency is how often a portfolio is rebalanced
type RebalanceFrequency string

const (
	RebalanceDaily        RebalanceFrequency = "DAILY"
	RebalanceWeekly       RebalanceFrequency = "WEEKLY"
	RebalanceBiWeekly     RebalanceFrequency = "BI_WEEKLY"
	RebalanceMonthly      RebalanceFrequency = "MONTHLY"
	RebalanceBiMonthly    RebalanceFrequency = "BI_MONTHLY"
	RebalanceQuarterly    RebalanceFrequency = "QUARTERLY"
	RebalanceSemiAnnually RebalanceFrequency = "SEMI_ANNUALLY"
	RebalanceAnnually     RebalanceFrequency = "ANNUALLY"
	RebalanceOnDrift      RebalanceFrequency = "ON_DRIFT"
	RebalanceOnDemand     RebalanceFrequency = "ON_DEMAND"
	RebalanceNever        RebalanceFrequency = "NEVER"
)

// IsValid reports whether the frequency is a known tag
func (f RebalanceFrequency) IsValid() bool {
	switch f {
	case RebalanceDaily, RebalanceWeekly, RebalanceBiWeekly, RebalanceMonthly,
		RebalanceBiMonthly, RebalanceQuarterly, RebalanceSemiAnnually,
		RebalanceAnnually, RebalanceOnDrift, RebalanceOnDemand, RebalanceNever:
		return true
	}
	return false
}

// Period returns the calendar step between scheduled rebalances.
// ok is false for frequencies that are not calendar driven.
func (f RebalanceFrequency) Period() (years, months, days int, ok bool) {
	switch f {
	case RebalanceDaily:
		return 0, 0, 1, true
	case RebalanceWeekly:
		return 0, 0, 7, true
	case RebalanceBiWeekly:
		return 0, 0, 14, true
	case RebalanceMonthly:
		return 0, 1, 0, true
	case RebalanceBiMonthly:
		return 0, 2, 0, true
	case RebalanceQuarterly:
		return 0, 3, 0, true
	case RebalanceSemiAnnually:
		return 0, 6, 0, true
	case RebalanceAnnually:
		return 1, 0, 0, true
	}
	return 0, 0, 0, false
}

// RiskLevel is the risk classification of a portfolio
type RiskLevel string

const (
	RiskVeryLow      RiskLevel = "VERY_LOW"
	RiskLow          RiskLevel = "LOW"
	RiskModerateLow  RiskLevel = "MODERATE_LOW"
	RiskModerate     RiskLevel = "MODERATE"
	RiskModerateHigh RiskLevel = "MODERATE_HIGH"
	RiskHigh         RiskLevel = "HIGH"
	RiskVeryHigh     RiskLevel = "VERY_HIGH"
	RiskExtreme      RiskLevel = "EXTREME"
)

// IsValid reports whether the risk level is a known tag
func (r RiskLevel) IsValid() bool {
	switch r {
	case RiskVeryLow, RiskLow, RiskModerateLow, RiskModerate,
		RiskModerateHigh, RiskHigh, RiskVeryHigh, RiskExtreme:
		return true
	}
	return false
}

// Calendar is the business day calendar used for date adjustments
type Calendar string

const (
	CalendarTarget   Calendar = "TARGET"
	CalendarNYSE     Calendar = "NYSE"
	CalendarLSE      Calendar = "LSE"
	CalendarWeekdays Calendar = "WEEKDAYS"
	CalendarNull     Calendar = "NULL"
)

// IsValid reports whether the calendar is a known tag
func (c Calendar) IsValid() bool {
	switch c {
	case CalendarTarget, CalendarNYSE, CalendarLSE, CalendarWeekdays, CalendarNull:
		return true
	}
	return false
}

// BusinessDayConvention adjusts dates that fall on non-business days
type BusinessDayConvention string

const (
	ConventionFollowing         BusinessDayConvention = "FOLLOWING"
	ConventionModifiedFollowing BusinessDayConvention = "MODIFIED_FOLLOWING"
	ConventionPreceding         BusinessDayConvention = "PRECEDING"
	ConventionUnadjusted        BusinessDayConvention = "UNADJUSTED"
)

// IsValid reports whether the convention is a known tag
func (b BusinessDayConvention) IsValid() bool {
	switch b {
	case ConventionFollowing, ConventionModifiedFollowing, ConventionPreceding, ConventionUnadjusted:
		return true
	}
	return false
}

// OperationType tags the mutation that produced a version record
type OperationType string

const (
	OperationCreate            OperationType = "CREATE"
	OperationUpdate            OperationType = "UPDATE"
	OperationDelete            OperationType = "DELETE"
	OperationRebalance         OperationType = "REBALANCE"
	OperationAddConstituent    OperationType = "ADD_CONSTITUENT"
	OperationRemoveConstituent OperationType = "REMOVE_CONSTITUENT"
	OperationRollback          OperationType = "ROLLBACK"
	OperationManualEdit        OperationType = "MANUAL_EDIT"
)

// IsValid reports whether the operation type is a known tag
func (o OperationType) IsValid() bool {
	switch o {
	case OperationCreate, OperationUpdate, OperationDelete, OperationRebalance,
		OperationAddConstituent, OperationRemoveConstituent, OperationRollback,
		OperationManualEdit:
		return true
	}
	return false
}

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
