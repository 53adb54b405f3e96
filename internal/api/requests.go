package api

import (
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/portfolio-versioning/internal/models"
	"github.com/portfolio-versioning/internal/service"
	"github.com/portfolio-versioning/internal/types"
)

const dateLayout = "2006-01-02"

var validate *validator.Validate

func init() {
	validate = validator.New()

	// Report json names in validation details
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// Decimals are checked with the numeric tags (gte, lte)
	validate.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	if err := validate.RegisterValidation("enum", validateEnum); err != nil {
		panic(err)
	}
}

// validateEnum accepts any field whose type reports its own validity
func validateEnum(fl validator.FieldLevel) bool {
	v, ok := fl.Field().Interface().(interface{ IsValid() bool })
	return ok && v.IsValid()
}

// auditRequest carries the optional audit fields of every mutation
type auditRequest struct {
	ChangeReason *string `json:"changeReason,omitempty" validate:"omitempty,max=1000"`
	ApprovedBy   *string `json:"approvedBy,omitempty" validate:"omitempty,max=200"`
}

func (a auditRequest) mutation(actor string) service.ConstituentMutation {
	return service.ConstituentMutation{Actor: actor, ChangeReason: a.ChangeReason, ApprovedBy: a.ApprovedBy}
}

type constituentRequest struct {
	AssetID      string                 `json:"assetId" validate:"required,max=50"`
	AssetClass   types.AssetClass       `json:"assetClass" validate:"required,oneof=EQUITY FIXED_INCOME"`
	Currency     types.Currency         `json:"currency,omitempty" validate:"omitempty,enum"`
	Weight       decimal.Decimal        `json:"weight" validate:"gte=0,lte=1"`
	TargetWeight *decimal.Decimal       `json:"targetWeight,omitempty" validate:"omitempty,gte=0,lte=1"`
	Units        decimal.Decimal        `json:"units" validate:"gte=0"`
	MarketPrice  decimal.Decimal        `json:"marketPrice" validate:"gte=0"`
	IsActive     *bool                  `json:"isActive,omitempty"`
	Notes        *string                `json:"notes,omitempty" validate:"omitempty,max=1000"`
	CustomFields map[string]interface{} `json:"customFields,omitempty"`
}

func (c constituentRequest) toModel() *models.Constituent {
	active := true
	if c.IsActive != nil {
		active = *c.IsActive
	}
	return &models.Constituent{
		AssetID:      strings.TrimSpace(c.AssetID),
		AssetClass:   c.AssetClass,
		Currency:     c.Currency,
		Weight:       c.Weight,
		TargetWeight: c.TargetWeight,
		Units:        c.Units,
		MarketPrice:  c.MarketPrice,
		IsActive:     active,
		Notes:        c.Notes,
		CustomFields: c.CustomFields,
	}
}

type addConstituentRequest struct {
	constituentRequest
	auditRequest
}

type createPortfolioRequest struct {
	Symbol               string                     `json:"symbol" validate:"required,max=20"`
	Name                 string                     `json:"name" validate:"required,max=200"`
	Description          *string                    `json:"description,omitempty"`
	PortfolioType        types.PortfolioType        `json:"portfolioType" validate:"required,enum"`
	BaseCurrency         types.Currency             `json:"baseCurrency,omitempty" validate:"omitempty,enum"`
	AssetClass           types.AssetClass           `json:"assetClass" validate:"required,enum"`
	WeightingMethodology types.WeightingMethodology `json:"weightingMethodology,omitempty" validate:"omitempty,enum"`
	RebalanceFrequency   types.RebalanceFrequency   `json:"rebalanceFrequency,omitempty" validate:"omitempty,enum"`
	BenchmarkSymbol      *string                    `json:"benchmarkSymbol,omitempty" validate:"omitempty,max=20"`
	StrategyDescription  *string                    `json:"strategyDescription,omitempty"`
	InceptionDate        string                     `json:"inceptionDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	TerminationDate      *string                    `json:"terminationDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Status               types.PortfolioStatus      `json:"status,omitempty" validate:"omitempty,enum"`

	NavPerShare            *decimal.Decimal `json:"navPerShare,omitempty" validate:"omitempty,gte=0"`
	TotalSharesOutstanding *decimal.Decimal `json:"totalSharesOutstanding,omitempty" validate:"omitempty,gte=0"`
	MinimumInvestment      *decimal.Decimal `json:"minimumInvestment,omitempty" validate:"omitempty,gte=0"`

	RiskLevel            *types.RiskLevel `json:"riskLevel,omitempty" validate:"omitempty,enum"`
	MaxIndividualWeight  *decimal.Decimal `json:"maxIndividualWeight,omitempty" validate:"omitempty,gte=0,lte=1"`
	MinIndividualWeight  *decimal.Decimal `json:"minIndividualWeight,omitempty" validate:"omitempty,gte=0,lte=1"`
	CashTargetPercentage *decimal.Decimal `json:"cashTargetPercentage,omitempty" validate:"omitempty,gte=0,lte=1"`

	Calendar              types.Calendar              `json:"calendar,omitempty" validate:"omitempty,enum"`
	BusinessDayConvention types.BusinessDayConvention `json:"businessDayConvention,omitempty" validate:"omitempty,enum"`

	ManagementFee  *decimal.Decimal `json:"managementFee,omitempty" validate:"omitempty,gte=0,lte=0.05"`
	PerformanceFee *decimal.Decimal `json:"performanceFee,omitempty" validate:"omitempty,gte=0,lte=0.05"`
	ExpenseRatio   *decimal.Decimal `json:"expenseRatio,omitempty" validate:"omitempty,gte=0,lte=0.05"`

	IsActive              *bool `json:"isActive,omitempty"`
	AllowFractionalShares *bool `json:"allowFractionalShares,omitempty"`
	AutoRebalanceEnabled  *bool `json:"autoRebalanceEnabled,omitempty"`

	CustomFields    map[string]interface{} `json:"customFields,omitempty"`
	ComplianceRules []interface{}          `json:"complianceRules,omitempty"`
	Tags            []string               `json:"tags,omitempty" validate:"omitempty,dive,max=50"`

	PortfolioManager *string `json:"portfolioManager,omitempty"`
	Administrator    *string `json:"administrator,omitempty"`
	Custodian        *string `json:"custodian,omitempty"`

	Constituents []constituentRequest `json:"constituents,omitempty" validate:"max=1000,dive"`

	auditRequest
}

func (req createPortfolioRequest) toInput(actor string) (service.CreatePortfolioInput, error) {
	p := &models.Portfolio{
		Symbol:                 req.Symbol,
		Name:                   strings.TrimSpace(req.Name),
		Description:            req.Description,
		PortfolioType:          req.PortfolioType,
		BaseCurrency:           req.BaseCurrency,
		AssetClass:             req.AssetClass,
		WeightingMethodology:   req.WeightingMethodology,
		RebalanceFrequency:     req.RebalanceFrequency,
		BenchmarkSymbol:        req.BenchmarkSymbol,
		StrategyDescription:    req.StrategyDescription,
		Status:                 req.Status,
		NavPerShare:            req.NavPerShare,
		TotalSharesOutstanding: req.TotalSharesOutstanding,
		MinimumInvestment:      req.MinimumInvestment,
		RiskLevel:              req.RiskLevel,
		MaxIndividualWeight:    req.MaxIndividualWeight,
		MinIndividualWeight:    req.MinIndividualWeight,
		CashTargetPercentage:   req.CashTargetPercentage,
		Calendar:               req.Calendar,
		BusinessDayConvention:  req.BusinessDayConvention,
		ManagementFee:          req.ManagementFee,
		PerformanceFee:         req.PerformanceFee,
		ExpenseRatio:           req.ExpenseRatio,
		IsActive:               boolOr(req.IsActive, true),
		AllowFractionalShares:  boolOr(req.AllowFractionalShares, true),
		AutoRebalanceEnabled:   boolOr(req.AutoRebalanceEnabled, true),
		CustomFields:           req.CustomFields,
		ComplianceRules:        req.ComplianceRules,
		Tags:                   req.Tags,
		PortfolioManager:       req.PortfolioManager,
		Administrator:          req.Administrator,
		Custodian:              req.Custodian,
	}

	var err error
	if req.InceptionDate != "" {
		if p.InceptionDate, err = time.Parse(dateLayout, req.InceptionDate); err != nil {
			return service.CreatePortfolioInput{}, err
		}
	}
	if p.TerminationDate, err = parseOptionalDate(req.TerminationDate); err != nil {
		return service.CreatePortfolioInput{}, err
	}

	constituents := make([]*models.Constituent, len(req.Constituents))
	for i, c := range req.Constituents {
		constituents[i] = c.toModel()
	}

	return service.CreatePortfolioInput{
		Portfolio:    p,
		Constituents: constituents,
		Actor:        actor,
		ChangeReason: req.ChangeReason,
		ApprovedBy:   req.ApprovedBy,
	}, nil
}

// updatePortfolioRequest is a partial update; absent fields are unchanged
type updatePortfolioRequest struct {
	Name                   *string                     `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Description            *string                     `json:"description,omitempty"`
	Status                 *types.PortfolioStatus      `json:"status,omitempty" validate:"omitempty,enum"`
	RiskLevel              *types.RiskLevel            `json:"riskLevel,omitempty" validate:"omitempty,enum"`
	BenchmarkSymbol        *string                     `json:"benchmarkSymbol,omitempty" validate:"omitempty,max=20"`
	StrategyDescription    *string                     `json:"strategyDescription,omitempty"`
	WeightingMethodology   *types.WeightingMethodology `json:"weightingMethodology,omitempty" validate:"omitempty,enum"`
	RebalanceFrequency     *types.RebalanceFrequency   `json:"rebalanceFrequency,omitempty" validate:"omitempty,enum"`
	TerminationDate        *string                     `json:"terminationDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	TotalSharesOutstanding *decimal.Decimal            `json:"totalSharesOutstanding,omitempty" validate:"omitempty,gte=0"`
	NavPerShare            *decimal.Decimal            `json:"navPerShare,omitempty" validate:"omitempty,gte=0"`
	MinimumInvestment      *decimal.Decimal            `json:"minimumInvestment,omitempty" validate:"omitempty,gte=0"`
	MaxIndividualWeight    *decimal.Decimal            `json:"maxIndividualWeight,omitempty" validate:"omitempty,gte=0,lte=1"`
	MinIndividualWeight    *decimal.Decimal            `json:"minIndividualWeight,omitempty" validate:"omitempty,gte=0,lte=1"`
	CashTargetPercentage   *decimal.Decimal            `json:"cashTargetPercentage,omitempty" validate:"omitempty,gte=0,lte=1"`
	Calendar               *types.Calendar             `json:"calendar,omitempty" validate:"omitempty,enum"`
	BusinessDayConvention  *types.BusinessDayConvention `json:"businessDayConvention,omitempty" validate:"omitempty,enum"`
	ManagementFee          *decimal.Decimal            `json:"managementFee,omitempty" validate:"omitempty,gte=0,lte=0.05"`
	PerformanceFee         *decimal.Decimal            `json:"performanceFee,omitempty" validate:"omitempty,gte=0,lte=0.05"`
	ExpenseRatio           *decimal.Decimal            `json:"expenseRatio,omitempty" validate:"omitempty,gte=0,lte=0.05"`
	IsActive               *bool                       `json:"isActive,omitempty"`
	IsLocked               *bool                       `json:"isLocked,omitempty"`
	AllowFractionalShares  *bool                       `json:"allowFractionalShares,omitempty"`
	AutoRebalanceEnabled   *bool                       `json:"autoRebalanceEnabled,omitempty"`
	CustomFields           map[string]interface{}      `json:"customFields,omitempty"`
	ComplianceRules        []interface{}               `json:"complianceRules,omitempty"`
	Tags                   []string                    `json:"tags,omitempty" validate:"omitempty,dive,max=50"`
	PortfolioManager       *string                     `json:"portfolioManager,omitempty"`
	Administrator          *string                     `json:"administrator,omitempty"`
	Custodian              *string                     `json:"custodian,omitempty"`

	auditRequest
}

func (req updatePortfolioRequest) toInput(actor string) (service.UpdatePortfolioInput, error) {
	termination, err := parseOptionalDate(req.TerminationDate)
	if err != nil {
		return service.UpdatePortfolioInput{}, err
	}
	var name *string
	if req.Name != nil {
		trimmed := strings.TrimSpace(*req.Name)
		name = &trimmed
	}
	return service.UpdatePortfolioInput{
		Name:                   name,
		Description:            req.Description,
		Status:                 req.Status,
		RiskLevel:              req.RiskLevel,
		BenchmarkSymbol:        req.BenchmarkSymbol,
		StrategyDescription:    req.StrategyDescription,
		WeightingMethodology:   req.WeightingMethodology,
		RebalanceFrequency:     req.RebalanceFrequency,
		TerminationDate:        termination,
		TotalSharesOutstanding: req.TotalSharesOutstanding,
		NavPerShare:            req.NavPerShare,
		MinimumInvestment:      req.MinimumInvestment,
		MaxIndividualWeight:    req.MaxIndividualWeight,
		MinIndividualWeight:    req.MinIndividualWeight,
		CashTargetPercentage:   req.CashTargetPercentage,
		Calendar:               req.Calendar,
		BusinessDayConvention:  req.BusinessDayConvention,
		ManagementFee:          req.ManagementFee,
		PerformanceFee:         req.PerformanceFee,
		ExpenseRatio:           req.ExpenseRatio,
		IsActive:               req.IsActive,
		IsLocked:               req.IsLocked,
		AllowFractionalShares:  req.AllowFractionalShares,
		AutoRebalanceEnabled:   req.AutoRebalanceEnabled,
		CustomFields:           req.CustomFields,
		ComplianceRules:        req.ComplianceRules,
		Tags:                   req.Tags,
		PortfolioManager:       req.PortfolioManager,
		Administrator:          req.Administrator,
		Custodian:              req.Custodian,
		Actor:                  actor,
		ChangeReason:           req.ChangeReason,
		ApprovedBy:             req.ApprovedBy,
	}, nil
}

type manualEditRequest struct {
	ChangeReason string  `json:"changeReason" validate:"required,max=1000"`
	ApprovedBy   *string `json:"approvedBy,omitempty" validate:"omitempty,max=200"`
}

type rollbackRequest struct {
	TargetVersion int     `json:"targetVersion" validate:"required,min=1"`
	ChangeReason  *string `json:"changeReason,omitempty" validate:"omitempty,max=1000"`
}

// decodeRequest parses and validates a JSON body. An empty body is accepted
// when optional is set and leaves v at its zero value.
func decodeRequest(r *http.Request, v interface{}, optional bool) error {
	if err := parseJSONBody(r, v); err != nil {
		if !(optional && errors.Is(err, io.EOF)) {
			return err
		}
	}
	return validate.Struct(v)
}

// validationDetails lists the failing fields of a validator error
func validationDetails(err error) map[string]interface{} {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	fields := make(map[string]interface{}, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		fields[fieldPath(fe.Namespace())] = rule
	}
	return map[string]interface{}{"fields": fields}
}

// fieldPath drops the root struct name from a validator namespace
func fieldPath(namespace string) string {
	if i := strings.IndexByte(namespace, '.'); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func parseOptionalDate(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, *s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
