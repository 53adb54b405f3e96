package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/portfolio-versioning/internal/types"
)

// Constituent is one holding of a portfolio
type Constituent struct {
	ID          uuid.UUID `json:"id" db:"id" snapshot:"-"`
	PortfolioID uuid.UUID `json:"portfolioId" db:"portfolio_id" snapshot:"-"`

	AssetID    string           `json:"assetId" db:"asset_id" snapshot:"asset_id"`
	AssetClass types.AssetClass `json:"assetClass" db:"asset_class" snapshot:"asset_class"`
	Currency   types.Currency   `json:"currency" db:"currency" snapshot:"currency"`

	Weight       decimal.Decimal  `json:"weight" db:"weight" snapshot:"weight"`
	TargetWeight *decimal.Decimal `json:"targetWeight,omitempty" db:"target_weight" snapshot:"target_weight"`
	Units        decimal.Decimal  `json:"units" db:"units" snapshot:"units"`
	MarketPrice  decimal.Decimal  `json:"marketPrice" db:"market_price" snapshot:"market_price"`

	IsActive     bool                   `json:"isActive" db:"is_active" snapshot:"is_active"`
	Notes        *string                `json:"notes,omitempty" db:"notes" snapshot:"notes"`
	CustomFields map[string]interface{} `json:"customFields,omitempty" db:"custom_fields" snapshot:"custom_fields"`

	// AddedAt is regenerated whenever a constituent row is recreated
	AddedAt          time.Time  `json:"addedAt" db:"added_at" snapshot:"-"`
	LastRebalancedAt *time.Time `json:"lastRebalancedAt,omitempty" db:"last_rebalanced_at" snapshot:"last_rebalanced_at"`
}

// AssetKey identifies a holding within a portfolio. Equities and bonds may
// share an asset id, so the class is part of the key.
type AssetKey struct {
	AssetClass types.AssetClass `json:"assetClass"`
	AssetID    string           `json:"assetId"`
}

// String renders the key as "CLASS:ID"
func (k AssetKey) String() string {
	return fmt.Sprintf("%s:%s", k.AssetClass, k.AssetID)
}

// Less orders keys by asset class, then asset id
func (k AssetKey) Less(o AssetKey) bool {
	if k.AssetClass != o.AssetClass {
		return k.AssetClass < o.AssetClass
	}
	return k.AssetID < o.AssetID
}

// Key returns the asset identity of the constituent
func (c *Constituent) Key() AssetKey {
	return AssetKey{AssetClass: c.AssetClass, AssetID: c.AssetID}
}

// MarketValue returns units times market price
func (c *Constituent) MarketValue() decimal.Decimal {
	return c.Units.Mul(c.MarketPrice)
}

// Clone returns a deep copy of the constituent
func (c *Constituent) Clone() *Constituent {
	if c == nil {
		return nil
	}
	out := *c
	out.TargetWeight = cloneDecimal(c.TargetWeight)
	out.Notes = cloneString(c.Notes)
	out.CustomFields = cloneMap(c.CustomFields)
	out.LastRebalancedAt = cloneTime(c.LastRebalancedAt)
	return &out
}

// CloneConstituents deep copies a constituent slice
func CloneConstituents(in []*Constituent) []*Constituent {
	if in == nil {
		return nil
	}
	out := make([]*Constituent, len(in))
	for i, c := range in {
		out[i] = c.Clone()
	}
	return out
}
