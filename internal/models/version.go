package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/portfolio-versioning/internal/types"
)

// PortfolioVersion is an immutable snapshot record of a portfolio
type PortfolioVersion struct {
	ID                uuid.UUID                `json:"id" db:"id"`
	PortfolioID       uuid.UUID                `json:"portfolioId" db:"portfolio_id"`
	VersionNumber     int                      `json:"versionNumber" db:"version_number"`
	PortfolioState    map[string]interface{}   `json:"portfolioState" db:"portfolio_state"`
	ConstituentsState []map[string]interface{} `json:"constituentsState" db:"constituents_state"`
	OperationType     types.OperationType      `json:"operationType" db:"operation_type"`
	ChangeReason      *string                  `json:"changeReason,omitempty" db:"change_reason"`
	ApprovedBy        *string                  `json:"approvedBy,omitempty" db:"approved_by"`
	CreatedBy         string                   `json:"createdBy" db:"created_by"`
	CreatedAt         time.Time                `json:"createdAt" db:"created_at"`
	StateHash         string                   `json:"stateHash" db:"state_hash"`
	PreviousVersionID *uuid.UUID               `json:"previousVersionId,omitempty" db:"previous_version_id"`
}

// Snapshot is the canonical state captured by a version
type Snapshot struct {
	Portfolio    map[string]interface{}   `json:"portfolio"`
	Constituents []map[string]interface{} `json:"constituents"`
}

// Snapshot returns the recorded state of the version
func (v *PortfolioVersion) Snapshot() Snapshot {
	return Snapshot{Portfolio: v.PortfolioState, Constituents: v.ConstituentsState}
}

// VersionSummary is the list form of a version used by history views
type VersionSummary struct {
	ID                uuid.UUID           `json:"id"`
	VersionNumber     int                 `json:"versionNumber"`
	OperationType     types.OperationType `json:"operationType"`
	ChangeReason      *string             `json:"changeReason,omitempty"`
	ApprovedBy        *string             `json:"approvedBy,omitempty"`
	CreatedBy         string              `json:"createdBy"`
	CreatedAt         time.Time           `json:"createdAt"`
	StateHash         string              `json:"stateHash"`
	PreviousVersionID *uuid.UUID          `json:"previousVersionId,omitempty"`
}

// Summary drops the snapshot payload
func (v *PortfolioVersion) Summary() VersionSummary {
	return VersionSummary{
		ID:                v.ID,
		VersionNumber:     v.VersionNumber,
		OperationType:     v.OperationType,
		ChangeReason:      v.ChangeReason,
		ApprovedBy:        v.ApprovedBy,
		CreatedBy:         v.CreatedBy,
		CreatedAt:         v.CreatedAt,
		StateHash:         v.StateHash,
		PreviousVersionID: v.PreviousVersionID,
	}
}

// FieldChange records one differing field between two snapshots
type FieldChange struct {
	From interface{} `json:"from"`
	To   interface{} `json:"to"`
}

// ConstituentChange is a holding present in both snapshots with differing fields
type ConstituentChange struct {
	AssetKey
	Changes map[string]FieldChange `json:"changes"`
}

// ConstituentChanges groups constituent level differences
type ConstituentChanges struct {
	Added    []map[string]interface{} `json:"added"`
	Removed  []map[string]interface{} `json:"removed"`
	Modified []ConstituentChange      `json:"modified"`
}

// VersionDiff is the directional difference from one version to another
type VersionDiff struct {
	PortfolioID         uuid.UUID              `json:"portfolioId"`
	FromVersion         int                    `json:"fromVersion"`
	ToVersion           int                    `json:"toVersion"`
	PortfolioChanges    map[string]FieldChange `json:"portfolioChanges"`
	ConstituentsChanges ConstituentChanges     `json:"constituentsChanges"`
}

// IntegrityReport is the outcome of re-hashing every stored version of a portfolio
type IntegrityReport struct {
	PortfolioID     uuid.UUID      `json:"portfolioId"`
	VersionsChecked int            `json:"versionsChecked"`
	Valid           bool           `json:"valid"`
	Mismatches      []HashMismatch `json:"mismatches,omitempty"`
	ChainErrors     []ChainError   `json:"chainErrors,omitempty"`
	CheckedAt       time.Time      `json:"checkedAt"`
}

// HashMismatch is a version whose recomputed hash differs from the stored one
type HashMismatch struct {
	VersionNumber int    `json:"versionNumber"`
	StoredHash    string `json:"storedHash"`
	ComputedHash  string `json:"computedHash"`
}

// ChainError is a break in numbering or previous-version linkage
type ChainError struct {
	VersionNumber int    `json:"versionNumber"`
	Reason        string `json:"reason"`
}

// Clone returns a deep copy of the version record
func (v *PortfolioVersion) Clone() *PortfolioVersion {
	if v == nil {
		return nil
	}
	out := *v
	out.PortfolioState = cloneMap(v.PortfolioState)
	if v.ConstituentsState != nil {
		out.ConstituentsState = make([]map[string]interface{}, len(v.ConstituentsState))
		for i, c := range v.ConstituentsState {
			out.ConstituentsState[i] = cloneMap(c)
		}
	}
	out.ChangeReason = cloneString(v.ChangeReason)
	out.ApprovedBy = cloneString(v.ApprovedBy)
	if v.PreviousVersionID != nil {
		id := *v.PreviousVersionID
		out.PreviousVersionID = &id
	}
	return &out
}
