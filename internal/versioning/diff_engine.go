package versioning

import (
	"bytes"
	"context"
	"fmt"
	"reflect"
	"sort"

	"github.com/google/uuid"

	apperrors "github.com/portfolio-versioning/internal/errors"
	"github.com/portfolio-versioning/internal/models"
	"github.com/portfolio-versioning/internal/types"
)

// DiffEngine compares the recorded state of two versions
type DiffEngine struct {
	versions *VersionStore
}

// NewDiffEngine creates a diff engine
func NewDiffEngine(versions *VersionStore) *DiffEngine {
	return &DiffEngine{versions: versions}
}

// CompareVersions loads two versions of a portfolio and diffs them
func (d *DiffEngine) CompareVersions(ctx context.Context, portfolioID uuid.UUID, from, to int) (*models.VersionDiff, error) {
	v1, err := d.versions.Get(ctx, portfolioID, from)
	if err != nil {
		return nil, err
	}
	v2, err := d.versions.Get(ctx, portfolioID, to)
	if err != nil {
		return nil, err
	}
	return d.Compare(v1, v2)
}

// Compare returns the changes that lead from v1 to v2. Constituents are
// matched on (asset class, asset id); "from" values come from v1 and "to"
// values from v2, so Compare(v2, v1) is the mirror image.
func (d *DiffEngine) Compare(v1, v2 *models.PortfolioVersion) (*models.VersionDiff, error) {
	if v1 == nil || v2 == nil {
		return nil, apperrors.NewValidationError("both versions are required")
	}
	if v1.PortfolioID != v2.PortfolioID {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("versions belong to different portfolios: %s and %s", v1.PortfolioID, v2.PortfolioID))
	}

	return &models.VersionDiff{
		PortfolioID:         v1.PortfolioID,
		FromVersion:         v1.VersionNumber,
		ToVersion:           v2.VersionNumber,
		PortfolioChanges:    fieldChanges(v1.PortfolioState, v2.PortfolioState),
		ConstituentsChanges: constituentChanges(v1.ConstituentsState, v2.ConstituentsState),
	}, nil
}

// fieldChanges lists the keys present in both maps whose values differ
func fieldChanges(from, to map[string]interface{}) map[string]models.FieldChange {
	changes := make(map[string]models.FieldChange)
	for key, before := range from {
		after, ok := to[key]
		if !ok {
			continue
		}
		if !valuesEqual(before, after) {
			changes[key] = models.FieldChange{From: before, To: after}
		}
	}
	return changes
}

func constituentChanges(from, to []map[string]interface{}) models.ConstituentChanges {
	before := indexByAsset(from)
	after := indexByAsset(to)

	changes := models.ConstituentChanges{
		Added:    []map[string]interface{}{},
		Removed:  []map[string]interface{}{},
		Modified: []models.ConstituentChange{},
	}

	for _, key := range sortedKeys(after) {
		if _, ok := before[key]; !ok {
			changes.Added = append(changes.Added, after[key])
		}
	}
	for _, key := range sortedKeys(before) {
		state, ok := after[key]
		if !ok {
			changes.Removed = append(changes.Removed, before[key])
			continue
		}
		if fields := fieldChanges(before[key], state); len(fields) > 0 {
			changes.Modified = append(changes.Modified, models.ConstituentChange{AssetKey: key, Changes: fields})
		}
	}
	return changes
}

func indexByAsset(states []map[string]interface{}) map[models.AssetKey]map[string]interface{} {
	out := make(map[models.AssetKey]map[string]interface{}, len(states))
	for _, state := range states {
		out[assetKeyOf(state)] = state
	}
	return out
}

func assetKeyOf(state map[string]interface{}) models.AssetKey {
	class, _ := state["asset_class"].(string)
	id, _ := state["asset_id"].(string)
	return models.AssetKey{AssetClass: types.AssetClass(class), AssetID: id}
}

func sortedKeys(m map[models.AssetKey]map[string]interface{}) []models.AssetKey {
	keys := make([]models.AssetKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

// valuesEqual compares two snapshot values by their canonical encoding
func valuesEqual(a, b interface{}) bool {
	ea, errA := CanonicalJSON(a)
	eb, errB := CanonicalJSON(b)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(a, b)
	}
	return bytes.Equal(ea, eb)
}
