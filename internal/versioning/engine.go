package versioning

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/portfolio-versioning/internal/config"
	"github.com/portfolio-versioning/internal/logging"
	"github.com/portfolio-versioning/internal/storage"
)

// Engine bundles the versioning components over one store
type Engine struct {
	Serializer *Serializer
	Versions   *VersionStore
	Snapshots  *SnapshotManager
	Rollbacks  *RollbackEngine
	Diffs      *DiffEngine
	Metrics    *Metrics
}

// NewEngine wires the versioning components. cache and reg may be nil.
func NewEngine(
	store storage.Store,
	cache *storage.VersionCache,
	cfg config.VersioningConfig,
	reg prometheus.Registerer,
	logger *logging.Logger,
) *Engine {
	metrics := NewMetrics(reg)
	serializer := NewSerializer(cfg.StringFallback)
	versions := NewVersionStore(store, cache, cfg, metrics, logger)
	snapshots := NewSnapshotManager(serializer, versions, metrics, logger)

	return &Engine{
		Serializer: serializer,
		Versions:   versions,
		Snapshots:  snapshots,
		Rollbacks:  NewRollbackEngine(serializer, versions, snapshots, logger),
		Diffs:      NewDiffEngine(versions),
		Metrics:    metrics,
	}
}
