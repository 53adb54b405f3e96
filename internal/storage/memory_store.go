package storage

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	apperrors "github.com/portfolio-versioning/internal/errors"
	"github.com/portfolio-versioning/internal/models"
)

// MemoryStore is an in-process Store. Transactions stage their writes and
// apply them atomically on commit. Mutating work is serialized per portfolio
// through LockPortfolio, so transactions on different portfolios never wait
// on each other beyond the short commit section.
type MemoryStore struct {
	mu           sync.RWMutex
	portfolios   map[uuid.UUID]*models.Portfolio
	constituents map[uuid.UUID][]*models.Constituent
	versions     map[uuid.UUID][]*models.PortfolioVersion // ascending by number

	locksMu sync.Mutex
	locks   map[uuid.UUID]chan struct{}
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		portfolios:   make(map[uuid.UUID]*models.Portfolio),
		constituents: make(map[uuid.UUID][]*models.Constituent),
		versions:     make(map[uuid.UUID][]*models.PortfolioVersion),
		locks:        make(map[uuid.UUID]chan struct{}),
	}
}

// Ping always succeeds
func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close is a no-op
func (s *MemoryStore) Close() {}

// GetPortfolio returns a copy of a committed portfolio
func (s *MemoryStore) GetPortfolio(ctx context.Context, id uuid.UUID) (*models.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.portfolios[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("portfolio", id.String())
	}
	return p.Clone(), nil
}

// ListPortfolios returns committed portfolios ordered by symbol
func (s *MemoryStore) ListPortfolios(ctx context.Context, limit, offset int) ([]*models.Portfolio, error) {
	s.mu.RLock()
	out := make([]*models.Portfolio, 0, len(s.portfolios))
	for _, p := range s.portfolios {
		out = append(out, p.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return paginate(out, limit, offset), nil
}

// ListConstituents returns copies of the committed constituents of a portfolio
func (s *MemoryStore) ListConstituents(ctx context.Context, portfolioID uuid.UUID) ([]*models.Constituent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.portfolios[portfolioID]; !ok {
		return nil, apperrors.NewNotFoundError("portfolio", portfolioID.String())
	}
	return sortedConstituents(s.constituents[portfolioID]), nil
}

// GetVersion returns one committed version
func (s *MemoryStore) GetVersion(ctx context.Context, portfolioID uuid.UUID, versionNumber int) (*models.PortfolioVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findVersion(s.versions[portfolioID], portfolioID, versionNumber)
}

// LatestVersion returns the committed version with the highest number
func (s *MemoryStore) LatestVersion(ctx context.Context, portfolioID uuid.UUID) (*models.PortfolioVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lastVersion(s.versions[portfolioID], portfolioID)
}

// ListVersions returns committed versions newest first
func (s *MemoryStore) ListVersions(ctx context.Context, portfolioID uuid.UUID) ([]*models.PortfolioVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return descending(s.versions[portfolioID]), nil
}

// RunInTx runs fn against a staged view of the store
func (s *MemoryStore) RunInTx(ctx context.Context, fn TxFunc) error {
	tx := &memoryTx{
		store: s,
		views: make(map[uuid.UUID]*portfolioView),
		held:  make(map[uuid.UUID]chan struct{}),
	}
	defer tx.release()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.commit(tx)
}

// commit validates the staged views against committed state and applies them
func (s *MemoryStore) commit(tx *memoryTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, view := range tx.views {
		if view.deleted || !view.dirty {
			continue
		}
		if view.created {
			if _, exists := s.portfolios[id]; exists {
				return apperrors.NewAlreadyExistsError("portfolio", id.String())
			}
		} else if _, exists := s.portfolios[id]; !exists {
			return apperrors.NewNotFoundError("portfolio", id.String())
		}
		for otherID, other := range s.portfolios {
			if otherID != id && strings.EqualFold(other.Symbol, view.portfolio.Symbol) {
				if _, replaced := tx.views[otherID]; !replaced {
					return apperrors.NewAlreadyExistsError("portfolio symbol", view.portfolio.Symbol)
				}
			}
		}
		committed := s.versions[id]
		for _, v := range view.newVersions {
			if _, err := findVersion(committed, id, v.VersionNumber); err == nil {
				return apperrors.NewIntegrityError("uq_portfolio_versions_number", nil)
			}
		}
	}

	for id, view := range tx.views {
		if !view.dirty {
			continue
		}
		if view.deleted {
			delete(s.portfolios, id)
			delete(s.constituents, id)
			delete(s.versions, id)
			continue
		}
		s.portfolios[id] = view.portfolio
		s.constituents[id] = view.constituents
		if len(view.newVersions) > 0 {
			merged := append(append([]*models.PortfolioVersion(nil), s.versions[id]...), view.newVersions...)
			sort.Slice(merged, func(i, j int) bool { return merged[i].VersionNumber < merged[j].VersionNumber })
			s.versions[id] = merged
		}
	}
	return nil
}

// lockFor returns the semaphore guarding one portfolio
func (s *MemoryStore) lockFor(id uuid.UUID) chan struct{} {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	l, ok := s.locks[id]
	if !ok {
		l = make(chan struct{}, 1)
		s.locks[id] = l
	}
	return l
}

// portfolioView is the staged state of one portfolio inside a transaction
type portfolioView struct {
	portfolio    *models.Portfolio
	constituents []*models.Constituent
	versions     []*models.PortfolioVersion // committed, ascending
	newVersions  []*models.PortfolioVersion
	created      bool
	deleted      bool
	dirty        bool
}

func (v *portfolioView) allVersions() []*models.PortfolioVersion {
	all := append(append([]*models.PortfolioVersion(nil), v.versions...), v.newVersions...)
	sort.Slice(all, func(i, j int) bool { return all[i].VersionNumber < all[j].VersionNumber })
	return all
}

type memoryTx struct {
	store *MemoryStore
	views map[uuid.UUID]*portfolioView
	held  map[uuid.UUID]chan struct{}
}

func (tx *memoryTx) release() {
	for id, l := range tx.held {
		<-l
		delete(tx.held, id)
	}
}

// LockPortfolio blocks until the portfolio is free or ctx ends
func (tx *memoryTx) LockPortfolio(ctx context.Context, id uuid.UUID) error {
	if _, ok := tx.held[id]; ok {
		return nil
	}
	if _, err := tx.view(id); err != nil {
		return err
	}

	l := tx.store.lockFor(id)
	select {
	case l <- struct{}{}:
		tx.held[id] = l
	case <-ctx.Done():
		return apperrors.NewConflictError("timed out waiting for portfolio lock: " + ctx.Err().Error())
	}

	// Another transaction may have committed while we waited.
	if view, ok := tx.views[id]; ok && !view.dirty {
		delete(tx.views, id)
	}
	_, err := tx.view(id)
	return err
}

// view returns the staged view of a portfolio, loading it from committed state on first use
func (tx *memoryTx) view(id uuid.UUID) (*portfolioView, error) {
	if v, ok := tx.views[id]; ok {
		if v.deleted {
			return nil, apperrors.NewNotFoundError("portfolio", id.String())
		}
		return v, nil
	}

	s := tx.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.portfolios[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("portfolio", id.String())
	}
	v := &portfolioView{
		portfolio:    p.Clone(),
		constituents: models.CloneConstituents(s.constituents[id]),
		versions:     append([]*models.PortfolioVersion(nil), s.versions[id]...),
	}
	tx.views[id] = v
	return v, nil
}

// mutable returns the staged view of a portfolio and marks it for commit
func (tx *memoryTx) mutable(id uuid.UUID) (*portfolioView, error) {
	v, err := tx.view(id)
	if err != nil {
		return nil, err
	}
	v.dirty = true
	return v, nil
}

func (tx *memoryTx) GetPortfolio(ctx context.Context, id uuid.UUID) (*models.Portfolio, error) {
	v, err := tx.view(id)
	if err != nil {
		return nil, err
	}
	return v.portfolio.Clone(), nil
}

func (tx *memoryTx) ListPortfolios(ctx context.Context, limit, offset int) ([]*models.Portfolio, error) {
	committed, err := tx.store.ListPortfolios(ctx, 0, 0)
	if err != nil {
		return nil, err
	}
	seen := make(map[uuid.UUID]bool)
	out := make([]*models.Portfolio, 0, len(committed))
	for _, p := range committed {
		seen[p.ID] = true
		if v, ok := tx.views[p.ID]; ok {
			if v.deleted {
				continue
			}
			p = v.portfolio.Clone()
		}
		out = append(out, p)
	}
	for id, v := range tx.views {
		if !seen[id] && !v.deleted {
			out = append(out, v.portfolio.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return paginate(out, limit, offset), nil
}

func (tx *memoryTx) ListConstituents(ctx context.Context, portfolioID uuid.UUID) ([]*models.Constituent, error) {
	v, err := tx.view(portfolioID)
	if err != nil {
		return nil, err
	}
	return sortedConstituents(v.constituents), nil
}

func (tx *memoryTx) GetVersion(ctx context.Context, portfolioID uuid.UUID, versionNumber int) (*models.PortfolioVersion, error) {
	v, err := tx.view(portfolioID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.NewVersionNotFoundError(portfolioID.String(), versionNumber)
		}
		return nil, err
	}
	return findVersion(v.allVersions(), portfolioID, versionNumber)
}

func (tx *memoryTx) LatestVersion(ctx context.Context, portfolioID uuid.UUID) (*models.PortfolioVersion, error) {
	v, err := tx.view(portfolioID)
	if err != nil {
		return nil, err
	}
	return lastVersion(v.allVersions(), portfolioID)
}

func (tx *memoryTx) ListVersions(ctx context.Context, portfolioID uuid.UUID) ([]*models.PortfolioVersion, error) {
	v, err := tx.view(portfolioID)
	if err != nil {
		return nil, err
	}
	return descending(v.allVersions()), nil
}

func (tx *memoryTx) InsertPortfolio(ctx context.Context, p *models.Portfolio) error {
	if existing, ok := tx.views[p.ID]; ok && !existing.deleted {
		return apperrors.NewAlreadyExistsError("portfolio", p.ID.String())
	}
	tx.views[p.ID] = &portfolioView{portfolio: p.Clone(), created: true, dirty: true}
	return nil
}

func (tx *memoryTx) UpdatePortfolio(ctx context.Context, p *models.Portfolio) error {
	v, err := tx.mutable(p.ID)
	if err != nil {
		return err
	}
	v.portfolio = p.Clone()
	return nil
}

func (tx *memoryTx) DeletePortfolio(ctx context.Context, id uuid.UUID) error {
	v, err := tx.mutable(id)
	if err != nil {
		return err
	}
	if v.created {
		delete(tx.views, id)
		return nil
	}
	v.deleted = true
	return nil
}

func (tx *memoryTx) InsertConstituent(ctx context.Context, c *models.Constituent) error {
	v, err := tx.mutable(c.PortfolioID)
	if err != nil {
		return err
	}
	for _, existing := range v.constituents {
		if existing.ID == c.ID {
			return apperrors.NewAlreadyExistsError("constituent", c.ID.String())
		}
		if existing.Key() == c.Key() {
			return apperrors.NewAlreadyExistsError("constituent", c.Key().String())
		}
	}
	v.constituents = append(v.constituents, c.Clone())
	return nil
}

func (tx *memoryTx) UpdateConstituent(ctx context.Context, c *models.Constituent) error {
	v, err := tx.mutable(c.PortfolioID)
	if err != nil {
		return err
	}
	for i, existing := range v.constituents {
		if existing.ID == c.ID {
			v.constituents[i] = c.Clone()
			return nil
		}
	}
	return apperrors.NewNotFoundError("constituent", c.ID.String())
}

func (tx *memoryTx) DeleteConstituent(ctx context.Context, portfolioID, constituentID uuid.UUID) error {
	v, err := tx.mutable(portfolioID)
	if err != nil {
		return err
	}
	for i, existing := range v.constituents {
		if existing.ID == constituentID {
			v.constituents = append(v.constituents[:i:i], v.constituents[i+1:]...)
			return nil
		}
	}
	return apperrors.NewNotFoundError("constituent", constituentID.String())
}

func (tx *memoryTx) DeleteConstituents(ctx context.Context, portfolioID uuid.UUID) error {
	v, err := tx.mutable(portfolioID)
	if err != nil {
		return err
	}
	v.constituents = nil
	return nil
}

func (tx *memoryTx) InsertVersion(ctx context.Context, ver *models.PortfolioVersion) error {
	v, err := tx.mutable(ver.PortfolioID)
	if err != nil {
		return err
	}
	if _, err := findVersion(v.allVersions(), ver.PortfolioID, ver.VersionNumber); err == nil {
		return apperrors.NewIntegrityError("uq_portfolio_versions_number", nil)
	}
	v.newVersions = append(v.newVersions, ver.Clone())
	return nil
}

// sortedConstituents copies constituents in asset key order
func sortedConstituents(in []*models.Constituent) []*models.Constituent {
	out := models.CloneConstituents(in)
	sort.Slice(out, func(i, j int) bool { return out[i].Key().Less(out[j].Key()) })
	return out
}

func findVersion(versions []*models.PortfolioVersion, portfolioID uuid.UUID, number int) (*models.PortfolioVersion, error) {
	i := sort.Search(len(versions), func(i int) bool { return versions[i].VersionNumber >= number })
	if i < len(versions) && versions[i].VersionNumber == number {
		return versions[i].Clone(), nil
	}
	return nil, apperrors.NewVersionNotFoundError(portfolioID.String(), number)
}

func lastVersion(versions []*models.PortfolioVersion, portfolioID uuid.UUID) (*models.PortfolioVersion, error) {
	if len(versions) == 0 {
		return nil, apperrors.NewNotFoundError("version", "latest for portfolio "+portfolioID.String())
	}
	return versions[len(versions)-1].Clone(), nil
}

func descending(versions []*models.PortfolioVersion) []*models.PortfolioVersion {
	out := make([]*models.PortfolioVersion, len(versions))
	for i, v := range versions {
		out[len(versions)-1-i] = v.Clone()
	}
	return out
}

func paginate(in []*models.Portfolio, limit, offset int) []*models.Portfolio {
	if offset > len(in) {
		return []*models.Portfolio{}
	}
	in = in[offset:]
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}
