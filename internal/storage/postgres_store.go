package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	apperrors "github.com/portfolio-versioning/internal/errors"
	"github.com/portfolio-versioning/internal/models"
)

const versionNumberConstraint = "uq_portfolio_versions_number"

var portfolioColumnList = []string{
	"id", "symbol", "name", "description",
	"portfolio_type", "base_currency", "asset_class", "weighting_methodology",
	"rebalance_frequency", "benchmark_symbol", "strategy_description",
	"inception_date", "termination_date", "status",
	"total_market_value", "nav_per_share", "total_shares_outstanding", "minimum_investment",
	"risk_level", "max_individual_weight", "min_individual_weight", "cash_target_percentage",
	"calendar", "business_day_convention", "last_rebalance_date", "next_rebalance_date",
	"management_fee", "performance_fee", "expense_ratio",
	"is_active", "is_locked", "allow_fractional_shares", "auto_rebalance_enabled",
	"custom_fields", "compliance_rules", "tags",
	"portfolio_manager", "administrator", "custodian",
	"created_at", "updated_at", "version", "current_version_id", "version_hash",
}

var constituentColumnList = []string{
	"id", "portfolio_id", "asset_id", "asset_class", "currency",
	"weight", "target_weight", "units", "market_price",
	"is_active", "notes", "custom_fields", "added_at", "last_rebalanced_at",
}

var versionColumnList = []string{
	"id", "portfolio_id", "version_number", "portfolio_state", "constituents_state",
	"operation_type", "change_reason", "approved_by", "created_by", "created_at",
	"state_hash", "previous_version_id",
}

var (
	portfolioColumns   = strings.Join(portfolioColumnList, ", ")
	constituentColumns = strings.Join(constituentColumnList, ", ")
	versionColumns     = strings.Join(versionColumnList, ", ")

	insertPortfolioSQL = fmt.Sprintf("INSERT INTO portfolios (%s) VALUES (%s)",
		portfolioColumns, placeholders(len(portfolioColumnList)))
	updatePortfolioSQL = fmt.Sprintf("UPDATE portfolios SET %s WHERE id = $1",
		assignments(portfolioColumnList[1:], 2))

	insertConstituentSQL = fmt.Sprintf("INSERT INTO constituents (%s) VALUES (%s)",
		constituentColumns, placeholders(len(constituentColumnList)))
	updateConstituentSQL = fmt.Sprintf("UPDATE constituents SET %s WHERE id = $1 AND portfolio_id = $2",
		assignments(constituentColumnList[2:], 3))

	insertVersionSQL = fmt.Sprintf("INSERT INTO portfolio_versions (%s) VALUES (%s)",
		versionColumns, placeholders(len(versionColumnList)))
)

func placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", i+1)
	}
	return strings.Join(parts, ", ")
}

func assignments(columns []string, first int) string {
	parts := make([]string, len(columns))
	for i, col := range columns {
		parts[i] = fmt.Sprintf("%s = $%d", col, first+i)
	}
	return strings.Join(parts, ", ")
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// PostgresStore is the Postgres implementation of Store
type PostgresStore struct {
	pgReader
	db *PostgresDB
}

// NewPostgresStore creates a store backed by the given connection pool
func NewPostgresStore(db *PostgresDB) *PostgresStore {
	return &PostgresStore{pgReader: pgReader{q: db.Pool()}, db: db}
}

// RunInTx runs fn inside a READ COMMITTED transaction. Writers serialize on
// a portfolio through LockPortfolio, so stronger isolation is not needed.
func (s *PostgresStore) RunInTx(ctx context.Context, fn TxFunc) error {
	err := pgx.BeginTxFunc(ctx, s.db.Pool(), pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, &postgresTx{pgReader: pgReader{q: tx}})
	})
	if err != nil {
		return mapPgError("transaction", err)
	}
	return nil
}

// Ping checks if the database is reachable
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the underlying pool
func (s *PostgresStore) Close() {
	s.db.Close()
}

type pgReader struct {
	q querier
}

func (r pgReader) GetPortfolio(ctx context.Context, id uuid.UUID) (*models.Portfolio, error) {
	query := fmt.Sprintf("SELECT %s FROM portfolios WHERE id = $1", portfolioColumns)

	p, err := scanPortfolio(r.q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("portfolio", id.String())
		}
		return nil, mapPgError("get portfolio", err)
	}
	return p, nil
}

func (r pgReader) ListPortfolios(ctx context.Context, limit, offset int) ([]*models.Portfolio, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM portfolios
		ORDER BY symbol
		LIMIT $1 OFFSET $2
	`, portfolioColumns)

	// LIMIT NULL returns every row
	var lim interface{}
	if limit > 0 {
		lim = limit
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.q.Query(ctx, query, lim, offset)
	if err != nil {
		return nil, mapPgError("list portfolios", err)
	}
	defer rows.Close()

	var portfolios []*models.Portfolio
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			return nil, mapPgError("scan portfolio", err)
		}
		portfolios = append(portfolios, p)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError("list portfolios", err)
	}
	return portfolios, nil
}

func (r pgReader) ListConstituents(ctx context.Context, portfolioID uuid.UUID) ([]*models.Constituent, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM constituents
		WHERE portfolio_id = $1
		ORDER BY asset_class, asset_id
	`, constituentColumns)

	rows, err := r.q.Query(ctx, query, portfolioID)
	if err != nil {
		return nil, mapPgError("list constituents", err)
	}
	defer rows.Close()

	var constituents []*models.Constituent
	for rows.Next() {
		c, err := scanConstituent(rows)
		if err != nil {
			return nil, mapPgError("scan constituent", err)
		}
		constituents = append(constituents, c)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError("list constituents", err)
	}
	return constituents, nil
}

func (r pgReader) GetVersion(ctx context.Context, portfolioID uuid.UUID, versionNumber int) (*models.PortfolioVersion, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM portfolio_versions
		WHERE portfolio_id = $1 AND version_number = $2
	`, versionColumns)

	v, err := scanVersion(r.q.QueryRow(ctx, query, portfolioID, versionNumber))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewVersionNotFoundError(portfolioID.String(), versionNumber)
		}
		return nil, mapPgError("get version", err)
	}
	return v, nil
}

func (r pgReader) LatestVersion(ctx context.Context, portfolioID uuid.UUID) (*models.PortfolioVersion, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM portfolio_versions
		WHERE portfolio_id = $1
		ORDER BY version_number DESC
		LIMIT 1
	`, versionColumns)

	v, err := scanVersion(r.q.QueryRow(ctx, query, portfolioID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("portfolio version", portfolioID.String())
		}
		return nil, mapPgError("latest version", err)
	}
	return v, nil
}

func (r pgReader) ListVersions(ctx context.Context, portfolioID uuid.UUID) ([]*models.PortfolioVersion, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM portfolio_versions
		WHERE portfolio_id = $1
		ORDER BY version_number DESC
	`, versionColumns)

	rows, err := r.q.Query(ctx, query, portfolioID)
	if err != nil {
		return nil, mapPgError("list versions", err)
	}
	defer rows.Close()

	var versions []*models.PortfolioVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, mapPgError("scan version", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPgError("list versions", err)
	}
	return versions, nil
}

type postgresTx struct {
	pgReader
}

func (t *postgresTx) LockPortfolio(ctx context.Context, id uuid.UUID) error {
	var locked uuid.UUID
	err := t.q.QueryRow(ctx, "SELECT id FROM portfolios WHERE id = $1 FOR UPDATE", id).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFoundError("portfolio", id.String())
		}
		return mapPgError("lock portfolio", err)
	}
	return nil
}

func (t *postgresTx) InsertPortfolio(ctx context.Context, p *models.Portfolio) error {
	args, err := portfolioArgs(p)
	if err != nil {
		return err
	}
	if _, err := t.q.Exec(ctx, insertPortfolioSQL, args...); err != nil {
		return mapPgError("insert portfolio", err)
	}
	return nil
}

func (t *postgresTx) UpdatePortfolio(ctx context.Context, p *models.Portfolio) error {
	args, err := portfolioArgs(p)
	if err != nil {
		return err
	}
	tag, err := t.q.Exec(ctx, updatePortfolioSQL, args...)
	if err != nil {
		return mapPgError("update portfolio", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("portfolio", p.ID.String())
	}
	return nil
}

func (t *postgresTx) DeletePortfolio(ctx context.Context, id uuid.UUID) error {
	tag, err := t.q.Exec(ctx, "DELETE FROM portfolios WHERE id = $1", id)
	if err != nil {
		return mapPgError("delete portfolio", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("portfolio", id.String())
	}
	return nil
}

func (t *postgresTx) InsertConstituent(ctx context.Context, c *models.Constituent) error {
	args, err := constituentArgs(c)
	if err != nil {
		return err
	}
	if _, err := t.q.Exec(ctx, insertConstituentSQL, args...); err != nil {
		return mapPgError("insert constituent", err)
	}
	return nil
}

func (t *postgresTx) UpdateConstituent(ctx context.Context, c *models.Constituent) error {
	args, err := constituentArgs(c)
	if err != nil {
		return err
	}
	tag, err := t.q.Exec(ctx, updateConstituentSQL, args...)
	if err != nil {
		return mapPgError("update constituent", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("constituent", c.ID.String())
	}
	return nil
}

func (t *postgresTx) DeleteConstituent(ctx context.Context, portfolioID, constituentID uuid.UUID) error {
	tag, err := t.q.Exec(ctx,
		"DELETE FROM constituents WHERE id = $1 AND portfolio_id = $2",
		constituentID, portfolioID,
	)
	if err != nil {
		return mapPgError("delete constituent", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("constituent", constituentID.String())
	}
	return nil
}

func (t *postgresTx) DeleteConstituents(ctx context.Context, portfolioID uuid.UUID) error {
	if _, err := t.q.Exec(ctx, "DELETE FROM constituents WHERE portfolio_id = $1", portfolioID); err != nil {
		return mapPgError("delete constituents", err)
	}
	return nil
}

func (t *postgresTx) InsertVersion(ctx context.Context, v *models.PortfolioVersion) error {
	portfolioState := v.PortfolioState
	if portfolioState == nil {
		portfolioState = map[string]interface{}{}
	}
	constituentsState := v.ConstituentsState
	if constituentsState == nil {
		constituentsState = []map[string]interface{}{}
	}

	portfolioJSON, err := json.Marshal(portfolioState)
	if err != nil {
		return apperrors.NewSerializationError("portfolio_state", err.Error())
	}
	constituentsJSON, err := json.Marshal(constituentsState)
	if err != nil {
		return apperrors.NewSerializationError("constituents_state", err.Error())
	}

	_, err = t.q.Exec(ctx, insertVersionSQL,
		v.ID,
		v.PortfolioID,
		v.VersionNumber,
		portfolioJSON,
		constituentsJSON,
		v.OperationType,
		v.ChangeReason,
		v.ApprovedBy,
		v.CreatedBy,
		v.CreatedAt,
		v.StateHash,
		v.PreviousVersionID,
	)
	if err != nil {
		return mapPgError("insert version", err)
	}
	return nil
}

func portfolioArgs(p *models.Portfolio) ([]interface{}, error) {
	customFields, err := marshalJSONB("custom_fields", p.CustomFields, p.CustomFields == nil)
	if err != nil {
		return nil, err
	}
	complianceRules, err := marshalJSONB("compliance_rules", p.ComplianceRules, p.ComplianceRules == nil)
	if err != nil {
		return nil, err
	}
	tags, err := marshalJSONB("tags", p.Tags, p.Tags == nil)
	if err != nil {
		return nil, err
	}

	return []interface{}{
		p.ID, p.Symbol, p.Name, p.Description,
		p.PortfolioType, p.BaseCurrency, p.AssetClass, p.WeightingMethodology,
		p.RebalanceFrequency, p.BenchmarkSymbol, p.StrategyDescription,
		p.InceptionDate, p.TerminationDate, p.Status,
		p.TotalMarketValue, p.NavPerShare, p.TotalSharesOutstanding, p.MinimumInvestment,
		p.RiskLevel, p.MaxIndividualWeight, p.MinIndividualWeight, p.CashTargetPercentage,
		p.Calendar, p.BusinessDayConvention, p.LastRebalanceDate, p.NextRebalanceDate,
		p.ManagementFee, p.PerformanceFee, p.ExpenseRatio,
		p.IsActive, p.IsLocked, p.AllowFractionalShares, p.AutoRebalanceEnabled,
		customFields, complianceRules, tags,
		p.PortfolioManager, p.Administrator, p.Custodian,
		p.CreatedAt, p.UpdatedAt, p.Version, p.CurrentVersionID, p.VersionHash,
	}, nil
}

func scanPortfolio(row rowScanner) (*models.Portfolio, error) {
	var p models.Portfolio
	var customFields, complianceRules, tags []byte

	err := row.Scan(
		&p.ID, &p.Symbol, &p.Name, &p.Description,
		&p.PortfolioType, &p.BaseCurrency, &p.AssetClass, &p.WeightingMethodology,
		&p.RebalanceFrequency, &p.BenchmarkSymbol, &p.StrategyDescription,
		&p.InceptionDate, &p.TerminationDate, &p.Status,
		&p.TotalMarketValue, &p.NavPerShare, &p.TotalSharesOutstanding, &p.MinimumInvestment,
		&p.RiskLevel, &p.MaxIndividualWeight, &p.MinIndividualWeight, &p.CashTargetPercentage,
		&p.Calendar, &p.BusinessDayConvention, &p.LastRebalanceDate, &p.NextRebalanceDate,
		&p.ManagementFee, &p.PerformanceFee, &p.ExpenseRatio,
		&p.IsActive, &p.IsLocked, &p.AllowFractionalShares, &p.AutoRebalanceEnabled,
		&customFields, &complianceRules, &tags,
		&p.PortfolioManager, &p.Administrator, &p.Custodian,
		&p.CreatedAt, &p.UpdatedAt, &p.Version, &p.CurrentVersionID, &p.VersionHash,
	)
	if err != nil {
		return nil, err
	}

	if err := decodeJSONB(customFields, &p.CustomFields); err != nil {
		return nil, fmt.Errorf("failed to decode custom_fields: %w", err)
	}
	if err := decodeJSONB(complianceRules, &p.ComplianceRules); err != nil {
		return nil, fmt.Errorf("failed to decode compliance_rules: %w", err)
	}
	if err := decodeJSONB(tags, &p.Tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags: %w", err)
	}
	return &p, nil
}

func constituentArgs(c *models.Constituent) ([]interface{}, error) {
	customFields, err := marshalJSONB("custom_fields", c.CustomFields, c.CustomFields == nil)
	if err != nil {
		return nil, err
	}
	return []interface{}{
		c.ID, c.PortfolioID, c.AssetID, c.AssetClass, c.Currency,
		c.Weight, c.TargetWeight, c.Units, c.MarketPrice,
		c.IsActive, c.Notes, customFields, c.AddedAt, c.LastRebalancedAt,
	}, nil
}

func scanConstituent(row rowScanner) (*models.Constituent, error) {
	var c models.Constituent
	var customFields []byte

	err := row.Scan(
		&c.ID, &c.PortfolioID, &c.AssetID, &c.AssetClass, &c.Currency,
		&c.Weight, &c.TargetWeight, &c.Units, &c.MarketPrice,
		&c.IsActive, &c.Notes, &customFields, &c.AddedAt, &c.LastRebalancedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := decodeJSONB(customFields, &c.CustomFields); err != nil {
		return nil, fmt.Errorf("failed to decode custom_fields: %w", err)
	}
	return &c, nil
}

func scanVersion(row rowScanner) (*models.PortfolioVersion, error) {
	var v models.PortfolioVersion
	var portfolioState, constituentsState []byte

	err := row.Scan(
		&v.ID, &v.PortfolioID, &v.VersionNumber, &portfolioState, &constituentsState,
		&v.OperationType, &v.ChangeReason, &v.ApprovedBy, &v.CreatedBy, &v.CreatedAt,
		&v.StateHash, &v.PreviousVersionID,
	)
	if err != nil {
		return nil, err
	}
	if err := decodeJSONB(portfolioState, &v.PortfolioState); err != nil {
		return nil, fmt.Errorf("failed to decode portfolio_state: %w", err)
	}
	if err := decodeJSONB(constituentsState, &v.ConstituentsState); err != nil {
		return nil, fmt.Errorf("failed to decode constituents_state: %w", err)
	}
	if v.ConstituentsState == nil {
		v.ConstituentsState = []map[string]interface{}{}
	}
	return &v, nil
}

// marshalJSONB encodes a JSONB column value. A nil value is stored as SQL NULL.
func marshalJSONB(column string, value interface{}, isNil bool) ([]byte, error) {
	if isNil {
		return nil, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, apperrors.NewSerializationError(column, err.Error())
	}
	return data, nil
}

// decodeJSONB decodes a JSONB column, keeping numbers as json.Number so
// decimal values survive the round trip without float rounding.
func decodeJSONB(data []byte, dest interface{}) error {
	if len(data) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(dest)
}

// mapPgError translates driver errors into the application error taxonomy
func mapPgError(operation string, err error) error {
	if err == nil {
		return nil
	}

	var catErr *apperrors.CategorizedError
	if errors.As(err, &catErr) {
		return err
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return apperrors.NewDatabaseError(operation, err)
	}

	switch pgErr.Code {
	case "23505": // unique_violation
		switch pgErr.ConstraintName {
		case versionNumberConstraint:
			// Another writer took the version number; the transaction can be retried
			return apperrors.NewIntegrityError(pgErr.ConstraintName, err)
		case "uq_portfolios_symbol":
			return apperrors.NewAlreadyExistsError("portfolio", pgErr.ConstraintName)
		case "uq_constituents_asset":
			return apperrors.NewAlreadyExistsError("constituent", pgErr.ConstraintName)
		default:
			return constraintViolation(pgErr, err)
		}
	case "23503", "23000": // foreign_key_violation, integrity_constraint_violation
		return constraintViolation(pgErr, err)
	case "23514", "23502": // check_violation, not_null_violation
		return apperrors.NewValidationError(pgErr.Message)
	case "40001", "40P01", "55P03": // serialization_failure, deadlock_detected, lock_not_available
		return apperrors.NewConflictError(fmt.Sprintf("%s: %s", operation, pgErr.Message))
	default:
		return apperrors.NewDatabaseError(operation, err)
	}
}

// constraintViolation reports a violation that retrying cannot resolve
func constraintViolation(pgErr *pgconn.PgError, cause error) error {
	e := apperrors.NewValidationError(fmt.Sprintf("constraint violated: %s", pgErr.ConstraintName))
	e.Details = map[string]interface{}{"constraint": pgErr.ConstraintName}
	e.Cause = cause
	return e
}
