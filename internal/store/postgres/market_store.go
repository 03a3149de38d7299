package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL. Vote, stake,
// and dispute maps are stored as JSONB columns.
type MarketStore struct {
	pool *pgxpool.Pool
}

var _ domain.MarketStore = (*MarketStore)(nil)

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketColumns = `
	id, admin_id, question, outcomes, end_time,
	oracle_provider, oracle_feed_id, oracle_threshold, oracle_comparison,
	oracle_result, winning_outcome,
	votes, stakes, claimed, total_staked, dispute_stakes, dispute_log,
	fee_collected, extensions, extension_count,
	status, created_at, updated_at`

// Create inserts a new market row.
func (s *MarketStore) Create(ctx context.Context, m domain.Market) error {
	cols, err := encodeMarket(m)
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO markets (` + marketColumns + `)
		VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11,
			$12, $13, $14, $15, $16, $17,
			$18, $19, $20,
			$21, $22, $23
		)`

	_, err = s.pool.Exec(ctx, query,
		m.ID, m.Admin, m.Question, cols.outcomes, m.EndTime,
		string(m.Oracle.Provider), m.Oracle.FeedID, m.Oracle.Threshold, string(m.Oracle.Comparison),
		m.OracleResult, m.WinningOutcome,
		cols.votes, cols.stakes, cols.claimed, m.TotalStaked, cols.disputeStakes, cols.disputeLog,
		m.FeeCollected, cols.extensions, m.ExtensionCount,
		string(m.Status), m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create market %s: %w", m.ID, err)
	}
	return nil
}

// Get fetches a market by id.
func (s *MarketStore) Get(ctx context.Context, id string) (domain.Market, error) {
	const query = `SELECT ` + marketColumns + ` FROM markets WHERE id = $1`

	m, err := scanMarket(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, fmt.Errorf("%w: market %s", domain.ErrMarketNotFound, id)
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	return m, nil
}

// Update rewrites an existing market row.
func (s *MarketStore) Update(ctx context.Context, m domain.Market) error {
	cols, err := encodeMarket(m)
	if err != nil {
		return err
	}

	const query = `
		UPDATE markets SET
			question = $2, outcomes = $3, end_time = $4,
			oracle_result = $5, winning_outcome = $6,
			votes = $7, stakes = $8, claimed = $9,
			total_staked = $10, dispute_stakes = $11, dispute_log = $12,
			fee_collected = $13, extensions = $14, extension_count = $15,
			status = $16, updated_at = $17
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		m.ID, m.Question, cols.outcomes, m.EndTime,
		m.OracleResult, m.WinningOutcome,
		cols.votes, cols.stakes, cols.claimed,
		m.TotalStaked, cols.disputeStakes, cols.disputeLog,
		m.FeeCollected, cols.extensions, m.ExtensionCount,
		string(m.Status), m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update market %s: %w", m.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: market %s", domain.ErrMarketNotFound, m.ID)
	}
	return nil
}

// Delete removes a market row. Used only by the explicit admin archive path.
func (s *MarketStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM markets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete market %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: market %s", domain.ErrMarketNotFound, id)
	}
	return nil
}

// List returns markets filtered by status ("" matches all), newest first.
func (s *MarketStore) List(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketColumns + ` FROM markets`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC`
	if opts.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, opts.Limit)
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(` OFFSET %d`, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var out []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	return out, nil
}

// Count returns the total number of market rows.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM markets`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return n, nil
}

// jsonCols holds the JSONB-encoded portions of a market row.
type jsonCols struct {
	outcomes      []byte
	votes         []byte
	stakes        []byte
	claimed       []byte
	disputeStakes []byte
	disputeLog    []byte
	extensions    []byte
}

func encodeMarket(m domain.Market) (jsonCols, error) {
	var c jsonCols
	var err error
	if c.outcomes, err = json.Marshal(m.Outcomes); err != nil {
		return c, fmt.Errorf("postgres: encode outcomes: %w", err)
	}
	if c.votes, err = json.Marshal(m.Votes); err != nil {
		return c, fmt.Errorf("postgres: encode votes: %w", err)
	}
	if c.stakes, err = json.Marshal(m.Stakes); err != nil {
		return c, fmt.Errorf("postgres: encode stakes: %w", err)
	}
	if c.claimed, err = json.Marshal(m.Claimed); err != nil {
		return c, fmt.Errorf("postgres: encode claimed: %w", err)
	}
	if c.disputeStakes, err = json.Marshal(m.DisputeStakes); err != nil {
		return c, fmt.Errorf("postgres: encode dispute stakes: %w", err)
	}
	if c.disputeLog, err = json.Marshal(m.DisputeLog); err != nil {
		return c, fmt.Errorf("postgres: encode dispute log: %w", err)
	}
	if c.extensions, err = json.Marshal(m.Extensions); err != nil {
		return c, fmt.Errorf("postgres: encode extensions: %w", err)
	}
	return c, nil
}

func scanMarket(row pgx.Row) (domain.Market, error) {
	var (
		m          domain.Market
		provider   string
		comparison string
		status     string
		c          jsonCols
	)
	err := row.Scan(
		&m.ID, &m.Admin, &m.Question, &c.outcomes, &m.EndTime,
		&provider, &m.Oracle.FeedID, &m.Oracle.Threshold, &comparison,
		&m.OracleResult, &m.WinningOutcome,
		&c.votes, &c.stakes, &c.claimed, &m.TotalStaked, &c.disputeStakes, &c.disputeLog,
		&m.FeeCollected, &c.extensions, &m.ExtensionCount,
		&status, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}

	m.Oracle.Provider = domain.OracleProvider(provider)
	m.Oracle.Comparison = domain.ComparisonOp(comparison)
	m.Status = domain.MarketStatus(status)

	if err := json.Unmarshal(c.outcomes, &m.Outcomes); err != nil {
		return domain.Market{}, fmt.Errorf("decode outcomes: %w", err)
	}
	if err := json.Unmarshal(c.votes, &m.Votes); err != nil {
		return domain.Market{}, fmt.Errorf("decode votes: %w", err)
	}
	if err := json.Unmarshal(c.stakes, &m.Stakes); err != nil {
		return domain.Market{}, fmt.Errorf("decode stakes: %w", err)
	}
	if err := json.Unmarshal(c.claimed, &m.Claimed); err != nil {
		return domain.Market{}, fmt.Errorf("decode claimed: %w", err)
	}
	if err := json.Unmarshal(c.disputeStakes, &m.DisputeStakes); err != nil {
		return domain.Market{}, fmt.Errorf("decode dispute stakes: %w", err)
	}
	if err := json.Unmarshal(c.disputeLog, &m.DisputeLog); err != nil {
		return domain.Market{}, fmt.Errorf("decode dispute log: %w", err)
	}
	if err := json.Unmarshal(c.extensions, &m.Extensions); err != nil {
		return domain.Market{}, fmt.Errorf("decode extensions: %w", err)
	}
	return m, nil
}
