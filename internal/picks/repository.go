package picks

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/tailgame/internal/contracts"
)

//go:embed schema.sql
var schemaSQL string

// Schema returns the DDL applied by Migrate
func Schema() string {
	return schemaSQL
}

// Repository is the PostgreSQL Store
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new picks repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Migrate creates the tailgame schema if missing
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// SavePick upserts a pick on (trade_date, kind)
func (r *Repository) SavePick(ctx context.Context, p *contracts.Pick) error {
	query := `
		INSERT INTO tailgame.picks (
			trade_date, kind, code, name, price, change_pct, amount, turnover_rate,
			composite, risk_adjusted, sector, source, picked_at, auto
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (trade_date, kind) DO UPDATE SET
			code = EXCLUDED.code,
			name = EXCLUDED.name,
			price = EXCLUDED.price,
			change_pct = EXCLUDED.change_pct,
			amount = EXCLUDED.amount,
			turnover_rate = EXCLUDED.turnover_rate,
			composite = EXCLUDED.composite,
			risk_adjusted = EXCLUDED.risk_adjusted,
			sector = EXCLUDED.sector,
			source = EXCLUDED.source,
			picked_at = EXCLUDED.picked_at,
			auto = EXCLUDED.auto,
			updated_at = NOW()
	`

	_, err := r.pool.Exec(ctx, query,
		p.TradeDate, string(p.Kind), p.Code, p.Name, p.Price, p.ChangePct, p.Amount, p.TurnoverRate,
		p.Composite, p.RiskAdjusted, p.Sector, string(p.Source), p.Time, p.Auto,
	)
	if err != nil {
		return fmt.Errorf("failed to save pick: %w", err)
	}
	return nil
}

const pickColumns = `
	to_char(trade_date, 'YYYY-MM-DD'), kind, code, name, price, change_pct, amount, turnover_rate,
	composite, risk_adjusted, sector, source, picked_at, auto
`

func scanPick(row pgx.Row) (*contracts.Pick, error) {
	var (
		p      contracts.Pick
		kind   string
		source string
	)
	err := row.Scan(
		&p.TradeDate, &kind, &p.Code, &p.Name, &p.Price, &p.ChangePct, &p.Amount, &p.TurnoverRate,
		&p.Composite, &p.RiskAdjusted, &p.Sector, &source, &p.Time, &p.Auto,
	)
	if err != nil {
		return nil, err
	}
	p.Kind = contracts.PickKind(kind)
	p.Source = contracts.DataSource(source)
	return &p, nil
}

// GetPick retrieves the pick of one kind for a trade date
func (r *Repository) GetPick(ctx context.Context, tradeDate string, kind contracts.PickKind) (*contracts.Pick, error) {
	query := `SELECT ` + pickColumns + ` FROM tailgame.picks WHERE trade_date = $1 AND kind = $2`

	p, err := scanPick(r.pool.QueryRow(ctx, query, tradeDate, string(kind)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pick: %w", err)
	}
	return p, nil
}

// ListPicks retrieves picks in a trade date range, newest first
func (r *Repository) ListPicks(ctx context.Context, from, to string) ([]contracts.Pick, error) {
	query := `SELECT ` + pickColumns + `
		FROM tailgame.picks
		WHERE trade_date BETWEEN $1 AND $2
		ORDER BY trade_date DESC, kind DESC
	`

	rows, err := r.pool.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query picks: %w", err)
	}
	defer rows.Close()

	results := make([]contracts.Pick, 0)
	for rows.Next() {
		p, err := scanPick(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		results = append(results, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return results, nil
}

// DeletePicks removes every pick of a trade date
func (r *Repository) DeletePicks(ctx context.Context, tradeDate string) error {
	if _, err := r.pool.Exec(ctx, "DELETE FROM tailgame.picks WHERE trade_date = $1", tradeDate); err != nil {
		return fmt.Errorf("failed to delete picks: %w", err)
	}
	return nil
}

// SaveCycle appends a cycle summary
func (r *Repository) SaveCycle(ctx context.Context, c *contracts.CycleSummary) error {
	query := `
		INSERT INTO tailgame.cycles (
			trade_date, cycle_at, source, status, total, filtered, strongest_sector,
			candidate_code, candidate_name, score, duration_ms, error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.pool.Exec(ctx, query,
		c.TradeDate, c.At, string(c.Source), string(c.Status), c.Total, c.Filtered, c.Strongest,
		c.CandidateCode, c.CandidateName, c.Score, c.Duration.Milliseconds(), c.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to save cycle: %w", err)
	}
	return nil
}

// ListCycles retrieves the latest cycle summaries of a trade date
func (r *Repository) ListCycles(ctx context.Context, tradeDate string, limit int) ([]contracts.CycleSummary, error) {
	query := `
		SELECT
			to_char(trade_date, 'YYYY-MM-DD'), cycle_at, source, status, total, filtered,
			strongest_sector, candidate_code, candidate_name, score, duration_ms, error
		FROM tailgame.cycles
		WHERE trade_date = $1
		ORDER BY cycle_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, tradeDate, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query cycles: %w", err)
	}
	defer rows.Close()

	results := make([]contracts.CycleSummary, 0)
	for rows.Next() {
		var (
			c              contracts.CycleSummary
			source, status string
			durationMS     int64
		)
		err := rows.Scan(
			&c.TradeDate, &c.At, &source, &status, &c.Total, &c.Filtered,
			&c.Strongest, &c.CandidateCode, &c.CandidateName, &c.Score, &durationMS, &c.Error,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		c.Source = contracts.DataSource(source)
		c.Status = contracts.SourceStatus(status)
		c.Duration = msToDuration(durationMS)
		results = append(results, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return results, nil
}
