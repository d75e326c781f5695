package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/whalefollow/tradepipe/internal/tradepipe/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS transactions (
	hash                 TEXT PRIMARY KEY,
	tx_type              TEXT NOT NULL DEFAULT '',
	description          TEXT NOT NULL DEFAULT '',
	sender               TEXT NOT NULL DEFAULT '',
	usd_value            DOUBLE PRECISION NOT NULL DEFAULT 0,
	protocol             TEXT NOT NULL DEFAULT '',
	sent                 JSONB,
	received             JSONB,
	gas_used             TEXT NOT NULL DEFAULT '',
	fee_amount           TEXT NOT NULL DEFAULT '',
	fee_symbol           TEXT NOT NULL DEFAULT '',
	block_number         BIGINT NOT NULL DEFAULT 0,
	is_swap              BOOLEAN NOT NULL DEFAULT FALSE,
	swap_value           DOUBLE PRECISION NOT NULL DEFAULT 0,
	token_in_symbol      TEXT NOT NULL DEFAULT '',
	token_in_amount      TEXT NOT NULL DEFAULT '',
	token_out_symbol     TEXT NOT NULL DEFAULT '',
	token_out_amount     TEXT NOT NULL DEFAULT '',
	position_type        TEXT NOT NULL DEFAULT '',
	position_size        DOUBLE PRECISION NOT NULL DEFAULT 0,
	long_position_value  DOUBLE PRECISION NOT NULL DEFAULT 0,
	short_position_value DOUBLE PRECISION NOT NULL DEFAULT 0,
	ingested_at          TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transactions_sender ON transactions (sender);
CREATE INDEX IF NOT EXISTS idx_transactions_ingested_at ON transactions (ingested_at);
CREATE INDEX IF NOT EXISTS idx_transactions_usd_value ON transactions (usd_value);
`

const selectCols = `hash, tx_type, description, sender, usd_value, protocol,
	sent, received, gas_used, fee_amount, fee_symbol, block_number,
	is_swap, swap_value, token_in_symbol, token_in_amount,
	token_out_symbol, token_out_amount, position_type, position_size,
	long_position_value, short_position_value, ingested_at`

// Postgres stores records in a single transactions table. Hash uniqueness
// is enforced by the primary key; inserts use ON CONFLICT DO NOTHING so
// concurrent duplicate writes stay race-free.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Close() { p.pool.Close() }

func (p *Postgres) InsertIfAbsent(ctx context.Context, rec model.TransactionRecord) (bool, error) {
	sent, err := json.Marshal(rec.Sent)
	if err != nil {
		return false, err
	}
	received, err := json.Marshal(rec.Received)
	if err != nil {
		return false, err
	}

	tag, err := p.pool.Exec(ctx, `
		INSERT INTO transactions (
			hash, tx_type, description, sender, usd_value, protocol,
			sent, received, gas_used, fee_amount, fee_symbol, block_number,
			is_swap, swap_value, token_in_symbol, token_in_amount,
			token_out_symbol, token_out_amount, position_type, position_size,
			long_position_value, short_position_value, ingested_at
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,
			$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23
		) ON CONFLICT (hash) DO NOTHING`,
		rec.Hash, rec.Type, rec.Description, rec.Sender, rec.USDValue, rec.Protocol,
		sent, received, rec.GasUsed, rec.FeeAmount, rec.FeeSymbol, rec.BlockNumber,
		rec.Swap, rec.SwapValue, rec.TokenIn.Symbol, rec.TokenIn.Amount,
		rec.TokenOut.Symbol, rec.TokenOut.Amount, string(rec.PositionType), rec.PositionSize,
		rec.LongPositionValue, rec.ShortPositionValue, rec.Timestamp,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (p *Postgres) query(ctx context.Context, where string, limit int, args ...any) ([]model.TransactionRecord, error) {
	q := "SELECT " + selectCols + " FROM transactions"
	if where != "" {
		q += " WHERE " + where
	}
	q += fmt.Sprintf(" ORDER BY ingested_at DESC LIMIT %d", clampLimit(limit))

	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func scanRecords(rows pgx.Rows) ([]model.TransactionRecord, error) {
	var out []model.TransactionRecord
	for rows.Next() {
		var (
			rec            model.TransactionRecord
			sent, received []byte
			posType        string
		)
		if err := rows.Scan(
			&rec.Hash, &rec.Type, &rec.Description, &rec.Sender, &rec.USDValue, &rec.Protocol,
			&sent, &received, &rec.GasUsed, &rec.FeeAmount, &rec.FeeSymbol, &rec.BlockNumber,
			&rec.Swap, &rec.SwapValue, &rec.TokenIn.Symbol, &rec.TokenIn.Amount,
			&rec.TokenOut.Symbol, &rec.TokenOut.Amount, &posType, &rec.PositionSize,
			&rec.LongPositionValue, &rec.ShortPositionValue, &rec.Timestamp,
		); err != nil {
			return nil, err
		}
		rec.PositionType = model.PositionType(posType)
		if len(sent) > 0 {
			_ = json.Unmarshal(sent, &rec.Sent)
		}
		if len(received) > 0 {
			_ = json.Unmarshal(received, &rec.Received)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (p *Postgres) List(ctx context.Context, limit, offset int) ([]model.TransactionRecord, error) {
	if offset < 0 {
		offset = 0
	}
	q := "SELECT " + selectCols + fmt.Sprintf(
		" FROM transactions ORDER BY ingested_at DESC LIMIT %d OFFSET %d", clampLimit(limit), offset)
	rows, err := p.pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (p *Postgres) Swaps(ctx context.Context, limit int) ([]model.TransactionRecord, error) {
	return p.query(ctx, "is_swap", limit)
}

func (p *Postgres) ByPosition(ctx context.Context, pos model.PositionType, limit int) ([]model.TransactionRecord, error) {
	return p.query(ctx, "position_type = $1", limit, string(pos))
}

func (p *Postgres) BySender(ctx context.Context, sender string, limit int) ([]model.TransactionRecord, error) {
	return p.query(ctx, "LOWER(sender) = LOWER($1)", limit, sender)
}

func (p *Postgres) HighValue(ctx context.Context, minUSD float64, limit int) ([]model.TransactionRecord, error) {
	return p.query(ctx, "usd_value >= $1", limit, minUSD)
}

func (p *Postgres) ByDateRange(ctx context.Context, from, to time.Time, limit int) ([]model.TransactionRecord, error) {
	return p.query(ctx, "ingested_at >= $1 AND ingested_at <= $2", limit, from, to)
}

func (p *Postgres) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := p.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE is_swap),
		       COUNT(*) FILTER (WHERE position_type = 'long'),
		       COUNT(*) FILTER (WHERE position_type = 'short'),
		       COALESCE(SUM(usd_value), 0),
		       COALESCE(SUM(swap_value), 0)
		FROM transactions`,
	).Scan(&s.Total, &s.Swaps, &s.LongPositions, &s.ShortPositions, &s.TotalUSDValue, &s.TotalSwapValue)
	return s, err
}
