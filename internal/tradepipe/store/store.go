package store

import (
	"context"
	"time"

	"github.com/whalefollow/tradepipe/internal/tradepipe/model"
)

// Stats is the aggregate view served by /transactions/stats.
type Stats struct {
	Total          int64   `json:"total"`
	Swaps          int64   `json:"swaps"`
	LongPositions  int64   `json:"longPositions"`
	ShortPositions int64   `json:"shortPositions"`
	TotalUSDValue  float64 `json:"totalUsdValue"`
	TotalSwapValue float64 `json:"totalSwapValue"`
}

// Store is the persistent, hash-keyed record set. InsertIfAbsent must be
// atomic per hash; a duplicate insert is a normal outcome, not an error.
// Records are never updated or deleted by the pipeline.
type Store interface {
	InsertIfAbsent(ctx context.Context, rec model.TransactionRecord) (inserted bool, err error)

	List(ctx context.Context, limit, offset int) ([]model.TransactionRecord, error)
	Swaps(ctx context.Context, limit int) ([]model.TransactionRecord, error)
	ByPosition(ctx context.Context, pos model.PositionType, limit int) ([]model.TransactionRecord, error)
	BySender(ctx context.Context, sender string, limit int) ([]model.TransactionRecord, error)
	HighValue(ctx context.Context, minUSD float64, limit int) ([]model.TransactionRecord, error)
	ByDateRange(ctx context.Context, from, to time.Time, limit int) ([]model.TransactionRecord, error)
	Stats(ctx context.Context) (Stats, error)

	Close()
}

const DefaultQueryLimit = 100

func clampLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return DefaultQueryLimit
	}
	return limit
}
