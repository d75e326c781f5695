package sink

import (
	"context"

	"github.com/whalefollow/tradepipe/internal/tradepipe/model"
)

// Sink receives each newly inserted record for downstream consumers
// (copy-trade execution, analytics). Emission is best-effort: a sink
// failure never rolls back the store write.
type Sink interface {
	Emit(ctx context.Context, rec model.TransactionRecord) error
	Close() error
}

// Nop discards everything. Used when no brokers are configured.
type Nop struct{}

func (Nop) Emit(context.Context, model.TransactionRecord) error { return nil }
func (Nop) Close() error                                        { return nil }
