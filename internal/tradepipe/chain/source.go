package chain

import (
	"context"

	"github.com/whalefollow/tradepipe/internal/tradepipe/model"
)

// Source is the minimal chain surface the pipeline needs: the current head
// height and the transactions of a block at a given height.
type Source interface {
	HeadNumber(ctx context.Context) (int64, error)
	BlockTransactions(ctx context.Context, height int64) ([]model.RawTransaction, error)
}
