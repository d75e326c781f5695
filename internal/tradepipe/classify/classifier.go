package classify

import (
	"context"

	"github.com/whalefollow/tradepipe/internal/tradepipe/model"
)

// Classifier decodes a transaction hash into its semantic classification.
//
// Decode returns (nil, nil) when the provider has no classification for the
// hash (not indexed yet, or not decodable); callers treat that as
// "skip, do not retry within this poll". Errors are provider/network
// failures and are also skippable at the pipeline level.
type Classifier interface {
	Decode(ctx context.Context, hash string) (*model.Classification, error)
}
