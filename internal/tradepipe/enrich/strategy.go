package enrich

import (
	"math/rand"

	"github.com/whalefollow/tradepipe/internal/tradepipe/model"
)

// PositionStrategy assigns a long/short tag to a detected swap.
//
// The default is RandomStrategy, which flips a coin. That is a placeholder
// policy carried over from the original listener, not a trading signal;
// anything consuming positionType downstream should treat it accordingly.
// Swap it out here if a real direction heuristic ever lands.
type PositionStrategy interface {
	Position(c model.Classification) model.PositionType
}

// RandomStrategy tags swaps long or short with equal probability.
type RandomStrategy struct {
	rng *rand.Rand
}

// NewRandomStrategy seeds from the provided source; pass 0 for a
// time-independent default stream.
func NewRandomStrategy(seed int64) *RandomStrategy {
	return &RandomStrategy{rng: rand.New(rand.NewSource(seed))}
}

func (s *RandomStrategy) Position(model.Classification) model.PositionType {
	if s.rng.Intn(2) == 0 {
		return model.PositionLong
	}
	return model.PositionShort
}

// FixedStrategy always returns the same tag. Used in tests and available
// as an escape hatch when randomness is unwanted.
type FixedStrategy struct {
	Tag model.PositionType
}

func (s FixedStrategy) Position(model.Classification) model.PositionType { return s.Tag }
