package enrich

import (
	"strings"
	"time"

	"github.com/whalefollow/tradepipe/internal/tradepipe/model"
)

// interestingMarkers are matched (case-insensitively) against the
// classification type and description; anything else is dropped.
var interestingMarkers = []string{"swap", "composite"}

const unknownSymbol = "Unknown"

// Enricher turns a raw classification into a persistence-ready record.
// Pure given its inputs and the injected strategy/clock.
type Enricher struct {
	strategy PositionStrategy
	now      func() time.Time
}

type Option func(*Enricher)

// WithClock overrides the ingestion timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Enricher) { e.now = now }
}

func New(strategy PositionStrategy, opts ...Option) *Enricher {
	if strategy == nil {
		strategy = NewRandomStrategy(time.Now().UnixNano())
	}
	e := &Enricher{
		strategy: strategy,
		now:      time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Interesting reports whether a classification should be persisted at all.
func Interesting(c model.Classification) bool {
	typ := strings.ToLower(c.Type)
	desc := strings.ToLower(c.Description)
	for _, m := range interestingMarkers {
		if strings.Contains(typ, m) || strings.Contains(desc, m) {
			return true
		}
	}
	return false
}

// Enrich builds the record for hash. The second return is false when the
// classification is not interesting; such transactions are dropped silently.
func (e *Enricher) Enrich(hash string, c model.Classification) (model.TransactionRecord, bool) {
	if !Interesting(c) {
		return model.TransactionRecord{}, false
	}

	rec := model.TransactionRecord{
		Hash:        hash,
		Type:        c.Type,
		Description: c.Description,
		Sender:      c.Sender,
		USDValue:    c.USDValue,
		Protocol:    c.Protocol,
		Sent:        c.Sent,
		Received:    c.Received,
		GasUsed:     c.GasUsed,
		FeeAmount:   c.FeeAmount,
		FeeSymbol:   c.FeeSymbol,
		BlockNumber: c.BlockNumber,
		Timestamp:   e.now().UTC(),
	}

	if len(c.Sent) > 0 && len(c.Received) > 0 {
		rec.Swap = true
		rec.SwapValue = c.USDValue
		rec.TokenIn = tokenRef(c.Sent[0])
		rec.TokenOut = tokenRef(c.Received[0])

		rec.PositionType = e.strategy.Position(c)
		rec.PositionSize = c.USDValue
		switch rec.PositionType {
		case model.PositionLong:
			rec.LongPositionValue = c.USDValue
		case model.PositionShort:
			rec.ShortPositionValue = c.USDValue
		}
	}

	return rec, true
}

func tokenRef(t model.TokenTransfer) model.TokenRef {
	ref := model.TokenRef{Symbol: t.Symbol, Amount: t.Amount}
	if ref.Symbol == "" {
		ref.Symbol = unknownSymbol
	}
	if ref.Amount == "" {
		ref.Amount = "0"
	}
	return ref
}
