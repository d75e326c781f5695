package filter

import (
	"math/big"
	"strings"

	"github.com/whalefollow/tradepipe/internal/tradepipe/model"
)

// Defaults chosen to keep classifier spend down: simple transfers rarely
// need more than 50k gas, and bare value moves under one whole token are
// not worth decoding.
const DefaultMinGas = 50_000

var defaultMinValue = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil) // 1 token in wei

type Config struct {
	// Blocklist holds contract addresses whose transactions are always
	// skipped (known simple-transfer targets). Compared case-insensitively.
	Blocklist []string

	MinGas   uint64
	MinValue *big.Int // strict lower bound for bare value transfers
}

// Filter decides whether a raw transaction is worth a paid classification
// call. Pure, no I/O. False negatives are acceptable; this is cost control,
// not a correctness boundary.
type Filter struct {
	blocklist map[string]struct{}
	minGas    uint64
	minValue  *big.Int
}

func New(cfg Config) *Filter {
	if cfg.MinGas == 0 {
		cfg.MinGas = DefaultMinGas
	}
	if cfg.MinValue == nil {
		cfg.MinValue = defaultMinValue
	}
	bl := make(map[string]struct{}, len(cfg.Blocklist))
	for _, a := range cfg.Blocklist {
		a = strings.ToLower(strings.TrimSpace(a))
		if a != "" {
			bl[a] = struct{}{}
		}
	}
	return &Filter{
		blocklist: bl,
		minGas:    cfg.MinGas,
		minValue:  cfg.MinValue,
	}
}

// ShouldProcess applies the policy in order:
//  1. blocklisted recipient -> reject (short-circuits everything else)
//  2. gas below the floor -> reject
//  3. calldata present -> accept (contract interaction)
//  4. value strictly above the floor -> accept
//  5. otherwise reject
func (f *Filter) ShouldProcess(tx model.RawTransaction) bool {
	if _, blocked := f.blocklist[strings.ToLower(tx.To)]; blocked {
		return false
	}
	if tx.Gas < f.minGas {
		return false
	}
	if tx.HasPayload() {
		return true
	}
	if tx.Value != nil && tx.Value.Cmp(f.minValue) > 0 {
		return true
	}
	return false
}
