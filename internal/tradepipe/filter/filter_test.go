package filter

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/whalefollow/tradepipe/internal/tradepipe/model"
)

func wei(whole int64) *big.Int {
	one := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	return new(big.Int).Mul(big.NewInt(whole), one)
}

func TestShouldProcess(t *testing.T) {
	f := New(Config{Blocklist: []string{"0xBlockListed"}})

	tests := []struct {
		name string
		tx   model.RawTransaction
		want bool
	}{
		{
			name: "blocklist wins over calldata",
			tx:   model.RawTransaction{To: "0xblocklisted", Gas: 100_000, Data: "0xabc", Value: big.NewInt(0)},
			want: false,
		},
		{
			name: "blocklist is case-insensitive",
			tx:   model.RawTransaction{To: "0xBLOCKLISTED", Gas: 100_000, Data: "0xabc"},
			want: false,
		},
		{
			name: "gas just under the floor",
			tx:   model.RawTransaction{To: "0xaa", Gas: 49_999, Data: "0xabc"},
			want: false,
		},
		{
			name: "gas at the floor proceeds to calldata check",
			tx:   model.RawTransaction{To: "0xaa", Gas: 50_000, Data: "0xabc"},
			want: true,
		},
		{
			name: "empty payload marker is not calldata",
			tx:   model.RawTransaction{To: "0xaa", Gas: 60_000, Data: "0x", Value: big.NewInt(5)},
			want: false,
		},
		{
			name: "large bare value transfer",
			tx:   model.RawTransaction{To: "0xaa", Gas: 60_000, Data: "0x", Value: wei(2)},
			want: true,
		},
		{
			name: "exactly one token is not above the floor",
			tx:   model.RawTransaction{To: "0xaa", Gas: 60_000, Data: "0x", Value: wei(1)},
			want: false,
		},
		{
			name: "nil value with no payload",
			tx:   model.RawTransaction{To: "0xaa", Gas: 60_000, Data: "0x"},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.ShouldProcess(tt.tx))
		})
	}
}

func TestShouldProcessDeterministic(t *testing.T) {
	f := New(Config{})
	tx := model.RawTransaction{To: "0xaa", Gas: 80_000, Data: "0xdeadbeef"}
	first := f.ShouldProcess(tx)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, f.ShouldProcess(tx))
	}
}
