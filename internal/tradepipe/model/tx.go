package model

import (
	"math/big"
	"time"
)

// RawTransaction is a transaction as surfaced by the chain source.
// It only lives long enough to pass the candidate filter; nothing raw is persisted.
type RawTransaction struct {
	Hash        string   `json:"hash"`
	From        string   `json:"from"`
	To          string   `json:"to"` // empty for contract creations
	Gas         uint64   `json:"gas"`
	Value       *big.Int `json:"value"` // native amount in wei
	Data        string   `json:"data"`  // hex payload; "0x" means none
	BlockNumber int64    `json:"blockNumber"`
}

// HasPayload reports whether the transaction carries calldata.
func (t RawTransaction) HasPayload() bool {
	return t.Data != "" && t.Data != "0x"
}

// TokenTransfer is one leg of a classified transaction's token flow.
type TokenTransfer struct {
	Symbol  string `json:"symbol"`
	Address string `json:"address"`
	Amount  string `json:"amount"` // decimal string as reported by the provider
}

// Classification is the decoded view of a transaction returned by the
// classifier provider. Transient: produced per request, never cached.
type Classification struct {
	Type        string          `json:"type"`
	Description string          `json:"description"`
	Sender      string          `json:"sender"`
	USDValue    float64         `json:"usdValue"`
	Protocol    string          `json:"protocol,omitempty"`
	Sent        []TokenTransfer `json:"sent"`
	Received    []TokenTransfer `json:"received"`
	GasUsed     string          `json:"gasUsed"`
	FeeAmount   string          `json:"feeAmount"`
	FeeSymbol   string          `json:"feeSymbol"`
	BlockNumber int64           `json:"blockNumber"`
}

// PositionType is the long/short tag derived for a detected swap.
type PositionType string

const (
	PositionLong  PositionType = "long"
	PositionShort PositionType = "short"
	PositionNone  PositionType = ""
)

// TokenRef is the first leg of a swap side, defaulted when the provider
// omits fields.
type TokenRef struct {
	Symbol string `json:"symbol"`
	Amount string `json:"amount"`
}

// TransactionRecord is the persisted, enriched entity. Unique by Hash;
// immutable once written.
type TransactionRecord struct {
	Hash        string          `json:"hash"`
	Type        string          `json:"type"`
	Description string          `json:"description"`
	Sender      string          `json:"sender"`
	USDValue    float64         `json:"usdValue"`
	Protocol    string          `json:"protocol,omitempty"`
	Sent        []TokenTransfer `json:"sent"`
	Received    []TokenTransfer `json:"received"`
	GasUsed     string          `json:"gasUsed"`
	FeeAmount   string          `json:"feeAmount"`
	FeeSymbol   string          `json:"feeSymbol"`
	BlockNumber int64           `json:"blockNumber"`

	// Derived fields. Swap is set when both sides of the flow are present;
	// SwapValue/TokenIn/TokenOut are only meaningful when Swap is true.
	Swap      bool     `json:"swap"`
	SwapValue float64  `json:"swapValue,omitempty"`
	TokenIn   TokenRef `json:"tokenIn,omitempty"`
	TokenOut  TokenRef `json:"tokenOut,omitempty"`

	// Position fields. At most one of Long/ShortPositionValue is non-zero,
	// and only when PositionType was assigned.
	PositionType       PositionType `json:"positionType,omitempty"`
	PositionSize       float64      `json:"positionSize,omitempty"`
	LongPositionValue  float64      `json:"longPositionValue,omitempty"`
	ShortPositionValue float64      `json:"shortPositionValue,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}
