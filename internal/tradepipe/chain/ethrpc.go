package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/whalefollow/tradepipe/internal/tradepipe/model"
)

// EthSource reads head height and block transaction lists over standard
// Ethereum JSON-RPC (Alchemy, Infura, any archive-less node works).
type EthSource struct {
	c *rpc.Client
}

func DialEth(ctx context.Context, url string) (*EthSource, error) {
	if url == "" {
		return nil, fmt.Errorf("chain rpc url is empty")
	}
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &EthSource{c: c}, nil
}

func (s *EthSource) Close() { s.c.Close() }

type rpcTransaction struct {
	Hash  common.Hash     `json:"hash"`
	From  common.Address  `json:"from"`
	To    *common.Address `json:"to"`
	Gas   hexutil.Uint64  `json:"gas"`
	Value *hexutil.Big    `json:"value"`
	Input hexutil.Bytes   `json:"input"`
}

type rpcBlock struct {
	Number       hexutil.Uint64   `json:"number"`
	Transactions []rpcTransaction `json:"transactions"`
}

func (s *EthSource) HeadNumber(ctx context.Context) (int64, error) {
	var head hexutil.Uint64
	if err := s.c.CallContext(ctx, &head, "eth_blockNumber"); err != nil {
		return 0, fmt.Errorf("eth_blockNumber: %w", err)
	}
	return int64(head), nil
}

func (s *EthSource) BlockTransactions(ctx context.Context, height int64) ([]model.RawTransaction, error) {
	var blk *rpcBlock
	err := s.c.CallContext(ctx, &blk, "eth_getBlockByNumber", hexutil.EncodeUint64(uint64(height)), true)
	if err != nil {
		return nil, fmt.Errorf("eth_getBlockByNumber %d: %w", height, err)
	}
	if blk == nil {
		return nil, fmt.Errorf("block %d not found", height)
	}

	txs := make([]model.RawTransaction, 0, len(blk.Transactions))
	for _, t := range blk.Transactions {
		raw := model.RawTransaction{
			Hash:        t.Hash.Hex(),
			From:        t.From.Hex(),
			Gas:         uint64(t.Gas),
			Data:        hexutil.Encode(t.Input), // "0x" when empty
			BlockNumber: height,
		}
		if t.To != nil {
			raw.To = t.To.Hex()
		}
		if t.Value != nil {
			raw.Value = (*big.Int)(t.Value)
		} else {
			raw.Value = new(big.Int)
		}
		txs = append(txs, raw)
	}
	return txs, nil
}
