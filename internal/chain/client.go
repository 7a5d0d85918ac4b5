// Package chain reads TransferWithMemo logs from an EVM JSON-RPC endpoint.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"MemoLedger/internal/math"
	"MemoLedger/internal/reconcile"
)

// TransferWithMemoSignature is the canonical event signature. from, to and
// memo are indexed; value is the only data word.
const TransferWithMemoSignature = "TransferWithMemo(address,address,uint256,bytes32)"

// TransferWithMemoTopic is topic[0] of every TransferWithMemo log.
var TransferWithMemoTopic = crypto.Keccak256Hash([]byte(TransferWithMemoSignature))

// Default TIP-20 stablecoin and RPC endpoint.
const (
	DefaultToken  = "0x20c0000000000000000000000000000000000001"
	DefaultRPCURL = "https://rpc.moderato.tempo.xyz"
)

var ErrBadLog = errors.New("chain: not a TransferWithMemo log")

// LogReader is the subset of ethclient.Client the watcher needs.
type LogReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// Client implements watcher.LedgerClient.
type Client struct {
	reader LogReader
	token  math.TokenConfig
	closer func()
	logger zerolog.Logger
}

type Option func(*Client)

func WithTokenConfig(cfg math.TokenConfig) Option {
	return func(c *Client) { c.token = cfg }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// Dial connects to the JSON-RPC endpoint at url.
func Dial(ctx context.Context, url string, opts ...Option) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial rpc %s: %w", url, err)
	}
	c := NewClient(ec, opts...)
	c.closer = ec.Close
	return c, nil
}

// NewClient wraps an existing reader.
func NewClient(r LogReader, opts ...Option) *Client {
	c := &Client{
		reader: r,
		token:  math.StableConfig,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) CurrentHeight(ctx context.Context) (uint64, error) {
	n, err := c.reader.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("block number: %w", err)
	}
	return n, nil
}

// TransferEvents returns the TransferWithMemo logs emitted by token within
// [from, to]. Logs that do not decode are logged and dropped.
func (c *Client) TransferEvents(ctx context.Context, token string, from, to uint64) ([]reconcile.Transfer, error) {
	if !common.IsHexAddress(token) {
		return nil, fmt.Errorf("invalid token address %q", token)
	}

	logs, err := c.reader.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{common.HexToAddress(token)},
		Topics:    [][]common.Hash{{TransferWithMemoTopic}},
	})
	if err != nil {
		return nil, fmt.Errorf("filter logs [%d,%d]: %w", from, to, err)
	}

	transfers := make([]reconcile.Transfer, 0, len(logs))
	for _, l := range logs {
		if l.Removed {
			continue
		}
		tr, err := DecodeTransferLog(l, c.token)
		if err != nil {
			c.logger.Warn().Err(err).
				Str("tx_hash", l.TxHash.Hex()).
				Uint("log_index", l.Index).
				Msg("skipping log")
			continue
		}
		transfers = append(transfers, tr)
	}
	return transfers, nil
}

// DecodeTransferLog converts a raw log into a Transfer.
func DecodeTransferLog(l types.Log, cfg math.TokenConfig) (reconcile.Transfer, error) {
	if len(l.Topics) != 4 || l.Topics[0] != TransferWithMemoTopic {
		return reconcile.Transfer{}, ErrBadLog
	}
	if len(l.Data) != common.HashLength {
		return reconcile.Transfer{}, fmt.Errorf("%w: data is %d bytes", ErrBadLog, len(l.Data))
	}

	return reconcile.Transfer{
		TxHash:      strings.ToLower(l.TxHash.Hex()),
		LogIndex:    l.Index,
		BlockNumber: l.BlockNumber,
		From:        strings.ToLower(common.BytesToAddress(l.Topics[1].Bytes()).Hex()),
		To:          strings.ToLower(common.BytesToAddress(l.Topics[2].Bytes()).Hex()),
		Amount:      cfg.FromBaseUnits(new(big.Int).SetBytes(l.Data)),
		Token:       strings.ToLower(l.Address.Hex()),
		Memo:        l.Topics[3],
	}, nil
}

// Close releases the RPC connection, if Dial opened one.
func (c *Client) Close() {
	if c.closer != nil {
		c.closer()
	}
}
