// Package chain is the adapter between the orchestrators and an
// Ethereum-compatible JSON-RPC node: typed reads against the auction,
// factory and ERC20 contracts, and signed transactions awaited to inclusion.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/alanyoungcy/fheauction/internal/domain"
)

// Backend is the subset of *ethclient.Client the adapter uses.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// TxSigner signs transactions on behalf of the wallet.
type TxSigner interface {
	Address() common.Address
	ChainID() *big.Int
	SignTx(tx *types.Transaction) (*types.Transaction, error)
}

// Config bounds every call the adapter makes. A zero timeout disables that
// bound.
type Config struct {
	FactoryAddress      common.Address
	CallTimeout         time.Duration
	TxTimeout           time.Duration
	ReceiptPollInterval time.Duration
	GasLimitMultiplier  float64
}

// Client issues reads and transactions against the contracts.
type Client struct {
	backend Backend
	signer  TxSigner
	cfg     Config
	logger  *slog.Logger

	// sendMu serializes nonce selection and submission for the wallet.
	sendMu sync.Mutex
}

// Dial connects to a JSON-RPC endpoint.
func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	ec, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", rpcURL, err)
	}
	return ec, nil
}

// New creates a Client. signer may be nil, in which case every transaction
// fails and only reads are available.
func New(backend Backend, signer TxSigner, cfg Config, logger *slog.Logger) *Client {
	if cfg.ReceiptPollInterval <= 0 {
		cfg.ReceiptPollInterval = time.Second
	}
	if cfg.GasLimitMultiplier < 1 {
		cfg.GasLimitMultiplier = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		backend: backend,
		signer:  signer,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "chain")),
	}
}

// Wallet returns the signing address, or the zero address when read-only.
func (c *Client) Wallet() common.Address {
	if c.signer == nil {
		return common.Address{}
	}
	return c.signer.Address()
}

// Factory returns the configured factory address.
func (c *Client) Factory() common.Address {
	return c.cfg.FactoryAddress
}

// call executes a read and unpacks its single output into out. Any failure,
// including an empty result from a non-contract address, is ErrChainRead.
func (c *Client) call(ctx context.Context, contract common.Address, parsed abi.ABI, method string, out any, args ...any) error {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("%w: %s: pack: %w", domain.ErrChainRead, method, err)
	}

	ctx, cancel := withTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	raw, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return fmt.Errorf("%w: %s on %s: %w", domain.ErrChainRead, method, domain.AddressString(contract), err)
	}
	if err := parsed.UnpackIntoInterface(out, method, raw); err != nil {
		return fmt.Errorf("%w: %s on %s: unpack: %w", domain.ErrChainRead, method, domain.AddressString(contract), err)
	}
	return nil
}

// transact signs and submits a call to contract, then waits until it is
// mined. Every failure along the way, and a mined receipt with status 0, is
// ErrTransactionReverted.
func (c *Client) transact(ctx context.Context, contract common.Address, parsed abi.ABI, value *big.Int, method string, args ...any) (domain.TxReceipt, error) {
	fail := func(stage string, err error) (domain.TxReceipt, error) {
		return domain.TxReceipt{}, fmt.Errorf("%w: %s on %s: %s: %w",
			domain.ErrTransactionReverted, method, domain.AddressString(contract), stage, err)
	}

	if c.signer == nil {
		return fail("sign", errors.New("no wallet configured"))
	}
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return fail("pack", err)
	}
	if value == nil {
		value = new(big.Int)
	}

	ctx, cancel := withTimeout(ctx, c.cfg.TxTimeout)
	defer cancel()

	signed, err := c.send(ctx, contract, value, data)
	if err != nil {
		return fail("send", err)
	}
	c.logger.Info("chain: transaction sent",
		slog.String("method", method),
		slog.String("contract", domain.AddressString(contract)),
		slog.String("hash", signed.Hash().Hex()),
	)

	receipt, err := c.waitMined(ctx, signed.Hash())
	if err != nil {
		return fail("wait", err)
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return fail("receipt", fmt.Errorf("status 0 in block %v", receipt.BlockNumber))
	}

	out := domain.TxReceipt{Hash: signed.Hash(), GasUsed: receipt.GasUsed}
	if receipt.BlockNumber != nil {
		out.BlockNumber = receipt.BlockNumber.Uint64()
	}
	c.logger.Info("chain: transaction mined",
		slog.String("method", method),
		slog.String("hash", out.Hash.Hex()),
		slog.Uint64("block", out.BlockNumber),
		slog.Uint64("gas_used", out.GasUsed),
	)
	return out, nil
}

func (c *Client) send(ctx context.Context, to common.Address, value *big.Int, data []byte) (*types.Transaction, error) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	from := c.signer.Address()
	nonce, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	gas, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Value: value, Data: data})
	if err != nil {
		return nil, fmt.Errorf("estimate gas: %w", err)
	}
	gas = uint64(float64(gas) * c.cfg.GasLimitMultiplier)

	head, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("latest header: %w", err)
	}

	var tx *types.Transaction
	if head.BaseFee != nil {
		tip, err := c.backend.SuggestGasTipCap(ctx)
		if err != nil {
			return nil, fmt.Errorf("gas tip: %w", err)
		}
		feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
		tx = types.NewTx(&types.DynamicFeeTx{
			ChainID:   c.signer.ChainID(),
			Nonce:     nonce,
			GasTipCap: tip,
			GasFeeCap: feeCap,
			Gas:       gas,
			To:        &to,
			Value:     value,
			Data:      data,
		})
	} else {
		price, err := c.backend.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("gas price: %w", err)
		}
		tx = types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: price,
			Gas:      gas,
			To:       &to,
			Value:    value,
			Data:     data,
		})
	}

	signed, err := c.signer.SignTx(tx)
	if err != nil {
		return nil, err
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return nil, err
	}
	return signed, nil
}

// waitMined polls for the receipt of hash until it appears or ctx ends.
func (c *Client) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(c.cfg.ReceiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			c.logger.Debug("chain: receipt lookup failed",
				slog.String("hash", hash.Hex()),
				slog.String("error", err.Error()),
			)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
