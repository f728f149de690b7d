package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/fheauction/internal/domain"
)

func (c *Client) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	var out *big.Int
	if err := c.call(ctx, token, erc20ABI, "allowance", &out, owner, spender); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (domain.TxReceipt, error) {
	return c.transact(ctx, token, erc20ABI, nil, "approve", spender, amount)
}

// BalanceOf returns owner's balance of token. The native-currency sentinel
// reads the account balance instead of calling a contract.
func (c *Client) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	if domain.IsNative(token) {
		return c.NativeBalance(ctx, owner)
	}
	var out *big.Int
	if err := c.call(ctx, token, erc20ABI, "balanceOf", &out, owner); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	ctx, cancel := withTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	bal, err := c.backend.BalanceAt(ctx, owner, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: balance of %s: %w", domain.ErrChainRead, domain.AddressString(owner), err)
	}
	return bal, nil
}
