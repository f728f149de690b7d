package chain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/fheauction/internal/domain"
)

// Row layouts of the auction's tuple[] accessors. Field order must match the
// ABI components.
type encryptedBidRow struct {
	Bidder            common.Address
	EncryptedQuantity [32]byte
	EncryptedPrice    [32]byte
}

type decryptedBidRow struct {
	Bidder   common.Address
	Quantity *big.Int
	Price    *big.Int
}

func (c *Client) readAddress(ctx context.Context, contract common.Address, method string) (common.Address, error) {
	var out common.Address
	if err := c.call(ctx, contract, auctionABI, method, &out); err != nil {
		return common.Address{}, err
	}
	return out, nil
}

func (c *Client) readUint(ctx context.Context, contract common.Address, method string, args ...any) (*big.Int, error) {
	var out *big.Int
	if err := c.call(ctx, contract, auctionABI, method, &out, args...); err != nil {
		return nil, err
	}
	if out == nil {
		out = new(big.Int)
	}
	return out, nil
}

func (c *Client) readTime(ctx context.Context, contract common.Address, method string) (time.Time, error) {
	v, err := c.readUint(ctx, contract, method)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(v.Int64(), 0).UTC(), nil
}

func (c *Client) Owner(ctx context.Context, auction common.Address) (common.Address, error) {
	return c.readAddress(ctx, auction, "owner")
}

func (c *Client) Asset(ctx context.Context, auction common.Address) (common.Address, error) {
	return c.readAddress(ctx, auction, "asset")
}

// PaymentToken returns the payment token, domain.NativeCurrency for native.
func (c *Client) PaymentToken(ctx context.Context, auction common.Address) (common.Address, error) {
	return c.readAddress(ctx, auction, "paymentToken")
}

func (c *Client) IsActive(ctx context.Context, auction common.Address) (bool, error) {
	var out bool
	if err := c.call(ctx, auction, auctionABI, "isActive", &out); err != nil {
		return false, err
	}
	return out, nil
}

func (c *Client) Quantity(ctx context.Context, auction common.Address) (*big.Int, error) {
	return c.readUint(ctx, auction, "quantity")
}

func (c *Client) StartTime(ctx context.Context, auction common.Address) (time.Time, error) {
	return c.readTime(ctx, auction, "startTime")
}

func (c *Client) EndTime(ctx context.Context, auction common.Address) (time.Time, error) {
	return c.readTime(ctx, auction, "endTime")
}

func (c *Client) MaxParticipant(ctx context.Context, auction common.Address) (*big.Int, error) {
	return c.readUint(ctx, auction, "maxParticipant")
}

// SettlementPrice is zero until the auction is settled.
func (c *Client) SettlementPrice(ctx context.Context, auction common.Address) (*big.Int, error) {
	return c.readUint(ctx, auction, "settlementPrice")
}

func (c *Client) LockedFunds(ctx context.Context, auction, user common.Address) (*big.Int, error) {
	return c.readUint(ctx, auction, "lockedFunds", user)
}

// GetAllBids returns every encrypted bid in contract order.
func (c *Client) GetAllBids(ctx context.Context, auction common.Address) ([]domain.EncryptedBid, error) {
	var rows []encryptedBidRow
	if err := c.call(ctx, auction, auctionABI, "getAllBids", &rows); err != nil {
		return nil, err
	}
	out := make([]domain.EncryptedBid, len(rows))
	for i, r := range rows {
		out[i] = domain.EncryptedBid{
			Bidder:            r.Bidder,
			EncryptedQuantity: domain.Handle(r.EncryptedQuantity),
			EncryptedPrice:    domain.Handle(r.EncryptedPrice),
		}
	}
	return out, nil
}

// GetAllDecryptedBids returns the plaintext bids. The result is empty until
// the auction has been globally decrypted.
func (c *Client) GetAllDecryptedBids(ctx context.Context, auction common.Address) ([]domain.DecryptedBid, error) {
	var rows []decryptedBidRow
	if err := c.call(ctx, auction, auctionABI, "getAllDecryptedBids", &rows); err != nil {
		return nil, err
	}
	out := make([]domain.DecryptedBid, len(rows))
	for i, r := range rows {
		out[i] = domain.DecryptedBid{Bidder: r.Bidder, Quantity: r.Quantity, Price: r.Price}
	}
	return out, nil
}

// LockFunds locks amount of collateral. value is attached to the
// transaction and must be zero unless the payment token is native.
func (c *Client) LockFunds(ctx context.Context, auction common.Address, amount, value *big.Int) (domain.TxReceipt, error) {
	return c.transact(ctx, auction, auctionABI, value, "lockFunds", amount)
}

// PlaceEncryptedBid submits both ciphertext handles with their shared proof.
func (c *Client) PlaceEncryptedBid(ctx context.Context, auction common.Address, quantity, price domain.Handle, proof []byte) (domain.TxReceipt, error) {
	return c.transact(ctx, auction, auctionABI, nil, "placeEncryptedBid", [32]byte(quantity), [32]byte(price), proof)
}

func (c *Client) SettleAuction(ctx context.Context, auction common.Address) (domain.TxReceipt, error) {
	return c.transact(ctx, auction, auctionABI, nil, "settleAuction")
}
