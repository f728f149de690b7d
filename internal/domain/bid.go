package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Handle is an opaque 32-byte on-chain reference to an encrypted value.
type Handle [32]byte

// Hex returns the 0x-prefixed hex form of the handle.
func (h Handle) Hex() string {
	return common.Hash(h).Hex()
}

// Big returns the handle as an unsigned integer, the form the re-encryption
// gateway addresses ciphertexts by.
func (h Handle) Big() *big.Int {
	return new(big.Int).SetBytes(h[:])
}

// EncryptedBid is one row of getAllBids().
type EncryptedBid struct {
	Bidder            common.Address
	EncryptedQuantity Handle
	EncryptedPrice    Handle
}

// DecryptedBid is one row of getAllDecryptedBids().
type DecryptedBid struct {
	Bidder   common.Address
	Quantity *big.Int
	Price    *big.Int
}

// Bid is the caller-facing view of a bid. While encrypted, the handles are
// set and Quantity/Price are nil; once the caller re-encrypts its own bid or
// the auction is globally decrypted, Quantity/Price carry the plaintext.
type Bid struct {
	Bidder            common.Address
	EncryptedQuantity Handle
	EncryptedPrice    Handle
	Quantity          *big.Int
	Price             *big.Int
}

// Decrypted reports whether the plaintext fields are populated.
func (b Bid) Decrypted() bool {
	return b.Quantity != nil && b.Price != nil
}

// FromEncrypted builds a Bid view from an encrypted row.
func FromEncrypted(e EncryptedBid) Bid {
	return Bid{
		Bidder:            e.Bidder,
		EncryptedQuantity: e.EncryptedQuantity,
		EncryptedPrice:    e.EncryptedPrice,
	}
}

// FromDecrypted builds a Bid view from a decrypted row.
func FromDecrypted(d DecryptedBid) Bid {
	return Bid{
		Bidder:   d.Bidder,
		Quantity: d.Quantity,
		Price:    d.Price,
	}
}

// FindEncryptedBid returns the first bid placed by bidder, scanning in
// contract order.
func FindEncryptedBid(bids []EncryptedBid, bidder common.Address) (EncryptedBid, bool) {
	for _, b := range bids {
		if b.Bidder == bidder {
			return b, true
		}
	}
	return EncryptedBid{}, false
}

// FindDecryptedBid returns the first decrypted bid placed by bidder.
func FindDecryptedBid(bids []DecryptedBid, bidder common.Address) (DecryptedBid, bool) {
	for _, b := range bids {
		if b.Bidder == bidder {
			return b, true
		}
	}
	return DecryptedBid{}, false
}
