package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Snapshot is the aggregate view of one auction for one caller at a point in
// time. Snapshots are immutable once published: every change produces a new
// value via Clone so readers never observe a partially updated view.
type Snapshot struct {
	Auction Auction
	Phase   Phase
	Caller  common.Address
	IsOwner bool

	// LockedAmount is nil when the caller is the owner (not fetched).
	LockedAmount   *big.Int
	AssetBalance   *big.Int
	PaymentBalance *big.Int

	// Bids is the canonical bid list for the phase: encrypted rows while
	// active, decrypted rows once ended and decrypted, and encrypted rows
	// again for an ended auction whose decryption has not landed yet.
	Bids          []Bid
	EncryptedBids []EncryptedBid
	DecryptedBids []DecryptedBid

	// MyBid is the caller's own bid, if any. After RequestBidDecryption the
	// plaintext fields are filled in.
	MyBid          *Bid
	MyDecryptedBid *DecryptedBid

	LoadedAt time.Time
}

// Clone returns a deep copy so a modified snapshot can be swapped in
// atomically without mutating the published one.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := *s
	out.Auction.Quantity = cloneBig(s.Auction.Quantity)
	out.Auction.SettlementPrice = cloneBig(s.Auction.SettlementPrice)
	out.LockedAmount = cloneBig(s.LockedAmount)
	out.AssetBalance = cloneBig(s.AssetBalance)
	out.PaymentBalance = cloneBig(s.PaymentBalance)

	if s.Bids != nil {
		out.Bids = make([]Bid, len(s.Bids))
		for i, b := range s.Bids {
			out.Bids[i] = cloneBid(b)
		}
	}
	if s.EncryptedBids != nil {
		out.EncryptedBids = append([]EncryptedBid(nil), s.EncryptedBids...)
	}
	if s.DecryptedBids != nil {
		out.DecryptedBids = make([]DecryptedBid, len(s.DecryptedBids))
		for i, d := range s.DecryptedBids {
			out.DecryptedBids[i] = DecryptedBid{Bidder: d.Bidder, Quantity: cloneBig(d.Quantity), Price: cloneBig(d.Price)}
		}
	}
	if s.MyBid != nil {
		b := cloneBid(*s.MyBid)
		out.MyBid = &b
	}
	if s.MyDecryptedBid != nil {
		d := DecryptedBid{Bidder: s.MyDecryptedBid.Bidder, Quantity: cloneBig(s.MyDecryptedBid.Quantity), Price: cloneBig(s.MyDecryptedBid.Price)}
		out.MyDecryptedBid = &d
	}
	return &out
}

func cloneBid(b Bid) Bid {
	b.Quantity = cloneBig(b.Quantity)
	b.Price = cloneBig(b.Price)
	return b
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
