package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Phase is the orchestrator's view of an auction's lifecycle. It is inferred
// from on-chain state every time and never stored independently.
type Phase string

const (
	PhaseActive                 Phase = "active"
	PhaseEndedPendingDecryption Phase = "ended_pending_decryption"
	PhaseEndedDecrypted         Phase = "ended_decrypted"
)

// InferPhase combines the contract's active flag with the number of entries
// returned by the decrypted-bids accessor. No transition leads back to
// PhaseActive.
func InferPhase(active bool, decryptedBids int) Phase {
	switch {
	case active:
		return PhaseActive
	case decryptedBids > 0:
		return PhaseEndedDecrypted
	default:
		return PhaseEndedPendingDecryption
	}
}

// Ended reports whether the phase is past the bidding window.
func (p Phase) Ended() bool {
	return p != PhaseActive
}

// Auction is the on-chain state of one auction contract.
type Auction struct {
	Address         common.Address
	Owner           common.Address
	Asset           common.Address
	PaymentToken    common.Address // NativeCurrency means native currency
	Quantity        *big.Int
	StartTime       time.Time
	EndTime         time.Time
	Active          bool
	SettlementPrice *big.Int // zero until settled
}

// SummaryStatus is the coarse status shown in auction listings.
type SummaryStatus string

const (
	SummaryStatusActive SummaryStatus = "active"
	SummaryStatusEnded  SummaryStatus = "ended"
)

// Summary is the listing view of one auction.
type Summary struct {
	Address        common.Address
	Owner          common.Address
	Asset          common.Address
	PaymentToken   common.Address
	Quantity       *big.Int
	StartTime      time.Time
	EndTime        time.Time
	MaxParticipant *big.Int
	Participants   int
	Status         SummaryStatus
	IsOwner        bool
}

// SummaryResult pairs one factory-listed auction with its summary or the
// error that prevented fetching it. Exactly one of Summary and Err is set.
type SummaryResult struct {
	Address common.Address
	Summary *Summary
	Err     error
}

// CreateAuctionParams are the inputs of the factory's creation entry point.
type CreateAuctionParams struct {
	Asset          common.Address
	PaymentToken   common.Address // NativeCurrency means native currency
	Quantity       *big.Int
	Duration       time.Duration
	MaxParticipant *big.Int
}
