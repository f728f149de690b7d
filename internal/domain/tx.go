package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TxKind labels the transactions the orchestrators issue.
type TxKind string

const (
	TxKindApprove       TxKind = "approve"
	TxKindLockFunds     TxKind = "lock_funds"
	TxKindPlaceBid      TxKind = "place_bid"
	TxKindSettle        TxKind = "settle_auction"
	TxKindCreateAuction TxKind = "create_auction"
)

// TxReceipt is the outcome of a transaction that was mined successfully.
type TxReceipt struct {
	Hash        common.Hash
	BlockNumber uint64
	GasUsed     uint64
}

// TxRecord is one row of the transaction ledger.
type TxRecord struct {
	Hash        common.Hash
	Kind        TxKind
	Contract    common.Address
	From        common.Address
	BlockNumber uint64
	GasUsed     uint64
	CreatedAt   time.Time
}
