// Package service holds the orchestrators: the per-auction Orchestrator that
// keeps a consistent Snapshot of one auction for one caller, the
// ListingService that creates and enumerates auctions, and the Sessions store
// that ties an orchestrator and its ephemeral keypair to a viewing session.
package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/fheauction/internal/domain"
)

// Chain is the contract surface the orchestrators consume. *chain.Client
// implements it.
type Chain interface {
	Wallet() common.Address
	Factory() common.Address

	Owner(ctx context.Context, auction common.Address) (common.Address, error)
	Asset(ctx context.Context, auction common.Address) (common.Address, error)
	PaymentToken(ctx context.Context, auction common.Address) (common.Address, error)
	IsActive(ctx context.Context, auction common.Address) (bool, error)
	Quantity(ctx context.Context, auction common.Address) (*big.Int, error)
	StartTime(ctx context.Context, auction common.Address) (time.Time, error)
	EndTime(ctx context.Context, auction common.Address) (time.Time, error)
	MaxParticipant(ctx context.Context, auction common.Address) (*big.Int, error)
	SettlementPrice(ctx context.Context, auction common.Address) (*big.Int, error)
	LockedFunds(ctx context.Context, auction, user common.Address) (*big.Int, error)
	GetAllBids(ctx context.Context, auction common.Address) ([]domain.EncryptedBid, error)
	GetAllDecryptedBids(ctx context.Context, auction common.Address) ([]domain.DecryptedBid, error)

	LockFunds(ctx context.Context, auction common.Address, amount, value *big.Int) (domain.TxReceipt, error)
	PlaceEncryptedBid(ctx context.Context, auction common.Address, quantity, price domain.Handle, proof []byte) (domain.TxReceipt, error)
	SettleAuction(ctx context.Context, auction common.Address) (domain.TxReceipt, error)

	GetAllAuctions(ctx context.Context) ([]common.Address, error)
	CreateAuction(ctx context.Context, p domain.CreateAuctionParams) (domain.TxReceipt, error)

	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (domain.TxReceipt, error)
	BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error)
}

// Encryptor is the FHE surface the orchestrators consume. *fhe.Client
// implements it.
type Encryptor interface {
	GenerateKeypair() (domain.Keypair, error)
	CreateAuthorization(publicKey []byte, contract common.Address) domain.ReencryptAuthorization
	EncryptInput(ctx context.Context, contract, user common.Address, values ...*big.Int) (domain.EncryptedInput, error)
	Reencrypt(ctx context.Context, req domain.ReencryptRequest) (*big.Int, error)
}

// AuthorizationSigner signs re-encryption authorizations with the wallet key.
type AuthorizationSigner interface {
	SignReencryptAuthorization(auth domain.ReencryptAuthorization) ([]byte, error)
}

// Notifier forwards operation outcomes to operators.
type Notifier interface {
	NotifyNotice(ctx context.Context, n domain.Notice) error
}

// SummaryInvalidator drops cached listing data of an auction after a
// transaction changed it. *ListingService implements it.
type SummaryInvalidator interface {
	Invalidate(ctx context.Context, auction common.Address)
}

// ArchiveChecker reports whether an archive object is already stored.
type ArchiveChecker interface {
	Exists(ctx context.Context, path string) (bool, error)
}

// Sinks are the optional side channels an operation reports to. Any field
// may be nil.
type Sinks struct {
	Bus          domain.SignalBus
	Audit        domain.AuditStore
	Txs          domain.TxStore
	Locks        domain.LockManager
	Archive      domain.BlobWriter
	ArchiveIndex ArchiveChecker
	Summaries    SummaryInvalidator
	Notifier     Notifier
}

// ensureKind attaches kind to err unless err already carries it.
func ensureKind(kind, err error) error {
	if err == nil || errors.Is(err, kind) {
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}

func positive(v *big.Int) bool {
	return v != nil && v.Sign() > 0
}
