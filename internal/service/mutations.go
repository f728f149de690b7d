package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/fheauction/internal/domain"
)

// LockFunds locks amount of paymentToken as collateral. The caller's balance
// is checked first: a shortfall is ErrInsufficientBalance and nothing is
// sent. For an ERC20 token an approval is sent only when the allowance does
// not already cover amount; value is attached only for the native currency.
// Each transaction is mined before the next is sent. On success only the
// locked amount of the snapshot is refreshed.
func (o *Orchestrator) LockFunds(ctx context.Context, amount *big.Int, paymentToken common.Address) (*domain.Snapshot, error) {
	const op = "lock_funds"
	if !positive(amount) {
		return nil, fmt.Errorf("%w: lock amount must be positive", domain.ErrInvalidInput)
	}
	if err := o.requireWallet(); err != nil {
		return nil, err
	}
	unlock, err := o.lockMutation(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	fail := func(err error, tx *domain.TxReceipt) (*domain.Snapshot, error) {
		err = fmt.Errorf("orchestrator: lock funds: %w", err)
		o.report.notice(ctx, op, o.auction, "failed to lock funds", err, tx)
		return nil, err
	}

	balance, err := o.chain.BalanceOf(ctx, paymentToken, o.caller)
	if err != nil {
		return fail(ensureKind(domain.ErrChainRead, err), nil)
	}
	if balance.Cmp(amount) < 0 {
		return fail(fmt.Errorf("%w: balance %s is below %s",
			domain.ErrInsufficientBalance, domain.FormatUnits(balance), domain.FormatUnits(amount)), nil)
	}

	var value *big.Int
	if domain.IsNative(paymentToken) {
		value = amount
	} else if err := o.ensureAllowance(ctx, paymentToken, amount); err != nil {
		return fail(err, nil)
	}

	rcpt, err := o.chain.LockFunds(ctx, o.auction, amount, value)
	if err != nil {
		return fail(ensureKind(domain.ErrTransactionReverted, err), nil)
	}
	o.report.recordTx(ctx, domain.TxKindLockFunds, o.auction, o.caller, rcpt)
	o.report.invalidate(ctx, o.auction)

	locked, err := o.chain.LockedFunds(ctx, o.auction, o.caller)
	if err != nil {
		return fail(ensureKind(domain.ErrChainRead, err), &rcpt)
	}

	var next *domain.Snapshot
	if cur := o.snap.Load(); cur != nil {
		next = cur.Clone()
		next.LockedAmount = locked
	} else if next, err = o.load(ctx); err != nil {
		return fail(err, &rcpt)
	}
	o.publishSnapshot(ctx, next)
	o.report.notice(ctx, op, o.auction, "locked "+domain.FormatUnits(amount), nil, &rcpt)
	return next, nil
}

// ensureAllowance approves the auction to pull amount of token when the
// current allowance is short. A failed approval is ErrInsufficientAllowance.
func (o *Orchestrator) ensureAllowance(ctx context.Context, token common.Address, amount *big.Int) error {
	rcpt, approved, err := approveIfNeeded(ctx, o.chain, token, o.caller, o.auction, amount)
	if err != nil {
		return err
	}
	if approved {
		o.report.recordTx(ctx, domain.TxKindApprove, token, o.caller, rcpt)
	}
	return nil
}

// approveIfNeeded is the approval step shared by lockFunds and
// createAuction.
func approveIfNeeded(ctx context.Context, c Chain, token, owner, spender common.Address, amount *big.Int) (domain.TxReceipt, bool, error) {
	allowance, err := c.Allowance(ctx, token, owner, spender)
	if err != nil {
		return domain.TxReceipt{}, false, ensureKind(domain.ErrChainRead, err)
	}
	if allowance != nil && allowance.Cmp(amount) >= 0 {
		return domain.TxReceipt{}, false, nil
	}
	rcpt, err := c.Approve(ctx, token, spender, amount)
	if err != nil {
		return domain.TxReceipt{}, false, fmt.Errorf("%w: approve %s for %s: %w",
			domain.ErrInsufficientAllowance, domain.FormatUnits(amount), domain.AddressString(spender), err)
	}
	return rcpt, true, nil
}

// PlaceBid encrypts quantity and price into two handles with one proof and
// submits them in a single transaction. An encryption failure never reaches
// the chain. On success the bid list and the caller's own bid are
// refreshed.
func (o *Orchestrator) PlaceBid(ctx context.Context, quantity, price *big.Int) (*domain.Snapshot, error) {
	const op = "place_bid"
	if !positive(quantity) || !positive(price) {
		return nil, fmt.Errorf("%w: bid quantity and price must be positive", domain.ErrInvalidInput)
	}
	if err := o.requireWallet(); err != nil {
		return nil, err
	}
	unlock, err := o.lockMutation(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	fail := func(err error, tx *domain.TxReceipt) (*domain.Snapshot, error) {
		err = fmt.Errorf("orchestrator: place bid: %w", err)
		o.report.notice(ctx, op, o.auction, "failed to place bid", err, tx)
		return nil, err
	}

	in, err := o.fhe.EncryptInput(ctx, o.auction, o.caller, quantity, price)
	if err != nil {
		return fail(ensureKind(domain.ErrEncryption, err), nil)
	}
	if len(in.Handles) != 2 {
		return fail(fmt.Errorf("%w: expected 2 handles, got %d", domain.ErrEncryption, len(in.Handles)), nil)
	}

	rcpt, err := o.chain.PlaceEncryptedBid(ctx, o.auction, in.Handles[0], in.Handles[1], in.Proof)
	if err != nil {
		return fail(ensureKind(domain.ErrTransactionReverted, err), nil)
	}
	o.report.recordTx(ctx, domain.TxKindPlaceBid, o.auction, o.caller, rcpt)
	o.report.invalidate(ctx, o.auction)

	bids, err := o.chain.GetAllBids(ctx, o.auction)
	if err != nil {
		return fail(ensureKind(domain.ErrChainRead, err), &rcpt)
	}

	var next *domain.Snapshot
	if cur := o.snap.Load(); cur != nil && cur.Phase != domain.PhaseEndedDecrypted {
		next = cur.Clone()
		next.EncryptedBids = bids
		next.Bids = make([]domain.Bid, len(bids))
		for i, b := range bids {
			next.Bids[i] = domain.FromEncrypted(b)
		}
		o.locateMyBid(next)
	} else if next, err = o.load(ctx); err != nil {
		return fail(err, &rcpt)
	}
	if next.MyBid == nil {
		o.logger.WarnContext(ctx, "orchestrator: placed bid not found in bid list",
			slog.String("tx", rcpt.Hash.Hex()))
	}
	o.publishSnapshot(ctx, next)
	o.report.notice(ctx, op, o.auction, "bid placed", nil, &rcpt)
	return next, nil
}

// SettleAuction sends the settlement transaction and reloads the whole
// snapshot. Ownership is enforced by the contract, not here.
func (o *Orchestrator) SettleAuction(ctx context.Context) (*domain.Snapshot, error) {
	const op = "settle_auction"
	if err := o.requireWallet(); err != nil {
		return nil, err
	}
	unlock, err := o.lockMutation(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	rcpt, err := o.chain.SettleAuction(ctx, o.auction)
	if err != nil {
		err = fmt.Errorf("orchestrator: settle auction: %w", ensureKind(domain.ErrTransactionReverted, err))
		o.report.notice(ctx, op, o.auction, "failed to settle auction", err, nil)
		return nil, err
	}
	o.report.recordTx(ctx, domain.TxKindSettle, o.auction, o.caller, rcpt)
	o.report.invalidate(ctx, o.auction)

	next, err := o.load(ctx)
	if err != nil {
		err = fmt.Errorf("orchestrator: reload after settlement: %w", err)
		o.report.notice(ctx, op, o.auction, "auction settled but reload failed", err, &rcpt)
		return nil, err
	}
	o.publishSnapshot(ctx, next)
	o.report.notice(ctx, op, o.auction, "auction settled", nil, &rcpt)
	return next, nil
}

// RequestBidDecryption re-encrypts both ciphertext fields of bid under kp
// and returns a snapshot in which the caller's bid carries the plaintext.
// One wallet signature authorizes both calls: it binds the public key and
// the auction, not a particular field. The signature is the wallet's, so
// the caller must be the wallet.
func (o *Orchestrator) RequestBidDecryption(ctx context.Context, bid domain.Bid, kp domain.Keypair) (*domain.Snapshot, error) {
	const op = "decrypt_bid"
	if err := o.requireWallet(); err != nil {
		return nil, err
	}
	if bid.EncryptedQuantity == (domain.Handle{}) || bid.EncryptedPrice == (domain.Handle{}) {
		return nil, fmt.Errorf("%w: bid has no ciphertext handles", domain.ErrNoBid)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.snap.Load() == nil {
		return nil, domain.ErrNoSnapshot
	}
	fail := func(err error) (*domain.Snapshot, error) {
		err = fmt.Errorf("orchestrator: decrypt bid: %w", err)
		o.report.notice(ctx, op, o.auction, "failed to decrypt bid", err, nil)
		return nil, err
	}

	auth := o.fhe.CreateAuthorization(kp.PublicKey, o.auction)
	sig, err := o.signer.SignReencryptAuthorization(auth)
	if err != nil {
		return fail(fmt.Errorf("%w: sign authorization: %w", domain.ErrEncryption, err))
	}

	values := make([]*big.Int, 2)
	for i, h := range []domain.Handle{bid.EncryptedQuantity, bid.EncryptedPrice} {
		v, err := o.fhe.Reencrypt(ctx, domain.ReencryptRequest{
			Handle:    h,
			Keypair:   kp,
			Signature: sig,
			Contract:  o.auction,
			User:      o.caller,
		})
		if err != nil {
			return fail(ensureKind(domain.ErrEncryption, err))
		}
		values[i] = v
	}

	// Re-read after the gateway calls; nothing else swaps while o.mu is held.
	next := o.snap.Load().Clone()
	patch := func(b *domain.Bid) {
		if b.EncryptedQuantity == bid.EncryptedQuantity && b.EncryptedPrice == bid.EncryptedPrice {
			b.Quantity = new(big.Int).Set(values[0])
			b.Price = new(big.Int).Set(values[1])
		}
	}
	for i := range next.Bids {
		patch(&next.Bids[i])
	}
	if next.MyBid != nil {
		patch(next.MyBid)
	} else {
		b := bid
		b.Quantity, b.Price = values[0], values[1]
		next.MyBid = &b
	}
	o.publishSnapshot(ctx, next)
	o.report.notice(ctx, op, o.auction, "bid decrypted", nil, nil)
	return next, nil
}
