package service

import (
	"context"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/fheauction/internal/domain"
)

type harness struct {
	chain   *fakeChain
	fhe     *fakeFHE
	bus     *fakeBus
	archive *fakeArchive
	txs     *fakeTxStore
	locks   *fakeLocks
	caller  common.Address
	orch    *Orchestrator
}

func activeAuction(payment common.Address) *fakeAuction {
	now := time.Now().UTC().Truncate(time.Second)
	return &fakeAuction{
		owner:    ownerAddr,
		asset:    assetTok,
		payment:  payment,
		quantity: ether(10),
		start:    now.Add(-time.Hour),
		end:      now.Add(time.Hour),
		maxPart:  big.NewInt(5),
		active:   true,
	}
}

func newHarness(t *testing.T, a *fakeAuction) *harness {
	t.Helper()
	signer := newTestSigner(t)

	// The chain reports the checksummed wallet; the caller arrives
	// lowercased, as a browser wallet may hand it over.
	caller, err := domain.NormalizeAddress(strings.ToLower(signer.Address().Hex()))
	require.NoError(t, err)

	h := &harness{
		chain:   newFakeChain(signer.Address()),
		fhe:     newFakeFHE(),
		bus:     &fakeBus{},
		archive: &fakeArchive{},
		txs:     &fakeTxStore{},
		locks:   &fakeLocks{},
		caller:  caller,
	}
	h.chain.addAuction(auctionA, a)
	h.chain.balances[domain.NativeCurrency] = ether(100)
	h.chain.balances[payTok] = ether(100)
	kp, err := h.fhe.GenerateKeypair()
	require.NoError(t, err)
	h.orch = NewOrchestrator(auctionA, caller, kp, h.chain, h.fhe, signer, Sinks{
		Bus:     h.bus,
		Txs:     h.txs,
		Locks:   h.locks,
		Archive: h.archive,
	}, OrchestratorConfig{}, discardLogger())
	return h
}

func (h *harness) load(t *testing.T) *domain.Snapshot {
	t.Helper()
	s, err := h.orch.LoadSnapshot(context.Background())
	require.NoError(t, err)
	return s
}

func TestLoadSnapshot_ActiveNonOwner(t *testing.T) {
	a := activeAuction(domain.NativeCurrency)
	a.bids = []domain.EncryptedBid{{Bidder: otherAddr, EncryptedQuantity: domain.Handle{1}, EncryptedPrice: domain.Handle{2}}}
	h := newHarness(t, a)
	h.chain.balances[assetTok] = ether(3)
	h.chain.readErr["getAllDecryptedBids"] = errBoom // tolerated while active

	s := h.load(t)
	assert.Equal(t, domain.PhaseActive, s.Phase)
	assert.False(t, s.IsOwner)
	require.NotNil(t, s.LockedAmount)
	assert.Equal(t, "0", s.LockedAmount.String())
	assert.Equal(t, ether(3).String(), s.AssetBalance.String())
	assert.Equal(t, 0, s.Auction.SettlementPrice.Sign())
	require.Len(t, s.Bids, 1)
	assert.False(t, s.Bids[0].Decrypted())
	assert.Nil(t, s.MyBid)
	assert.Same(t, s, h.orch.Snapshot())
}

func TestLoadSnapshot_OwnerSkipsLockedFunds(t *testing.T) {
	a := activeAuction(domain.NativeCurrency)
	h := newHarness(t, a)
	a.owner = h.chain.wallet

	s := h.load(t)
	assert.True(t, s.IsOwner)
	assert.Nil(t, s.LockedAmount)
	assert.Equal(t, 0, h.chain.readCount("lockedFunds"))
}

func TestLoadSnapshot_EndedPendingDecryption(t *testing.T) {
	a := activeAuction(domain.NativeCurrency)
	a.active = false
	a.settlement = ether(2)
	h := newHarness(t, a)
	a.bids = []domain.EncryptedBid{{Bidder: h.chain.wallet, EncryptedQuantity: domain.Handle{1}, EncryptedPrice: domain.Handle{2}}}

	s := h.load(t)
	assert.Equal(t, domain.PhaseEndedPendingDecryption, s.Phase)
	assert.True(t, s.Phase.Ended())
	require.Len(t, s.Bids, 1)
	require.NotNil(t, s.MyBid)
	assert.Equal(t, h.caller, s.MyBid.Bidder)
	assert.Nil(t, s.MyDecryptedBid)
	assert.Empty(t, h.archive.paths)

	dec, err := h.orch.ListDecryptedBids(context.Background())
	require.NoError(t, err)
	assert.Empty(t, dec)
	enc, err := h.orch.ListBids(context.Background())
	require.NoError(t, err)
	assert.Len(t, enc, 1)
}

func TestLoadSnapshot_EndedDecrypted(t *testing.T) {
	a := activeAuction(domain.NativeCurrency)
	a.active = false
	a.settlement = ether(2)
	h := newHarness(t, a)
	a.decrypted = []domain.DecryptedBid{
		{Bidder: otherAddr, Quantity: ether(1), Price: ether(2)},
		{Bidder: h.chain.wallet, Quantity: ether(4), Price: ether(3)},
	}
	h.chain.readErr["getAllBids"] = errBoom // not needed once decrypted

	s := h.load(t)
	assert.Equal(t, domain.PhaseEndedDecrypted, s.Phase)
	require.Len(t, s.Bids, 2)
	assert.True(t, s.Bids[0].Decrypted())
	require.NotNil(t, s.MyDecryptedBid)
	assert.Equal(t, ether(4).String(), s.MyDecryptedBid.Quantity.String())
	require.NotNil(t, s.MyBid)
	assert.Equal(t, ether(3).String(), s.MyBid.Price.String())

	h.load(t)
	assert.Equal(t, []string{ArchivePath(auctionA)}, h.archive.paths)
}

func TestLoadSnapshot_ArchiveSharedAcrossSessions(t *testing.T) {
	a := activeAuction(domain.NativeCurrency)
	a.active = false
	a.settlement = ether(2)
	a.decrypted = []domain.DecryptedBid{{Bidder: otherAddr, Quantity: ether(1), Price: ether(2)}}
	h := newHarness(t, a)
	sinks := Sinks{Archive: h.archive, ArchiveIndex: h.archive}

	for i := 0; i < 3; i++ {
		kp, err := h.fhe.GenerateKeypair()
		require.NoError(t, err)
		o := NewOrchestrator(auctionA, h.caller, kp, h.chain, h.fhe, newTestSigner(t), sinks, OrchestratorConfig{}, discardLogger())
		s, err := o.LoadSnapshot(context.Background())
		require.NoError(t, err)
		require.Equal(t, domain.PhaseEndedDecrypted, s.Phase)
	}
	assert.Equal(t, []string{ArchivePath(auctionA)}, h.archive.paths)
}

func TestLoadSnapshot_FailureKeepsPreviousSnapshot(t *testing.T) {
	a := activeAuction(domain.NativeCurrency)
	h := newHarness(t, a)
	prev := h.load(t)

	h.chain.readErr["owner"] = errBoom
	_, err := h.orch.LoadSnapshot(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrChainRead)
	assert.ErrorIs(t, err, errBoom)
	assert.Same(t, prev, h.orch.Snapshot())

	notices := h.bus.notices()
	require.Len(t, notices, 1)
	assert.Equal(t, "error", notices[0].Envelope.Payload["level"])
}

func TestLoadSnapshot_EndedDecryptedReadIsRequired(t *testing.T) {
	a := activeAuction(domain.NativeCurrency)
	a.active = false
	h := newHarness(t, a)
	h.chain.readErr["getAllDecryptedBids"] = errBoom

	_, err := h.orch.LoadSnapshot(context.Background())
	assert.ErrorIs(t, err, domain.ErrChainRead)
	assert.Nil(t, h.orch.Snapshot())
}

func TestLoadSnapshot_ActiveWithSettlementPriceIsInconsistent(t *testing.T) {
	a := activeAuction(domain.NativeCurrency)
	a.settlement = ether(1)
	h := newHarness(t, a)

	_, err := h.orch.LoadSnapshot(context.Background())
	assert.ErrorIs(t, err, domain.ErrChainRead)
}

func TestLockFunds_NativeSingleValueBearingTx(t *testing.T) {
	h := newHarness(t, activeAuction(domain.NativeCurrency))
	before := h.load(t)

	s, err := h.orch.LockFunds(context.Background(), ether(5), domain.NativeCurrency)
	require.NoError(t, err)

	txs := h.chain.txs()
	require.Len(t, txs, 1)
	assert.Equal(t, "lockFunds", txs[0].Method)
	require.NotNil(t, txs[0].Value)
	assert.Equal(t, ether(5).String(), txs[0].Value.String())
	assert.Equal(t, 0, h.chain.readCount("allowance"))

	assert.Equal(t, ether(5).String(), s.LockedAmount.String())
	assert.Equal(t, "0", before.LockedAmount.String(), "published snapshot must not be mutated")
	assert.Equal(t, before.LoadedAt, s.LoadedAt, "only the locked amount is refreshed")

	notices := h.bus.notices()
	require.Len(t, notices, 1)
	assert.Equal(t, "info", notices[0].Envelope.Payload["level"])
	assert.Equal(t, "lock_funds", notices[0].Envelope.Payload["operation"])
	require.Len(t, h.txs.recs, 1)
	assert.Equal(t, domain.TxKindLockFunds, h.txs.recs[0].Kind)
}

func TestLockFunds_NoApprovalWhenAllowanceCovers(t *testing.T) {
	h := newHarness(t, activeAuction(payTok))
	h.chain.allowance[[2]common.Address{payTok, auctionA}] = ether(10)
	h.load(t)

	_, err := h.orch.LockFunds(context.Background(), ether(5), payTok)
	require.NoError(t, err)

	txs := h.chain.txs()
	require.Len(t, txs, 1)
	assert.Equal(t, "lockFunds", txs[0].Method)
	assert.True(t, txs[0].Value == nil || txs[0].Value.Sign() == 0)
}

func TestLockFunds_ApprovesThenLocks(t *testing.T) {
	h := newHarness(t, activeAuction(payTok))
	h.chain.allowance[[2]common.Address{payTok, auctionA}] = ether(1)
	h.load(t)

	_, err := h.orch.LockFunds(context.Background(), ether(5), payTok)
	require.NoError(t, err)

	txs := h.chain.txs()
	require.Len(t, txs, 2)
	assert.Equal(t, "approve", txs[0].Method)
	assert.Equal(t, payTok, txs[0].Contract)
	assert.Equal(t, auctionA, txs[0].Args[0])
	assert.Equal(t, "lockFunds", txs[1].Method)
}

func TestLockFunds_Failures(t *testing.T) {
	t.Run("approval fails", func(t *testing.T) {
		h := newHarness(t, activeAuction(payTok))
		prev := h.load(t)
		h.chain.txErr["approve"] = errBoom

		_, err := h.orch.LockFunds(context.Background(), ether(5), payTok)
		assert.ErrorIs(t, err, domain.ErrInsufficientAllowance)
		assert.Empty(t, h.chain.txs())
		assert.Same(t, prev, h.orch.Snapshot())
	})
	t.Run("lock reverts", func(t *testing.T) {
		h := newHarness(t, activeAuction(domain.NativeCurrency))
		prev := h.load(t)
		h.chain.txErr["lockFunds"] = errBoom

		_, err := h.orch.LockFunds(context.Background(), ether(5), domain.NativeCurrency)
		assert.ErrorIs(t, err, domain.ErrTransactionReverted)
		assert.Same(t, prev, h.orch.Snapshot())
		require.Len(t, h.bus.notices(), 1)
	})
	t.Run("native balance short", func(t *testing.T) {
		h := newHarness(t, activeAuction(domain.NativeCurrency))
		prev := h.load(t)
		h.chain.balances[domain.NativeCurrency] = ether(4)

		_, err := h.orch.LockFunds(context.Background(), ether(5), domain.NativeCurrency)
		assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
		assert.Empty(t, h.chain.txs())
		assert.Same(t, prev, h.orch.Snapshot())
		require.Len(t, h.bus.notices(), 1)
	})
	t.Run("token balance short", func(t *testing.T) {
		h := newHarness(t, activeAuction(payTok))
		h.load(t)
		h.chain.balances[payTok] = ether(1)

		_, err := h.orch.LockFunds(context.Background(), ether(5), payTok)
		assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
		assert.Empty(t, h.chain.txs(), "no approval is sent for a short balance")
		assert.Equal(t, 0, h.chain.readCount("allowance"))
	})
	t.Run("balance read fails", func(t *testing.T) {
		h := newHarness(t, activeAuction(payTok))
		h.load(t)
		h.chain.readErr["balanceOf"] = errBoom

		_, err := h.orch.LockFunds(context.Background(), ether(5), payTok)
		assert.ErrorIs(t, err, domain.ErrChainRead)
		assert.Empty(t, h.chain.txs())
	})
	t.Run("zero amount", func(t *testing.T) {
		h := newHarness(t, activeAuction(domain.NativeCurrency))
		_, err := h.orch.LockFunds(context.Background(), ether(0), domain.NativeCurrency)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
	t.Run("lock held elsewhere", func(t *testing.T) {
		h := newHarness(t, activeAuction(domain.NativeCurrency))
		release, err := h.locks.Acquire(context.Background(), "auction:"+domain.AddressString(auctionA), time.Minute)
		require.NoError(t, err)
		defer release()

		_, err = h.orch.LockFunds(context.Background(), ether(1), domain.NativeCurrency)
		assert.ErrorIs(t, err, domain.ErrLockHeld)
		assert.Empty(t, h.chain.txs())
	})
}

func TestMutations_RequireWalletCaller(t *testing.T) {
	h := newHarness(t, activeAuction(domain.NativeCurrency))
	kp, _ := h.fhe.GenerateKeypair()
	o := NewOrchestrator(auctionA, otherAddr, kp, h.chain, h.fhe, newTestSigner(t), Sinks{}, OrchestratorConfig{}, discardLogger())

	_, err := o.LoadSnapshot(context.Background())
	require.NoError(t, err)
	_, err = o.LockFunds(context.Background(), ether(1), domain.NativeCurrency)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = o.PlaceBid(context.Background(), ether(1), ether(1))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = o.SettleAuction(context.Background())
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	bid := domain.Bid{Bidder: otherAddr, EncryptedQuantity: domain.Handle{1}, EncryptedPrice: domain.Handle{2}}
	_, err = o.RequestBidDecryption(context.Background(), bid, kp)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Empty(t, h.chain.txs())
	assert.Empty(t, h.fhe.reencCalls)
}

func TestPlaceBid_FindsOwnBid(t *testing.T) {
	a := activeAuction(domain.NativeCurrency)
	a.bids = []domain.EncryptedBid{{Bidder: otherAddr, EncryptedQuantity: domain.Handle{9}, EncryptedPrice: domain.Handle{8}}}
	h := newHarness(t, a)
	h.load(t)

	s, err := h.orch.PlaceBid(context.Background(), ether(2), ether(3))
	require.NoError(t, err)

	txs := h.chain.txs()
	require.Len(t, txs, 1)
	assert.Equal(t, "placeEncryptedBid", txs[0].Method)
	assert.Equal(t, 1, h.fhe.encryptCalls)

	require.NotNil(t, s.MyBid)
	assert.Equal(t, h.caller, s.MyBid.Bidder)
	assert.True(t, strings.EqualFold(domain.AddressString(h.caller), s.MyBid.Bidder.Hex()))
	assert.Equal(t, txs[0].Args[0], s.MyBid.EncryptedQuantity)
	assert.Equal(t, txs[0].Args[1], s.MyBid.EncryptedPrice)
	assert.Len(t, s.Bids, 2)
}

func TestPlaceBid_EncryptionFailureSendsNothing(t *testing.T) {
	h := newHarness(t, activeAuction(domain.NativeCurrency))
	prev := h.load(t)
	h.fhe.encryptErr = errBoom

	_, err := h.orch.PlaceBid(context.Background(), ether(2), ether(3))
	assert.ErrorIs(t, err, domain.ErrEncryption)
	assert.Empty(t, h.chain.txs())
	assert.Same(t, prev, h.orch.Snapshot())
}

func TestRequestBidDecryption_TwoCallsOneSignature(t *testing.T) {
	h := newHarness(t, activeAuction(domain.NativeCurrency))
	h.load(t)
	s, err := h.orch.PlaceBid(context.Background(), ether(2), ether(3))
	require.NoError(t, err)
	require.NotNil(t, s.MyBid)

	out, err := h.orch.RequestBidDecryption(context.Background(), *s.MyBid, h.orch.Keypair())
	require.NoError(t, err)

	calls := h.fhe.reencCalls
	require.Len(t, calls, 2)
	assert.Equal(t, s.MyBid.EncryptedQuantity, calls[0].Handle)
	assert.Equal(t, s.MyBid.EncryptedPrice, calls[1].Handle)
	require.NotEmpty(t, calls[0].Signature)
	assert.Equal(t, calls[0].Signature, calls[1].Signature)
	assert.Equal(t, h.orch.Keypair().PublicKey, calls[0].Keypair.PublicKey)
	assert.Equal(t, auctionA, calls[0].Contract)

	require.True(t, out.MyBid.Decrypted())
	assert.Equal(t, ether(2).String(), out.MyBid.Quantity.String())
	assert.Equal(t, ether(3).String(), out.MyBid.Price.String())
	assert.False(t, s.MyBid.Decrypted(), "previous snapshot must not be mutated")

	// A reload with unchanged handles keeps the plaintext.
	again := h.load(t)
	require.NotNil(t, again.MyBid)
	assert.True(t, again.MyBid.Decrypted())
}

func TestRequestBidDecryption_Failures(t *testing.T) {
	t.Run("second call fails", func(t *testing.T) {
		h := newHarness(t, activeAuction(domain.NativeCurrency))
		h.load(t)
		s, err := h.orch.PlaceBid(context.Background(), ether(2), ether(3))
		require.NoError(t, err)
		h.fhe.reencErrAt = 2

		_, err = h.orch.RequestBidDecryption(context.Background(), *s.MyBid, h.orch.Keypair())
		assert.ErrorIs(t, err, domain.ErrEncryption)
		assert.Same(t, s, h.orch.Snapshot())
		assert.False(t, h.orch.Snapshot().MyBid.Decrypted())
	})
	t.Run("no handles", func(t *testing.T) {
		h := newHarness(t, activeAuction(domain.NativeCurrency))
		h.load(t)
		_, err := h.orch.RequestBidDecryption(context.Background(), domain.Bid{}, h.orch.Keypair())
		assert.ErrorIs(t, err, domain.ErrNoBid)
		assert.Empty(t, h.fhe.reencCalls)
	})
	t.Run("no snapshot", func(t *testing.T) {
		h := newHarness(t, activeAuction(domain.NativeCurrency))
		bid := domain.Bid{EncryptedQuantity: domain.Handle{1}, EncryptedPrice: domain.Handle{2}}
		_, err := h.orch.RequestBidDecryption(context.Background(), bid, h.orch.Keypair())
		assert.ErrorIs(t, err, domain.ErrNoSnapshot)
	})
}

func TestSettleAuction(t *testing.T) {
	a := activeAuction(domain.NativeCurrency)
	a.settleTo = ether(4)
	h := newHarness(t, a)
	a.owner = h.chain.wallet
	h.load(t)

	s, err := h.orch.SettleAuction(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseEndedPendingDecryption, s.Phase)
	assert.Equal(t, ether(4).String(), s.Auction.SettlementPrice.String())
	require.Len(t, h.chain.txs(), 1)
	assert.Equal(t, "settleAuction", h.chain.txs()[0].Method)
}

func TestMutations_InvalidateListingSummary(t *testing.T) {
	ctx := context.Background()
	a := activeAuction(domain.NativeCurrency)
	a.settleTo = ether(2)
	h := newHarness(t, a)
	a.owner = h.chain.wallet

	cache := &memSummaryCache{}
	listing := NewListingService(h.chain, cache, Sinks{}, ListingConfig{}, discardLogger())
	o := NewOrchestrator(auctionA, h.caller, h.orch.Keypair(), h.chain, h.fhe, newTestSigner(t),
		Sinks{Summaries: listing}, OrchestratorConfig{}, discardLogger())
	_, err := o.LoadSnapshot(ctx)
	require.NoError(t, err)

	res, err := listing.ListAuctions(ctx, h.caller)
	require.NoError(t, err)
	require.NotNil(t, res[0].Summary)
	assert.Equal(t, 0, res[0].Summary.Participants)
	require.Contains(t, cache.m, auctionA)

	_, err = o.PlaceBid(ctx, ether(1), ether(2))
	require.NoError(t, err)
	assert.NotContains(t, cache.m, auctionA, "a bid evicts the cached summary")

	res, err = listing.ListAuctions(ctx, h.caller)
	require.NoError(t, err)
	assert.Equal(t, 1, res[0].Summary.Participants)
	require.Contains(t, cache.m, auctionA)

	_, err = o.SettleAuction(ctx)
	require.NoError(t, err)
	assert.NotContains(t, cache.m, auctionA, "settlement evicts the cached summary")

	res, err = listing.ListAuctions(ctx, h.caller)
	require.NoError(t, err)
	assert.Equal(t, domain.SummaryStatusEnded, res[0].Summary.Status)
}

func TestSettleAuction_RevertKeepsSnapshot(t *testing.T) {
	h := newHarness(t, activeAuction(domain.NativeCurrency))
	prev := h.load(t)
	h.chain.txErr["settleAuction"] = errBoom

	_, err := h.orch.SettleAuction(context.Background())
	assert.ErrorIs(t, err, domain.ErrTransactionReverted)
	assert.Same(t, prev, h.orch.Snapshot())
	assert.Equal(t, domain.PhaseActive, h.orch.Snapshot().Phase)
}

func TestArchivedAuction(t *testing.T) {
	got, ok := ArchivedAuction(ArchivePath(auctionA))
	require.True(t, ok)
	assert.Equal(t, auctionA, got)

	for _, p := range []string{
		"auctions/" + domain.AddressString(auctionA) + "/transactions.jsonl",
		"auctions/not-an-address/settlement.json",
		"other/" + domain.AddressString(auctionA) + "/settlement.json",
	} {
		_, ok := ArchivedAuction(p)
		assert.False(t, ok, p)
	}
}
