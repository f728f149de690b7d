package service

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/fheauction/internal/domain"
)

type memSummaryCache struct {
	mu sync.Mutex
	m  map[common.Address]domain.Summary
}

func (c *memSummaryCache) Set(_ context.Context, s domain.Summary) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.m == nil {
		c.m = map[common.Address]domain.Summary{}
	}
	c.m[s.Address] = s
	return nil
}

func (c *memSummaryCache) Get(_ context.Context, a common.Address) (domain.Summary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.m[a]
	if !ok {
		return domain.Summary{}, domain.ErrNotFound
	}
	return s, nil
}

func (c *memSummaryCache) Invalidate(_ context.Context, a common.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, a)
	return nil
}

func newListing(t *testing.T, cache domain.SummaryCache) (*ListingService, *fakeChain, *fakeBus) {
	t.Helper()
	chain := newFakeChain(newTestSigner(t).Address())
	bus := &fakeBus{}
	return NewListingService(chain, cache, Sinks{Bus: bus}, ListingConfig{Concurrency: 2}, discardLogger()), chain, bus
}

func TestListAuctions_PartialFailure(t *testing.T) {
	svc, chain, _ := newListing(t, nil)
	a := chain.addAuction(auctionA, activeAuction(domain.NativeCurrency))
	a.bids = make([]domain.EncryptedBid, 3)
	chain.addAuction(auctionB, activeAuction(domain.NativeCurrency))
	c := chain.addAuction(auctionC, activeAuction(payTok))
	c.active = false
	c.owner = chain.wallet
	chain.readErr["owner@"+domain.AddressString(auctionB)] = errBoom

	res, err := svc.ListAuctions(context.Background(), chain.wallet)
	require.NoError(t, err)
	require.Len(t, res, 3)

	assert.Equal(t, auctionA, res[0].Address)
	require.NoError(t, res[0].Err)
	assert.Equal(t, 3, res[0].Summary.Participants)
	assert.Equal(t, domain.SummaryStatusActive, res[0].Summary.Status)
	assert.False(t, res[0].Summary.IsOwner)
	assert.Equal(t, "5", res[0].Summary.MaxParticipant.String())

	assert.Equal(t, auctionB, res[1].Address)
	assert.Nil(t, res[1].Summary)
	assert.ErrorIs(t, res[1].Err, domain.ErrChainRead)
	assert.ErrorIs(t, res[1].Err, errBoom)

	require.NoError(t, res[2].Err)
	assert.Equal(t, domain.SummaryStatusEnded, res[2].Summary.Status)
	assert.True(t, res[2].Summary.IsOwner)
	assert.Equal(t, payTok, res[2].Summary.PaymentToken)
}

func TestListAuctions_FactoryFailure(t *testing.T) {
	svc, chain, _ := newListing(t, nil)
	chain.readErr["getAllAuctions"] = errBoom

	_, err := svc.ListAuctions(context.Background(), chain.wallet)
	assert.ErrorIs(t, err, domain.ErrChainRead)
}

func TestListAuctions_UsesCache(t *testing.T) {
	cache := &memSummaryCache{}
	svc, chain, _ := newListing(t, cache)
	chain.addAuction(auctionA, activeAuction(domain.NativeCurrency))

	_, err := svc.ListAuctions(context.Background(), chain.wallet)
	require.NoError(t, err)
	reads := chain.readCount("owner")

	res, err := svc.ListAuctions(context.Background(), ownerAddr)
	require.NoError(t, err)
	assert.Equal(t, reads, chain.readCount("owner"))
	assert.True(t, res[0].Summary.IsOwner, "ownership is evaluated per caller")

	svc.Invalidate(context.Background(), auctionA)
	_, err = svc.Summary(context.Background(), auctionA, ownerAddr)
	require.NoError(t, err)
	assert.Equal(t, reads+1, chain.readCount("owner"))
}

func validParams() domain.CreateAuctionParams {
	return domain.CreateAuctionParams{
		Asset:          assetTok,
		PaymentToken:   domain.NativeCurrency,
		Quantity:       ether(5),
		Duration:       90 * time.Minute,
		MaxParticipant: big.NewInt(10),
	}
}

func TestCreateAuction_InsufficientBalanceSendsNothing(t *testing.T) {
	svc, chain, bus := newListing(t, nil)
	chain.balances[assetTok] = ether(3)

	_, err := svc.CreateAuction(context.Background(), validParams())
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	assert.Empty(t, chain.txs())
	assert.Equal(t, 0, chain.readCount("allowance"))
	require.Len(t, bus.notices(), 1)
	assert.Equal(t, "error", bus.notices()[0].Envelope.Payload["level"])
}

func TestCreateAuction_ApprovesFactoryThenCreates(t *testing.T) {
	svc, chain, bus := newListing(t, nil)
	chain.balances[assetTok] = ether(5)

	rcpt, err := svc.CreateAuction(context.Background(), validParams())
	require.NoError(t, err)

	txs := chain.txs()
	require.Len(t, txs, 2)
	assert.Equal(t, "approve", txs[0].Method)
	assert.Equal(t, assetTok, txs[0].Contract)
	assert.Equal(t, factory, txs[0].Args[0])
	assert.Equal(t, "createAuction", txs[1].Method)
	assert.Equal(t, validParams().Duration, txs[1].Args[0].(domain.CreateAuctionParams).Duration)
	assert.NotEqual(t, common.Hash{}, rcpt.Hash)

	notices := bus.notices()
	require.Len(t, notices, 1)
	assert.Equal(t, rcpt.Hash.Hex(), notices[0].Envelope.Payload["tx_hash"])
}

func TestCreateAuction_ExistingAllowance(t *testing.T) {
	svc, chain, _ := newListing(t, nil)
	chain.balances[assetTok] = ether(9)
	chain.allowance[[2]common.Address{assetTok, factory}] = ether(5)

	_, err := svc.CreateAuction(context.Background(), validParams())
	require.NoError(t, err)
	txs := chain.txs()
	require.Len(t, txs, 1)
	assert.Equal(t, "createAuction", txs[0].Method)
}

func TestCreateAuction_Reverted(t *testing.T) {
	svc, chain, _ := newListing(t, nil)
	chain.balances[assetTok] = ether(9)
	chain.allowance[[2]common.Address{assetTok, factory}] = ether(9)
	chain.txErr["createAuction"] = errBoom

	_, err := svc.CreateAuction(context.Background(), validParams())
	assert.ErrorIs(t, err, domain.ErrTransactionReverted)
}

func TestValidateCreateParams(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *domain.CreateAuctionParams)
	}{
		{"missing asset", func(p *domain.CreateAuctionParams) { p.Asset = common.Address{} }},
		{"zero quantity", func(p *domain.CreateAuctionParams) { p.Quantity = new(big.Int) }},
		{"nil quantity", func(p *domain.CreateAuctionParams) { p.Quantity = nil }},
		{"short duration", func(p *domain.CreateAuctionParams) { p.Duration = 500 * time.Millisecond }},
		{"one participant", func(p *domain.CreateAuctionParams) { p.MaxParticipant = big.NewInt(1) }},
	}
	require.NoError(t, ValidateCreateParams(validParams()))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validParams()
			tt.mutate(&p)
			assert.ErrorIs(t, ValidateCreateParams(p), domain.ErrInvalidInput)
		})
	}
}
