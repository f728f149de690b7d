package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/fheauction/internal/crypto"
	"github.com/alanyoungcy/fheauction/internal/domain"
)

// anvil/hardhat development account #0.
const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var (
	auctionA  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	auctionB  = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	auctionC  = common.HexToAddress("0x00000000000000000000000000000000000000a3")
	factory   = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	assetTok  = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	payTok    = common.HexToAddress("0x00000000000000000000000000000000000000c2")
	ownerAddr = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	otherAddr = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

var errBoom = errors.New("boom")

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSigner(t *testing.T) *crypto.Signer {
	t.Helper()
	s, err := crypto.NewSigner(testKey, 31337)
	require.NoError(t, err)
	return s
}

type fakeAuction struct {
	owner      common.Address
	asset      common.Address
	payment    common.Address
	quantity   *big.Int
	start, end time.Time
	maxPart    *big.Int
	active     bool
	settlement *big.Int
	settleTo   *big.Int // settlement price applied by settleAuction
	bids       []domain.EncryptedBid
	decrypted  []domain.DecryptedBid
	locked     map[common.Address]*big.Int
}

type sentTx struct {
	Method   string
	Contract common.Address
	Value    *big.Int
	Args     []any
}

type fakeChain struct {
	mu sync.Mutex

	wallet    common.Address
	factory   common.Address
	auctions  map[common.Address]*fakeAuction
	order     []common.Address
	balances  map[common.Address]*big.Int // token -> wallet balance
	allowance map[[2]common.Address]*big.Int

	readErr map[string]error // "method" or "method@address"
	txErr   map[string]error

	reads map[string]int
	sent  []sentTx
	block uint64
}

func newFakeChain(wallet common.Address) *fakeChain {
	return &fakeChain{
		wallet:    wallet,
		factory:   factory,
		auctions:  map[common.Address]*fakeAuction{},
		balances:  map[common.Address]*big.Int{},
		allowance: map[[2]common.Address]*big.Int{},
		readErr:   map[string]error{},
		txErr:     map[string]error{},
		reads:     map[string]int{},
	}
}

func (f *fakeChain) addAuction(addr common.Address, a *fakeAuction) *fakeAuction {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a.locked == nil {
		a.locked = map[common.Address]*big.Int{}
	}
	if a.settlement == nil {
		a.settlement = new(big.Int)
	}
	f.auctions[addr] = a
	f.order = append(f.order, addr)
	return a
}

// read records a call and returns the auction, or an injected error.
func (f *fakeChain) read(method string, addr common.Address) (*fakeAuction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads[method]++
	if err := f.readErr[method+"@"+strings.ToLower(addr.Hex())]; err != nil {
		return nil, err
	}
	if err := f.readErr[method]; err != nil {
		return nil, err
	}
	a, ok := f.auctions[addr]
	if !ok {
		return nil, errors.New("no contract code at address")
	}
	return a, nil
}

func (f *fakeChain) readCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads[method]
}

func (f *fakeChain) txs() []sentTx {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentTx(nil), f.sent...)
}

func (f *fakeChain) send(method string, contract common.Address, value *big.Int, args ...any) (domain.TxReceipt, error) {
	if err := f.txErr[method]; err != nil {
		return domain.TxReceipt{}, err
	}
	f.block++
	f.sent = append(f.sent, sentTx{Method: method, Contract: contract, Value: value, Args: args})
	return domain.TxReceipt{
		Hash:        common.BigToHash(big.NewInt(int64(len(f.sent)))),
		BlockNumber: f.block,
		GasUsed:     21000,
	}, nil
}

func (f *fakeChain) Wallet() common.Address { return f.wallet }
func (f *fakeChain) Factory() common.Address { return f.factory }

func (f *fakeChain) Owner(_ context.Context, addr common.Address) (common.Address, error) {
	a, err := f.read("owner", addr)
	if err != nil {
		return common.Address{}, err
	}
	return a.owner, nil
}

func (f *fakeChain) Asset(_ context.Context, addr common.Address) (common.Address, error) {
	a, err := f.read("asset", addr)
	if err != nil {
		return common.Address{}, err
	}
	return a.asset, nil
}

func (f *fakeChain) PaymentToken(_ context.Context, addr common.Address) (common.Address, error) {
	a, err := f.read("paymentToken", addr)
	if err != nil {
		return common.Address{}, err
	}
	return a.payment, nil
}

func (f *fakeChain) IsActive(_ context.Context, addr common.Address) (bool, error) {
	a, err := f.read("isActive", addr)
	if err != nil {
		return false, err
	}
	return a.active, nil
}

func (f *fakeChain) Quantity(_ context.Context, addr common.Address) (*big.Int, error) {
	a, err := f.read("quantity", addr)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(a.quantity), nil
}

func (f *fakeChain) StartTime(_ context.Context, addr common.Address) (time.Time, error) {
	a, err := f.read("startTime", addr)
	if err != nil {
		return time.Time{}, err
	}
	return a.start, nil
}

func (f *fakeChain) EndTime(_ context.Context, addr common.Address) (time.Time, error) {
	a, err := f.read("endTime", addr)
	if err != nil {
		return time.Time{}, err
	}
	return a.end, nil
}

func (f *fakeChain) MaxParticipant(_ context.Context, addr common.Address) (*big.Int, error) {
	a, err := f.read("maxParticipant", addr)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(a.maxPart), nil
}

func (f *fakeChain) SettlementPrice(_ context.Context, addr common.Address) (*big.Int, error) {
	a, err := f.read("settlementPrice", addr)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(a.settlement), nil
}

func (f *fakeChain) LockedFunds(_ context.Context, addr, user common.Address) (*big.Int, error) {
	a, err := f.read("lockedFunds", addr)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := a.locked[user]; ok {
		return new(big.Int).Set(v), nil
	}
	return new(big.Int), nil
}

func (f *fakeChain) GetAllBids(_ context.Context, addr common.Address) ([]domain.EncryptedBid, error) {
	a, err := f.read("getAllBids", addr)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.EncryptedBid(nil), a.bids...), nil
}

func (f *fakeChain) GetAllDecryptedBids(_ context.Context, addr common.Address) ([]domain.DecryptedBid, error) {
	a, err := f.read("getAllDecryptedBids", addr)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.DecryptedBid(nil), a.decrypted...), nil
}

func (f *fakeChain) LockFunds(_ context.Context, addr common.Address, amount, value *big.Int) (domain.TxReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rcpt, err := f.send("lockFunds", addr, value, amount)
	if err != nil {
		return rcpt, err
	}
	a := f.auctions[addr]
	cur, ok := a.locked[f.wallet]
	if !ok {
		cur = new(big.Int)
	}
	a.locked[f.wallet] = new(big.Int).Add(cur, amount)
	return rcpt, nil
}

func (f *fakeChain) PlaceEncryptedBid(_ context.Context, addr common.Address, q, p domain.Handle, proof []byte) (domain.TxReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rcpt, err := f.send("placeEncryptedBid", addr, nil, q, p, proof)
	if err != nil {
		return rcpt, err
	}
	a := f.auctions[addr]
	a.bids = append(a.bids, domain.EncryptedBid{Bidder: f.wallet, EncryptedQuantity: q, EncryptedPrice: p})
	return rcpt, nil
}

func (f *fakeChain) SettleAuction(_ context.Context, addr common.Address) (domain.TxReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rcpt, err := f.send("settleAuction", addr, nil)
	if err != nil {
		return rcpt, err
	}
	a := f.auctions[addr]
	a.active = false
	if a.settleTo != nil {
		a.settlement = new(big.Int).Set(a.settleTo)
	}
	return rcpt, nil
}

func (f *fakeChain) GetAllAuctions(context.Context) ([]common.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads["getAllAuctions"]++
	if err := f.readErr["getAllAuctions"]; err != nil {
		return nil, err
	}
	return append([]common.Address(nil), f.order...), nil
}

func (f *fakeChain) CreateAuction(_ context.Context, p domain.CreateAuctionParams) (domain.TxReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.send("createAuction", f.factory, nil, p)
}

func (f *fakeChain) Allowance(_ context.Context, token, owner, spender common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads["allowance"]++
	if err := f.readErr["allowance"]; err != nil {
		return nil, err
	}
	if v, ok := f.allowance[[2]common.Address{token, spender}]; ok {
		return new(big.Int).Set(v), nil
	}
	return new(big.Int), nil
}

func (f *fakeChain) Approve(_ context.Context, token, spender common.Address, amount *big.Int) (domain.TxReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rcpt, err := f.send("approve", token, nil, spender, amount)
	if err != nil {
		return rcpt, err
	}
	f.allowance[[2]common.Address{token, spender}] = new(big.Int).Set(amount)
	return rcpt, nil
}

func (f *fakeChain) BalanceOf(_ context.Context, token, owner common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads["balanceOf"]++
	if err := f.readErr["balanceOf"]; err != nil {
		return nil, err
	}
	if v, ok := f.balances[token]; ok {
		return new(big.Int).Set(v), nil
	}
	return new(big.Int), nil
}

// fakeFHE stands in for the gateway client.
type fakeFHE struct {
	mu sync.Mutex

	plain      map[domain.Handle]*big.Int
	counter    byte
	encryptErr error
	reencErrAt int // 1-based reencrypt call that fails; 0 never

	encryptCalls int
	reencCalls   []domain.ReencryptRequest
}

func newFakeFHE() *fakeFHE {
	return &fakeFHE{plain: map[domain.Handle]*big.Int{}}
}

func (f *fakeFHE) GenerateKeypair() (domain.Keypair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counter++
	pub := make([]byte, 32)
	priv := make([]byte, 32)
	pub[0], priv[0] = f.counter, f.counter
	pub[1] = 0xaa
	return domain.Keypair{PublicKey: pub, PrivateKey: priv}, nil
}

func (f *fakeFHE) CreateAuthorization(publicKey []byte, contract common.Address) domain.ReencryptAuthorization {
	return domain.ReencryptAuthorization{
		Name:              "Authorization token",
		Version:           "1",
		ChainID:           31337,
		VerifyingContract: contract,
		PublicKey:         publicKey,
	}
}

func (f *fakeFHE) store(v *big.Int) domain.Handle {
	f.counter++
	h := domain.Handle{0xee, f.counter}
	f.plain[h] = new(big.Int).Set(v)
	return h
}

func (f *fakeFHE) EncryptInput(_ context.Context, _, _ common.Address, values ...*big.Int) (domain.EncryptedInput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.encryptCalls++
	if f.encryptErr != nil {
		return domain.EncryptedInput{}, f.encryptErr
	}
	in := domain.EncryptedInput{Proof: []byte("proof")}
	for _, v := range values {
		in.Handles = append(in.Handles, f.store(v))
	}
	return in, nil
}

func (f *fakeFHE) Reencrypt(_ context.Context, req domain.ReencryptRequest) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reencCalls = append(f.reencCalls, req)
	if f.reencErrAt == len(f.reencCalls) {
		return nil, errBoom
	}
	v, ok := f.plain[req.Handle]
	if !ok {
		return nil, errors.New("unknown handle")
	}
	return new(big.Int).Set(v), nil
}

type published struct {
	Channel  string
	Envelope struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
}

// fakeBus records publishes; streams are unused by the services.
type fakeBus struct {
	mu   sync.Mutex
	msgs []published
}

func (b *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	var p published
	p.Channel = channel
	if err := json.Unmarshal(payload, &p.Envelope); err != nil {
		return err
	}
	b.mu.Lock()
	b.msgs = append(b.msgs, p)
	b.mu.Unlock()
	return nil
}

func (b *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) { return nil, nil }

func (b *fakeBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (b *fakeBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

// notices returns the notices published on the global notice channel.
func (b *fakeBus) notices() []published {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []published
	for _, m := range b.msgs {
		if m.Channel == domain.ChannelNotices {
			out = append(out, m)
		}
	}
	return out
}

type fakeArchive struct {
	mu    sync.Mutex
	paths []string
}

func (a *fakeArchive) Exists(_ context.Context, path string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, p := range a.paths {
		if p == path {
			return true, nil
		}
	}
	return false, nil
}

func (a *fakeArchive) Put(_ context.Context, path string, data io.Reader, _ string) error {
	if _, err := io.ReadAll(data); err != nil {
		return err
	}
	a.mu.Lock()
	a.paths = append(a.paths, path)
	a.mu.Unlock()
	return nil
}

type fakeLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *fakeLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = map[string]bool{}
	}
	if l.held[key] {
		return nil, domain.ErrLockHeld
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}, nil
}

type fakeTxStore struct {
	mu   sync.Mutex
	recs []domain.TxRecord
}

func (s *fakeTxStore) Record(_ context.Context, rec domain.TxRecord) error {
	s.mu.Lock()
	s.recs = append(s.recs, rec)
	s.mu.Unlock()
	return nil
}

func (s *fakeTxStore) ListByContract(context.Context, common.Address, domain.ListOpts) ([]domain.TxRecord, error) {
	return nil, nil
}
