// Package fhetest provides an in-memory FHE gateway for tests. It speaks the
// same HTTP API as a real gateway but keeps plaintexts in a map instead of
// running any homomorphic computation.
package fhetest

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/crypto/nacl/box"

	"github.com/alanyoungcy/fheauction/internal/fhe"
)

// ReencryptCall records one /reencrypt request.
type ReencryptCall struct {
	Handle    common.Hash
	Signature []byte
	Contract  common.Address
	User      common.Address
}

// Gateway is a fake gateway served by an httptest.Server.
type Gateway struct {
	*httptest.Server

	pub  *[32]byte
	priv *[32]byte

	mu          sync.Mutex
	values      map[common.Hash]*big.Int
	counter     uint64
	keyRequests int
	inputs      int
	reencrypts  []ReencryptCall
	failInput   bool
	failReenc   bool
}

// NewGateway starts a fake gateway. Close it when done.
func NewGateway() *Gateway {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		panic(err)
	}
	g := &Gateway{pub: pub, priv: priv, values: map[common.Hash]*big.Int{}}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /keys", g.handleKeys)
	mux.HandleFunc("POST /input-proof", g.handleInputProof)
	mux.HandleFunc("POST /reencrypt", g.handleReencrypt)
	g.Server = httptest.NewServer(mux)
	return g
}

// Store registers a plaintext and returns a handle for it, as if the value
// had been encrypted on-chain.
func (g *Gateway) Store(v *big.Int) common.Hash {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.storeLocked(v)
}

func (g *Gateway) storeLocked(v *big.Int) common.Hash {
	g.counter++
	var seed [8]byte
	binary.BigEndian.PutUint64(seed[:], g.counter)
	h := common.Hash(sha256.Sum256(append(seed[:], v.Bytes()...)))
	g.values[h] = new(big.Int).Set(v)
	return h
}

// Value returns the plaintext behind handle.
func (g *Gateway) Value(handle common.Hash) (*big.Int, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	v, ok := g.values[handle]
	return v, ok
}

// KeyRequests returns how many times the network key was fetched.
func (g *Gateway) KeyRequests() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.keyRequests
}

// Inputs returns how many input proofs were issued.
func (g *Gateway) Inputs() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inputs
}

// Reencrypts returns the re-encryption requests received so far.
func (g *Gateway) Reencrypts() []ReencryptCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]ReencryptCall(nil), g.reencrypts...)
}

// FailInputs makes /input-proof answer 500.
func (g *Gateway) FailInputs(fail bool) {
	g.mu.Lock()
	g.failInput = fail
	g.mu.Unlock()
}

// FailReencrypts makes /reencrypt answer 500.
func (g *Gateway) FailReencrypts(fail bool) {
	g.mu.Lock()
	g.failReenc = fail
	g.mu.Unlock()
}

func (g *Gateway) handleKeys(w http.ResponseWriter, _ *http.Request) {
	g.mu.Lock()
	g.keyRequests++
	g.mu.Unlock()
	writeJSON(w, map[string]string{"public_key": hexutil.Encode(g.pub[:])})
}

func (g *Gateway) handleInputProof(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ContractAddress string `json:"contract_address"`
		UserAddress     string `json:"user_address"`
		Ciphertext      string `json:"ciphertext"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sealed, err := hexutil.Decode(req.Ciphertext)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	plain, ok := box.OpenAnonymous(nil, sealed, g.pub, g.priv)
	if !ok {
		http.Error(w, "cannot open input", http.StatusBadRequest)
		return
	}
	values, err := fhe.UnpackValues(plain)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failInput {
		http.Error(w, "input proof unavailable", http.StatusInternalServerError)
		return
	}
	g.inputs++
	handles := make([]string, len(values))
	for i, v := range values {
		handles[i] = g.storeLocked(v).Hex()
	}
	proof := sha256.Sum256([]byte(req.ContractAddress + req.UserAddress + req.Ciphertext))
	writeJSON(w, map[string]any{"handles": handles, "proof": hexutil.Encode(proof[:])})
}

func (g *Gateway) handleReencrypt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Handle          string `json:"handle"`
		PublicKey       string `json:"public_key"`
		Signature       string `json:"signature"`
		ContractAddress string `json:"contract_address"`
		UserAddress     string `json:"user_address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	pubBytes, err := hexutil.Decode(req.PublicKey)
	if err != nil || len(pubBytes) != 32 {
		http.Error(w, "bad public key", http.StatusBadRequest)
		return
	}
	sig, _ := hexutil.Decode(req.Signature)

	g.mu.Lock()
	defer g.mu.Unlock()
	handle := common.HexToHash(req.Handle)
	g.reencrypts = append(g.reencrypts, ReencryptCall{
		Handle:    handle,
		Signature: sig,
		Contract:  common.HexToAddress(req.ContractAddress),
		User:      common.HexToAddress(req.UserAddress),
	})
	if g.failReenc {
		http.Error(w, "reencryption unavailable", http.StatusInternalServerError)
		return
	}
	v, ok := g.values[handle]
	if !ok {
		http.Error(w, "unknown handle", http.StatusNotFound)
		return
	}

	var pub [32]byte
	copy(pub[:], pubBytes)
	sealed, err := box.SealAnonymous(nil, v.Bytes(), &pub, rand.Reader)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"ciphertext": hexutil.Encode(sealed)})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
