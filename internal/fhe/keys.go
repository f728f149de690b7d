package fhe

import (
	"crypto/rand"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/nacl/box"

	"github.com/alanyoungcy/fheauction/internal/domain"
)

// GenerateKeypair returns a fresh X25519 re-encryption keypair.
func (c *Client) GenerateKeypair() (domain.Keypair, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return domain.Keypair{}, fmt.Errorf("%w: generate keypair: %w", domain.ErrEncryption, err)
	}
	return domain.Keypair{PublicKey: pub[:], PrivateKey: priv[:]}, nil
}

// CreateAuthorization builds the payload the wallet signs to let the gateway
// re-encrypt contract's ciphertexts under publicKey.
func (c *Client) CreateAuthorization(publicKey []byte, contract common.Address) domain.ReencryptAuthorization {
	return domain.ReencryptAuthorization{
		Name:              AuthorizationName,
		Version:           AuthorizationVersion,
		ChainID:           c.chainID,
		VerifyingContract: contract,
		PublicKey:         append([]byte(nil), publicKey...),
	}
}

func keyArray(b []byte, what string) (*[32]byte, error) {
	if len(b) != 32 {
		return nil, fmt.Errorf("%s has %d bytes, want 32", what, len(b))
	}
	var k [32]byte
	copy(k[:], b)
	return &k, nil
}
