package fhe

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/crypto/nacl/box"

	"github.com/alanyoungcy/fheauction/internal/domain"
)

// Reencrypt asks the gateway to re-encrypt one ciphertext handle under the
// request's public key and opens the reply with its private key.
func (c *Client) Reencrypt(ctx context.Context, req domain.ReencryptRequest) (*big.Int, error) {
	fail := func(err error) (*big.Int, error) {
		return nil, fmt.Errorf("%w: reencrypt %s: %w", domain.ErrEncryption, req.Handle.Hex(), err)
	}

	pub, err := keyArray(req.Keypair.PublicKey, "public key")
	if err != nil {
		return fail(err)
	}
	priv, err := keyArray(req.Keypair.PrivateKey, "private key")
	if err != nil {
		return fail(err)
	}
	if len(req.Signature) == 0 {
		return fail(errors.New("missing signature"))
	}
	if err := c.EnsureInitialized(ctx); err != nil {
		return fail(err)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var resp reencryptResponse
	err = c.doRequest(ctx, http.MethodPost, "/reencrypt", reencryptRequest{
		Handle:          req.Handle.Hex(),
		PublicKey:       hexutil.Encode(req.Keypair.PublicKey),
		Signature:       hexutil.Encode(req.Signature),
		ContractAddress: domain.AddressString(req.Contract),
		UserAddress:     domain.AddressString(req.User),
	}, &resp)
	if err != nil {
		return fail(err)
	}

	sealed, err := hexutil.Decode(resp.Ciphertext)
	if err != nil {
		return fail(fmt.Errorf("ciphertext: %w", err))
	}
	plain, ok := box.OpenAnonymous(nil, sealed, pub, priv)
	if !ok {
		return fail(errors.New("reply was not sealed to this keypair"))
	}
	return new(big.Int).SetBytes(plain), nil
}
