package fhe

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/crypto/nacl/box"

	"github.com/alanyoungcy/fheauction/internal/domain"
)

const (
	// MaxInputValues is the most values one encrypted input can carry
	// (8 x 256 bits, the gateway's 2048-bit input budget).
	MaxInputValues = 8

	typeUint256 byte = 0x08
	valueSize        = 32
)

// EncryptInput seals values to the network key and asks the gateway for one
// ciphertext handle per value plus a single proof covering all of them. The
// proof is bound to contract and user.
func (c *Client) EncryptInput(ctx context.Context, contract, user common.Address, values ...*big.Int) (domain.EncryptedInput, error) {
	fail := func(err error) (domain.EncryptedInput, error) {
		return domain.EncryptedInput{}, fmt.Errorf("%w: encrypt input: %w", domain.ErrEncryption, err)
	}

	plain, err := packValues(values)
	if err != nil {
		return fail(err)
	}
	if err := c.EnsureInitialized(ctx); err != nil {
		return fail(err)
	}
	sealed, err := box.SealAnonymous(nil, plain, c.networkKey(), rand.Reader)
	if err != nil {
		return fail(err)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var resp inputProofResponse
	err = c.doRequest(ctx, http.MethodPost, "/input-proof", inputProofRequest{
		ContractAddress: domain.AddressString(contract),
		UserAddress:     domain.AddressString(user),
		Ciphertext:      hexutil.Encode(sealed),
	}, &resp)
	if err != nil {
		return fail(err)
	}

	if len(resp.Handles) != len(values) {
		return fail(fmt.Errorf("gateway returned %d handles for %d values", len(resp.Handles), len(values)))
	}
	out := domain.EncryptedInput{Handles: make([]domain.Handle, len(values))}
	for i, h := range resp.Handles {
		b, err := hexutil.Decode(h)
		if err != nil || len(b) != 32 {
			return fail(fmt.Errorf("handle %d is not 32 bytes of hex: %q", i, h))
		}
		copy(out.Handles[i][:], b)
	}
	if out.Proof, err = hexutil.Decode(resp.Proof); err != nil {
		return fail(fmt.Errorf("proof: %w", err))
	}
	return out, nil
}

// packValues lays each value out as a type tag followed by its 32-byte
// big-endian encoding.
func packValues(values []*big.Int) ([]byte, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("no values to encrypt")
	}
	if len(values) > MaxInputValues {
		return nil, fmt.Errorf("%d values exceed the limit of %d", len(values), MaxInputValues)
	}
	buf := make([]byte, 0, len(values)*(1+valueSize))
	for i, v := range values {
		if v == nil || v.Sign() < 0 || v.BitLen() > 8*valueSize {
			return nil, fmt.Errorf("value %d is not a uint256", i)
		}
		buf = append(buf, typeUint256)
		buf = append(buf, v.FillBytes(make([]byte, valueSize))...)
	}
	return buf, nil
}

// UnpackValues is the inverse of the input layout, used by gateways and
// tests to read a decrypted input.
func UnpackValues(b []byte) ([]*big.Int, error) {
	if len(b)%(1+valueSize) != 0 {
		return nil, fmt.Errorf("fhe: malformed input of %d bytes", len(b))
	}
	var out []*big.Int
	for off := 0; off < len(b); off += 1 + valueSize {
		if b[off] != typeUint256 {
			return nil, fmt.Errorf("fhe: unknown type tag 0x%02x", b[off])
		}
		out = append(out, new(big.Int).SetBytes(b[off+1:off+1+valueSize]))
	}
	return out, nil
}
