package crypto

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/fheauction/internal/domain"
)

var (
	// EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)
	eip712DomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"),
	)

	// Reencrypt(bytes publicKey)
	reencryptTypeHash = ethcrypto.Keccak256([]byte("Reencrypt(bytes publicKey)"))
)

// Signer holds the wallet key and signs transactions and re-encryption
// authorizations with it.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    *big.Int
	txSigner   types.Signer
}

// NewSigner creates a Signer from a hex secp256k1 private key for chainID.
func NewSigner(privateKeyHex string, chainID int64) (*Signer, error) {
	keyBytes, err := decodeKeyHex(privateKeyHex)
	if err != nil {
		return nil, err
	}
	pk, err := ethcrypto.ToECDSA(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}
	id := big.NewInt(chainID)
	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
		chainID:    id,
		txSigner:   types.LatestSignerForChainID(id),
	}, nil
}

// Address returns the wallet address.
func (s *Signer) Address() common.Address {
	return s.address
}

// ChainID returns the chain the signer signs for.
func (s *Signer) ChainID() *big.Int {
	return new(big.Int).Set(s.chainID)
}

// SignTx signs tx for the configured chain.
func (s *Signer) SignTx(tx *types.Transaction) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, s.txSigner, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: signing tx: %w", err)
	}
	return signed, nil
}

// SignReencryptAuthorization signs the EIP-712 payload that lets the gateway
// re-encrypt ciphertexts of auth.VerifyingContract under auth.PublicKey. The
// 65-byte signature is r || s || v with v in {27,28}.
func (s *Signer) SignReencryptAuthorization(auth domain.ReencryptAuthorization) ([]byte, error) {
	sig, err := ethcrypto.Sign(ReencryptDigest(auth), s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: signing authorization: %w", err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}
	return sig, nil
}

// ReencryptDigest returns the EIP-712 digest of auth:
//
//	keccak256("\x19\x01" || domainSeparator || keccak256(typeHash || keccak256(publicKey)))
func ReencryptDigest(auth domain.ReencryptAuthorization) []byte {
	domainSep := ethcrypto.Keccak256(
		concatBytes(
			eip712DomainTypeHash,
			ethcrypto.Keccak256([]byte(auth.Name)),
			ethcrypto.Keccak256([]byte(auth.Version)),
			bigIntTo32Bytes(big.NewInt(auth.ChainID)),
			common.LeftPadBytes(auth.VerifyingContract.Bytes(), 32),
		),
	)
	structHash := ethcrypto.Keccak256(
		concatBytes(reencryptTypeHash, ethcrypto.Keccak256(auth.PublicKey)),
	)
	return ethcrypto.Keccak256(concatBytes([]byte{0x19, 0x01}, domainSep, structHash))
}

func addressOf(keyBytes []byte) (string, error) {
	pk, err := ethcrypto.ToECDSA(keyBytes)
	if err != nil {
		return "", err
	}
	return domain.AddressString(ethcrypto.PubkeyToAddress(pk.PublicKey)), nil
}

// bigIntTo32Bytes returns a 32-byte big-endian representation of n.
func bigIntTo32Bytes(n *big.Int) []byte {
	return common.LeftPadBytes(n.Bytes(), 32)
}

func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
