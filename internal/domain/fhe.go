package domain

import "github.com/ethereum/go-ethereum/common"

// Keypair is an ephemeral re-encryption keypair. It is generated per
// auction-viewing session, never persisted, and unrelated to the wallet key.
type Keypair struct {
	PublicKey  []byte
	PrivateKey []byte
}

// EncryptedInput is the result of encrypting a set of plaintext integers:
// one ciphertext handle per input value and a single proof covering them all.
type EncryptedInput struct {
	Handles []Handle
	Proof   []byte
}

// ReencryptAuthorization is the structured payload a wallet signs to let the
// gateway re-encrypt ciphertexts of one contract under PublicKey. It binds
// only the public key and the contract, so one signature serves every
// ciphertext field of that contract.
type ReencryptAuthorization struct {
	Name              string
	Version           string
	ChainID           int64
	VerifyingContract common.Address
	PublicKey         []byte
}

// ReencryptRequest carries everything the gateway needs to re-encrypt one
// ciphertext handle for the user.
type ReencryptRequest struct {
	Handle    Handle
	Keypair   Keypair
	Signature []byte
	Contract  common.Address
	User      common.Address
}
