package fhe

// Gateway wire formats. Binary values are 0x-prefixed hex.

type keysResponse struct {
	PublicKey string `json:"public_key"`
}

type inputProofRequest struct {
	ContractAddress string `json:"contract_address"`
	UserAddress     string `json:"user_address"`
	Ciphertext      string `json:"ciphertext"`
}

type inputProofResponse struct {
	Handles []string `json:"handles"`
	Proof   string   `json:"proof"`
}

type reencryptRequest struct {
	Handle          string `json:"handle"`
	PublicKey       string `json:"public_key"`
	Signature       string `json:"signature"`
	ContractAddress string `json:"contract_address"`
	UserAddress     string `json:"user_address"`
}

type reencryptResponse struct {
	Ciphertext string `json:"ciphertext"`
}
