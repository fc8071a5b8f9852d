package inMemorySigner

import (
	"bytes"
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// InMemorySigner signs with a secp256k1 key held in process memory. Key
// custody beyond that is out of scope; production deployments wrap external
// key stores behind the same interface.
type InMemorySigner struct {
	privateKey *ecdsa.PrivateKey
}

func NewInMemorySigner(privateKey *ecdsa.PrivateKey) *InMemorySigner {
	return &InMemorySigner{privateKey: privateKey}
}

// NewRandomSigner generates a fresh key. Used by tests and the keygen
// command.
func NewRandomSigner() (*InMemorySigner, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return NewInMemorySigner(key), nil
}

// Address returns the identity the signer's signatures recover to.
func (ims *InMemorySigner) Address() common.Address {
	return crypto.PubkeyToAddress(ims.privateKey.PublicKey)
}

// SignMessage produces a 65-byte [R || S || V] recoverable signature over
// keccak256(data).
func (ims *InMemorySigner) SignMessage(data []byte) ([]byte, error) {
	digest := crypto.Keccak256(data)
	sig, err := crypto.Sign(digest, ims.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}
	return sig, nil
}

// VerifyMessage checks that signature over keccak256(message) recovers to
// the given uncompressed public key.
func (ims *InMemorySigner) VerifyMessage(publicKey []byte, message []byte, signature []byte) (bool, error) {
	if len(signature) != crypto.SignatureLength {
		return false, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(signature))
	}
	digest := crypto.Keccak256(message)
	recovered, err := crypto.Ecrecover(digest, signature)
	if err != nil {
		return false, fmt.Errorf("failed to recover public key: %w", err)
	}
	return bytes.Equal(recovered, publicKey), nil
}
