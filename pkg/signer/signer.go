package signer

// Signer produces recoverable signatures over arbitrary messages. The
// message is hashed by the implementation, so callers pass the raw signing
// bytes.
type Signer interface {
	SignMessage(data []byte) ([]byte, error)
	VerifyMessage(publicKey []byte, message []byte, signature []byte) (bool, error)
}
