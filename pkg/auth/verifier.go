package auth

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/jeka-org/agent-forge/pkg/signer"
)

// signingDomain separates operation signatures from any other use of the
// same key.
const signingDomain = "agent-forge/v1"

var (
	ErrMissingSignature = errors.New("missing signature")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrSignerMismatch   = errors.New("signer does not match claimed identity")
)

// Actor is a claimed identity plus the recoverable signature authorizing one
// operation. Verification is per call; nothing about a previous call carries
// over.
type Actor struct {
	Address   common.Address
	Signature []byte
}

// Verifier checks that an operation's claimed actor actually signed it.
type Verifier struct{}

func NewVerifier() *Verifier {
	return &Verifier{}
}

// VerifyActor recovers the signer of the operation message and compares it
// against the actor's claimed address. The signature must cover the exact
// canonical payload bytes of the operation being attempted, so a signature
// for one operation can never authorize another.
func (v *Verifier) VerifyActor(actor Actor, opName string, payload []byte) error {
	if len(actor.Signature) == 0 {
		return ErrMissingSignature
	}
	if len(actor.Signature) != crypto.SignatureLength {
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidSignature, crypto.SignatureLength, len(actor.Signature))
	}

	digest := crypto.Keccak256(ConstructSignedMessage(opName, payload))
	pubKey, err := crypto.SigToPub(digest, actor.Signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	recovered := crypto.PubkeyToAddress(*pubKey)
	if recovered != actor.Address {
		return fmt.Errorf("%w: recovered %s, claimed %s", ErrSignerMismatch, recovered, actor.Address)
	}
	return nil
}

// ConstructSignedMessage creates the message a client signs for an
// operation: domain tag, operation name, then the canonical payload bytes.
func ConstructSignedMessage(opName string, payload []byte) []byte {
	message := fmt.Sprintf("%s:%s:", signingDomain, opName)
	return append([]byte(message), payload...)
}

// SignOperation is the client-side counterpart of VerifyActor.
func SignOperation(s signer.Signer, opName string, payload []byte) ([]byte, error) {
	return s.SignMessage(ConstructSignedMessage(opName, payload))
}
