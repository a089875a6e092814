package signature

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"

	"github.com/vineethsai/etdi-go/tooldef"
)

// Sign computes the detached signature for def with the given algorithm and
// private key, writing algorithm and signature into def.Security. The
// algorithm identifier is part of the signed payload, so it is fixed before
// the payload is computed.
func Sign(def *tooldef.ToolDefinition, algorithm string, key crypto.PrivateKey) error {
	if def.Security == nil {
		def.Security = &tooldef.SecurityInfo{}
	}
	def.Security.Algorithm = algorithm
	def.Security.Signature = nil

	payload, err := tooldef.SigningPayload(def)
	if err != nil {
		return fmt.Errorf("Sign: %w", err)
	}

	sig, err := signPayload(algorithm, key, payload)
	if err != nil {
		return fmt.Errorf("Sign: tool %s: %w", def.ID, err)
	}
	def.Security.Signature = sig
	return nil
}

func signPayload(algorithm string, key crypto.PrivateKey, payload []byte) ([]byte, error) {
	switch algorithm {
	case AlgEd25519:
		priv, ok := key.(ed25519.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("algorithm %s requires an ed25519 private key, got %T", algorithm, key)
		}
		return ed25519.Sign(priv, payload), nil
	case AlgECDSAP256:
		priv, ok := key.(*ecdsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("algorithm %s requires an ecdsa private key, got %T", algorithm, key)
		}
		digest := sha256.Sum256(payload)
		return ecdsa.SignASN1(rand.Reader, priv, digest[:])
	case AlgRSAPSSSHA2:
		priv, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("algorithm %s requires an rsa private key, got %T", algorithm, key)
		}
		digest := sha256.Sum256(payload)
		return rsa.SignPSS(rand.Reader, priv, crypto.SHA256, digest[:], nil)
	default:
		return nil, fmt.Errorf("unknown signature algorithm %q", algorithm)
	}
}
