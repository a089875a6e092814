package signature

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	etdi "github.com/vineethsai/etdi-go"
)

// DefaultFreshness is the window inside which a signed request timestamp is
// accepted, in either direction to tolerate clock skew.
const DefaultFreshness = 5 * time.Minute

// SignedRequest is a tool invocation with a detached signature over its
// canonical payload. The arguments themselves are covered through their
// SHA-256, so large argument bodies are not re-encoded into the payload.
type SignedRequest struct {
	ToolID        string    `json:"tool_id"`
	ArgumentsJSON string    `json:"arguments_json"`
	Timestamp     time.Time `json:"timestamp"`
	Nonce         string    `json:"nonce"`
	Algorithm     string    `json:"algorithm"`
	Signature     []byte    `json:"signature"`
}

// RequestSigner signs invocation requests with a client key.
type RequestSigner struct {
	algorithm string
	key       crypto.PrivateKey
	now       func() time.Time
}

// NewRequestSigner builds a signer for one of the supported algorithms.
func NewRequestSigner(algorithm string, key crypto.PrivateKey) (*RequestSigner, error) {
	switch algorithm {
	case AlgEd25519, AlgECDSAP256, AlgRSAPSSSHA2:
	default:
		return nil, fmt.Errorf("NewRequestSigner: unknown signature algorithm %q", algorithm)
	}
	return &RequestSigner{algorithm: algorithm, key: key, now: time.Now}, nil
}

// SignRequest produces a signed invocation for toolID with the given
// argument body.
func (s *RequestSigner) SignRequest(toolID, argumentsJSON string) (*SignedRequest, error) {
	req := &SignedRequest{
		ToolID:        toolID,
		ArgumentsJSON: argumentsJSON,
		Timestamp:     s.now().UTC().Truncate(time.Second),
		Nonce:         uuid.NewString(),
		Algorithm:     s.algorithm,
	}
	payload, err := requestPayload(req)
	if err != nil {
		return nil, fmt.Errorf("SignRequest: %w", err)
	}
	sig, err := signPayload(s.algorithm, s.key, payload)
	if err != nil {
		return nil, fmt.Errorf("SignRequest: tool %s: %w", toolID, err)
	}
	req.Signature = sig
	return req, nil
}

// VerifyRequest checks a signed invocation against the client's public key
// and a freshness window. A zero window applies DefaultFreshness. Stale,
// future-dated, or tampered requests are rejected with a KindSignature
// error.
func VerifyRequest(key crypto.PublicKey, req *SignedRequest, window time.Duration, now time.Time) error {
	if req == nil || len(req.Signature) == 0 {
		return etdi.NewError(etdi.KindSignature, reqToolID(req), "request carries no signature")
	}
	if window <= 0 {
		window = DefaultFreshness
	}
	age := now.Sub(req.Timestamp)
	if age > window || age < -window {
		return etdi.NewError(etdi.KindSignature, req.ToolID,
			"request timestamp %s outside freshness window %s", req.Timestamp.Format(time.RFC3339), window)
	}

	payload, err := requestPayload(req)
	if err != nil {
		return etdi.NewError(etdi.KindSignature, req.ToolID, "canonical encoding failed: %v", err)
	}

	switch req.Algorithm {
	case AlgEd25519:
		pub, ok := key.(ed25519.PublicKey)
		if !ok || !ed25519.Verify(pub, payload, req.Signature) {
			return etdi.NewError(etdi.KindSignature, req.ToolID, "request signature mismatch")
		}
	case AlgECDSAP256:
		pub, ok := key.(*ecdsa.PublicKey)
		digest := sha256.Sum256(payload)
		if !ok || !ecdsa.VerifyASN1(pub, digest[:], req.Signature) {
			return etdi.NewError(etdi.KindSignature, req.ToolID, "request signature mismatch")
		}
	case AlgRSAPSSSHA2:
		pub, ok := key.(*rsa.PublicKey)
		if !ok {
			return etdi.NewError(etdi.KindSignature, req.ToolID, "request signature mismatch")
		}
		digest := sha256.Sum256(payload)
		if err := rsa.VerifyPSS(pub, crypto.SHA256, digest[:], req.Signature, nil); err != nil {
			return etdi.NewError(etdi.KindSignature, req.ToolID, "request signature mismatch")
		}
	default:
		return etdi.NewError(etdi.KindSignature, req.ToolID, "unknown signature algorithm %q", req.Algorithm)
	}
	return nil
}

// requestPayload is the canonical signed form: sorted-key JSON over the
// request fields with the argument body reduced to its SHA-256.
func requestPayload(req *SignedRequest) ([]byte, error) {
	argsSum := sha256.Sum256([]byte(req.ArgumentsJSON))
	return json.Marshal(map[string]any{
		"tool_id":          req.ToolID,
		"arguments_sha256": hex.EncodeToString(argsSum[:]),
		"timestamp":        req.Timestamp.UTC().Format(time.RFC3339),
		"nonce":            req.Nonce,
		"algorithm":        req.Algorithm,
	})
}

func reqToolID(req *SignedRequest) string {
	if req == nil {
		return ""
	}
	return req.ToolID
}
