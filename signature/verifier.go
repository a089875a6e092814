package signature

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"

	"go.uber.org/zap"

	etdi "github.com/vineethsai/etdi-go"
	"github.com/vineethsai/etdi-go/events"
	"github.com/vineethsai/etdi-go/tooldef"
)

// Supported detached-signature algorithm identifiers. The set is closed;
// a definition naming anything else fails verification.
const (
	AlgEd25519    = "ed25519"
	AlgECDSAP256  = "ecdsa-p256-sha256"
	AlgRSAPSSSHA2 = "rsa-pss-sha256"
)

const source = "signature_verifier"

// Result is the outcome of one verification. When Valid is false, Err
// carries an etdi.KindSignature error explaining the refusal.
type Result struct {
	Valid     bool
	Algorithm string
	Err       error
}

// Verifier checks detached tool definition signatures against provider
// trust anchors. Every Verify call emits exactly one SIGNATURE_VERIFIED or
// SIGNATURE_FAILED event.
type Verifier struct {
	keys   KeySource
	bus    *events.Bus
	logger *zap.Logger
}

// NewVerifier builds a Verifier publishing to bus.
func NewVerifier(keys KeySource, bus *events.Bus, logger *zap.Logger) *Verifier {
	return &Verifier{keys: keys, bus: bus, logger: logger}
}

// Verify recomputes the canonical signing payload of def and checks the
// detached signature against the provider's trust anchor. It fails closed:
// missing signatures, unknown algorithms, unknown providers, and malformed
// encodings all yield Valid=false with a reason, never an error escaping
// this boundary.
func (v *Verifier) Verify(ctx context.Context, def *tooldef.ToolDefinition) Result {
	if !def.IsSigned() {
		return v.fail(def, "", "definition carries no signature")
	}
	alg := def.Security.Algorithm

	payload, err := tooldef.SigningPayload(def)
	if err != nil {
		return v.fail(def, alg, "canonical encoding failed: %v", err)
	}

	key, err := v.keys.SigningKey(ctx, def.Provider)
	if err != nil {
		return v.fail(def, alg, "resolving provider key: %v", err)
	}

	sig := def.Security.Signature
	switch alg {
	case AlgEd25519:
		pub, ok := key.(ed25519.PublicKey)
		if !ok {
			return v.fail(def, alg, "trust anchor for provider %s is not an ed25519 key", def.Provider.ID)
		}
		if !ed25519.Verify(pub, payload, sig) {
			return v.fail(def, alg, "signature mismatch")
		}
	case AlgECDSAP256:
		pub, ok := key.(*ecdsa.PublicKey)
		if !ok {
			return v.fail(def, alg, "trust anchor for provider %s is not an ecdsa key", def.Provider.ID)
		}
		digest := sha256.Sum256(payload)
		if !ecdsa.VerifyASN1(pub, digest[:], sig) {
			return v.fail(def, alg, "signature mismatch")
		}
	case AlgRSAPSSSHA2:
		pub, ok := key.(*rsa.PublicKey)
		if !ok {
			return v.fail(def, alg, "trust anchor for provider %s is not an rsa key", def.Provider.ID)
		}
		digest := sha256.Sum256(payload)
		if err := rsa.VerifyPSS(pub, crypto.SHA256, digest[:], sig, nil); err != nil {
			return v.fail(def, alg, "signature mismatch")
		}
	default:
		return v.fail(def, alg, "unknown signature algorithm %q", alg)
	}

	v.bus.Publish(events.New(events.SignatureVerified, source, map[string]any{
		"tool_id":   def.ID,
		"provider":  def.Provider.ID,
		"algorithm": alg,
	}))
	v.logger.Debug("signature verified",
		zap.String("tool_id", def.ID),
		zap.String("algorithm", alg),
	)
	return Result{Valid: true, Algorithm: alg}
}

func (v *Verifier) fail(def *tooldef.ToolDefinition, alg, format string, args ...any) Result {
	err := etdi.NewError(etdi.KindSignature, def.ID, format, args...)
	v.bus.Publish(events.NewThreat(events.SignatureFailed, source, "tool_poisoning", map[string]any{
		"tool_id":   def.ID,
		"provider":  def.Provider.ID,
		"algorithm": alg,
		"error":     err.Reason,
	}))
	v.logger.Warn("signature verification failed",
		zap.String("tool_id", def.ID),
		zap.String("algorithm", alg),
		zap.String("reason", err.Reason),
	)
	return Result{Valid: false, Algorithm: alg, Err: err}
}
