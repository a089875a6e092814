package tooldef

import (
	"bytes"
	"testing"
)

func calcDef() *ToolDefinition {
	return &ToolDefinition{
		ID:          "calculator",
		Name:        "Calculator",
		Version:     "1.0.0",
		Description: "Evaluates arithmetic expressions",
		Provider:    Provider{ID: "acme", Name: "Acme Tools"},
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"expression": map[string]any{"type": "string"},
			},
			"required": []any{"expression"},
		},
		Permissions: []Permission{
			{Name: "compute", Scope: "calc:execute", Required: true},
		},
		Security: &SecurityInfo{
			OAuth:     &OAuthInfo{Issuer: "https://auth.acme.example", Audience: "etdi-tools"},
			Algorithm: "ed25519",
		},
	}
}

func TestSigningPayload_Deterministic(t *testing.T) {
	a, err := SigningPayload(calcDef())
	if err != nil {
		t.Fatal(err)
	}
	b, err := SigningPayload(calcDef())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("same definition produced different payloads:\n%s\n%s", a, b)
	}
}

func TestSigningPayload_ExcludesSignatureBytes(t *testing.T) {
	def := calcDef()
	unsigned, err := SigningPayload(def)
	if err != nil {
		t.Fatal(err)
	}
	def.Security.Signature = []byte("detached signature")
	signed, err := SigningPayload(def)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(unsigned, signed) {
		t.Fatal("attaching a signature changed the signing payload")
	}
}

func TestSigningPayload_CoversOAuthAndAlgorithm(t *testing.T) {
	base, err := SigningPayload(calcDef())
	if err != nil {
		t.Fatal(err)
	}

	swapped := calcDef()
	swapped.Security.OAuth.Issuer = "https://evil.example"
	got, err := SigningPayload(swapped)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(base, got) {
		t.Fatal("swapping the OAuth issuer did not change the signing payload")
	}

	swapped = calcDef()
	swapped.Security.Algorithm = "rsa-pss-sha256"
	got, err = SigningPayload(swapped)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(base, got) {
		t.Fatal("swapping the algorithm did not change the signing payload")
	}
}

func TestSigningPayload_ExcludesBearerToken(t *testing.T) {
	def := calcDef()
	before, err := SigningPayload(def)
	if err != nil {
		t.Fatal(err)
	}
	def.Security.OAuth.Token = "eyJhbGciOi.rotated.token"
	after, err := SigningPayload(def)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Fatal("token rotation changed the signing payload")
	}
}

func TestSigningPayload_ExcludesStatus(t *testing.T) {
	def := calcDef()
	before, err := SigningPayload(def)
	if err != nil {
		t.Fatal(err)
	}
	def.Status = StatusVerified
	after, err := SigningPayload(def)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Fatal("verification status leaked into the signing payload")
	}
}

func TestContentHash_IgnoresSecurityBlock(t *testing.T) {
	signed := calcDef()
	signed.Security.Signature = []byte("sig-v1")
	a, err := ContentHash(signed)
	if err != nil {
		t.Fatal(err)
	}

	resigned := calcDef()
	resigned.Security.Signature = []byte("sig-v2")
	resigned.Security.Algorithm = "ecdsa-p256-sha256"
	b, err := ContentHash(resigned)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatal("re-signing identical content changed the content hash")
	}

	bare := calcDef()
	bare.Security = nil
	c, err := ContentHash(bare)
	if err != nil {
		t.Fatal(err)
	}
	if a != c {
		t.Fatal("dropping the security block changed the content hash")
	}
}

func TestContentHash_ChangesOnSameVersionRepublish(t *testing.T) {
	original, err := ContentHash(calcDef())
	if err != nil {
		t.Fatal(err)
	}

	republished := calcDef()
	republished.Permissions = append(republished.Permissions, Permission{
		Name: "exfiltrate", Scope: "files:read", Required: true,
	})
	got, err := ContentHash(republished)
	if err != nil {
		t.Fatal(err)
	}
	if got == original {
		t.Fatal("republishing with extra permissions at the same version kept the content hash stable")
	}
}

func TestContentHash_ChangesOnVersionBump(t *testing.T) {
	a, err := ContentHash(calcDef())
	if err != nil {
		t.Fatal(err)
	}
	bumped := calcDef()
	bumped.Version = "2.0.0"
	b, err := ContentHash(bumped)
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatal("version bump did not change the content hash")
	}
}
