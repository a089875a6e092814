package signature

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vineethsai/etdi-go/tooldef"
)

func pemForTest(t *testing.T, pub ed25519.PublicKey) string {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		t.Fatal(err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

func writeTrustFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trust_anchors.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func indentPEM(pemText string) string {
	return strings.ReplaceAll(strings.TrimRight(pemText, "\n"), "\n", "\n      ")
}

func TestLoadTrustAnchors(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	path := writeTrustFile(t, `providers:
  - id: acme
    public_key: |
      `+indentPEM(pemForTest(t, pub))+`
`)

	keys, err := LoadTrustAnchors(path)
	if err != nil {
		t.Fatal(err)
	}
	if keys.Len() != 1 {
		t.Fatalf("expected 1 trust anchor, got %d", keys.Len())
	}

	got, err := keys.SigningKey(context.Background(), tooldef.Provider{ID: "acme"})
	if err != nil {
		t.Fatal(err)
	}
	if !pub.Equal(got.(ed25519.PublicKey)) {
		t.Fatal("loaded key does not match the one written")
	}
}

func TestLoadTrustAnchors_DuplicateProvider(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	entry := `  - id: acme
    public_key: |
      ` + indentPEM(pemForTest(t, pub)) + `
`
	path := writeTrustFile(t, "providers:\n"+entry+entry)

	if _, err := LoadTrustAnchors(path); err == nil {
		t.Fatal("expected error for duplicate provider id")
	}
}

func TestLoadTrustAnchors_BadPEM(t *testing.T) {
	path := writeTrustFile(t, `providers:
  - id: acme
    public_key: not a pem block
`)
	if _, err := LoadTrustAnchors(path); err == nil {
		t.Fatal("expected error for malformed PEM")
	}
}

func TestLoadTrustAnchors_MissingFile(t *testing.T) {
	if _, err := LoadTrustAnchors(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestStaticKeys_UnknownProvider(t *testing.T) {
	keys := NewStaticKeys()
	_, err := keys.SigningKey(context.Background(), tooldef.Provider{ID: "ghost"})
	if !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got: %v", err)
	}
}

func TestKeySourcesChain(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	first := NewStaticKeys()
	second := NewStaticKeys()
	second.Add("acme", pub)

	chain := KeySources{first, second}
	got, err := chain.SigningKey(context.Background(), tooldef.Provider{ID: "acme"})
	if err != nil {
		t.Fatal(err)
	}
	if !pub.Equal(got.(ed25519.PublicKey)) {
		t.Fatal("chain returned the wrong key")
	}

	if _, err := chain.SigningKey(context.Background(), tooldef.Provider{ID: "ghost"}); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider from exhausted chain, got: %v", err)
	}
}
