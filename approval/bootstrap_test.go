package approval

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeBootstrap(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "anchors.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSeedChains(t *testing.T) {
	path := writeBootstrap(t, `
providers:
  - id: acme
    public_key: ignored-by-this-loader
chain_approvals:
  - caller: calculator
    callee: reporter
  - caller: reporter
    callee: mailer
`)
	store := NewMemoryStore()

	n, err := SeedChains(context.Background(), path, store)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("expected 2 pairs, got %d", n)
	}

	ok, err := store.ChainApproved(context.Background(), "calculator", "reporter")
	if err != nil || !ok {
		t.Fatalf("expected calculator->reporter approved, got %v %v", ok, err)
	}
	ok, err = store.ChainApproved(context.Background(), "mailer", "calculator")
	if err != nil || ok {
		t.Fatalf("unseeded pair must not be approved, got %v %v", ok, err)
	}
}

func TestSeedChains_NoSection(t *testing.T) {
	path := writeBootstrap(t, "providers: []\n")
	store := NewMemoryStore()

	n, err := SeedChains(context.Background(), path, store)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("expected 0 pairs, got %d", n)
	}
}

func TestSeedChains_Malformed(t *testing.T) {
	cases := map[string]string{
		"missing callee": "chain_approvals:\n  - caller: calculator\n",
		"self approval":  "chain_approvals:\n  - caller: calculator\n    callee: calculator\n",
	}
	for name, content := range cases {
		path := writeBootstrap(t, content)
		if _, err := SeedChains(context.Background(), path, NewMemoryStore()); err == nil {
			t.Fatalf("%s: expected an error", name)
		}
	}
}
