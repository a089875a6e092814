// Package signature verifies detached signatures over canonical tool
// definition encodings, and signs/verifies per-invocation requests. All
// verification fails closed: a missing key, unknown algorithm, or malformed
// input is a failed verification, never a panic or a pass.
package signature

import (
	"context"
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/vineethsai/etdi-go/tooldef"
)

// ErrUnknownProvider is returned by a KeySource that holds no trust anchor
// for the requested provider.
var ErrUnknownProvider = errors.New("signature: no trust anchor for provider")

// KeySource resolves the public key a provider signs tool definitions with.
type KeySource interface {
	SigningKey(ctx context.Context, provider tooldef.Provider) (crypto.PublicKey, error)
}

// StaticKeys is an in-memory KeySource keyed by provider id.
type StaticKeys struct {
	mu   sync.RWMutex
	keys map[string]crypto.PublicKey
}

// NewStaticKeys returns an empty StaticKeys.
func NewStaticKeys() *StaticKeys {
	return &StaticKeys{keys: make(map[string]crypto.PublicKey)}
}

// Add registers or replaces the trust anchor for a provider id.
func (s *StaticKeys) Add(providerID string, key crypto.PublicKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[providerID] = key
}

// SigningKey returns the registered key for provider, or ErrUnknownProvider.
func (s *StaticKeys) SigningKey(_ context.Context, provider tooldef.Provider) (crypto.PublicKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.keys[provider.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider.ID)
	}
	return key, nil
}

// Len returns the number of registered trust anchors.
func (s *StaticKeys) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}

// KeySources tries each source in order and returns the first key found.
type KeySources []KeySource

func (ks KeySources) SigningKey(ctx context.Context, provider tooldef.Provider) (crypto.PublicKey, error) {
	for _, src := range ks {
		key, err := src.SigningKey(ctx, provider)
		if err == nil {
			return key, nil
		}
		if !errors.Is(err, ErrUnknownProvider) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider.ID)
}

type trustAnchorFile struct {
	Providers []trustAnchorEntry `yaml:"providers"`
}

type trustAnchorEntry struct {
	ID        string `yaml:"id"`
	PublicKey string `yaml:"public_key"`
}

// LoadTrustAnchors reads a YAML trust anchor file mapping provider ids to
// PEM-encoded PKIX public keys:
//
//	providers:
//	  - id: acme
//	    public_key: |
//	      -----BEGIN PUBLIC KEY-----
//	      ...
func LoadTrustAnchors(path string) (*StaticKeys, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadTrustAnchors: %w", err)
	}

	var file trustAnchorFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("LoadTrustAnchors: parse %s: %w", path, err)
	}

	keys := NewStaticKeys()
	for _, entry := range file.Providers {
		if entry.ID == "" {
			return nil, fmt.Errorf("LoadTrustAnchors: %s: provider entry missing id", path)
		}
		if _, dup := keys.keys[entry.ID]; dup {
			return nil, fmt.Errorf("LoadTrustAnchors: %s: duplicate trust anchor for provider %q", path, entry.ID)
		}
		key, err := ParsePublicKeyPEM([]byte(entry.PublicKey))
		if err != nil {
			return nil, fmt.Errorf("LoadTrustAnchors: %s: provider %q: %w", path, entry.ID, err)
		}
		keys.Add(entry.ID, key)
	}
	return keys, nil
}

// ParsePublicKeyPEM decodes a PEM-encoded PKIX public key.
func ParsePublicKeyPEM(data []byte) (crypto.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("ParsePublicKeyPEM: no PEM block found")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("ParsePublicKeyPEM: %w", err)
	}
	return key, nil
}
