package approval

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type bootstrapFile struct {
	ChainApprovals []chainPair `yaml:"chain_approvals"`
}

type chainPair struct {
	Caller string `yaml:"caller"`
	Callee string `yaml:"callee"`
}

// SeedChains reads the chain_approvals section of a bootstrap YAML file
// and writes each caller/callee pair through store. The file may carry
// other sections (trust anchors share it); they are ignored here. Returns
// the number of pairs written.
func SeedChains(ctx context.Context, path string, store ChainStore) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("SeedChains: %w", err)
	}

	var file bootstrapFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return 0, fmt.Errorf("SeedChains: parse %s: %w", path, err)
	}

	for i, pair := range file.ChainApprovals {
		if pair.Caller == "" || pair.Callee == "" {
			return 0, fmt.Errorf("SeedChains: %s: entry %d missing caller or callee", path, i)
		}
		if pair.Caller == pair.Callee {
			return 0, fmt.Errorf("SeedChains: %s: entry %d approves %q calling itself", path, i, pair.Caller)
		}
	}
	for _, pair := range file.ChainApprovals {
		if err := store.ApproveChain(ctx, pair.Caller, pair.Callee); err != nil {
			return 0, fmt.Errorf("SeedChains: %s -> %s: %w", pair.Caller, pair.Callee, err)
		}
	}
	return len(file.ChainApprovals), nil
}
