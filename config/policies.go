package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fabfab/knowbase/chunker"
)

// policiesFile is the on-disk shape of the chunking-policy config.
type policiesFile struct {
	Policies map[string]chunker.Policy `yaml:"policies"`
}

// LoadPolicies reads per-document-type chunking policies from path.
// A missing file yields the built-in defaults; entries present in the
// file override defaults key by key, and zero fields within an entry are
// filled from the default policy.
func LoadPolicies(path string) (map[string]chunker.Policy, error) {
	policies := chunker.DefaultPolicies()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return policies, nil
		}
		return nil, fmt.Errorf("read policies file: %w", err)
	}

	var file policiesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse policies file: %w", err)
	}

	fallback := chunker.DefaultPolicy()
	if p, ok := file.Policies[chunker.DefaultDocType]; ok && p.ChunkSize > 0 {
		fallback = applyPolicyDefaults(p, chunker.DefaultPolicy())
	}

	for docType, p := range file.Policies {
		policies[docType] = applyPolicyDefaults(p, fallback)
	}

	return policies, nil
}

func applyPolicyDefaults(p, fallback chunker.Policy) chunker.Policy {
	if p.ChunkSize <= 0 {
		p.ChunkSize = fallback.ChunkSize
	}
	if p.Overlap < 0 {
		p.Overlap = fallback.Overlap
	}
	if p.MinChunk <= 0 {
		p.MinChunk = fallback.MinChunk
	}
	return p
}
