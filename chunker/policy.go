package chunker

// DefaultDocType is the classification applied when a document's type is
// missing or unrecognized.
const DefaultDocType = "default"

// DefaultPolicy returns the fallback chunking policy.
func DefaultPolicy() Policy {
	return Policy{ChunkSize: 1000, Overlap: 200, MinChunk: 100}
}

// DefaultPolicies returns the built-in per-classification policy set.
// Deployments override these via the policies config file.
func DefaultPolicies() map[string]Policy {
	return map[string]Policy{
		DefaultDocType: DefaultPolicy(),
		"contract":     {ChunkSize: 1200, Overlap: 200, MinChunk: 120},
		"report":       {ChunkSize: 1000, Overlap: 150, MinChunk: 100},
		"financial":    {ChunkSize: 800, Overlap: 100, MinChunk: 80},
		"technical":    {ChunkSize: 1500, Overlap: 250, MinChunk: 150},
	}
}

// PolicyFor resolves the policy for a document type, falling back to the
// set's default entry and finally to the built-in default.
func PolicyFor(policies map[string]Policy, docType string) Policy {
	if p, ok := policies[docType]; ok && p.ChunkSize > 0 {
		return p
	}
	if p, ok := policies[DefaultDocType]; ok && p.ChunkSize > 0 {
		return p
	}
	return DefaultPolicy()
}
