package testutil

// FixedIDGenerator generates the same analysis id every time.
//
// The same scenario with the same FixedIDGenerator produces byte-identical
// ledger rows and log output.
//
// Thread-safety: FixedIDGenerator is stateless and safe for concurrent use.
type FixedIDGenerator struct {
	id string
}

// NewFixedIDGenerator creates a generator that always returns id.
// If id is empty, Generate returns "test-analysis".
func NewFixedIDGenerator(id string) *FixedIDGenerator {
	if id == "" {
		id = "test-analysis"
	}
	return &FixedIDGenerator{id: id}
}

// Generate returns the fixed id. Implements graph.IDGenerator.
func (g *FixedIDGenerator) Generate() string {
	return g.id
}
