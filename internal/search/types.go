package search

// Type selects which sub-indexes a query runs against.
type Type string

const (
	// TypeLexical queries only the term index.
	TypeLexical Type = "lexical"
	// TypeVector queries only the similarity index.
	TypeVector Type = "vector"
	// TypeAll queries every available sub-index and merges the results.
	TypeAll Type = "all"
)

// ParseType maps a user-supplied string to a Type. The empty string
// means TypeAll.
func ParseType(s string) (Type, bool) {
	switch Type(s) {
	case TypeLexical, TypeVector, TypeAll:
		return Type(s), true
	case "":
		return TypeAll, true
	default:
		return "", false
	}
}

// Provenance records which sub-index produced a result.
type Provenance string

const (
	ProvenanceLexical Provenance = "lexical"
	ProvenanceVector  Provenance = "vector"
	// ProvenanceMerged marks a document found by more than one sub-index.
	ProvenanceMerged Provenance = "merged"
)

// Result is one ranked document.
type Result struct {
	Path       string     `json:"path"`
	Snippet    string     `json:"snippet,omitempty"`
	Score      float64    `json:"score"`
	Provenance Provenance `json:"provenance"`
}

// Options controls a single query.
type Options struct {
	// Type selects the sub-indexes to query. Zero value means TypeAll.
	Type Type

	// Limit caps the merged result count. Zero means the engine default;
	// values above the engine maximum are clamped.
	Limit int
}

// Config holds engine-level settings.
type Config struct {
	// DefaultLimit is used when Options.Limit is zero.
	DefaultLimit int

	// MaxLimit is the hard cap on Options.Limit.
	MaxLimit int
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		DefaultLimit: 10,
		MaxLimit:     100,
	}
}
