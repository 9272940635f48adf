package search

import (
	"sort"

	"github.com/quarrysearch/quarry/internal/lexical"
	"github.com/quarrysearch/quarry/internal/vector"
)

// mergeResults combines hits from both sub-indexes into one ranked
// list. A document found by both keeps the higher score, is marked
// ProvenanceMerged, and prefers the lexical snippet, which highlights
// matched terms rather than the document head.
func mergeResults(lexHits []lexical.Hit, vecMatches []vector.Match, limit int) []Result {
	byPath := make(map[string]*Result, len(lexHits)+len(vecMatches))

	for _, h := range lexHits {
		byPath[h.Path] = &Result{
			Path:       h.Path,
			Snippet:    h.Snippet,
			Score:      h.Score,
			Provenance: ProvenanceLexical,
		}
	}

	for _, m := range vecMatches {
		if r, ok := byPath[m.Path]; ok {
			r.Provenance = ProvenanceMerged
			if m.Score > r.Score {
				r.Score = m.Score
			}
			if r.Snippet == "" {
				r.Snippet = m.Snippet
			}
			continue
		}
		byPath[m.Path] = &Result{
			Path:       m.Path,
			Snippet:    m.Snippet,
			Score:      m.Score,
			Provenance: ProvenanceVector,
		}
	}

	results := make([]Result, 0, len(byPath))
	for _, r := range byPath {
		results = append(results, *r)
	}
	sortResults(results)

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// sortResults orders by score descending, breaking ties by shorter
// path first, then lexicographically, so equal-scored results are
// deterministic across runs.
func sortResults(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if len(results[i].Path) != len(results[j].Path) {
			return len(results[i].Path) < len(results[j].Path)
		}
		return results[i].Path < results[j].Path
	})
}
