package vector

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// HashEmbedder generates embeddings by feature hashing: identifier
// tokens and character trigrams are FNV-hashed into a fixed-size vector
// which is then L2-normalized. It needs no model files or network, and
// the same text always embeds to the same vector.
type HashEmbedder struct {
	dims int
}

// Feature weights. Tokens carry most of the signal; trigrams keep
// near-miss spellings and compound words close in the space.
const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

// codeStopWords are language keywords that add no ranking signal for
// document search and would otherwise dominate token mass in code files.
var codeStopWords = map[string]bool{
	"func": true, "function": true, "def": true, "class": true,
	"return": true, "import": true, "const": true, "var": true,
	"let": true, "int": true, "string": true, "bool": true,
	"void": true, "true": true, "false": true, "nil": true,
	"null": true, "this": true, "self": true, "new": true,
}

var wordRegex = regexp.MustCompile(`[a-zA-Z0-9]+`)

// NewHashEmbedder creates an embedder producing dims-length vectors.
// Non-positive dims falls back to DefaultDimensions.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &HashEmbedder{dims: dims}
}

// Embed generates the embedding for a single text.
func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return make([]float32, e.dims), nil
	}
	return normalizeVector(e.featureVector(trimmed)), nil
}

// Dimensions returns the embedding dimensionality.
func (e *HashEmbedder) Dimensions() int {
	return e.dims
}

// ModelName identifies the scheme. The dimensionality is part of the
// name because it changes the produced vectors.
func (e *HashEmbedder) ModelName() string {
	return "hash-" + strconv.Itoa(e.dims)
}

// featureVector accumulates token and trigram features into the raw
// (unnormalized) vector.
func (e *HashEmbedder) featureVector(text string) []float32 {
	vec := make([]float32, e.dims)

	for _, token := range splitTokens(text) {
		if codeStopWords[token] {
			continue
		}
		vec[hashToIndex(token, e.dims)] += tokenWeight
	}

	flat := flattenForNgrams(text)
	for i := 0; i+ngramSize <= len(flat); i++ {
		vec[hashToIndex(flat[i:i+ngramSize], e.dims)] += ngramWeight
	}

	return vec
}

// splitTokens breaks text into lowercase identifier fragments. Words are
// alphanumeric runs, further split on snake_case and camelCase
// boundaries so that "parseHTTPHeader" and "parse_http_header" produce
// the same features.
func splitTokens(text string) []string {
	var tokens []string
	for _, word := range wordRegex.FindAllString(text, -1) {
		for _, part := range strings.Split(word, "_") {
			for _, sub := range splitCamelCase(part) {
				tokens = append(tokens, strings.ToLower(sub))
			}
		}
	}
	return tokens
}

// splitCamelCase splits on lower-to-upper transitions and at the end of
// acronym runs, so "HTTPServer" yields "HTTP", "Server".
func splitCamelCase(s string) []string {
	if s == "" {
		return nil
	}

	var result []string
	var current strings.Builder

	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevIsLower := unicode.IsLower(runes[i-1])
			nextIsLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if (prevIsLower || nextIsLower) && current.Len() > 0 {
				result = append(result, current.String())
				current.Reset()
			}
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		result = append(result, current.String())
	}
	return result
}

// flattenForNgrams lowercases and strips everything but letters and
// digits so trigrams span token boundaries consistently.
func flattenForNgrams(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// hashToIndex maps a feature string onto a vector slot with FNV-64.
func hashToIndex(s string, size int) int {
	h := fnv.New64()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(size))
}

// normalizeVector scales v to unit length. The zero vector is returned
// unchanged.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return v
	}
	norm := float32(math.Sqrt(sumSquares))
	for i := range v {
		v[i] /= norm
	}
	return v
}
