// Package mock provides a deterministic embedder for tests and local
// development. It hashes word tokens into a fixed number of buckets, so
// texts that share vocabulary produce similar vectors without calling an
// external embedding API.
package mock

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// DefaultDimensions is the vector size used when none is configured.
const DefaultDimensions = 768

// stopwords are dropped before hashing so that filler words do not
// dominate the similarity between short texts.
var stopwords = map[string]struct{}{
	"i": {}, "a": {}, "an": {}, "the": {}, "to": {}, "of": {},
	"and": {}, "my": {}, "me": {}, "is": {}, "it": {}, "in": {},
	"for": {}, "on": {}, "with": {},
}

// suffixes stripped during light stemming, longest first.
var suffixes = []string{"nesses", "ences", "ations", "ation", "ence", "ness", "ies", "ing", "ed", "es", "s"}

// Embedder generates embeddings from token hashes. It is safe for
// concurrent use.
type Embedder struct {
	dimensions int
}

// New creates a mock embedder with the given vector size. A non-positive
// size falls back to DefaultDimensions.
func New(dimensions int) *Embedder {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &Embedder{dimensions: dimensions}
}

// Embed converts text into a unit-length vector. The same text always
// produces the same vector.
func (e *Embedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dimensions)
	for _, tok := range tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[int(h.Sum32())%e.dimensions] += 1
	}
	normalize(vec)
	return vec, nil
}

// EmbedBatch embeds each text independently.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns the size of generated vectors.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op.
func (e *Embedder) Close() error {
	return nil
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, skip := stopwords[f]; skip {
			continue
		}
		tokens = append(tokens, stem(f))
	}
	return tokens
}

// stem strips a common suffix so inflected forms hash to the same bucket,
// e.g. "replies" and "reply" both reduce to "repl".
func stem(word string) string {
	for _, s := range suffixes {
		if strings.HasSuffix(word, s) && len(word)-len(s) >= 4 {
			return word[:len(word)-len(s)]
		}
	}
	return word
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
}
