// Package embedding provides embedding adapters implementing ports.EmbeddingService.
package embedding

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

// ErrEmptyInput is returned when a text contains no indexable tokens.
var ErrEmptyInput = errors.New("text has no tokens to embed")

const (
	DefaultDimension = 384
	DefaultMaxTokens = 256
)

// HashingEmbedder is an offline embedder based on feature hashing.
// Word unigrams and adjacent bigrams are hashed into a fixed number of
// signed buckets and the result is L2-normalized, so texts that share
// vocabulary point in similar directions. Only the first maxTokens tokens
// of a text are used.
type HashingEmbedder struct {
	dim          int
	maxTokens    int
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

// NewHashingEmbedder creates an embedder producing vectors of length dim.
func NewHashingEmbedder(dim, maxTokens int) *HashingEmbedder {
	if dim <= 0 {
		dim = DefaultDimension
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &HashingEmbedder{
		dim:          dim,
		maxTokens:    maxTokens,
		tokenPattern: regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}\p{N}]+)*`),
		stopwords:    defaultStopwords(),
	}
}

// Dimension returns the length of every produced vector.
func (e *HashingEmbedder) Dimension() int { return e.dim }

// Embed hashes text into a unit vector.
func (e *HashingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tokens := e.tokenize(text)
	if len(tokens) == 0 {
		return nil, ErrEmptyInput
	}

	vec := make([]float64, e.dim)
	for i, tok := range tokens {
		e.add(vec, tok, 1.0)
		if i > 0 {
			e.add(vec, tokens[i-1]+" "+tok, 0.5)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	out := make([]float32, e.dim)
	if norm == 0 {
		return out, nil
	}
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out, nil
}

// add folds one feature into its bucket. A second hash bit picks the sign,
// which keeps collisions from only ever adding up.
func (e *HashingEmbedder) add(vec []float64, feature string, weight float64) {
	h := fnv.New64a()
	h.Write([]byte(feature))
	sum := h.Sum64()

	idx := int(sum % uint64(e.dim))
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

func (e *HashingEmbedder) tokenize(text string) []string {
	raw := e.tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := make([]string, 0, min(len(raw), e.maxTokens))
	for _, t := range raw {
		if len(out) == e.maxTokens {
			break
		}
		if _, isStop := e.stopwords[t]; isStop {
			continue
		}
		out = append(out, stem(t))
	}
	return out
}

// stem strips a plural "s" so "cats" and "cat" share a bucket.
func stem(t string) string {
	if len(t) > 3 && strings.HasSuffix(t, "s") && !strings.HasSuffix(t, "ss") {
		return t[:len(t)-1]
	}
	return t
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
