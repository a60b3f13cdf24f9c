package usecases

import (
	"math"
	"sort"

	"github.com/0xcro3dile/semsearch-go/internal/domain/entities"
)

// DefaultTopK is the number of candidates considered when answering a query.
const DefaultTopK = 3

// similarityEpsilon keeps zero vectors from dividing by zero.
const similarityEpsilon = 1e-8

// CosineSimilarity returns dot(a,b) / (|a|*|b| + 1e-8).
// Vectors of different length are not comparable and score 0.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	return float32(dot / (math.Sqrt(normA)*math.Sqrt(normB) + similarityEpsilon))
}

// Rank scores every record whose embedding has the query's length and
// returns at most topK results, best first. Ties keep the order of records.
// Records scoring NaN (non-finite embeddings) are left out.
func Rank(query []float32, records []entities.Record, topK int) []entities.QueryResult {
	if topK <= 0 || len(query) == 0 {
		return nil
	}

	results := make([]entities.QueryResult, 0, len(records))
	for _, rec := range records {
		if len(rec.Embedding) != len(query) {
			continue
		}
		score := CosineSimilarity(query, rec.Embedding)
		if math.IsNaN(float64(score)) {
			continue
		}
		results = append(results, entities.QueryResult{
			Score:    score,
			SourceID: rec.SourceID,
			Text:     rec.Text,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results
}
