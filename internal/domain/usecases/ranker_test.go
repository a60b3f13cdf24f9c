package usecases

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xcro3dile/semsearch-go/internal/domain/entities"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0, 0}, []float32{0, 1, 0}, 0},
		{"opposite", []float32{1, -2, 0.5}, []float32{-1, 2, -0.5}, -1},
		{"scaled", []float32{1, 1}, []float32{5, 5}, 1},
		{"zero vector", []float32{0, 0, 0}, []float32{1, 2, 3}, 0},
		{"length mismatch", []float32{1, 0}, []float32{1, 0, 0}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-5)
		})
	}
}

func TestCosineSimilarity_BothZeroIsFinite(t *testing.T) {
	got := CosineSimilarity([]float32{0, 0}, []float32{0, 0})
	assert.Equal(t, float32(0), got)
}

func records(embs ...[]float32) []entities.Record {
	out := make([]entities.Record, len(embs))
	for i, e := range embs {
		out[i] = entities.Record{
			ID:        int64(i + 1),
			SourceID:  fmt.Sprintf("r%d", i+1),
			Text:      fmt.Sprintf("text %d", i+1),
			Embedding: e,
		}
	}
	return out
}

func TestRank_OrdersByScore(t *testing.T) {
	recs := records(
		[]float32{0, 1, 0},
		[]float32{1, 0, 0},
		[]float32{1, 1, 0},
	)

	got := Rank([]float32{1, 0, 0}, recs, 3)

	require.Len(t, got, 3)
	assert.Equal(t, "r2", got[0].SourceID)
	assert.Equal(t, "r3", got[1].SourceID)
	assert.Equal(t, "r1", got[2].SourceID)
}

func TestRank_NonIncreasingRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	var embs [][]float32
	for i := 0; i < 200; i++ {
		embs = append(embs, []float32{float32(rng.NormFloat64()), float32(rng.NormFloat64()), float32(rng.NormFloat64())})
	}

	got := Rank([]float32{0.3, -0.2, 0.9}, records(embs...), 50)

	require.Len(t, got, 50)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
	}
}

func TestRank_StableOnTies(t *testing.T) {
	recs := records(
		[]float32{0, 1},
		[]float32{2, 0},
		[]float32{1, 0},
		[]float32{3, 0},
	)

	got := Rank([]float32{1, 0}, recs, 4)

	require.Len(t, got, 4)
	assert.Equal(t, []string{"r2", "r3", "r4", "r1"},
		[]string{got[0].SourceID, got[1].SourceID, got[2].SourceID, got[3].SourceID})
}

func TestRank_TopKBound(t *testing.T) {
	recs := records([]float32{1, 0}, []float32{0, 1}, []float32{1, 1})

	assert.Len(t, Rank([]float32{1, 0}, recs, 2), 2)
	assert.Len(t, Rank([]float32{1, 0}, recs, 3), 3)
	assert.Len(t, Rank([]float32{1, 0}, recs, 10), 3)
	assert.Empty(t, Rank([]float32{1, 0}, recs, 0))
	assert.Empty(t, Rank([]float32{1, 0}, recs, -1))
}

func TestRank_ExcludesDimensionMismatch(t *testing.T) {
	recs := records(
		[]float32{1, 0, 0, 0}, // would be a perfect match on its first three dims
		[]float32{0, 1, 0},
		[]float32{},
	)

	got := Rank([]float32{1, 0, 0}, recs, 10)

	require.Len(t, got, 1)
	assert.Equal(t, "r2", got[0].SourceID)
}

func TestRank_ExcludesNaNScores(t *testing.T) {
	nan := float32(math.NaN())
	recs := records(
		[]float32{0.5, 0.5},
		[]float32{nan, 0},
		[]float32{1, 0},
		[]float32{float32(math.Inf(1)), 0},
		[]float32{0, 1},
	)

	got := Rank([]float32{1, 0}, recs, 10)

	require.Len(t, got, 3)
	assert.Equal(t, []string{"r3", "r1", "r5"},
		[]string{got[0].SourceID, got[1].SourceID, got[2].SourceID})
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
	}
}

func TestRank_EmptyInputs(t *testing.T) {
	assert.Empty(t, Rank([]float32{1, 0}, nil, 3))
	assert.Empty(t, Rank(nil, records([]float32{1, 0}), 3))
}
