package vectordb

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeEmbedding_LittleEndianLayout(t *testing.T) {
	b := EncodeEmbedding([]float32{1.0})
	// 1.0 == 0x3F800000
	assert.Equal(t, []byte{0x00, 0x00, 0x80, 0x3F}, b)
}

func TestDecodeEmbedding_BitExact(t *testing.T) {
	vec := []float32{
		0, float32(math.Copysign(0, -1)), 1.5, -3.25,
		math.MaxFloat32, math.SmallestNonzeroFloat32,
		float32(math.Inf(1)), math.Float32frombits(0x7FC00001),
	}

	got, err := DecodeEmbedding(EncodeEmbedding(vec))
	require.NoError(t, err)
	require.Len(t, got, len(vec))
	for i := range vec {
		assert.Equal(t, math.Float32bits(vec[i]), math.Float32bits(got[i]), "index %d", i)
	}
}

func TestDecodeEmbedding_Corrupt(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5, 7} {
		_, err := DecodeEmbedding(make([]byte, n))
		assert.ErrorIs(t, err, ErrCorruptEmbedding, "length %d", n)
	}
}

func TestDecodeEmbedding_Empty(t *testing.T) {
	got, err := DecodeEmbedding(nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}
