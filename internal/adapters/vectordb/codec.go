package vectordb

import (
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeEmbedding packs vec as little-endian IEEE 754 float32 values with no
// length prefix. The length is recovered from the blob size on decode.
func EncodeEmbedding(vec []float32) []byte {
	b := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

// DecodeEmbedding reverses EncodeEmbedding bit for bit.
// A blob whose length is not a multiple of 4 is reported as ErrCorruptEmbedding.
func DecodeEmbedding(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("%w: length %d is not a multiple of 4", ErrCorruptEmbedding, len(b))
	}
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec, nil
}
