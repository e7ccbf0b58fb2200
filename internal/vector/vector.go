// Package vector holds the float32 vector math and binary codec shared by
// search, clustering, and storage.
package vector

import (
	"encoding/binary"
	"math"
)

// CosineSimilarity computes the cosine similarity between two float32 vectors.
// Returns a value between -1 and 1 where 1 means identical direction. A zero
// magnitude on either side, a length mismatch, or empty input yields exactly
// 0, never NaN.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		ai, bi := float64(a[i]), float64(b[i])
		dotProduct += ai * bi
		normA += ai * ai
		normB += bi * bi
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return dotProduct / denom
}

// Float32ToBytes converts a float32 slice to a byte slice (little-endian,
// 4 bytes per element).
func Float32ToBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// BytesToFloat32 converts a byte slice (little-endian) back to a float32
// slice. A length not divisible by 4 decodes to nil.
func BytesToFloat32(b []byte) []float32 {
	if len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
