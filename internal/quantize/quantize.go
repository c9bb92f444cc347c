// Package quantize implements VelesDB's lossy vector compression schemes
// (spec §4.3): 8-bit scalar quantization and 1-bit binary (sign) quantization,
// both trained lazily after the first TrainingSampleSize insertions and then
// frozen. Generalized from the teacher's (liliang-cn/sqvect)
// pkg/quantization/scalar_quantization.go ScalarQuantizer/BinaryQuantizer,
// with the binary scheme changed from per-dimension mean threshold to
// sign-bit quantization per spec §4.3.
package quantize

import (
	"fmt"

	"github.com/velesdb/velesdb/internal/verrors"
)

// TrainingSampleSize is the default number of insertions sampled before a
// quantizer trains and freezes.
const TrainingSampleSize = 1000

// Quantizer compresses and decompresses vectors. Training is idempotent once
// frozen: calling Train again after Trained() is a no-op.
type Quantizer interface {
	Encode(vec []float32) ([]byte, error)
	Decode(encoded []byte) ([]float32, error)
	Train(samples [][]float32) error
	Trained() bool
}

// ScalarQuantizer maps each f32 component to an NBits-wide integer using
// per-dimension min/max bounds learned at training time.
type ScalarQuantizer struct {
	dimension int
	nbits     int
	min       []float32
	max       []float32
	trained   bool
}

// NewScalarQuantizer creates an untrained 8-bit (by default) scalar quantizer
// for vectors of the given dimension.
func NewScalarQuantizer(dimension, nbits int) (*ScalarQuantizer, error) {
	if nbits < 1 || nbits > 8 {
		return nil, verrors.New("quantize.scalar", verrors.KindValidation, "nbits must be in [1,8], got %d", nbits)
	}
	return &ScalarQuantizer{
		dimension: dimension,
		nbits:     nbits,
		min:       make([]float32, dimension),
		max:       make([]float32, dimension),
	}, nil
}

func (sq *ScalarQuantizer) Trained() bool { return sq.trained }

// Train learns per-dimension min/max bounds from samples. A no-op once frozen.
func (sq *ScalarQuantizer) Train(samples [][]float32) error {
	if sq.trained {
		return nil
	}
	if len(samples) == 0 {
		return verrors.New("quantize.scalar.train", verrors.KindValidation, "no training samples provided")
	}
	for d := 0; d < sq.dimension; d++ {
		sq.min[d] = samples[0][d]
		sq.max[d] = samples[0][d]
	}
	for _, vec := range samples {
		if len(vec) != sq.dimension {
			return verrors.New("quantize.scalar.train", verrors.KindDimensionMismatch, "sample length %d != dimension %d", len(vec), sq.dimension)
		}
		for d := 0; d < sq.dimension; d++ {
			if vec[d] < sq.min[d] {
				sq.min[d] = vec[d]
			}
			if vec[d] > sq.max[d] {
				sq.max[d] = vec[d]
			}
		}
	}
	for d := 0; d < sq.dimension; d++ {
		if sq.max[d] == sq.min[d] {
			sq.max[d] += 1e-6
		}
	}
	sq.trained = true
	return nil
}

// Encode quantizes vector into packed NBits-per-component bytes.
func (sq *ScalarQuantizer) Encode(vector []float32) ([]byte, error) {
	if !sq.trained {
		return nil, verrors.New("quantize.scalar.encode", verrors.KindValidation, "quantizer not trained")
	}
	if len(vector) != sq.dimension {
		return nil, verrors.New("quantize.scalar.encode", verrors.KindDimensionMismatch, "vector length %d != dimension %d", len(vector), sq.dimension)
	}

	maxVal := float32((uint32(1) << uint(sq.nbits)) - 1)
	bitsNeeded := sq.dimension * sq.nbits
	encoded := make([]byte, (bitsNeeded+7)/8)

	bitOffset := 0
	for d := 0; d < sq.dimension; d++ {
		normalized := (vector[d] - sq.min[d]) / (sq.max[d] - sq.min[d])
		if normalized < 0 {
			normalized = 0
		} else if normalized > 1 {
			normalized = 1
		}
		quantized := uint32(normalized * maxVal)
		for b := 0; b < sq.nbits; b++ {
			byteIdx := bitOffset / 8
			bitIdx := bitOffset % 8
			if quantized&(1<<uint(b)) != 0 {
				encoded[byteIdx] |= 1 << uint(bitIdx)
			}
			bitOffset++
		}
	}
	return encoded, nil
}

// Decode reconstructs an approximate f32 vector from quantized bytes.
func (sq *ScalarQuantizer) Decode(encoded []byte) ([]float32, error) {
	if !sq.trained {
		return nil, verrors.New("quantize.scalar.decode", verrors.KindValidation, "quantizer not trained")
	}
	maxVal := float32((uint32(1) << uint(sq.nbits)) - 1)
	vector := make([]float32, sq.dimension)

	bitOffset := 0
	for d := 0; d < sq.dimension; d++ {
		quantized := uint32(0)
		for b := 0; b < sq.nbits; b++ {
			byteIdx := bitOffset / 8
			bitIdx := bitOffset % 8
			if byteIdx >= len(encoded) {
				return nil, verrors.New("quantize.scalar.decode", verrors.KindValidation, "encoded data too short")
			}
			if encoded[byteIdx]&(1<<uint(bitIdx)) != 0 {
				quantized |= 1 << uint(b)
			}
			bitOffset++
		}
		normalized := float32(quantized) / maxVal
		vector[d] = normalized*(sq.max[d]-sq.min[d]) + sq.min[d]
	}
	return vector, nil
}

// CompressionRatio reports bits-original / bits-compressed.
func (sq *ScalarQuantizer) CompressionRatio() float32 {
	return float32(sq.dimension*32) / float32(sq.dimension*sq.nbits)
}

// BinaryQuantizer implements sign-bit quantization: component i of the
// compact code is 1 iff vector[i] > 0. Used with the dual-precision path
// (compact code for graph traversal, f32 original kept for rerank).
type BinaryQuantizer struct {
	dimension int
	trained   bool
}

// NewBinaryQuantizer creates a binary quantizer for vectors of dimension d.
// Sign quantization needs no learned parameters, but Train is still required
// before Encode/Decode to match the lazy-train-then-freeze contract shared
// with ScalarQuantizer.
func NewBinaryQuantizer(dimension int) *BinaryQuantizer {
	return &BinaryQuantizer{dimension: dimension}
}

func (bq *BinaryQuantizer) Trained() bool { return bq.trained }

// Train validates sample dimensionality and freezes the quantizer; sign
// quantization has no bounds to learn.
func (bq *BinaryQuantizer) Train(samples [][]float32) error {
	if bq.trained {
		return nil
	}
	for _, vec := range samples {
		if len(vec) != bq.dimension {
			return verrors.New("quantize.binary.train", verrors.KindDimensionMismatch, "sample length %d != dimension %d", len(vec), bq.dimension)
		}
	}
	bq.trained = true
	return nil
}

// Encode packs one sign bit per component, 8 components per byte.
func (bq *BinaryQuantizer) Encode(vector []float32) ([]byte, error) {
	if !bq.trained {
		return nil, verrors.New("quantize.binary.encode", verrors.KindValidation, "quantizer not trained")
	}
	if len(vector) != bq.dimension {
		return nil, verrors.New("quantize.binary.encode", verrors.KindDimensionMismatch, "vector length %d != dimension %d", len(vector), bq.dimension)
	}
	encoded := make([]byte, (bq.dimension+7)/8)
	for d := 0; d < bq.dimension; d++ {
		if vector[d] > 0 {
			encoded[d/8] |= 1 << uint(d%8)
		}
	}
	return encoded, nil
}

// Decode reconstructs only the sign of each component (+1/-1); magnitude
// information is lost, as documented in spec §4.3.
func (bq *BinaryQuantizer) Decode(encoded []byte) ([]float32, error) {
	if !bq.trained {
		return nil, verrors.New("quantize.binary.decode", verrors.KindValidation, "quantizer not trained")
	}
	expected := (bq.dimension + 7) / 8
	if len(encoded) != expected {
		return nil, verrors.New("quantize.binary.decode", verrors.KindValidation, fmt.Sprintf("expected %d bytes, got %d", expected, len(encoded)))
	}
	vector := make([]float32, bq.dimension)
	for d := 0; d < bq.dimension; d++ {
		if encoded[d/8]&(1<<uint(d%8)) != 0 {
			vector[d] = 1
		} else {
			vector[d] = -1
		}
	}
	return vector, nil
}

// HammingDistance returns popcount(a XOR b) over packed binary codes.
func (bq *BinaryQuantizer) HammingDistance(a, b []byte) (int, error) {
	if len(a) != len(b) {
		return 0, verrors.New("quantize.binary.hamming", verrors.KindDimensionMismatch, "code length %d != %d", len(a), len(b))
	}
	dist := 0
	for i := range a {
		xor := a[i] ^ b[i]
		for xor != 0 {
			dist++
			xor &= xor - 1
		}
	}
	return dist, nil
}
