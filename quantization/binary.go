package quantization

// BinaryCodebook implements one-bit-per-dimension quantization: each
// dimension keeps only whether the value lies above its threshold. The
// threshold is either a fixed value for every dimension or the
// per-dimension mean of the training sample. Per-dimension scales (mean
// absolute deviation from the threshold) are retained so Decode can
// reconstruct a rough magnitude instead of bare signs.
type BinaryCodebook struct {
	dimension  int
	codeLen    int
	thresholds []float32
	scales     []float32
}

var _ Codebook = (*BinaryCodebook)(nil)

func trainBinary(sample [][]float32, dim int, opts Options) (*BinaryCodebook, error) {
	cb := &BinaryCodebook{
		dimension:  dim,
		codeLen:    (dim + 7) / 8,
		thresholds: make([]float32, dim),
		scales:     make([]float32, dim),
	}

	if opts.FixedThreshold != nil {
		t := *opts.FixedThreshold
		for d := range cb.thresholds {
			cb.thresholds[d] = t
		}
	} else {
		inv := 1 / float32(len(sample))
		for _, v := range sample {
			for d, x := range v {
				cb.thresholds[d] += x * inv
			}
		}
	}

	inv := 1 / float32(len(sample))
	for _, v := range sample {
		for d, x := range v {
			diff := x - cb.thresholds[d]
			if diff < 0 {
				diff = -diff
			}
			cb.scales[d] += diff * inv
		}
	}

	return cb, nil
}

func (cb *BinaryCodebook) Scheme() Scheme  { return SchemeBinary }
func (cb *BinaryCodebook) Dimension() int  { return cb.dimension }
func (cb *BinaryCodebook) CodeLen() int    { return cb.codeLen }
func (cb *BinaryCodebook) Converged() bool { return true }

// Threshold returns the trained threshold for dimension d.
func (cb *BinaryCodebook) Threshold(d int) float32 { return cb.thresholds[d] }

// Encode packs one bit per dimension, most significant bit first: the
// bit for dimension i lands in byte i/8 at position 7-(i%8). Values at
// or above the threshold map to 1. Trailing pad bits stay zero.
func (cb *BinaryCodebook) Encode(v []float32, dst []byte) error {
	if err := checkVector(v, cb.dimension); err != nil {
		return err
	}
	if err := checkCode(dst, cb.codeLen); err != nil {
		return err
	}

	for i := range dst {
		dst[i] = 0
	}
	for i, x := range v {
		if x >= cb.thresholds[i] {
			dst[i>>3] |= 1 << uint(7-i&7)
		}
	}
	return nil
}

// Decode reconstructs threshold+scale for set bits and threshold-scale
// for clear bits. Crude, but preserves sign structure for re-ranking.
func (cb *BinaryCodebook) Decode(code []byte, dst []float32) error {
	if err := checkCode(code, cb.codeLen); err != nil {
		return err
	}
	if len(dst) != cb.dimension {
		return &ErrDimensionMismatch{Expected: cb.dimension, Actual: len(dst)}
	}
	for i := 0; i < cb.dimension; i++ {
		if code[i>>3]&(1<<uint(7-i&7)) != 0 {
			dst[i] = cb.thresholds[i] + cb.scales[i]
		} else {
			dst[i] = cb.thresholds[i] - cb.scales[i]
		}
	}
	return nil
}
