package quantization

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Codebook wire format, little-endian throughout:
//
//	magic   uint32  "VQCB"
//	version uint16
//	scheme  uint8
//	body    scheme-specific fields
//
// The format is self-describing enough for UnmarshalCodebook to
// dispatch on the scheme tag without outside hints.
const (
	codebookMagic   uint32 = 0x56514342 // "VQCB"
	codebookVersion uint16 = 1
)

// MarshalBinary implements encoding.BinaryMarshaler.
func (cb *ScalarCodebook) MarshalBinary() ([]byte, error) {
	w := newCodeWriter(SchemeScalar)
	w.putUint32(uint32(cb.dimension))
	w.putUint8(uint8(cb.bits))
	w.putFloats(cb.mins)
	w.putFloats(cb.steps)
	return w.bytes(), nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (cb *ProductCodebook) MarshalBinary() ([]byte, error) {
	w := newCodeWriter(SchemeProduct)
	w.putUint32(uint32(cb.dimension))
	w.putUint32(uint32(cb.subspaces))
	w.putUint32(uint32(cb.centroids))
	w.putUint32(uint32(cb.iterations))
	w.putBool(cb.converged)
	w.putFloats(cb.matrix)
	return w.bytes(), nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (cb *BinaryCodebook) MarshalBinary() ([]byte, error) {
	w := newCodeWriter(SchemeBinary)
	w.putUint32(uint32(cb.dimension))
	w.putFloats(cb.thresholds)
	w.putFloats(cb.scales)
	return w.bytes(), nil
}

// UnmarshalCodebook reconstructs a codebook of any scheme from data
// produced by MarshalBinary.
func UnmarshalCodebook(data []byte) (Codebook, error) {
	r := codeReader{data: data}

	if magic := r.uint32(); magic != codebookMagic {
		return nil, fmt.Errorf("%w: bad codebook magic %#x", ErrConfig, magic)
	}
	if version := r.uint16(); version != codebookVersion {
		return nil, fmt.Errorf("%w: unsupported codebook version %d", ErrConfig, version)
	}

	scheme := Scheme(r.uint8())
	switch scheme {
	case SchemeScalar:
		return unmarshalScalar(&r)
	case SchemeProduct:
		return unmarshalProduct(&r)
	case SchemeBinary:
		return unmarshalBinary(&r)
	default:
		return nil, fmt.Errorf("%w: unknown scheme tag %d", ErrConfig, scheme)
	}
}

func unmarshalScalar(r *codeReader) (*ScalarCodebook, error) {
	dim := int(r.uint32())
	bits := int(r.uint8())
	if r.err != nil {
		return nil, r.err
	}
	if dim <= 0 || bits < 1 || bits > 8 {
		return nil, fmt.Errorf("%w: corrupt scalar codebook header", ErrConfig)
	}
	cb := &ScalarCodebook{
		dimension: dim,
		bits:      bits,
		levels:    1 << bits,
		mins:      r.floats(dim),
		steps:     r.floats(dim),
	}
	if r.err != nil {
		return nil, r.err
	}
	return cb, nil
}

func unmarshalProduct(r *codeReader) (*ProductCodebook, error) {
	dim := int(r.uint32())
	m := int(r.uint32())
	k := int(r.uint32())
	iterations := int(r.uint32())
	converged := r.bool()
	if r.err != nil {
		return nil, r.err
	}
	if dim <= 0 || m <= 0 || dim%m != 0 || k < 2 || k > 256 {
		return nil, fmt.Errorf("%w: corrupt product codebook header", ErrConfig)
	}
	subDim := dim / m
	cb := &ProductCodebook{
		dimension:  dim,
		subspaces:  m,
		centroids:  k,
		subDim:     subDim,
		indexBits:  indexBits(k),
		converged:  converged,
		iterations: iterations,
		matrix:     r.floats(m * k * subDim),
	}
	cb.codeLen = (m*cb.indexBits + 7) / 8
	if r.err != nil {
		return nil, r.err
	}
	return cb, nil
}

func unmarshalBinary(r *codeReader) (*BinaryCodebook, error) {
	dim := int(r.uint32())
	if r.err != nil {
		return nil, r.err
	}
	if dim <= 0 {
		return nil, fmt.Errorf("%w: corrupt binary codebook header", ErrConfig)
	}
	cb := &BinaryCodebook{
		dimension:  dim,
		codeLen:    (dim + 7) / 8,
		thresholds: r.floats(dim),
		scales:     r.floats(dim),
	}
	if r.err != nil {
		return nil, r.err
	}
	return cb, nil
}

type codeWriter struct {
	buf []byte
}

func newCodeWriter(s Scheme) *codeWriter {
	w := &codeWriter{buf: make([]byte, 0, 64)}
	w.putUint32(codebookMagic)
	w.putUint16(codebookVersion)
	w.putUint8(uint8(s))
	return w
}

func (w *codeWriter) putUint8(v uint8)   { w.buf = append(w.buf, v) }
func (w *codeWriter) putUint16(v uint16) { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }
func (w *codeWriter) putUint32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }

func (w *codeWriter) putBool(v bool) {
	if v {
		w.putUint8(1)
	} else {
		w.putUint8(0)
	}
}

func (w *codeWriter) putFloats(fs []float32) {
	w.putUint32(uint32(len(fs)))
	for _, f := range fs {
		w.buf = binary.LittleEndian.AppendUint32(w.buf, math.Float32bits(f))
	}
}

func (w *codeWriter) bytes() []byte { return w.buf }

type codeReader struct {
	data []byte
	off  int
	err  error
}

func (r *codeReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.data) {
		r.err = fmt.Errorf("%w: truncated codebook data", ErrConfig)
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *codeReader) uint8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *codeReader) uint16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *codeReader) uint32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *codeReader) bool() bool { return r.uint8() != 0 }

func (r *codeReader) floats(want int) []float32 {
	n := int(r.uint32())
	if r.err != nil {
		return nil
	}
	if n != want {
		r.err = fmt.Errorf("%w: float block length %d, expected %d", ErrConfig, n, want)
		return nil
	}
	b := r.take(n * 4)
	if b == nil {
		return nil
	}
	fs := make([]float32, n)
	for i := range fs {
		fs[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return fs
}
