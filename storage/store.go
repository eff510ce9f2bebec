// Package storage holds quantized vector codes at a fixed stride.
//
// # Concurrency Model
//
// CodeStore supports concurrent appends: Reserve hands out disjoint
// ordinal ranges via a single atomic counter, and each writer fills
// only its own range. Reads are lock-free and may run concurrently
// with appends for ordinals below Len(). Close only returns the memory
// budget; readers holding the store stay valid and chunk memory is
// reclaimed by the garbage collector once the last reference drops.
package storage

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
	"sync"
	"sync/atomic"
)

var (
	// ErrMaxChunksExceeded is returned when the store exceeds its
	// addressable chunk count.
	ErrMaxChunksExceeded = errors.New("storage: max chunks exceeded")

	// ErrOrdinalOutOfRange is returned for reads or writes past the
	// reserved range.
	ErrOrdinalOutOfRange = errors.New("storage: ordinal out of range")

	// ErrBadStride is returned when a code's length does not match the
	// store stride.
	ErrBadStride = errors.New("storage: code length does not match stride")

	// ErrClosed is returned when a reservation would grow a closed store.
	ErrClosed = errors.New("storage: store is closed")
)

const (
	// DefaultChunkCodes is the default number of codes per chunk.
	DefaultChunkCodes = 16384

	// MaxChunks bounds the chunk directory. With default chunk size this
	// addresses 2^30 codes.
	MaxChunks = 65536
)

// MemoryAcquirer grants memory budget before a chunk is allocated.
type MemoryAcquirer interface {
	AcquireMemory(ctx context.Context, amount int64) error
	ReleaseMemory(amount int64)
}

type chunk struct {
	data []byte
}

// CodeStore is an append-only arena of fixed-stride codes addressed by
// dense ordinals. Codes are never moved once written, so Read can
// return views into chunk memory without copying.
type CodeStore struct {
	stride     int
	chunkCodes int // power of two
	chunkBits  int
	chunkMask  uint64

	reserved   atomic.Uint64 // next free ordinal; sole append sync point
	chunks     [MaxChunks]atomic.Pointer[chunk]
	chunkCount atomic.Uint32
	mu         sync.Mutex // guards chunk growth and close
	closed     bool

	acquirer MemoryAcquirer
}

// StoreOption configures a CodeStore.
type StoreOption func(*CodeStore)

// WithChunkCodes sets the number of codes per chunk. Rounded up to the
// next power of two.
func WithChunkCodes(n int) StoreOption {
	return func(s *CodeStore) {
		if n > 0 {
			s.chunkCodes = n
		}
	}
}

// WithMemoryAcquirer charges chunk allocations against a memory budget.
func WithMemoryAcquirer(acquirer MemoryAcquirer) StoreOption {
	return func(s *CodeStore) {
		s.acquirer = acquirer
	}
}

// NewCodeStore creates an empty store for codes of the given stride.
func NewCodeStore(stride int, opts ...StoreOption) (*CodeStore, error) {
	if stride <= 0 {
		return nil, fmt.Errorf("storage: invalid stride %d", stride)
	}

	s := &CodeStore{
		stride:     stride,
		chunkCodes: DefaultChunkCodes,
	}
	for _, opt := range opts {
		opt(s)
	}

	chunkBits := bits.Len(uint(s.chunkCodes - 1))
	s.chunkCodes = 1 << chunkBits
	s.chunkBits = chunkBits
	s.chunkMask = uint64(s.chunkCodes - 1)

	return s, nil
}

// Stride returns the fixed code length in bytes.
func (s *CodeStore) Stride() int { return s.stride }

// Len returns the number of reserved ordinals. Ordinals below Len may
// still be mid-write by their owning goroutine; coordination of
// write-then-read ordering is the caller's responsibility.
func (s *CodeStore) Len() int { return int(s.reserved.Load()) }

// Reserve claims n consecutive ordinals and returns the first. The
// range [first, first+n) belongs exclusively to the caller until
// written. Chunk memory backing the range is allocated before Reserve
// returns, so subsequent Write calls never block on growth. A failed
// Reserve leaves the reserved count unchanged: every ordinal below
// Len() is always chunk-backed.
func (s *CodeStore) Reserve(ctx context.Context, n int) (uint32, error) {
	if n <= 0 {
		return 0, fmt.Errorf("storage: invalid reserve count %d", n)
	}

	for {
		first := s.reserved.Load()
		end := first + uint64(n)
		// Capacity first, counter second. Chunk growth is monotonic, so
		// capacity secured for a lost race is still usable by the winner.
		if err := s.ensureCapacity(ctx, end); err != nil {
			return 0, err
		}
		if s.reserved.CompareAndSwap(first, end) {
			return uint32(first), nil
		}
	}
}

func (s *CodeStore) ensureCapacity(ctx context.Context, ordinals uint64) error {
	needChunks := uint32((ordinals + s.chunkMask) >> s.chunkBits)
	if s.chunkCount.Load() >= needChunks {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	for s.chunkCount.Load() < needChunks {
		idx := s.chunkCount.Load()
		if idx >= MaxChunks {
			return ErrMaxChunksExceeded
		}

		size := int64(s.chunkCodes) * int64(s.stride)
		if s.acquirer != nil {
			if err := s.acquirer.AcquireMemory(ctx, size); err != nil {
				return err
			}
		}

		s.chunks[idx].Store(&chunk{data: make([]byte, size)})
		// Count moves only after the pointer is visible so lock-free
		// readers never observe a counted nil chunk.
		s.chunkCount.Add(1)
	}
	return nil
}

// Write copies code into the slot for ordinal. The ordinal must have
// been reserved and the code must match the store stride.
func (s *CodeStore) Write(ordinal uint32, code []byte) error {
	if len(code) != s.stride {
		return fmt.Errorf("%w: got %d, stride %d", ErrBadStride, len(code), s.stride)
	}
	slot, err := s.slot(ordinal)
	if err != nil {
		return err
	}
	copy(slot, code)
	return nil
}

// Read returns the code at ordinal as a view into chunk memory. The
// returned slice must not be modified.
func (s *CodeStore) Read(ordinal uint32) ([]byte, error) {
	return s.slot(ordinal)
}

func (s *CodeStore) slot(ordinal uint32) ([]byte, error) {
	if uint64(ordinal) >= s.reserved.Load() {
		return nil, fmt.Errorf("%w: ordinal %d, reserved %d", ErrOrdinalOutOfRange, ordinal, s.reserved.Load())
	}

	chunkIdx := uint64(ordinal) >> s.chunkBits
	c := s.chunks[chunkIdx].Load()
	if c == nil {
		return nil, fmt.Errorf("%w: ordinal %d has no chunk", ErrOrdinalOutOfRange, ordinal)
	}

	off := int(uint64(ordinal)&s.chunkMask) * s.stride
	return c.data[off : off+s.stride : off+s.stride], nil
}

// MemoryUsage returns the bytes currently held in chunk memory.
func (s *CodeStore) MemoryUsage() int64 {
	return int64(s.chunkCount.Load()) * int64(s.chunkCodes) * int64(s.stride)
}

// Close returns the chunk memory to the memory budget. Chunks and the
// reserved count stay intact so readers that obtained the store before
// Close keep seeing every written code; the garbage collector reclaims
// the memory once the last reference drops. Close is idempotent and
// safe to call concurrently with reads.
func (s *CodeStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true

	if s.acquirer != nil {
		s.acquirer.ReleaseMemory(int64(s.chunkCount.Load()) * int64(s.chunkCodes) * int64(s.stride))
	}
}
