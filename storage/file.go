package storage

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hupe1980/vecquant/internal/mmap"
)

// Code file layout, little-endian:
//
//	magic   uint32  "VQCS"
//	version uint32
//	stride  uint32
//	count   uint64
//	codes   count * stride bytes
const (
	fileMagic   uint32 = 0x56514353 // "VQCS"
	fileVersion uint32 = 1
	headerSize         = 20
)

// ErrCorruptFile is returned when a code file fails validation.
var ErrCorruptFile = errors.New("storage: corrupt code file")

// Save writes the store's codes to path atomically: the data lands in a
// temp file that replaces the target only after a successful fsync, so
// a crash mid-save leaves any previous file intact.
func (s *CodeStore) Save(path string) error {
	count := s.reserved.Load()

	header := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(header[0:], fileMagic)
	binary.LittleEndian.PutUint32(header[4:], fileVersion)
	binary.LittleEndian.PutUint32(header[8:], uint32(s.stride))
	binary.LittleEndian.PutUint64(header[12:], count)

	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	fail := func(err error) error {
		f.Close()
		os.Remove(tmpPath)
		return err
	}

	if _, err := f.Write(header); err != nil {
		return fail(err)
	}

	// Chunks are contiguous runs of codes, so the body is a straight
	// concatenation with the final chunk truncated at count.
	remaining := count
	for i := uint32(0); remaining > 0; i++ {
		c := s.chunks[i].Load()
		if c == nil {
			return fail(fmt.Errorf("storage: missing chunk %d during save", i))
		}
		codes := remaining
		if codes > uint64(s.chunkCodes) {
			codes = uint64(s.chunkCodes)
		}
		if _, err := f.Write(c.data[:codes*uint64(s.stride)]); err != nil {
			return fail(err)
		}
		remaining -= codes
	}

	if err := f.Sync(); err != nil {
		return fail(err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return syncDir(filepath.Dir(path))
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

// FileStore is a read-only code file mapped into memory. Reads return
// views into the mapping without copying; they become invalid after
// Close.
type FileStore struct {
	mapping *mmap.Mapping
	codes   []byte
	stride  int
	count   int
}

// Open maps the code file at path read-only.
func Open(path string) (*FileStore, error) {
	m, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}

	data := m.Bytes()
	if len(data) < headerSize {
		m.Close()
		return nil, fmt.Errorf("%w: file shorter than header", ErrCorruptFile)
	}

	if magic := binary.LittleEndian.Uint32(data[0:]); magic != fileMagic {
		m.Close()
		return nil, fmt.Errorf("%w: bad magic %#x", ErrCorruptFile, magic)
	}
	if version := binary.LittleEndian.Uint32(data[4:]); version != fileVersion {
		m.Close()
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptFile, version)
	}

	stride := int(binary.LittleEndian.Uint32(data[8:]))
	count := binary.LittleEndian.Uint64(data[12:])
	if stride <= 0 {
		m.Close()
		return nil, fmt.Errorf("%w: invalid stride %d", ErrCorruptFile, stride)
	}
	if uint64(len(data)-headerSize) < count*uint64(stride) {
		m.Close()
		return nil, fmt.Errorf("%w: body shorter than %d codes", ErrCorruptFile, count)
	}

	return &FileStore{
		mapping: m,
		codes:   data[headerSize:],
		stride:  stride,
		count:   int(count),
	}, nil
}

// Stride returns the fixed code length in bytes.
func (fs *FileStore) Stride() int { return fs.stride }

// Len returns the number of codes in the file.
func (fs *FileStore) Len() int { return fs.count }

// Read returns the code at ordinal as a view into the mapping.
func (fs *FileStore) Read(ordinal uint32) ([]byte, error) {
	if int(ordinal) >= fs.count {
		return nil, fmt.Errorf("%w: ordinal %d, count %d", ErrOrdinalOutOfRange, ordinal, fs.count)
	}
	off := int(ordinal) * fs.stride
	return fs.codes[off : off+fs.stride : off+fs.stride], nil
}

// Close unmaps the file. Outstanding Read views become invalid.
func (fs *FileStore) Close() error {
	return fs.mapping.Close()
}

// Load reads a code file back into a mutable CodeStore, for resuming
// appends on top of persisted codes.
func Load(path string, opts ...StoreOption) (*CodeStore, error) {
	f, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	s, err := NewCodeStore(f.Stride(), opts...)
	if err != nil {
		return nil, err
	}
	if f.Len() == 0 {
		return s, nil
	}

	first, err := s.Reserve(context.Background(), f.Len())
	if err != nil {
		return nil, err
	}
	for i := 0; i < f.Len(); i++ {
		code, err := f.Read(uint32(i))
		if err != nil {
			return nil, err
		}
		if err := s.Write(first+uint32(i), code); err != nil {
			return nil, err
		}
	}
	return s, nil
}
