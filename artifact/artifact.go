// Package artifact packages trained codebooks for durable storage:
// a checksummed, optionally compressed envelope that survives local
// files and object stores alike. Replacement is atomic everywhere: a
// reader sees either the previous artifact or the new one, never a
// partial write.
package artifact

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"

	"github.com/hupe1980/vecquant/quantization"
)

// Artifact envelope, little-endian:
//
//	magic           uint32  "VQAR"
//	version         uint16
//	scheme          uint8
//	compression     uint8
//	uncompressedLen uint32
//	payloadLen      uint32
//	crc32           uint32  IEEE, over the stored payload
//	payload         payloadLen bytes
const (
	artifactMagic   uint32 = 0x56514152 // "VQAR"
	artifactVersion uint16 = 1
	headerSize             = 20
)

// ErrCorruptArtifact is returned when an artifact fails validation.
var ErrCorruptArtifact = errors.New("artifact: corrupt data")

// Encode wraps a codebook in the artifact envelope. When the codec
// cannot shrink the payload the artifact falls back to storing it
// uncompressed; Decode handles both transparently.
func Encode(cb quantization.Codebook, c Compression) ([]byte, error) {
	payload, err := cb.MarshalBinary()
	if err != nil {
		return nil, err
	}

	stored := payload
	compressed, err := compress(payload, c)
	if err != nil {
		return nil, err
	}
	if compressed == nil {
		c = CompressionNone
	} else {
		stored = compressed
	}

	out := make([]byte, headerSize+len(stored))
	binary.LittleEndian.PutUint32(out[0:], artifactMagic)
	binary.LittleEndian.PutUint16(out[4:], artifactVersion)
	out[6] = uint8(cb.Scheme())
	out[7] = uint8(c)
	binary.LittleEndian.PutUint32(out[8:], uint32(len(payload)))
	binary.LittleEndian.PutUint32(out[12:], uint32(len(stored)))
	binary.LittleEndian.PutUint32(out[16:], crc32.ChecksumIEEE(stored))
	copy(out[headerSize:], stored)
	return out, nil
}

// Decode validates the envelope and reconstructs the codebook.
func Decode(data []byte) (quantization.Codebook, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: shorter than header", ErrCorruptArtifact)
	}
	if magic := binary.LittleEndian.Uint32(data[0:]); magic != artifactMagic {
		return nil, fmt.Errorf("%w: bad magic %#x", ErrCorruptArtifact, magic)
	}
	if version := binary.LittleEndian.Uint16(data[4:]); version != artifactVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptArtifact, version)
	}

	c := Compression(data[7])
	uncompressedLen := int(binary.LittleEndian.Uint32(data[8:]))
	payloadLen := int(binary.LittleEndian.Uint32(data[12:]))
	sum := binary.LittleEndian.Uint32(data[16:])

	if len(data)-headerSize < payloadLen {
		return nil, fmt.Errorf("%w: truncated payload", ErrCorruptArtifact)
	}
	stored := data[headerSize : headerSize+payloadLen]
	if crc32.ChecksumIEEE(stored) != sum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorruptArtifact)
	}

	if c != CompressionNone {
		payload, err := decompress(stored, c, uncompressedLen)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptArtifact, err)
		}
		return quantization.UnmarshalCodebook(payload)
	}
	return quantization.UnmarshalCodebook(stored)
}

// SaveToFile writes the codebook artifact to path atomically via a
// temp file and rename.
func SaveToFile(path string, cb quantization.Codebook, c Compression) error {
	data, err := Encode(cb, c)
	if err != nil {
		return err
	}

	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}

	d, err := os.Open(filepath.Dir(path))
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

// LoadFromFile reads a codebook artifact from path.
func LoadFromFile(path string) (quantization.Codebook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}
