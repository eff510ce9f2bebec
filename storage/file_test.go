package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveOpenRoundtrip(t *testing.T) {
	s, err := NewCodeStore(3, WithChunkCodes(4))
	require.NoError(t, err)
	defer s.Close()

	first, err := s.Reserve(context.Background(), 6) // spans two chunks
	require.NoError(t, err)
	for i := uint32(0); i < 6; i++ {
		require.NoError(t, s.Write(first+i, []byte{byte(i), byte(i + 1), byte(i + 2)}))
	}

	path := filepath.Join(t.TempDir(), "codes.bin")
	require.NoError(t, s.Save(path))

	f, err := Open(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, 3, f.Stride())
	assert.Equal(t, 6, f.Len())
	for i := uint32(0); i < 6; i++ {
		got, err := f.Read(i)
		require.NoError(t, err)
		assert.Equal(t, []byte{byte(i), byte(i + 1), byte(i + 2)}, got)
	}

	_, err = f.Read(6)
	require.ErrorIs(t, err, ErrOrdinalOutOfRange)
}

func TestSaveLeavesNoTempFileBehind(t *testing.T) {
	s, err := NewCodeStore(2)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Reserve(context.Background(), 1)
	require.NoError(t, err)
	require.NoError(t, s.Write(0, []byte{7, 7}))

	dir := t.TempDir()
	path := filepath.Join(dir, "codes.bin")
	require.NoError(t, s.Save(path))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "codes.bin", entries[0].Name())
}

func TestOpenRejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()

	short := filepath.Join(dir, "short.bin")
	require.NoError(t, os.WriteFile(short, []byte{1, 2, 3}, 0o644))
	_, err := Open(short)
	require.ErrorIs(t, err, ErrCorruptFile)

	s, err := NewCodeStore(4)
	require.NoError(t, err)
	defer s.Close()
	_, err = s.Reserve(context.Background(), 1)
	require.NoError(t, err)
	require.NoError(t, s.Write(0, []byte{1, 2, 3, 4}))

	path := filepath.Join(dir, "codes.bin")
	require.NoError(t, s.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[0] ^= 0xFF
	bad := filepath.Join(dir, "bad.bin")
	require.NoError(t, os.WriteFile(bad, data, 0o644))
	_, err = Open(bad)
	require.ErrorIs(t, err, ErrCorruptFile)

	data[0] ^= 0xFF // restore magic
	truncated := filepath.Join(dir, "truncated.bin")
	require.NoError(t, os.WriteFile(truncated, data[:len(data)-2], 0o644))
	_, err = Open(truncated)
	require.ErrorIs(t, err, ErrCorruptFile)
}

func TestLoadResumesAppends(t *testing.T) {
	s, err := NewCodeStore(2)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Reserve(context.Background(), 2)
	require.NoError(t, err)
	require.NoError(t, s.Write(0, []byte{1, 1}))
	require.NoError(t, s.Write(1, []byte{2, 2}))

	path := filepath.Join(t.TempDir(), "codes.bin")
	require.NoError(t, s.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	defer loaded.Close()

	require.Equal(t, 2, loaded.Len())

	first, err := loaded.Reserve(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), first)
	require.NoError(t, loaded.Write(first, []byte{3, 3}))

	got, err := loaded.Read(0)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 1}, got)
	got, err = loaded.Read(2)
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 3}, got)
}
