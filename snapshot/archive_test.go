package snapshot

import (
	"archive/tar"
	"bytes"
	"os"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solana-etl/snapshot-etl/appendvec"
)

func buildArchive(t *testing.T, entries map[string][]byte, order []string) []byte {
	t.Helper()
	var raw bytes.Buffer
	tw := tar.NewWriter(&raw)
	for _, name := range order {
		data := entries[name]
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(data))}
		require.NoError(t, tw.WriteHeader(hdr))
		_, err := tw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())

	var compressed bytes.Buffer
	zw, err := zstd.NewWriter(&compressed)
	require.NoError(t, err)
	_, err = zw.Write(raw.Bytes())
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return compressed.Bytes()
}

func minimalManifestBytes(t *testing.T, slot, id, currentLen uint64) []byte {
	t.Helper()
	path := t.TempDir() + "/manifest"
	writeMinimalManifest(t, path, slot, id, currentLen)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func TestArchiveExtractorHappyPath(t *testing.T) {
	manifestBytes := minimalManifestBytes(t, 100, 7, 0)
	archive := buildArchive(t, map[string][]byte{
		"snapshots/100/100": manifestBytes,
		"accounts/100.7":    {},
	}, []string{"snapshots/100/100", "accounts/100.7"})

	ext, err := OpenArchive(bytes.NewReader(archive))
	require.NoError(t, err)
	defer ext.Close()

	var count int
	err = Drive(ext.Iter(), ConsumerFunc(func(av *appendvec.AppendVec) error {
		count++
		return av.Close()
	}))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestArchiveExtractorRejectsAppendVecBeforeManifest(t *testing.T) {
	manifestBytes := minimalManifestBytes(t, 100, 7, 0)
	archive := buildArchive(t, map[string][]byte{
		"accounts/100.7":    {},
		"snapshots/100/100": manifestBytes,
	}, []string{"accounts/100.7", "snapshots/100/100"})

	_, err := OpenArchive(bytes.NewReader(archive))
	assert.Error(t, err, "expected ordering violation error")
}

func TestArchiveExtractorIterIsOneShot(t *testing.T) {
	manifestBytes := minimalManifestBytes(t, 100, 7, 0)
	archive := buildArchive(t, map[string][]byte{
		"snapshots/100/100": manifestBytes,
	}, []string{"snapshots/100/100"})

	ext, err := OpenArchive(bytes.NewReader(archive))
	require.NoError(t, err)
	defer ext.Close()

	_ = Drive(ext.Iter(), ConsumerFunc(func(av *appendvec.AppendVec) error { return av.Close() }))

	err = Drive(ext.Iter(), ConsumerFunc(func(av *appendvec.AppendVec) error { return nil }))
	assert.Error(t, err, "expected exhausted error on second Iter call")
}
