package appendvec

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildRecord encodes one AppendVec record per the bit-exact layout in
// including the pad-to-8 trailer after the payload.
func buildRecord(writeVersion uint64, pubkey [32]byte, lamports, rentEpoch uint64, owner [32]byte, executable bool, hash [32]byte, data []byte) []byte {
	var buf bytes.Buffer
	var tmp [8]byte

	binary.LittleEndian.PutUint64(tmp[:], writeVersion)
	buf.Write(tmp[:])
	binary.LittleEndian.PutUint64(tmp[:], uint64(len(data)))
	buf.Write(tmp[:])
	buf.Write(pubkey[:])

	binary.LittleEndian.PutUint64(tmp[:], lamports)
	buf.Write(tmp[:])
	binary.LittleEndian.PutUint64(tmp[:], rentEpoch)
	buf.Write(tmp[:])
	buf.Write(owner[:])
	if executable {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	buf.Write(make([]byte, 7))

	buf.Write(hash[:])
	buf.Write(data)

	if pad := (8 - buf.Len()%8) % 8; pad != 0 {
		buf.Write(make([]byte, pad))
	}
	return buf.Bytes()
}

func fill(b byte) [32]byte {
	var a [32]byte
	for i := range a {
		a[i] = b
	}
	return a
}

func TestGetAccountSingleRecord(t *testing.T) {
	pubkey := fill(0x01)
	owner := fill(0x02)
	hash := fill(0x03)
	data := bytes.Repeat([]byte{0xAA}, 32)
	raw := buildRecord(7, pubkey, 42, 0, owner, false, hash, data)

	av := &AppendVec{buf: raw}
	rec, next, ok := av.GetAccount(0)
	require.True(t, ok)
	assert.Equal(t, pubkey, rec.Meta.Pubkey)
	assert.Equal(t, owner, rec.AccountMeta.Owner)
	assert.Equal(t, uint64(42), rec.AccountMeta.Lamports)
	assert.Equal(t, uint64(32), rec.Meta.DataLen)
	assert.Equal(t, data, rec.Data)
	assert.Equal(t, hash, *rec.Hash)
	assert.Equal(t, len(raw), next, "buffer holds exactly one record")

	_, _, ok = av.GetAccount(next)
	assert.False(t, ok, "expected iteration to terminate at end of buffer")
}

func TestIterMultipleRecords(t *testing.T) {
	r1 := buildRecord(1, fill(0x10), 1, 0, fill(0x20), false, fill(0x00), []byte{1, 2, 3})
	r2 := buildRecord(2, fill(0x11), 2, 0, fill(0x21), true, fill(0x00), []byte{4, 5})
	raw := append(append([]byte{}, r1...), r2...)

	av := &AppendVec{buf: raw}
	var got []uint64
	for rec := range av.Iter() {
		got = append(got, rec.Meta.WriteVersion)
	}
	assert.Equal(t, []uint64{1, 2}, got)
}

func TestGetAccountTruncatedTailIsNotError(t *testing.T) {
	r1 := buildRecord(1, fill(0x10), 1, 0, fill(0x20), false, fill(0x00), []byte{1, 2, 3})
	raw := append(append([]byte{}, r1...), make([]byte, 10)...) // partial trailing header
	av := &AppendVec{buf: raw}

	var count int
	for range av.Iter() {
		count++
	}
	assert.Equal(t, 1, count, "expected exactly 1 record before truncated tail")
}

func TestOpenFromFileRejectsShortFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "100.7")
	require.NoError(t, os.WriteFile(path, make([]byte, 10), 0o644))

	_, err := OpenFromFile(path, 100)
	assert.Error(t, err)
}

func TestOpenFromFileHappyPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "100.7")
	rec := buildRecord(1, fill(0x01), 42, 0, fill(0x02), false, fill(0x00), bytes.Repeat([]byte{0xAA}, 32))
	require.NoError(t, os.WriteFile(path, rec, 0o644))

	av, err := OpenFromFile(path, uint64(len(rec)))
	require.NoError(t, err)
	defer av.Close()

	var count int
	for rec := range av.Iter() {
		count++
		assert.Equal(t, uint64(42), rec.AccountMeta.Lamports)
	}
	assert.Equal(t, 1, count)
}

func TestOpenFromReader(t *testing.T) {
	rec := buildRecord(1, fill(0x01), 1, 0, fill(0x02), false, fill(0x00), []byte{9, 9})
	av, err := OpenFromReader(bytes.NewReader(rec), uint64(len(rec)))
	require.NoError(t, err)
	assert.Equal(t, len(rec), av.Len())
}
