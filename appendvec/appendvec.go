// Copyright 2024 The Erigon Authors
// (original work)
// This file is part of snapshot-etl.
//
// snapshot-etl is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// snapshot-etl is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with snapshot-etl. If not, see <http://www.gnu.org/licenses/>.

// Package appendvec parses a single AppendVec: a record-oriented binary
// blob of packed account records, read either via mmap (filesystem
// snapshots) or fully into memory (archive/HTTP snapshots).
// and §6 for the bit-exact layout.
package appendvec

import (
	"io"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/pkg/errors"

	"github.com/solana-etl/snapshot-etl/internal/mathutil"
	"github.com/solana-etl/snapshot-etl/snapshoterr"
)

const (
	storedMetaSize  = 48 // write_version(8) + data_len(8) + pubkey(32)
	accountMetaSize = 56 // lamports(8) + rent_epoch(8) + owner(32) + executable(1) + padding(7)
	hashSize        = 32
	// headerSize is the offset of the account data payload within a record.
	headerSize = storedMetaSize + accountMetaSize + hashSize
)

// StoredMeta is the per-record bookkeeping header.
type StoredMeta struct {
	WriteVersion uint64
	Pubkey       [32]byte
	DataLen      uint64
}

// AccountMeta is the per-record account header.
type AccountMeta struct {
	Lamports   uint64
	RentEpoch  uint64
	Owner      [32]byte
	Executable bool
}

// Record is a view into one account record. Hash and Data borrow directly
// from the AppendVec's backing buffer and are valid only while the
// AppendVec that produced them is not closed.
type Record struct {
	Meta        StoredMeta
	AccountMeta AccountMeta
	Hash        *[32]byte
	Data        []byte
}

// AppendVec owns a fully-materialized or memory-mapped backing buffer and
// parses account records out of it on demand. One AppendVec is iterated by
// exactly one consumer; no internal locking is provided.
type AppendVec struct {
	buf    []byte
	mapped mmap.MMap // non-nil when buf is backed by a live mmap
}

// OpenFromFile memory-maps the first currentLen bytes of the file at path.
// It fails if the file is shorter than currentLen.
func OpenFromFile(path string, currentLen uint64) (*AppendVec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, snapshoterr.NewIOError(err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, snapshoterr.NewIOError(err)
	}
	if uint64(info.Size()) < currentLen {
		return nil, snapshoterr.NewIOError(errors.Errorf(
			"%s: file length %d shorter than declared accounts_current_len %d",
			path, info.Size(), currentLen))
	}

	if currentLen == 0 {
		return &AppendVec{buf: nil}, nil
	}

	region, err := mmap.MapRegion(f, int(currentLen), mmap.RDONLY, 0, 0)
	if err != nil {
		return nil, snapshoterr.NewIOError(err)
	}
	return &AppendVec{buf: region, mapped: region}, nil
}

// OpenFromReader reads exactly currentLen bytes from r into an owned
// in-memory buffer (used for archive/HTTP sources, which cannot be
// memory-mapped).
func OpenFromReader(r io.Reader, currentLen uint64) (*AppendVec, error) {
	buf := make([]byte, currentLen)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, snapshoterr.NewIOError(err)
	}
	return &AppendVec{buf: buf}, nil
}

// Close releases the mmap backing this AppendVec, if any. It is a no-op for
// in-memory buffers.
func (a *AppendVec) Close() error {
	if a.mapped != nil {
		err := a.mapped.Unmap()
		a.mapped = nil
		a.buf = nil
		return snapshoterr.NewIOError(err)
	}
	return nil
}

// Len returns the size of the backing buffer.
func (a *AppendVec) Len() int { return len(a.buf) }

// GetAccount returns the record at offset and the aligned offset of the
// next record, or ok=false if no full record fits at offset (end of
// stream, not an error).
func (a *AppendVec) GetAccount(offset int) (rec Record, nextOffset int, ok bool) {
	if offset < 0 || offset+headerSize > len(a.buf) {
		return Record{}, 0, false
	}

	buf := a.buf[offset:]
	meta := StoredMeta{
		WriteVersion: leUint64(buf[0:8]),
		DataLen:      leUint64(buf[8:16]),
	}
	copy(meta.Pubkey[:], buf[16:48])

	am := AccountMeta{
		Lamports:   leUint64(buf[48:56]),
		RentEpoch:  leUint64(buf[56:64]),
		Executable: buf[96] != 0,
	}
	copy(am.Owner[:], buf[64:96])

	dataLen64, overflow := meta.DataLen, false
	if dataLen64 > uint64(^uint(0)>>1) {
		overflow = true
	}
	if overflow {
		return Record{}, 0, false
	}
	dataLen := int(dataLen64)

	dataEnd, addOverflow := mathutil.SafeAdd(uint64(offset+headerSize), meta.DataLen)
	if addOverflow || dataEnd > uint64(len(a.buf)) {
		return Record{}, 0, false
	}

	hash := (*[32]byte)(buf[headerSize-hashSize : headerSize])

	data := a.buf[offset+headerSize : int(dataEnd)]

	next := mathutil.Align8(int(dataEnd))

	return Record{
		Meta:        meta,
		AccountMeta: am,
		Hash:        hash,
		Data:        data,
	}, next, true
}

// Iter returns a lazy sequence of records starting at offset 0, stopping at
// the first offset that no longer holds a full record.
func (a *AppendVec) Iter() func(yield func(Record) bool) {
	return func(yield func(Record) bool) {
		offset := 0
		for {
			rec, next, ok := a.GetAccount(offset)
			if !ok {
				return
			}
			if !yield(rec) {
				return
			}
			offset = next
		}
	}
}

func leUint64(b []byte) uint64 {
	_ = b[7]
	return uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16 | uint64(b[3])<<24 |
		uint64(b[4])<<32 | uint64(b[5])<<40 | uint64(b[6])<<48 | uint64(b[7])<<56
}
