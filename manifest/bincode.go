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

package manifest

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/c2h5oh/datasize"
	"github.com/pkg/errors"

	"github.com/solana-etl/snapshot-etl/snapshoterr"
)

// maxValueSize bounds any single top-level length-prefixed value to guard
// against memory exhaustion on malformed input.
const maxValueSize = 32 * datasize.GB

// bincodeReader decodes the fixed-int, little-endian subset of bincode used
// by the bank manifest: fixed-width integers, u64-length-prefixed byte
// vectors, and Option<T> as a one-byte tag.
type bincodeReader struct {
	r      io.Reader
	offset int64
}

func newBincodeReader(r io.Reader) *bincodeReader {
	return &bincodeReader{r: r}
}

// Offset returns the number of bytes consumed so far.
func (b *bincodeReader) Offset() int64 { return b.offset }

func (b *bincodeReader) fail(err error) error {
	return snapshoterr.NewDeserializeError(b.offset, err)
}

func (b *bincodeReader) readFull(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(b.r, buf); err != nil {
		return nil, b.fail(err)
	}
	b.offset += int64(n)
	return buf, nil
}

// ReadU8 reads a single byte.
func (b *bincodeReader) ReadU8() (uint8, error) {
	buf, err := b.readFull(1)
	if err != nil {
		return 0, err
	}
	return buf[0], nil
}

// ReadBool reads a bincode bool, encoded as a single byte, 0 or 1.
func (b *bincodeReader) ReadBool() (bool, error) {
	v, err := b.ReadU8()
	if err != nil {
		return false, err
	}
	if v > 1 {
		return false, b.fail(errors.Errorf("invalid bool tag %d", v))
	}
	return v == 1, nil
}

// ReadU32 reads a little-endian fixed-width u32.
func (b *bincodeReader) ReadU32() (uint32, error) {
	buf, err := b.readFull(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf), nil
}

// ReadU64 reads a little-endian fixed-width u64.
func (b *bincodeReader) ReadU64() (uint64, error) {
	buf, err := b.readFull(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf), nil
}

// ReadI64 reads a little-endian fixed-width i64.
func (b *bincodeReader) ReadI64() (int64, error) {
	v, err := b.ReadU64()
	return int64(v), err
}

// ReadF64 reads a little-endian IEEE-754 f64.
func (b *bincodeReader) ReadF64() (float64, error) {
	buf, err := b.readFull(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(buf)), nil
}

// ReadPubkey reads a fixed 32-byte key.
func (b *bincodeReader) ReadPubkey() ([32]byte, error) {
	var out [32]byte
	buf, err := b.readFull(32)
	if err != nil {
		return out, err
	}
	copy(out[:], buf)
	return out, nil
}

// ReadLen reads a bincode sequence length prefix (u64) and bounds-checks it
// against maxValueSize to reject malformed/hostile input.
func (b *bincodeReader) ReadLen() (uint64, error) {
	n, err := b.ReadU64()
	if err != nil {
		return 0, err
	}
	if n > uint64(maxValueSize) {
		return 0, b.fail(errors.Errorf("sequence length %d exceeds %s bound", n, maxValueSize))
	}
	return n, nil
}

// ReadBytes reads a u64-length-prefixed byte vector.
func (b *bincodeReader) ReadBytes() ([]byte, error) {
	n, err := b.ReadLen()
	if err != nil {
		return nil, err
	}
	return b.readFull(int(n))
}

// ReadString reads a u64-length-prefixed UTF-8 string.
func (b *bincodeReader) ReadString() (string, error) {
	buf, err := b.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

// Skip discards n raw bytes, for fields whose content is irrelevant but
// whose presence must be consumed to keep the cursor aligned.
func (b *bincodeReader) Skip(n int) error {
	_, err := b.readFull(n)
	return err
}

// SkipOption consumes an Option<T> tag and, if present, calls skipValue to
// consume the payload.
func (b *bincodeReader) SkipOption(skipValue func() error) error {
	tag, err := b.ReadU8()
	if err != nil {
		return err
	}
	if tag == 0 {
		return nil
	}
	if tag != 1 {
		return b.fail(errors.Errorf("invalid Option tag %d", tag))
	}
	return skipValue()
}

// SkipVec discards a length-prefixed sequence whose elements are skipped
// individually via skipElement.
func (b *bincodeReader) SkipVec(skipElement func() error) error {
	n, err := b.ReadLen()
	if err != nil {
		return err
	}
	for i := uint64(0); i < n; i++ {
		if err := skipElement(); err != nil {
			return err
		}
	}
	return nil
}
