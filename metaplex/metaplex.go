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

// Package metaplex decodes Metaplex token-metadata accounts: a borsh-style
// encoding of a versioned Metadata record followed by two optional
// extension blocks. Unlike bincode, borsh encodes Option<T> the same way
// (one tag byte) but strings and vectors are u32-length-prefixed rather
// than u64-length-prefixed.
package metaplex

import (
	"encoding/binary"
	"io"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

// ProgramID is the Metaplex token-metadata program's well-known owner
// pubkey.
var ProgramID = mustDecodeID("metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s")

func mustDecodeID(s string) [32]byte {
	b, err := base58.Decode(s)
	if err != nil || len(b) != 32 {
		panic("metaplex: invalid hardcoded program id " + s)
	}
	var out [32]byte
	copy(out[:], b)
	return out
}

// AccountKey enumerates the account-discriminator byte Metaplex writes at
// the start of every account it owns.
type AccountKey uint8

const (
	AccountKeyUninitialized AccountKey = iota
	AccountKeyEditionV1
	AccountKeyMasterEditionV1
	AccountKeyReservationListV1
	AccountKeyMetadataV1
	AccountKeyReservationListV2
	AccountKeyMasterEditionV2
	AccountKeyEditionMarker
	AccountKeyUseAuthorityRecord
	AccountKeyCollectionAuthorityRecord
)

// Creator is one entry of a Metadata's creators list.
type Creator struct {
	Address  [32]byte
	Verified bool
	Share    uint8
}

// Collection identifies the NFT collection an asset belongs to.
type Collection struct {
	Verified bool
	Key      [32]byte
}

// Uses bounds how many times a "use" asset may still be consumed.
type Uses struct {
	UseMethod uint8
	Remaining uint64
	Total     uint64
}

// Data is the mutable, creator-supplied part of a Metadata record.
type Data struct {
	Name                 string
	Symbol               string
	URI                  string
	SellerFeeBasisPoints uint16
	Creators             []Creator
}

// Metadata is the base (v1) Metaplex metadata record.
type Metadata struct {
	UpdateAuthority     [32]byte
	Mint                [32]byte
	Data                Data
	PrimarySaleHappened bool
	IsMutable           bool
}

// Ext holds the v1.1 extension fields appended after the base record.
type Ext struct {
	EditionNonce *uint8
}

// ExtV1_2 holds the v1.2 extension fields appended after Ext.
type ExtV1_2 struct {
	TokenStandard *uint8
	Collection    *Collection
	Uses          *Uses
}

// Decode parses a Metaplex metadata account's raw data. Only MetadataV1
// accounts are decoded; any other account key returns (nil, nil, nil, nil)
// to signal "not a metadata record", matching the upstream tool's handling
// of the account kinds it does not yet support.
//
// Decode is tolerant of truncated extension blocks: Ext and ExtV1_2 are
// each decoded best-effort and returned nil if absent or malformed, since
// older accounts predate one or both extensions.
func Decode(data []byte) (meta *Metadata, ext *Ext, extV1_2 *ExtV1_2, err error) {
	if len(data) == 0 {
		return nil, nil, nil, nil
	}
	r := &borshReader{r: newByteCursor(data)}

	key, err := r.u8()
	if err != nil {
		return nil, nil, nil, nil
	}
	if AccountKey(key) != AccountKeyMetadataV1 {
		return nil, nil, nil, nil
	}

	meta, err = decodeMetadata(r)
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "metaplex: invalid v1 metadata account")
	}

	if e, ok := tryDecodeExt(r); ok {
		ext = e
		if e2, ok := tryDecodeExtV1_2(r); ok {
			extV1_2 = e2
		}
	}

	return meta, ext, extV1_2, nil
}

func decodeMetadata(r *borshReader) (*Metadata, error) {
	var m Metadata
	var err error
	if m.UpdateAuthority, err = r.pubkey(); err != nil {
		return nil, err
	}
	if m.Mint, err = r.pubkey(); err != nil {
		return nil, err
	}
	if m.Data, err = decodeData(r); err != nil {
		return nil, err
	}
	if m.PrimarySaleHappened, err = r.boolean(); err != nil {
		return nil, err
	}
	if m.IsMutable, err = r.boolean(); err != nil {
		return nil, err
	}
	return &m, nil
}

func decodeData(r *borshReader) (Data, error) {
	var d Data
	var err error
	if d.Name, err = r.str(); err != nil {
		return d, err
	}
	if d.Symbol, err = r.str(); err != nil {
		return d, err
	}
	if d.URI, err = r.str(); err != nil {
		return d, err
	}
	if d.SellerFeeBasisPoints, err = r.u16(); err != nil {
		return d, err
	}
	hasCreators, err := r.optionTag()
	if err != nil {
		return d, err
	}
	if !hasCreators {
		return d, nil
	}
	n, err := r.u32()
	if err != nil {
		return d, err
	}
	d.Creators = make([]Creator, 0, n)
	for i := uint32(0); i < n; i++ {
		c, err := decodeCreator(r)
		if err != nil {
			return d, err
		}
		d.Creators = append(d.Creators, c)
	}
	return d, nil
}

func decodeCreator(r *borshReader) (Creator, error) {
	var c Creator
	var err error
	if c.Address, err = r.pubkey(); err != nil {
		return c, err
	}
	if c.Verified, err = r.boolean(); err != nil {
		return c, err
	}
	if c.Share, err = r.u8(); err != nil {
		return c, err
	}
	return c, nil
}

// tryDecodeExt decodes an Ext block, returning ok=false if the stream is
// already exhausted or malformed (the extension is simply absent).
func tryDecodeExt(r *borshReader) (*Ext, bool) {
	checkpoint := r.r.pos
	tag, err := r.optionTag()
	if err != nil {
		r.r.pos = checkpoint
		return nil, false
	}
	var e Ext
	if tag {
		v, err := r.u8()
		if err != nil {
			r.r.pos = checkpoint
			return nil, false
		}
		e.EditionNonce = &v
	}
	return &e, true
}

func tryDecodeExtV1_2(r *borshReader) (*ExtV1_2, bool) {
	checkpoint := r.r.pos
	var e ExtV1_2

	hasTokenStandard, err := r.optionTag()
	if err != nil {
		r.r.pos = checkpoint
		return nil, false
	}
	if hasTokenStandard {
		v, err := r.u8()
		if err != nil {
			r.r.pos = checkpoint
			return nil, false
		}
		e.TokenStandard = &v
	}

	hasCollection, err := r.optionTag()
	if err != nil {
		r.r.pos = checkpoint
		return nil, false
	}
	if hasCollection {
		verified, err := r.boolean()
		if err != nil {
			r.r.pos = checkpoint
			return nil, false
		}
		key, err := r.pubkey()
		if err != nil {
			r.r.pos = checkpoint
			return nil, false
		}
		e.Collection = &Collection{Verified: verified, Key: key}
	}

	hasUses, err := r.optionTag()
	if err != nil {
		r.r.pos = checkpoint
		return nil, false
	}
	if hasUses {
		useMethod, err := r.u8()
		if err != nil {
			r.r.pos = checkpoint
			return nil, false
		}
		remaining, err := r.u64()
		if err != nil {
			r.r.pos = checkpoint
			return nil, false
		}
		total, err := r.u64()
		if err != nil {
			r.r.pos = checkpoint
			return nil, false
		}
		e.Uses = &Uses{UseMethod: useMethod, Remaining: remaining, Total: total}
	}

	return &e, true
}

type byteCursor struct {
	data []byte
	pos  int
}

func newByteCursor(data []byte) *byteCursor { return &byteCursor{data: data} }

func (c *byteCursor) take(n int) ([]byte, error) {
	if c.pos+n > len(c.data) {
		return nil, io.ErrUnexpectedEOF
	}
	b := c.data[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

// borshReader decodes the borsh subset Metaplex accounts use: fixed
// little-endian integers, one-byte bools, one-byte Option tags, and
// u32-length-prefixed strings.
type borshReader struct{ r *byteCursor }

func (r *borshReader) u8() (uint8, error) {
	b, err := r.r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *borshReader) boolean() (bool, error) {
	v, err := r.u8()
	return v != 0, err
}

func (r *borshReader) optionTag() (bool, error) {
	v, err := r.u8()
	if err != nil {
		return false, err
	}
	if v > 1 {
		return false, errors.Errorf("invalid Option tag %d", v)
	}
	return v == 1, nil
}

func (r *borshReader) u16() (uint16, error) {
	b, err := r.r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *borshReader) u32() (uint32, error) {
	b, err := r.r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *borshReader) u64() (uint64, error) {
	b, err := r.r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *borshReader) pubkey() ([32]byte, error) {
	var out [32]byte
	b, err := r.r.take(32)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}

func (r *borshReader) str() (string, error) {
	n, err := r.u32()
	if err != nil {
		return "", err
	}
	b, err := r.r.take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
