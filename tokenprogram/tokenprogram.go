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

// Package tokenprogram decodes the three fixed-size account layouts owned
// by the SPL token program: Mint, Account and Multisig. Each is dispatched
// on by its exact encoded length, matching the upstream program's own
// program_pack convention.
package tokenprogram

import (
	"encoding/binary"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

// ProgramID is the SPL token program's well-known owner pubkey.
var ProgramID = mustDecodeID("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")

func mustDecodeID(s string) [32]byte {
	b, err := base58.Decode(s)
	if err != nil || len(b) != 32 {
		panic("tokenprogram: invalid hardcoded program id " + s)
	}
	var out [32]byte
	copy(out[:], b)
	return out
}

const (
	// MintLen is the encoded length of a Mint account.
	MintLen = 82
	// AccountLen is the encoded length of a token Account.
	AccountLen = 165
	// MultisigLen is the encoded length of a Multisig account.
	MultisigLen = 355

	maxMultisigSigners = 11
)

// Mint mirrors the SPL token program's Mint account layout.
type Mint struct {
	MintAuthority   *[32]byte
	Supply          uint64
	Decimals        uint8
	IsInitialized   bool
	FreezeAuthority *[32]byte
}

// Account mirrors the SPL token program's token Account layout.
type Account struct {
	Mint            [32]byte
	Owner           [32]byte
	Amount          uint64
	Delegate        *[32]byte
	State           uint8
	IsNative        *uint64
	DelegatedAmount uint64
	CloseAuthority  *[32]byte
}

// Multisig mirrors the SPL token program's Multisig account layout.
type Multisig struct {
	M             uint8
	N             uint8
	IsInitialized bool
	Signers       [][32]byte
}

// DecodeMint decodes a Mint account from its raw 82-byte encoding.
func DecodeMint(data []byte) (*Mint, error) {
	if len(data) != MintLen {
		return nil, errors.Errorf("token mint: expected %d bytes, got %d", MintLen, len(data))
	}
	r := byteReader{data: data}
	mintAuthority := r.coptionPubkey()
	supply := r.u64()
	decimals := r.u8()
	isInitialized := r.boolean()
	freezeAuthority := r.coptionPubkey()
	if r.err != nil {
		return nil, r.err
	}
	return &Mint{
		MintAuthority:   mintAuthority,
		Supply:          supply,
		Decimals:        decimals,
		IsInitialized:   isInitialized,
		FreezeAuthority: freezeAuthority,
	}, nil
}

// DecodeAccount decodes a token Account from its raw 165-byte encoding.
func DecodeAccount(data []byte) (*Account, error) {
	if len(data) != AccountLen {
		return nil, errors.Errorf("token account: expected %d bytes, got %d", AccountLen, len(data))
	}
	r := byteReader{data: data}
	mint := r.pubkey()
	owner := r.pubkey()
	amount := r.u64()
	delegate := r.coptionPubkey()
	state := r.u8()
	isNative := r.coptionU64()
	delegatedAmount := r.u64()
	closeAuthority := r.coptionPubkey()
	if r.err != nil {
		return nil, r.err
	}
	return &Account{
		Mint:            mint,
		Owner:           owner,
		Amount:          amount,
		Delegate:        delegate,
		State:           state,
		IsNative:        isNative,
		DelegatedAmount: delegatedAmount,
		CloseAuthority:  closeAuthority,
	}, nil
}

// DecodeMultisig decodes a Multisig account from its raw 355-byte encoding.
func DecodeMultisig(data []byte) (*Multisig, error) {
	if len(data) != MultisigLen {
		return nil, errors.Errorf("token multisig: expected %d bytes, got %d", MultisigLen, len(data))
	}
	r := byteReader{data: data}
	m := r.u8()
	n := r.u8()
	isInitialized := r.boolean()
	all := make([][32]byte, maxMultisigSigners)
	for i := range all {
		all[i] = r.pubkey()
	}
	if r.err != nil {
		return nil, r.err
	}
	if int(n) > maxMultisigSigners {
		return nil, errors.Errorf("token multisig: n=%d exceeds %d signer slots", n, maxMultisigSigners)
	}
	return &Multisig{
		M:             m,
		N:             n,
		IsInitialized: isInitialized,
		Signers:       all[:n],
	}, nil
}

// byteReader is a minimal fixed-layout cursor over a byte slice, tracking
// the first error encountered so callers can check it once at the end.
type byteReader struct {
	data []byte
	pos  int
	err  error
}

func (r *byteReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.pos+n > len(r.data) {
		r.err = errors.New("token account: unexpected end of data")
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *byteReader) u8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *byteReader) boolean() bool { return r.u8() != 0 }

func (r *byteReader) u32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *byteReader) u64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *byteReader) pubkey() [32]byte {
	var out [32]byte
	b := r.take(32)
	if b != nil {
		copy(out[:], b)
	}
	return out
}

// coptionPubkey reads a COption<Pubkey>: a 4-byte tag followed by a
// full-width 32-byte payload regardless of the tag's value.
func (r *byteReader) coptionPubkey() *[32]byte {
	tag := r.u32()
	key := r.pubkey()
	if r.err != nil || tag == 0 {
		return nil
	}
	return &key
}

// coptionU64 reads a COption<u64>: a 4-byte tag followed by a full-width
// 8-byte payload regardless of the tag's value.
func (r *byteReader) coptionU64() *uint64 {
	tag := r.u32()
	v := r.u64()
	if r.err != nil || tag == 0 {
		return nil
	}
	return &v
}
