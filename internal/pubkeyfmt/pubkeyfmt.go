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

// Package pubkeyfmt renders a raw 32-byte pubkey the way every Solana tool
// does: base58, no padding, no checksum.
package pubkeyfmt

import "github.com/mr-tron/base58"

// Encode renders pubkey as a base58 string.
func Encode(pubkey [32]byte) string {
	return base58.Encode(pubkey[:])
}
