// Copyright 2017 The go-ethereum Authors
// (original work)
// Copyright 2024 The Erigon Authors
// (modifications)
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

// Package mathutil holds the overflow-safe integer arithmetic and strict
// decimal parsing shared by the AppendVec and manifest readers.
package mathutil

import (
	"strconv"
)

// MaxUint64 is the largest value representable by a u64 field.
const MaxUint64 = 1<<64 - 1

// SafeMul returns x*y and reports whether the multiplication overflowed.
func SafeMul(x, y uint64) (result uint64, overflow bool) {
	if x == 0 || y == 0 {
		return 0, false
	}
	result = x * y
	return result, result/y != x
}

// SafeAdd returns x+y and reports whether the addition overflowed.
func SafeAdd(x, y uint64) (result uint64, overflow bool) {
	result = x + y
	return result, result < x
}

// CeilDiv returns ceil(x/y), or 0 if y is 0.
func CeilDiv(x, y int) int {
	if y == 0 {
		return 0
	}
	return (x + y - 1) / y
}

// Align8 rounds n up to the next multiple of 8.
func Align8(n int) int {
	return CeilDiv(n, 8) * 8
}

// ParseDecimalUint64 parses s as a u64 in strict decimal notation: no sign,
// no hex prefix, no leading/trailing whitespace, no leading zeros other than
// the single digit "0" itself. This matches how slot and AppendVec id
// components are encoded in snapshot filenames and manifest keys.
func ParseDecimalUint64(s string) (uint64, bool) {
	if s == "" {
		return 0, false
	}
	if len(s) > 1 && s[0] == '0' {
		return 0, false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
