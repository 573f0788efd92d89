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

package snapshot

import (
	"strings"

	"github.com/solana-etl/snapshot-etl/internal/mathutil"
)

// parseAppendVecName parses an "accounts/" entry's base name, "<slot>.<id>",
// into its two decimal components.
func parseAppendVecName(base string) (slot, id uint64, ok bool) {
	dot := strings.IndexByte(base, '.')
	if dot < 0 {
		return 0, 0, false
	}
	slot, ok1 := mathutil.ParseDecimalUint64(base[:dot])
	id, ok2 := mathutil.ParseDecimalUint64(base[dot+1:])
	if !ok1 || !ok2 {
		return 0, 0, false
	}
	return slot, id, true
}

// parseAppendVecPath parses a tar entry path of the form "accounts/<slot>.<id>".
func parseAppendVecPath(path string) (slot, id uint64, ok bool) {
	const prefix = "accounts/"
	if !strings.HasPrefix(path, prefix) {
		return 0, 0, false
	}
	return parseAppendVecName(path[len(prefix):])
}

// parseManifestPath parses a tar entry path of the form
// "snapshots/<slot>/<slot>", the manifest file's location inside an archive.
func parseManifestPath(path string) (slot uint64, ok bool) {
	parts := strings.Split(path, "/")
	if len(parts) != 3 || parts[0] != "snapshots" {
		return 0, false
	}
	a, ok1 := mathutil.ParseDecimalUint64(parts[1])
	b, ok2 := mathutil.ParseDecimalUint64(parts[2])
	if !ok1 || !ok2 || a != b {
		return 0, false
	}
	return a, true
}
