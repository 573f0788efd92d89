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
	"bufio"
	"os"
	"path/filepath"

	"github.com/solana-etl/snapshot-etl/appendvec"
	"github.com/solana-etl/snapshot-etl/internal/mathutil"
	"github.com/solana-etl/snapshot-etl/manifest"
	"github.com/solana-etl/snapshot-etl/progresshook"
	"github.com/solana-etl/snapshot-etl/snapshoterr"
)

// UnpackedExtractor reads a snapshot that has already been unpacked onto
// disk: a snapshots/<slot>/<slot> manifest file and an accounts/ directory
// of AppendVec files named "<slot>.<id>".
type UnpackedExtractor struct {
	root     string
	fields   *manifest.AccountsDbFields
	progress progresshook.Tracking
}

// OpenUnpacked validates the presence of snapshots/status_cache, locates
// the single snapshots/<slot>/<slot> manifest file, and decodes it.
func OpenUnpacked(root string, progress progresshook.Tracking) (*UnpackedExtractor, error) {
	if progress == nil {
		progress = progresshook.Null{}
	}

	statusCachePath := filepath.Join(root, "snapshots", "status_cache")
	if _, err := os.Stat(statusCachePath); err != nil {
		return nil, snapshoterr.ErrNoStatusCache
	}

	snapshotsDir := filepath.Join(root, "snapshots")
	entries, err := os.ReadDir(snapshotsDir)
	if err != nil {
		return nil, snapshoterr.NewIOError(err)
	}

	var manifestPath string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, ok := mathutil.ParseDecimalUint64(e.Name()); !ok {
			continue
		}
		manifestPath = filepath.Join(snapshotsDir, e.Name(), e.Name())
		if _, err := os.Stat(manifestPath); err == nil {
			break
		}
		manifestPath = ""
	}
	if manifestPath == "" {
		return nil, snapshoterr.ErrNoSnapshotManifest
	}

	f, err := os.Open(manifestPath)
	if err != nil {
		return nil, snapshoterr.NewIOError(err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, snapshoterr.NewIOError(err)
	}
	tracked := progress.NewReadProgressTracker("manifest", f, info.Size())
	defer tracked.Close()

	fields, err := manifest.Deserialize(bufio.NewReader(tracked))
	if err != nil {
		return nil, err
	}

	return &UnpackedExtractor{root: root, fields: fields, progress: progress}, nil
}

// Fields returns the decoded accounts-db fields.
func (u *UnpackedExtractor) Fields() *manifest.AccountsDbFields { return u.fields }

// Close is a no-op: an unpacked directory holds no extractor-owned handles
// beyond the per-AppendVec mmaps, each closed by its consumer.
func (u *UnpackedExtractor) Close() error { return nil }

// Iter enumerates accounts/<slot>.<id>, opening each as an AppendVec
// bounded by the StorageEntry length the manifest declared for it. A file
// with no matching StorageEntry yields snapshoterr.ErrUnexpectedAppendVec
// rather than aborting the whole walk.
func (u *UnpackedExtractor) Iter() AppendVecIterator {
	return func(yield func(*appendvec.AppendVec, error) bool) {
		accountsDir := filepath.Join(u.root, "accounts")
		entries, err := os.ReadDir(accountsDir)
		if err != nil {
			yield(nil, snapshoterr.NewIOError(err))
			return
		}

		for _, e := range entries {
			slot, id, ok := parseAppendVecName(e.Name())
			if !ok {
				continue
			}

			currentLen, found := lookupStorageEntry(u.fields, slot, id)
			if !found {
				if !yield(nil, snapshoterr.ErrUnexpectedAppendVec) {
					return
				}
				continue
			}

			av, err := appendvec.OpenFromFile(filepath.Join(accountsDir, e.Name()), currentLen)
			if !yield(av, err) {
				return
			}
		}
	}
}

// lookupStorageEntry finds the StorageEntry for (slot, id) among the
// entries the manifest declared for slot.
func lookupStorageEntry(fields *manifest.AccountsDbFields, slot, id uint64) (currentLen uint64, found bool) {
	for _, se := range fields.StorageMap[slot] {
		if se.ID == id {
			return se.AccountsCurrentLen, true
		}
	}
	return 0, false
}
