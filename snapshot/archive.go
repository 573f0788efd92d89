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
	"archive/tar"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"

	"github.com/solana-etl/snapshot-etl/appendvec"
	"github.com/solana-etl/snapshot-etl/manifest"
	"github.com/solana-etl/snapshot-etl/progresshook"
	"github.com/solana-etl/snapshot-etl/snapshoterr"
)

// archiveState guards ArchiveExtractor.Iter against re-entrant or
// post-exhaustion calls: a tar.zst stream can only be walked once.
type archiveState int

const (
	stateOpening archiveState = iota
	stateIterating
	stateExhausted
)

// ArchiveExtractor streams a tar.zst archive sequentially, requiring the
// snapshots/<slot>/<slot> manifest entry to appear before any accounts/
// entry. It never seeks: both zstd decompression and tar framing are
// inherently forward-only.
type ArchiveExtractor struct {
	zr     *zstd.Decoder
	tr     *tar.Reader
	closer io.Closer
	fields *manifest.AccountsDbFields
	state  archiveState
}

// OpenArchive wraps r in a zstd decoder and tar reader, then scans forward
// until it finds and decodes the manifest entry.
func OpenArchive(r io.Reader) (*ArchiveExtractor, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, snapshoterr.NewIOError(err)
	}

	ext := &ArchiveExtractor{zr: zr, tr: tar.NewReader(zr), state: stateOpening}
	if err := ext.locateManifest(); err != nil {
		zr.Close()
		return nil, err
	}
	return ext, nil
}

// OpenArchiveFile opens path as a local tar.zst archive file.
func OpenArchiveFile(path string, progress progresshook.Tracking) (*ArchiveExtractor, error) {
	if progress == nil {
		progress = progresshook.Null{}
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, snapshoterr.NewIOError(err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, snapshoterr.NewIOError(err)
	}
	tracked := progress.NewReadProgressTracker(path, f, info.Size())

	ext, err := OpenArchive(tracked)
	if err != nil {
		tracked.Close()
		return nil, err
	}
	ext.closer = tracked
	return ext, nil
}

// locateManifest advances the tar stream past any entries preceding the
// manifest. An AppendVec entry seen during this scan is an ordering
// violation: the manifest must come first.
func (a *ArchiveExtractor) locateManifest() error {
	for {
		hdr, err := a.tr.Next()
		if errors.Is(err, io.EOF) {
			return snapshoterr.ErrNoSnapshotManifest
		}
		if err != nil {
			return snapshoterr.NewIOError(err)
		}

		if _, _, ok := parseAppendVecPath(hdr.Name); ok {
			return snapshoterr.ErrUnexpectedAppendVec
		}

		slot, ok := parseManifestPath(hdr.Name)
		if !ok {
			continue
		}

		fields, err := manifest.Deserialize(a.tr)
		if err != nil {
			return err
		}
		_ = slot
		a.fields = fields
		a.state = stateIterating
		return nil
	}
}

// Fields returns the decoded accounts-db fields.
func (a *ArchiveExtractor) Fields() *manifest.AccountsDbFields { return a.fields }

// Close releases the zstd decoder and, for file-backed archives, the
// underlying file handle.
func (a *ArchiveExtractor) Close() error {
	a.zr.Close()
	if a.closer != nil {
		return snapshoterr.NewIOError(a.closer.Close())
	}
	return nil
}

// Iter walks the remaining tar entries once, yielding one AppendVec per
// accounts/ entry. It is a one-shot cursor: calling Iter a second time, or
// calling it before a manifest was located, yields snapshoterr.ErrExhausted.
func (a *ArchiveExtractor) Iter() AppendVecIterator {
	return func(yield func(*appendvec.AppendVec, error) bool) {
		if a.state != stateIterating {
			yield(nil, snapshoterr.ErrExhausted)
			return
		}
		a.state = stateExhausted

		for {
			hdr, err := a.tr.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, snapshoterr.NewIOError(err))
				return
			}

			slot, id, ok := parseAppendVecPath(hdr.Name)
			if !ok {
				continue
			}

			currentLen, found := lookupStorageEntry(a.fields, slot, id)
			if !found {
				if !yield(nil, snapshoterr.ErrUnexpectedAppendVec) {
					return
				}
				continue
			}

			av, err := appendvec.OpenFromReader(a.tr, currentLen)
			if !yield(av, err) {
				return
			}
		}
	}
}
