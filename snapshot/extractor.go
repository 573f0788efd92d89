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

// Package snapshot locates a bank manifest within a snapshot (an unpacked
// directory or a tar.zst archive), decodes the retained accounts-db fields
// from it via the manifest package, and then iterates every AppendVec the
// manifest declares, bounds-checking each against its StorageEntry before
// handing it to a consumer.
package snapshot

import (
	"net/http"
	"os"
	"strings"

	"github.com/solana-etl/snapshot-etl/appendvec"
	"github.com/solana-etl/snapshot-etl/manifest"
	"github.com/solana-etl/snapshot-etl/progresshook"
	"github.com/solana-etl/snapshot-etl/snapshoterr"
)

// AppendVecIterator yields each AppendVec an extractor discovers, paired
// with any error encountered producing it. Returning false from yield stops
// iteration early, same as any other Go 1.23 range-over-func sequence.
type AppendVecIterator func(yield func(*appendvec.AppendVec, error) bool)

// Extractor is implemented by both the unpacked-directory and archive
// snapshot sources. Fields returns the decoded accounts-db fields once the
// manifest has been located; Iter walks the AppendVecs it declares.
type Extractor interface {
	Fields() *manifest.AccountsDbFields
	Iter() AppendVecIterator
	Close() error
}

// Open dispatches on source: an http(s) URL is streamed as a remote
// tar.zst archive, a directory is opened as an unpacked snapshot, and
// anything else is opened as a local tar.zst archive file.
func Open(source string, progress progresshook.Tracking) (Extractor, error) {
	if progress == nil {
		progress = progresshook.Null{}
	}

	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		resp, err := http.Get(source) //nolint:gosec // source is an operator-supplied snapshot URL, not untrusted input
		if err != nil {
			return nil, snapshoterr.NewIOError(err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, snapshoterr.NewIOError(errHTTPStatus(resp.StatusCode))
		}
		tracked := progress.NewReadProgressTracker(source, resp.Body, resp.ContentLength)
		ext, err := OpenArchive(tracked)
		if err != nil {
			tracked.Close()
			return nil, err
		}
		ext.closer = tracked
		return ext, nil
	}

	info, err := os.Stat(source)
	if err != nil {
		return nil, snapshoterr.NewIOError(err)
	}
	if info.IsDir() {
		return OpenUnpacked(source, progress)
	}
	return OpenArchiveFile(source, progress)
}

type errHTTPStatus int

func (e errHTTPStatus) Error() string {
	return "unexpected HTTP status fetching snapshot: " + http.StatusText(int(e))
}
