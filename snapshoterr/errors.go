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

// Package snapshoterr collects the error kinds the extractor and indexer
// distinguish: IO, Deserialize, MissingStatusCache,
// NoSnapshotManifest and UnexpectedAppendVec. Manifest-level errors are
// fatal and bubble to the driver; account-level decode errors are handled
// by the caller (swallowed, not constructed here).
package snapshoterr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sentinel errors for conditions that carry no extra data.
var (
	// ErrNoStatusCache is returned when an unpacked snapshot directory is
	// missing its snapshots/status_cache validity marker.
	ErrNoStatusCache = errors.New("missing status cache")

	// ErrNoSnapshotManifest is returned when neither the unpacked nor the
	// archive extractor could locate a bank manifest.
	ErrNoSnapshotManifest = errors.New("no snapshot manifest file found")

	// ErrUnexpectedAppendVec is returned for an AppendVec with no matching
	// manifest StorageEntry, or for an AppendVec tar entry seen before any
	// manifest entry in an archive.
	ErrUnexpectedAppendVec = errors.New("unexpected AppendVec")

	// ErrExhausted is returned by an extractor's Iter once the
	// underlying stream has already been consumed past its one-shot cursor.
	ErrExhausted = errors.New("snapshot stream already exhausted")
)

// IOError wraps an underlying I/O failure (filesystem, network, tar, zstd).
type IOError struct {
	cause error
}

// NewIOError wraps err as an IOError, or returns nil if err is nil.
func NewIOError(err error) error {
	if err == nil {
		return nil
	}
	return &IOError{cause: errors.WithStack(err)}
}

func (e *IOError) Error() string { return fmt.Sprintf("io: %s", e.cause) }
func (e *IOError) Unwrap() error { return e.cause }

// DeserializeError wraps a malformed-manifest or malformed-account decode
// failure together with the byte offset at which it occurred.
type DeserializeError struct {
	Offset int64
	cause  error
}

// NewDeserializeError wraps err with the stream offset it failed at.
func NewDeserializeError(offset int64, err error) error {
	if err == nil {
		return nil
	}
	return &DeserializeError{Offset: offset, cause: errors.WithStack(err)}
}

func (e *DeserializeError) Error() string {
	return fmt.Sprintf("deserialize at offset %d: %s", e.Offset, e.cause)
}
func (e *DeserializeError) Unwrap() error { return e.cause }
