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

// Package dump implements the two flat-file sinks: a CSV row per account,
// and a tar archive of every legacy or upgradeable BPF program's executable
// bytes.
package dump

import (
	"encoding/csv"
	"io"
	"strconv"
	"sync/atomic"

	"github.com/solana-etl/snapshot-etl/appendvec"
	"github.com/solana-etl/snapshot-etl/internal/pubkeyfmt"
)

// CSVDumper implements snapshot.Consumer, writing one row per account with
// columns pubkey, owner, data_len, lamports.
type CSVDumper struct {
	w     *csv.Writer
	count uint64
}

// NewCSVDumper wraps w, writing a header row immediately.
func NewCSVDumper(w io.Writer) (*CSVDumper, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"pubkey", "owner", "data_len", "lamports"}); err != nil {
		return nil, err
	}
	return &CSVDumper{w: cw}, nil
}

// Count returns the number of rows written so far.
func (d *CSVDumper) Count() uint64 { return atomic.LoadUint64(&d.count) }

// OnAppendVec writes one row per record in av, flushing after each
// AppendVec so partial progress survives a later error.
func (d *CSVDumper) OnAppendVec(av *appendvec.AppendVec) error {
	defer av.Close()
	for rec := range av.Iter() {
		row := []string{
			pubkeyfmt.Encode(rec.Meta.Pubkey),
			pubkeyfmt.Encode(rec.AccountMeta.Owner),
			strconv.FormatUint(rec.Meta.DataLen, 10),
			strconv.FormatUint(rec.AccountMeta.Lamports, 10),
		}
		if err := d.w.Write(row); err != nil {
			return err
		}
		atomic.AddUint64(&d.count, 1)
	}
	d.w.Flush()
	return d.w.Error()
}
