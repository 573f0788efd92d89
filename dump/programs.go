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

package dump

import (
	"archive/tar"
	"encoding/binary"
	"io"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	"github.com/solana-etl/snapshot-etl/appendvec"
)

// BPF loader program IDs, each a vanity base58 address (the original
// solana-program constants exposed as bpf_loader::id(),
// bpf_loader_deprecated::id(), bpf_loader_upgradeable::id()).
var (
	bpfLoaderID            = mustDecodeID("BPFLoader2111111111111111111111111111111111")
	bpfLoaderDeprecatedID  = mustDecodeID("BPFLoader1111111111111111111111111111111111")
	bpfLoaderUpgradeableID = mustDecodeID("BPFLoaderUpgradeab1e11111111111111111111111")
)

func mustDecodeID(s string) [32]byte {
	b, err := base58.Decode(s)
	if err != nil || len(b) != 32 {
		panic("dump: invalid hardcoded program id " + s)
	}
	var out [32]byte
	copy(out[:], b)
	return out
}

// upgradeableLoaderStateProgramData is UpgradeableLoaderState's bincode
// variant index for ProgramData { slot, upgrade_authority_address }.
const upgradeableLoaderStateProgramData = 3

// programDataHeaderSize is the fixed byte width of the ProgramData header
// preceding the executable's ELF bytes: a 4-byte enum tag, an 8-byte slot,
// and a 1-byte Option tag plus its 32-byte Pubkey payload (always present
// at the offset the original tool assumes).
const programDataHeaderSize = 4 + 8 + 1 + 32

// ProgramDumper implements snapshot.Consumer, writing the executable bytes
// of every BPF-upgradeable or legacy BPF program account it finds into a
// tar archive, one "<pubkey base58>.so" entry per program.
type ProgramDumper struct {
	tw *tar.Writer
}

// NewProgramDumper wraps w in a tar writer.
func NewProgramDumper(w io.Writer) *ProgramDumper {
	return &ProgramDumper{tw: tar.NewWriter(w)}
}

// Close flushes the tar writer's trailer.
func (d *ProgramDumper) Close() error { return d.tw.Close() }

// OnAppendVec inspects every record's owner and, for executable BPF
// programs, writes their code bytes to the archive.
func (d *ProgramDumper) OnAppendVec(av *appendvec.AppendVec) error {
	defer av.Close()
	for rec := range av.Iter() {
		if err := d.insertAccount(rec); err != nil {
			return err
		}
	}
	return nil
}

func (d *ProgramDumper) insertAccount(rec appendvec.Record) error {
	owner := rec.AccountMeta.Owner
	switch owner {
	case bpfLoaderID, bpfLoaderDeprecatedID:
		if rec.AccountMeta.Executable {
			return d.writeExecutable(rec.Meta.Pubkey, rec.Data)
		}
	case bpfLoaderUpgradeableID:
		return d.insertUpgradeable(rec)
	}
	return nil
}

func (d *ProgramDumper) insertUpgradeable(rec appendvec.Record) error {
	if len(rec.Data) < 4 {
		return nil
	}
	tag := binary.LittleEndian.Uint32(rec.Data[0:4])
	if tag != upgradeableLoaderStateProgramData {
		return nil
	}
	if len(rec.Data) < programDataHeaderSize {
		return nil
	}
	return d.writeExecutable(rec.Meta.Pubkey, rec.Data[programDataHeaderSize:])
}

func (d *ProgramDumper) writeExecutable(pubkey [32]byte, data []byte) error {
	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     base58.Encode(pubkey[:]) + ".so",
		Mode:     0o644,
		Size:     int64(len(data)),
		Format:   tar.FormatUSTAR,
	}
	if err := d.tw.WriteHeader(hdr); err != nil {
		return errors.Wrap(err, "dump: writing program tar header")
	}
	_, err := d.tw.Write(data)
	return err
}
