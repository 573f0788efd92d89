package dump

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solana-etl/snapshot-etl/appendvec"
)

func buildAppendVec(t *testing.T, records []appendvec.Record) *appendvec.AppendVec {
	t.Helper()
	var buf []byte
	for _, rec := range records {
		var tmp [136]byte
		putU64 := func(off int, v uint64) {
			for i := 0; i < 8; i++ {
				tmp[off+i] = byte(v >> (8 * i))
			}
		}
		putU64(0, rec.Meta.WriteVersion)
		putU64(8, rec.Meta.DataLen)
		copy(tmp[16:48], rec.Meta.Pubkey[:])
		putU64(48, rec.AccountMeta.Lamports)
		putU64(56, rec.AccountMeta.RentEpoch)
		copy(tmp[64:96], rec.AccountMeta.Owner[:])
		if rec.AccountMeta.Executable {
			tmp[96] = 1
		}
		buf = append(buf, tmp[:]...)
		buf = append(buf, rec.Data...)
		for len(buf)%8 != 0 {
			buf = append(buf, 0)
		}
	}
	av, err := appendvec.OpenFromReader(bytes.NewReader(buf), uint64(len(buf)))
	require.NoError(t, err)
	return av
}

func TestCSVDumperWritesRows(t *testing.T) {
	av := buildAppendVec(t, []appendvec.Record{
		{
			Meta:        appendvec.StoredMeta{Pubkey: [32]byte{1}, DataLen: 0},
			AccountMeta: appendvec.AccountMeta{Owner: [32]byte{2}, Lamports: 100},
		},
		{
			Meta:        appendvec.StoredMeta{Pubkey: [32]byte{3}, DataLen: 0},
			AccountMeta: appendvec.AccountMeta{Owner: [32]byte{4}, Lamports: 200},
		},
	})

	var out bytes.Buffer
	d, err := NewCSVDumper(&out)
	require.NoError(t, err)
	require.NoError(t, d.OnAppendVec(av))
	assert.Equal(t, uint64(2), d.Count())

	rows, err := csv.NewReader(strings.NewReader(out.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3) // header + 2 rows
	assert.Equal(t, "pubkey", rows[0][0])
	assert.Equal(t, "100", rows[1][3])
	assert.Equal(t, "200", rows[2][3])
}
