package sqliteindex

import (
	"bytes"
	"database/sql"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solana-etl/snapshot-etl/appendvec"
	"github.com/solana-etl/snapshot-etl/metaplex"
	"github.com/solana-etl/snapshot-etl/tokenprogram"
)

func TestOpenCreatesSchemaAndPragmas(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "out.db")
	ix, err := Open(dbPath, 0, true, nil)
	require.NoError(t, err)
	defer ix.Close()

	var name string
	err = ix.db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='account'`).Scan(&name)
	require.NoError(t, err, "expected account table to exist")
}

func TestInsertAccountThenPromote(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "out.db")
	ix, err := Open(dbPath, 0, true, nil)
	require.NoError(t, err)

	rec := appendvec.Record{
		Meta:        appendvec.StoredMeta{Pubkey: [32]byte{1}, DataLen: 0},
		AccountMeta: appendvec.AccountMeta{Owner: [32]byte{2}, Lamports: 10},
	}
	require.NoError(t, ix.insertAccount(rec))
	assert.Equal(t, uint64(0), ix.Stats().AccountsTotal, "insertAccount alone should not bump the counter")

	require.NoError(t, ix.Promote())

	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err, "reopen promoted db")
	defer db.Close()

	var lamports int64
	err = db.QueryRow(`SELECT lamports FROM account WHERE pubkey = ?`, rec.Meta.Pubkey[:]).Scan(&lamports)
	require.NoError(t, err, "expected promoted row to be queryable")
	assert.Equal(t, int64(10), lamports)
}

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

func TestOnAppendVecSkipsTokenDecodingWhenDisabled(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "out.db")
	ix, err := Open(dbPath, 0, false, nil)
	require.NoError(t, err)
	defer ix.Close()

	mint := make([]byte, tokenprogram.MintLen)
	mint[44] = 1 // decimals byte, arbitrary non-zero marker
	av := buildAppendVec(t, []appendvec.Record{
		{
			Meta:        appendvec.StoredMeta{Pubkey: [32]byte{7}, DataLen: uint64(len(mint))},
			AccountMeta: appendvec.AccountMeta{Owner: tokenprogram.ProgramID},
			Data:        mint,
		},
	})

	require.NoError(t, ix.OnAppendVec(av))
	assert.Equal(t, uint64(0), ix.Stats().TokenAccountsTotal, "expected no token rows indexed when indexTokens is false")
}

func TestOnAppendVecIndexesTokenMintWhenEnabled(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "out.db")
	ix, err := Open(dbPath, 0, true, nil)
	require.NoError(t, err)
	defer ix.Close()

	mint := make([]byte, tokenprogram.MintLen)
	binary.LittleEndian.PutUint64(mint[36:44], 1000000) // supply
	mint[44] = 6                                        // decimals
	mint[45] = 1                                        // is_initialized

	pubkey := [32]byte{9}
	av := buildAppendVec(t, []appendvec.Record{
		{
			Meta:        appendvec.StoredMeta{Pubkey: pubkey, DataLen: uint64(len(mint))},
			AccountMeta: appendvec.AccountMeta{Owner: tokenprogram.ProgramID},
			Data:        mint,
		},
	})

	require.NoError(t, ix.OnAppendVec(av))
	assert.Equal(t, uint64(1), ix.Stats().TokenAccountsTotal)

	var supply, decimals, isInitialized int64
	err = ix.db.QueryRow(`SELECT supply, decimals, is_initialized FROM token_mint WHERE pubkey = ?`, pubkey[:]).
		Scan(&supply, &decimals, &isInitialized)
	require.NoError(t, err)
	assert.Equal(t, int64(1000000), supply)
	assert.Equal(t, int64(6), decimals)
	assert.Equal(t, int64(1), isInitialized)
}

func buildMetadataBytes(t *testing.T, editionNonce uint8) []byte {
	t.Helper()
	var buf bytes.Buffer
	u8 := func(v uint8) { buf.WriteByte(v) }
	u16 := func(v uint16) {
		var tmp [2]byte
		binary.LittleEndian.PutUint16(tmp[:], v)
		buf.Write(tmp[:])
	}
	u32 := func(v uint32) {
		var tmp [4]byte
		binary.LittleEndian.PutUint32(tmp[:], v)
		buf.Write(tmp[:])
	}
	pubkey := func(b byte) {
		var k [32]byte
		for i := range k {
			k[i] = b
		}
		buf.Write(k[:])
	}
	str := func(s string) {
		u32(uint32(len(s)))
		buf.WriteString(s)
	}

	u8(uint8(metaplex.AccountKeyMetadataV1))
	pubkey(0x01) // update_authority
	pubkey(0x02) // mint
	str("Name")
	str("SYM")
	str("https://example.test/metadata.json")
	u16(500)
	u8(0)    // creators = None
	u8(1)    // primary_sale_happened
	u8(0)    // is_mutable
	u8(1)    // Ext: Some(edition_nonce)
	u8(editionNonce)
	return buf.Bytes()
}

func TestOnAppendVecIndexesTokenMetadata(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "out.db")
	ix, err := Open(dbPath, 0, true, nil)
	require.NoError(t, err)
	defer ix.Close()

	data := buildMetadataBytes(t, 5)
	pubkey := [32]byte{11}
	av := buildAppendVec(t, []appendvec.Record{
		{
			Meta:        appendvec.StoredMeta{Pubkey: pubkey, DataLen: uint64(len(data))},
			AccountMeta: appendvec.AccountMeta{Owner: metaplex.ProgramID},
			Data:        data,
		},
	})

	require.NoError(t, ix.OnAppendVec(av))
	assert.Equal(t, uint64(1), ix.Stats().MetaplexAccountsTotal)

	var name string
	var editionNonce int64
	err = ix.db.QueryRow(`SELECT name, edition_nonce FROM token_metadata WHERE pubkey = ?`, pubkey[:]).
		Scan(&name, &editionNonce)
	require.NoError(t, err)
	assert.Equal(t, "Name", name)
	assert.Equal(t, int64(5), editionNonce)
}

func TestCloseRemovesUnpromotedTempFile(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "out.db")
	ix, err := Open(dbPath, 0, true, nil)
	require.NoError(t, err)

	tempPath := ix.tempPath
	require.NoError(t, ix.Close())

	_, err = os.Stat(tempPath)
	assert.True(t, os.IsNotExist(err), "expected temp db file removed, stat err=%v", err)
}
