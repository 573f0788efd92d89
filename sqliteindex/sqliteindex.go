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

// Package sqliteindex writes every account, SPL token record and Metaplex
// metadata record encountered while walking a snapshot into a SQLite
// database, built for bulk one-shot ingestion rather than concurrent
// read/write access: synchronous commits and the journal are disabled, and
// the database is written to a temp file promoted into place only once the
// whole snapshot has been consumed without error.
package sqliteindex

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
	"go.uber.org/zap"

	"github.com/solana-etl/snapshot-etl/appendvec"
	"github.com/solana-etl/snapshot-etl/metaplex"
	"github.com/solana-etl/snapshot-etl/snapshoterr"
	"github.com/solana-etl/snapshot-etl/tokenprogram"
)

const schema = `
CREATE TABLE account (
	pubkey BLOB(32) NOT NULL PRIMARY KEY,
	data_len INTEGER(8) NOT NULL,
	owner BLOB(32) NOT NULL,
	lamports INTEGER(8) NOT NULL,
	executable INTEGER(1) NOT NULL,
	rent_epoch INTEGER(8) NOT NULL
);
CREATE TABLE token_mint (
	pubkey BLOB(32) NOT NULL PRIMARY KEY,
	mint_authority BLOB(32) NULL,
	supply INTEGER(8) NOT NULL,
	decimals INTEGER(2) NOT NULL,
	is_initialized BOOL NOT NULL,
	freeze_authority BLOB(32) NULL
);
CREATE TABLE token_account (
	pubkey BLOB(32) NOT NULL PRIMARY KEY,
	mint BLOB(32) NOT NULL,
	owner BLOB(32) NOT NULL,
	amount INTEGER(8) NOT NULL,
	delegate BLOB(32),
	state INTEGER(1) NOT NULL,
	is_native INTEGER(8),
	delegated_amount INTEGER(8) NOT NULL,
	close_authority BLOB(32)
);
CREATE TABLE token_multisig (
	pubkey BLOB(32) NOT NULL,
	signer BLOB(32) NOT NULL,
	m INTEGER(2) NOT NULL,
	n INTEGER(2) NOT NULL,
	PRIMARY KEY (pubkey, signer)
);
CREATE TABLE token_metadata (
	pubkey BLOB(32) NOT NULL,
	mint BLOB(32) NOT NULL,
	name TEXT(32) NOT NULL,
	symbol TEXT(10) NOT NULL,
	uri TEXT(200) NOT NULL,
	seller_fee_basis_points INTEGER(4) NOT NULL,
	primary_sale_happened INTEGER(1) NOT NULL,
	is_mutable INTEGER(1) NOT NULL,
	edition_nonce INTEGER(2) NULL,
	collection_verified INTEGER(1) NULL,
	collection_key BLOB(32) NULL
);
`

// preparedStmtCacheSize bounds how many distinct prepared statements the
// indexer keeps warm. The indexer only ever prepares a handful of fixed
// statements, so this is comfortably above what it will ever need.
const preparedStmtCacheSize = 16

// IndexStats summarizes how many rows of each kind were written.
type IndexStats struct {
	AccountsTotal         uint64
	TokenAccountsTotal    uint64
	MetaplexAccountsTotal uint64
}

// Indexer owns a SQLite connection backed by a temp file that is promoted
// to dbPath only once Promote completes without error.
type Indexer struct {
	db          *sql.DB
	dbPath      string
	tempPath    string
	promoted    bool
	indexTokens bool
	log         *zap.Logger

	stmts *lru.Cache[string, *sql.Stmt]

	accounts, tokenAccounts, metaplexAccounts uint64
}

// Open creates a fresh temp-file SQLite database next to dbPath, applies
// the bulk-load pragmas, and creates the schema. indexTokens controls
// whether SPL token and Metaplex metadata accounts are decoded into the
// token_* and token_metadata tables; when false only the account table is
// populated, matching the original tool's --tokens flag.
func Open(dbPath string, cacheSizeMiB int, indexTokens bool, log *zap.Logger) (*Indexer, error) {
	if log == nil {
		log = zap.NewNop()
	}
	tempPath := filepath.Join(filepath.Dir(dbPath), "_"+filepath.Base(dbPath)+".tmp")
	_ = os.Remove(tempPath)

	db, err := sql.Open("sqlite", tempPath)
	if err != nil {
		return nil, snapshoterr.NewIOError(err)
	}
	db.SetMaxOpenConns(1) // bulk ingestion is single-writer; avoid modernc's pool spawning concurrent connections

	for _, pragma := range []string{
		"PRAGMA synchronous = OFF",
		"PRAGMA journal_mode = OFF",
		"PRAGMA locking_mode = EXCLUSIVE",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			os.Remove(tempPath)
			return nil, snapshoterr.NewIOError(errors.Wrap(err, pragma))
		}
	}
	if cacheSizeMiB > 0 {
		stmt := fmt.Sprintf("PRAGMA cache_size = -%d", cacheSizeMiB*1024)
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			os.Remove(tempPath)
			return nil, snapshoterr.NewIOError(err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		os.Remove(tempPath)
		return nil, snapshoterr.NewIOError(err)
	}

	stmts, err := lru.NewWithEvict[string, *sql.Stmt](preparedStmtCacheSize, func(_ string, s *sql.Stmt) { s.Close() })
	if err != nil {
		db.Close()
		os.Remove(tempPath)
		return nil, err
	}

	return &Indexer{db: db, dbPath: dbPath, tempPath: tempPath, indexTokens: indexTokens, log: log, stmts: stmts}, nil
}

// Close removes the temp database file unless it was already promoted by a
// successful Promote.
func (ix *Indexer) Close() error {
	if ix.db != nil {
		ix.db.Close()
	}
	if !ix.promoted {
		if err := os.Remove(ix.tempPath); err != nil && !os.IsNotExist(err) {
			ix.log.Warn("failed to remove temp database", zap.String("path", ix.tempPath), zap.Error(err))
		}
	}
	return nil
}

// Stats returns the running row counts. Safe to call concurrently with
// OnAppendVec.
func (ix *Indexer) Stats() IndexStats {
	return IndexStats{
		AccountsTotal:         atomic.LoadUint64(&ix.accounts),
		TokenAccountsTotal:    atomic.LoadUint64(&ix.tokenAccounts),
		MetaplexAccountsTotal: atomic.LoadUint64(&ix.metaplexAccounts),
	}
}

// Promote marks ingestion complete: it sets the database read-only
// (query_only) and renames the temp file into its final location. Callers
// must not use the Indexer afterward except to Close it.
func (ix *Indexer) Promote() error {
	if _, err := ix.db.Exec("PRAGMA query_only = ON"); err != nil {
		return snapshoterr.NewIOError(err)
	}
	ix.db.Close()
	ix.db = nil
	if err := os.Rename(ix.tempPath, ix.dbPath); err != nil {
		return snapshoterr.NewIOError(err)
	}
	ix.promoted = true
	return nil
}

func (ix *Indexer) prepared(query string) (*sql.Stmt, error) {
	if s, ok := ix.stmts.Get(query); ok {
		return s, nil
	}
	s, err := ix.db.Prepare(query)
	if err != nil {
		return nil, snapshoterr.NewIOError(err)
	}
	ix.stmts.Add(query, s)
	return s, nil
}

// OnAppendVec implements snapshot.Consumer: it iterates every record in av
// and inserts it, dispatching to the token/metaplex inserters by owner.
func (ix *Indexer) OnAppendVec(av *appendvec.AppendVec) error {
	defer av.Close()
	for rec := range av.Iter() {
		if err := ix.insertAccount(rec); err != nil {
			return err
		}
		n := atomic.AddUint64(&ix.accounts, 1)
		if n%1024 == 0 {
			ix.log.Debug("indexing progress", zap.Uint64("accounts", n))
		}
		if !ix.indexTokens {
			continue
		}
		if rec.AccountMeta.Owner == tokenprogram.ProgramID {
			if err := ix.insertToken(rec); err != nil {
				return err
			}
		}
		if rec.AccountMeta.Owner == metaplex.ProgramID {
			if err := ix.insertMetadata(rec); err != nil {
				return err
			}
		}
	}
	return nil
}

func (ix *Indexer) insertAccount(rec appendvec.Record) error {
	stmt, err := ix.prepared(`INSERT OR REPLACE INTO account (pubkey, data_len, owner, lamports, executable, rent_epoch) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	_, err = stmt.Exec(rec.Meta.Pubkey[:], rec.Meta.DataLen, rec.AccountMeta.Owner[:], rec.AccountMeta.Lamports, rec.AccountMeta.Executable, rec.AccountMeta.RentEpoch)
	return snapshoterr.NewIOError(err)
}

func (ix *Indexer) insertToken(rec appendvec.Record) error {
	switch len(rec.Data) {
	case tokenprogram.AccountLen:
		acc, err := tokenprogram.DecodeAccount(rec.Data)
		if err != nil {
			ix.log.Warn("malformed token account", zap.Error(err))
			return nil
		}
		if err := ix.insertTokenAccount(rec, acc); err != nil {
			return err
		}
	case tokenprogram.MintLen:
		mint, err := tokenprogram.DecodeMint(rec.Data)
		if err != nil {
			ix.log.Warn("malformed token mint", zap.Error(err))
			return nil
		}
		if err := ix.insertTokenMint(rec, mint); err != nil {
			return err
		}
	case tokenprogram.MultisigLen:
		ms, err := tokenprogram.DecodeMultisig(rec.Data)
		if err != nil {
			ix.log.Warn("malformed token multisig", zap.Error(err))
			return nil
		}
		if err := ix.insertTokenMultisig(rec, ms); err != nil {
			return err
		}
	default:
		ix.log.Warn("token program account has unexpected size",
			zap.Binary("pubkey", rec.Meta.Pubkey[:]), zap.Int("data_len", len(rec.Data)))
		return nil
	}
	atomic.AddUint64(&ix.tokenAccounts, 1)
	return nil
}

func (ix *Indexer) insertTokenAccount(rec appendvec.Record, acc *tokenprogram.Account) error {
	stmt, err := ix.prepared(`INSERT OR REPLACE INTO token_account (pubkey, mint, owner, amount, delegate, state, is_native, delegated_amount, close_authority) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	_, err = stmt.Exec(rec.Meta.Pubkey[:], acc.Mint[:], acc.Owner[:], acc.Amount,
		optionalBytes(acc.Delegate), acc.State, optionalUint64(acc.IsNative), acc.DelegatedAmount, optionalBytes(acc.CloseAuthority))
	return snapshoterr.NewIOError(err)
}

func (ix *Indexer) insertTokenMint(rec appendvec.Record, mint *tokenprogram.Mint) error {
	stmt, err := ix.prepared(`INSERT OR REPLACE INTO token_mint (pubkey, mint_authority, supply, decimals, is_initialized, freeze_authority) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	_, err = stmt.Exec(rec.Meta.Pubkey[:], optionalBytes(mint.MintAuthority), mint.Supply, mint.Decimals, mint.IsInitialized, optionalBytes(mint.FreezeAuthority))
	return snapshoterr.NewIOError(err)
}

func (ix *Indexer) insertTokenMultisig(rec appendvec.Record, ms *tokenprogram.Multisig) error {
	stmt, err := ix.prepared(`INSERT OR REPLACE INTO token_multisig (pubkey, signer, m, n) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	for _, signer := range ms.Signers {
		if _, err := stmt.Exec(rec.Meta.Pubkey[:], signer[:], ms.M, ms.N); err != nil {
			return snapshoterr.NewIOError(err)
		}
	}
	return nil
}

func (ix *Indexer) insertMetadata(rec appendvec.Record) error {
	if len(rec.Data) == 0 {
		return nil
	}
	meta, ext, extV1_2, err := metaplex.Decode(rec.Data)
	if err != nil {
		ix.log.Warn("invalid token metadata account", zap.Binary("pubkey", rec.Meta.Pubkey[:]), zap.Error(err))
		return nil
	}
	if meta == nil {
		return nil
	}

	var edition *uint8
	if ext != nil {
		edition = ext.EditionNonce
	}
	var collectionVerified *bool
	var collectionKey []byte
	if extV1_2 != nil && extV1_2.Collection != nil {
		v := extV1_2.Collection.Verified
		collectionVerified = &v
		collectionKey = extV1_2.Collection.Key[:]
	}

	stmt, err := ix.prepared(`INSERT OR REPLACE INTO token_metadata
		(pubkey, mint, name, symbol, uri, seller_fee_basis_points, primary_sale_happened, is_mutable, edition_nonce, collection_verified, collection_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	_, err = stmt.Exec(rec.Meta.Pubkey[:], meta.Mint[:], meta.Data.Name, meta.Data.Symbol, meta.Data.URI,
		meta.Data.SellerFeeBasisPoints, meta.PrimarySaleHappened, meta.IsMutable, edition, collectionVerified, collectionKey)
	if err != nil {
		return snapshoterr.NewIOError(err)
	}
	atomic.AddUint64(&ix.metaplexAccounts, 1)
	return nil
}

func optionalBytes(b *[32]byte) []byte {
	if b == nil {
		return nil
	}
	return b[:]
}

func optionalUint64(v *uint64) any {
	if v == nil {
		return nil
	}
	return *v
}
