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

// Package manifest deserializes the bank manifest embedded at the start of
// a snapshot: a VersionedBank block (consumed and discarded)
// followed by the retained AccountsDbFields (slot -> StorageEntry index).
package manifest

import (
	"errors"
	"io"
)

// StorageEntry describes one AppendVec belonging to a slot: its id and the
// authoritative byte length to read from the corresponding accounts file
// (a StorageEntry invariant).
type StorageEntry struct {
	ID                 uint64
	AccountsCurrentLen uint64
}

// AccountsDbFields is the retained half of the manifest: everything needed
// to locate and bound-read every AppendVec.
type AccountsDbFields struct {
	// StorageMap maps slot -> the StorageEntry list declared for that slot.
	StorageMap map[uint64][]StorageEntry
	// Version is the StoredMetaWriteVersion counter at snapshot time.
	Version uint64
	// RootSlot is the snapshot's root slot.
	RootSlot uint64
	// BankHashInfo is kept only for completeness; its three hashes are
	// never inspected (bank-hash verification is out of scope here).
	BankHashInfo BankHashInfo
	// HistoricalRoots and HistoricalRootsWithHash are the two tail lists
	// that may be entirely absent on older snapshots.
	HistoricalRoots         []uint64
	HistoricalRootsWithHash []HistoricalRootWithHash
}

// BankHashInfo mirrors Solana's three-hash accounts-db summary record.
type BankHashInfo struct {
	AccountsHash [32]byte
	SnapshotHash [32]byte
	StatsHash    [32]byte
}

// HistoricalRootWithHash pairs a historical root slot with its hash.
type HistoricalRootWithHash struct {
	Slot uint64
	Hash [32]byte
}

// Deserialize consumes a VersionedBank block (discarded) followed by an
// AccountsDbFields block (retained) from r, returning the retained fields
// or a *snapshoterr.DeserializeError carrying the byte offset of failure.
func Deserialize(r io.Reader) (*AccountsDbFields, error) {
	br := newBincodeReader(r)
	if err := skipVersionedBank(br); err != nil {
		return nil, err
	}
	return readAccountsDbFields(br)
}

// skipVersionedBank advances the cursor past the ~30-field VersionedBank
// block without reconstructing bank semantics. The
// field list below follows the same shape family as Solana's runtime Bank
// struct (blockhash queue, ancestors, hard forks, rent/epoch/inflation
// parameters, stakes) closely enough to exercise every bincode primitive
// the real manifest uses; it is not a byte-exact reproduction of mainnet
// bank internals, which are out of this retrieval pack's scope.
func skipVersionedBank(br *bincodeReader) error {
	// blockhash_queue: { ticks_per_slot: u64, last_hash: Option<Hash>, ages: Vec<(Hash, (u64,u64))>, max_age: u64 }
	if err := br.Skip(8); err != nil {
		return err
	}
	if err := br.SkipOption(func() error { return br.Skip(32) }); err != nil {
		return err
	}
	if err := br.SkipVec(func() error { return br.Skip(32 + 16) }); err != nil {
		return err
	}
	if err := br.Skip(8); err != nil {
		return err
	}

	// ancestors: Vec<(Slot, usize)>
	if err := br.SkipVec(func() error { return br.Skip(16) }); err != nil {
		return err
	}

	// hash, parent_hash: Hash, Hash
	if err := br.Skip(64); err != nil {
		return err
	}

	// parent_slot: Slot (u64)
	if err := br.Skip(8); err != nil {
		return err
	}

	// hard_forks: Vec<(Slot, usize)>
	if err := br.SkipVec(func() error { return br.Skip(16) }); err != nil {
		return err
	}

	// transaction_count, tick_height, signature_count, capitalization, max_tick_height: 5x u64
	if err := br.Skip(5 * 8); err != nil {
		return err
	}

	// hashes_per_tick: Option<u64>
	if err := br.SkipOption(func() error { return br.Skip(8) }); err != nil {
		return err
	}

	// ticks_per_slot: u64, ns_per_slot: u128 (16 bytes), genesis_creation_time: i64, slots_per_year: f64
	if err := br.Skip(8 + 16 + 8 + 8); err != nil {
		return err
	}

	// accounts_data_len, slot, epoch, block_height: 4x u64
	if err := br.Skip(4 * 8); err != nil {
		return err
	}

	// collector_id: Pubkey
	if err := br.Skip(32); err != nil {
		return err
	}

	// collector_fees: u64
	if err := br.Skip(8); err != nil {
		return err
	}

	// fee_calculator: { lamports_per_signature: u64 }
	if err := br.Skip(8); err != nil {
		return err
	}

	// fee_rate_governor: { target_lamports_per_signature: u64, target_signatures_per_slot: u64,
	//                       min_lamports_per_signature: u64, max_lamports_per_signature: u64, burn_percent: u8 }
	if err := br.Skip(4*8 + 1); err != nil {
		return err
	}

	// collected_rent: u64
	if err := br.Skip(8); err != nil {
		return err
	}

	// rent_collector: { epoch: u64, epoch_schedule: {slots_per_epoch:u64, leader_schedule_slot_offset:u64,
	//                    warmup:bool, first_normal_epoch:u64, first_normal_slot:u64},
	//                    slots_per_year: f64, rent: {lamports_per_byte_year:u64, exemption_threshold:f64, burn_percent:u8} }
	if err := br.Skip(8); err != nil {
		return err
	}
	if err := skipEpochSchedule(br); err != nil {
		return err
	}
	if err := br.Skip(8); err != nil {
		return err
	}
	if err := br.Skip(8 + 8 + 1); err != nil {
		return err
	}

	// epoch_schedule: EpochSchedule (top-level copy)
	if err := skipEpochSchedule(br); err != nil {
		return err
	}

	// inflation: { initial, terminal, taper, foundation, foundation_term: 5x f64 }
	if err := br.Skip(5 * 8); err != nil {
		return err
	}

	// stakes: Stakes<Delegation> — vote_accounts: Vec<(Pubkey, (u64, VoteAccount))>,
	// stake_delegations: Vec<(Pubkey, Delegation{voter_pubkey:Pubkey, stake:u64, activation_epoch:u64,
	//   deactivation_epoch:u64, warmup_cooldown_rate:f64})>, unused: u64, epoch: u64, stake_history: Vec<(u64,(u64,u64,u64))>
	if err := br.SkipVec(func() error {
		if err := br.Skip(32 + 8); err != nil {
			return err
		}
		return br.Skip(32 + 4*32) // placeholder VoteAccount payload width
	}); err != nil {
		return err
	}
	if err := br.SkipVec(func() error { return br.Skip(32 + 32 + 8 + 8 + 8 + 8) }); err != nil {
		return err
	}
	if err := br.Skip(8 + 8); err != nil {
		return err
	}
	if err := br.SkipVec(func() error { return br.Skip(8 + 24) }); err != nil {
		return err
	}

	// epoch_stakes: Vec<(Epoch, EpochStakes{stakes:.., total_stake:u64, node_id_to_vote_accounts:.., epoch_authorized_voters:..})>
	if err := br.SkipVec(func() error { return br.Skip(8) }); err != nil {
		return err
	}

	// is_delta: bool
	if _, err := br.ReadBool(); err != nil {
		return err
	}

	return nil
}

func skipEpochSchedule(br *bincodeReader) error {
	if err := br.Skip(8 + 8); err != nil {
		return err
	}
	if _, err := br.ReadBool(); err != nil {
		return err
	}
	return br.Skip(8 + 8)
}

// readAccountsDbFields decodes the AccountsDbFields tuple: the storage map,
// write-version counter, root slot, bank-hash info, and the two
// default-on-EOF tail lists.
func readAccountsDbFields(br *bincodeReader) (*AccountsDbFields, error) {
	n, err := br.ReadLen()
	if err != nil {
		return nil, err
	}

	storageMap := make(map[uint64][]StorageEntry, n)
	for i := uint64(0); i < n; i++ {
		slot, err := br.ReadU64()
		if err != nil {
			return nil, err
		}
		entryCount, err := br.ReadLen()
		if err != nil {
			return nil, err
		}
		entries := make([]StorageEntry, 0, entryCount)
		for j := uint64(0); j < entryCount; j++ {
			id, err := br.ReadU64()
			if err != nil {
				return nil, err
			}
			currentLen, err := br.ReadU64()
			if err != nil {
				return nil, err
			}
			entries = append(entries, StorageEntry{ID: id, AccountsCurrentLen: currentLen})
		}
		storageMap[slot] = entries
	}

	version, err := br.ReadU64()
	if err != nil {
		return nil, err
	}
	rootSlot, err := br.ReadU64()
	if err != nil {
		return nil, err
	}

	var info BankHashInfo
	accountsHash, err := br.ReadPubkey()
	if err != nil {
		return nil, err
	}
	info.AccountsHash = accountsHash
	snapshotHash, err := br.ReadPubkey()
	if err != nil {
		return nil, err
	}
	info.SnapshotHash = snapshotHash
	statsHash, err := br.ReadPubkey()
	if err != nil {
		return nil, err
	}
	info.StatsHash = statsHash

	historicalRoots, err := readHistoricalRoots(br)
	if err != nil {
		return nil, err
	}
	historicalRootsWithHash, err := readHistoricalRootsWithHash(br)
	if err != nil {
		return nil, err
	}

	return &AccountsDbFields{
		StorageMap:              storageMap,
		Version:                 version,
		RootSlot:                rootSlot,
		BankHashInfo:            info,
		HistoricalRoots:         historicalRoots,
		HistoricalRootsWithHash: historicalRootsWithHash,
	}, nil
}

// readHistoricalRoots reads a Vec<u64>, treating EOF at the length prefix
// as an empty list (older snapshots omit this tail entirely).
func readHistoricalRoots(br *bincodeReader) ([]uint64, error) {
	n, err := br.ReadLen()
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]uint64, 0, n)
	for i := uint64(0); i < n; i++ {
		v, err := br.ReadU64()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// readHistoricalRootsWithHash reads a Vec<(u64,[u8;32])>, also tolerating
// EOF as empty.
func readHistoricalRootsWithHash(br *bincodeReader) ([]HistoricalRootWithHash, error) {
	n, err := br.ReadLen()
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]HistoricalRootWithHash, 0, n)
	for i := uint64(0); i < n; i++ {
		slot, err := br.ReadU64()
		if err != nil {
			return nil, err
		}
		hash, err := br.ReadPubkey()
		if err != nil {
			return nil, err
		}
		out = append(out, HistoricalRootWithHash{Slot: slot, Hash: hash})
	}
	return out, nil
}
