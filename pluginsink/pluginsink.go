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

// Package pluginsink loads a Geyser-style update-notification plugin from a
// shared object (.so) named in a JSON config file, and adapts every
// AppendVec record into a call against its AccountUpdateSink ABI.
//
// Loading a plugin this way only works on platforms Go's plugin package
// supports (linux/darwin, non-static builds) and is inherently unsafe: a
// plugin built against a different compiler or a different version of this
// module's ABI types will corrupt memory rather than fail cleanly. That
// risk belongs to the operator who configured the plugin path, the same
// trust boundary the original tool draws around its own dynamic loader.
package pluginsink

import (
	"encoding/json"
	"os"
	"path/filepath"
	"plugin"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/solana-etl/snapshot-etl/appendvec"
)

// AccountUpdateSink is the ABI a Geyser-style plugin exposes. Slot is
// always 0: a snapshot has no per-account slot information once flattened
// into AppendVecs, the same simplification the original tool's own
// GeyserDumper makes.
type AccountUpdateSink interface {
	AccountDataNotificationsEnabled() bool
	OnLoad(configPath string) error
	UpdateAccount(rec appendvec.Record, slot uint64, isStartup bool) error
}

// pluginConfig mirrors the {"libpath": "..."} shape the original tool's
// loader reads, minus the JSON5 comment/trailing-comma leniency it also
// allowed (no JSON5 library is available; plain encoding/json is used, and
// a config file needs only the one field).
type pluginConfig struct {
	LibPath string `json:"libpath"`
}

// Load reads configPath, resolves its libpath field relative to the config
// file's directory, and opens that shared object looking for an exported
// "NewAccountUpdateSink" symbol of type func() AccountUpdateSink.
//
// The loaded plugin is intentionally never released: Go's plugin package
// offers no Close, and the original tool makes the same choice explicitly
// (Box::leak) rather than pretend unloading is supported.
func Load(configPath string) (AccountUpdateSink, error) {
	raw, err := os.ReadFile(configPath)
	if err != nil {
		return nil, errors.Wrap(err, "pluginsink: reading config")
	}
	var cfg pluginConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, errors.Wrap(err, "pluginsink: parsing config")
	}
	if cfg.LibPath == "" {
		return nil, errors.New("pluginsink: config missing libpath")
	}

	libPath := cfg.LibPath
	if !filepath.IsAbs(libPath) {
		libPath = filepath.Join(filepath.Dir(configPath), libPath)
	}

	p, err := plugin.Open(libPath)
	if err != nil {
		return nil, errors.Wrap(err, "pluginsink: opening shared object")
	}
	sym, err := p.Lookup("NewAccountUpdateSink")
	if err != nil {
		return nil, errors.Wrap(err, "pluginsink: missing NewAccountUpdateSink symbol")
	}
	constructor, ok := sym.(func() AccountUpdateSink)
	if !ok {
		return nil, errors.New("pluginsink: NewAccountUpdateSink has the wrong signature")
	}

	sink := constructor()
	if err := sink.OnLoad(configPath); err != nil {
		return nil, errors.Wrap(err, "pluginsink: plugin OnLoad failed")
	}
	return sink, nil
}

// Consumer adapts an AccountUpdateSink into a snapshot.Consumer.
type Consumer struct {
	sink  AccountUpdateSink
	count uint64
}

// NewConsumer wraps sink.
func NewConsumer(sink AccountUpdateSink) *Consumer { return &Consumer{sink: sink} }

// Count returns the number of records delivered so far.
func (c *Consumer) Count() uint64 { return atomic.LoadUint64(&c.count) }

// OnAppendVec delivers every record in av to the plugin with slot fixed at
// 0 and isStartup fixed at false, matching a flattened-snapshot's lack of
// real-time slot context.
func (c *Consumer) OnAppendVec(av *appendvec.AppendVec) error {
	defer av.Close()
	if !c.sink.AccountDataNotificationsEnabled() {
		return nil
	}
	for rec := range av.Iter() {
		if err := c.sink.UpdateAccount(rec, 0, false); err != nil {
			return err
		}
		atomic.AddUint64(&c.count, 1)
	}
	return nil
}
