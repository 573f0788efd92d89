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

// Command snapshotetl walks a Solana snapshot (an unpacked directory, a
// local tar.zst archive, or one streamed from an http(s) URL) and drives
// it into one sink: CSV on stdout, a SQLite database, a tar archive of BPF
// program executables, or a dynamically loaded Geyser-style plugin. When
// several sink flags are given, only the first in that order (--csv,
// --geyser, --programs-out, --sqlite-out) is run.
package main

import (
	"context"
	"fmt"
	"os"
	"syscall"

	goerrors "errors"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/solana-etl/snapshot-etl/dump"
	"github.com/solana-etl/snapshot-etl/pluginsink"
	"github.com/solana-etl/snapshot-etl/progresshook"
	"github.com/solana-etl/snapshot-etl/snapshot"
	"github.com/solana-etl/snapshot-etl/sqliteindex"
)

type flags struct {
	csv             bool
	sqliteOut       string
	sqliteCacheSize int
	tokens          bool
	geyserConfig    string
	programsOut     string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:   "snapshotetl <path-or-url>",
		Short: "Extract accounts, token data and program binaries from a Solana snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args[0], f)
		},
	}

	cmd.Flags().BoolVar(&f.csv, "csv", false, "write CSV to stdout")
	cmd.Flags().StringVar(&f.sqliteOut, "sqlite-out", "", "export to a new SQLite3 database at this path")
	cmd.Flags().IntVar(&f.sqliteCacheSize, "sqlite-cache-size", 0, "SQLite page cache size in MiB")
	cmd.Flags().BoolVar(&f.tokens, "tokens", false, "index SPL token and Metaplex metadata accounts")
	cmd.Flags().StringVar(&f.geyserConfig, "geyser", "", "load a Geyser-style plugin from this config file")
	cmd.Flags().StringVar(&f.programsOut, "programs-out", "", "write a tar archive of BPF program executables to this path")

	return cmd
}

func run(ctx context.Context, source string, f flags) error {
	if !f.csv && f.sqliteOut == "" && f.geyserConfig == "" && f.programsOut == "" {
		return errors.New("specify at least one of --csv, --sqlite-out, --geyser, --programs-out")
	}

	log, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	progress := progresshook.NewTerminal()
	defer progress.Stop()

	ext, err := snapshot.Open(source, progress)
	if err != nil {
		return errors.Wrap(err, "opening snapshot")
	}
	defer ext.Close()

	if f.csv {
		return runCSV(ext, log)
	}
	if f.geyserConfig != "" {
		return runGeyser(ext, f.geyserConfig, log)
	}
	if f.programsOut != "" {
		return runPrograms(ext, f.programsOut, log)
	}
	return runSQLite(ext, f, log)
}

func runCSV(ext snapshot.Extractor, log *zap.Logger) error {
	dumper, err := dump.NewCSVDumper(os.Stdout)
	if err != nil {
		return err
	}
	if err := snapshot.Drive(ext.Iter(), dumper); err != nil {
		if goerrors.Is(err, syscall.EPIPE) {
			os.Exit(1)
		}
		return errors.Wrap(err, "dumping CSV")
	}
	log.Info("done", zap.Uint64("accounts", dumper.Count()))
	return nil
}

func runGeyser(ext snapshot.Extractor, configPath string, log *zap.Logger) error {
	sink, err := pluginsink.Load(configPath)
	if err != nil {
		return errors.Wrap(err, "loading geyser plugin")
	}
	if !sink.AccountDataNotificationsEnabled() {
		return errors.New("geyser plugin does not accept account data notifications")
	}
	consumer := pluginsink.NewConsumer(sink)
	if err := snapshot.Drive(ext.Iter(), consumer); err != nil {
		return errors.Wrap(err, "dumping to geyser plugin")
	}
	log.Info("done", zap.Uint64("accounts", consumer.Count()))
	return nil
}

func runPrograms(ext snapshot.Extractor, outPath string, log *zap.Logger) error {
	if outPath == "-" {
		dumper := dump.NewProgramDumper(os.Stdout)
		if err := snapshot.Drive(ext.Iter(), dumper); err != nil {
			return errors.Wrap(err, "dumping program archive")
		}
		if err := dumper.Close(); err != nil {
			return err
		}
		log.Info("done writing program archive", zap.String("path", "stdout"))
		return nil
	}

	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer f.Close()

	dumper := dump.NewProgramDumper(f)
	if err := snapshot.Drive(ext.Iter(), dumper); err != nil {
		return errors.Wrap(err, "dumping program archive")
	}
	if err := dumper.Close(); err != nil {
		return err
	}
	log.Info("done writing program archive", zap.String("path", outPath))
	return nil
}

func runSQLite(ext snapshot.Extractor, f flags, log *zap.Logger) error {
	if _, err := os.Stat(f.sqliteOut); err == nil {
		return errors.Errorf("refusing to overwrite database that already exists: %s", f.sqliteOut)
	}

	ix, err := sqliteindex.Open(f.sqliteOut, f.sqliteCacheSize, f.tokens, log)
	if err != nil {
		return err
	}
	defer ix.Close()

	// sqliteindex holds a single exclusive-locked connection, so it is
	// driven single-threaded rather than through snapshot.ParallelDrive.
	if err := snapshot.Drive(ext.Iter(), ix); err != nil {
		return errors.Wrap(err, "indexing into sqlite")
	}

	if err := ix.Promote(); err != nil {
		return errors.Wrap(err, "promoting sqlite database")
	}

	stats := ix.Stats()
	log.Info("done",
		zap.Uint64("accounts", stats.AccountsTotal),
		zap.Uint64("token_accounts", stats.TokenAccountsTotal),
		zap.Uint64("metaplex_accounts", stats.MetaplexAccountsTotal))
	return nil
}
