package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/bluesky-social/parrot/ledger"
	"github.com/bluesky-social/parrot/util/cliutil"

	cli "github.com/urfave/cli/v2"
)

var ledgerCmd = &cli.Command{
	Name:  "ledger",
	Usage: "inspect and migrate the record of performed actions",
	Subcommands: []*cli.Command{
		ledgerExportCmd,
		ledgerImportCmd,
	},
}

// JSON form of a full ledger, as written by "ledger export"
type ledgerDump struct {
	Processed []string          `json:"processed"`
	Liked     []string          `json:"liked"`
	Followed  []string          `json:"followed"`
	Cursors   map[string]string `json:"cursors"`
}

func dumpRecord(rec *ledger.Record) ledgerDump {
	return ledgerDump{
		Processed: rec.List(ledger.KindProcessed),
		Liked:     rec.List(ledger.KindLiked),
		Followed:  rec.List(ledger.KindFollowed),
		Cursors:   rec.Cursors,
	}
}

func (d *ledgerDump) record() *ledger.Record {
	rec := ledger.NewRecord()
	add := func(kind ledger.Kind, ids []string) {
		for _, id := range ids {
			rec.Entries[kind][id] = true
		}
	}
	add(ledger.KindProcessed, d.Processed)
	add(ledger.KindLiked, d.Liked)
	add(ledger.KindFollowed, d.Followed)
	for acct, cur := range d.Cursors {
		rec.Cursors[acct] = cur
	}
	return rec
}

var ledgerExportCmd = &cli.Command{
	Name:  "export",
	Usage: "print the full ledger as JSON",
	Action: func(cctx *cli.Context) error {
		ctx := context.Background()
		logger, err := cliutil.ConfigLogger(cctx, os.Stderr)
		if err != nil {
			return err
		}
		store, err := ledger.Open(ctx, cctx.String("ledger-url"), logger)
		if err != nil {
			return err
		}
		defer store.Close()

		rec, err := store.Load(ctx)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(dumpRecord(rec))
	},
}

var ledgerImportCmd = &cli.Command{
	Name:      "import",
	Usage:     "copy entries into the configured ledger, from another ledger URL or an exported JSON file",
	ArgsUsage: `<ledger-url-or-json-file>`,
	Action: func(cctx *cli.Context) error {
		ctx := context.Background()
		src := cctx.Args().First()
		if src == "" {
			return fmt.Errorf("need a source ledger URL or export file")
		}
		logger, err := cliutil.ConfigLogger(cctx, os.Stderr)
		if err != nil {
			return err
		}

		rec, err := readSource(ctx, src)
		if err != nil {
			return err
		}

		dst, err := ledger.Open(ctx, cctx.String("ledger-url"), logger)
		if err != nil {
			return err
		}
		defer dst.Close()
		if err := ledger.Save(ctx, dst, rec); err != nil {
			return err
		}
		logger.Info("ledger imported",
			"source", src,
			"processed", rec.Len(ledger.KindProcessed),
			"liked", rec.Len(ledger.KindLiked),
			"followed", rec.Len(ledger.KindFollowed),
			"cursors", len(rec.Cursors),
		)
		return nil
	},
}

// a regular file is an export dump; anything else is a ledger URL
func readSource(ctx context.Context, src string) (*ledger.Record, error) {
	if info, err := os.Stat(src); err == nil && info.Mode().IsRegular() {
		raw, err := os.ReadFile(src)
		if err != nil {
			return nil, err
		}
		var dump ledgerDump
		if err := json.Unmarshal(raw, &dump); err != nil {
			return nil, fmt.Errorf("parsing ledger export %s: %w", src, err)
		}
		return dump.record(), nil
	}
	store, err := ledger.Open(ctx, src, nil)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.Load(ctx)
}
