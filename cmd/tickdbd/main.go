// Command tickdbd runs a tick-driven in-memory record store with a
// write-ahead log and periodic snapshotting. Configuration is not parsed
// from flags or a config file here; it is built inline.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"github.com/leengari/tickdb/internal/api"
	"github.com/leengari/tickdb/internal/dbase"
	"github.com/leengari/tickdb/internal/layout"
	"github.com/leengari/tickdb/internal/obslog"
	"github.com/leengari/tickdb/internal/procedure"
	"github.com/leengari/tickdb/internal/runtime"
	"github.com/leengari/tickdb/internal/txn"
	"github.com/leengari/tickdb/internal/walog"
)

func config() dbase.Config {
	return dbase.Config{
		DataDir:                  "./data/tables",
		WALDir:                   "./data/wal",
		SnapshotDir:              "./data",
		ArchiveDir:               "./data/archive",
		TickRate:                 20,
		MaxAPIRequestsPerTick:    256,
		PersistenceIntervalTicks: 100,
		InitialTableCapacity:     4096,
		MaxBufferSize:            64 * 1024 * 1024,
		PersistenceMaxRetries:    3,
		PersistenceRetryDelayMS:  50,
		KeepSnapshots:            3,
		CompressSnapshots:        false,
	}
}

func main() {
	logger, closeLog := obslog.SetupLogger("", slog.LevelInfo)
	defer closeLog()
	slog.SetDefault(logger)

	cfg := config()

	db, err := dbase.Load(cfg)
	if err != nil {
		slog.Error("load database", "error", err)
		os.Exit(1)
	}

	ensureEventsTable(db)

	wal, err := walog.Open(cfg.WALDir, 64*1024*1024, false)
	if err != nil {
		slog.Error("open wal", "error", err)
		os.Exit(1)
	}
	defer wal.Close()

	procedures := procedure.NewRegistry()
	procedures.SetWAL(wal)
	registerBuiltinProcedures(procedures)

	dispatcher := api.NewDispatcher(wal)
	observer := obslog.NewLoggingObserver(logger)
	rt := runtime.New(db, procedures, dispatcher.Dispatch, observer, 4)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	slog.Info("tickdbd starting", "tickrate", cfg.TickRate)
	rt.Run(ctx)

	if err := db.Flush(); err != nil {
		slog.Error("final flush", "error", err)
	}
	slog.Info("tickdbd stopped")
}

func ensureEventsTable(db *dbase.Database) {
	if _, ok := db.Table("events"); ok {
		return
	}
	registry := db.Registry()
	u64, _ := registry.Get("u64")
	boolType, _ := registry.Get("bool")
	strType, _ := registry.Get("string")

	_, err := db.CreateTable("events", []layout.FieldSpec{
		{Name: "id", Type: u64},
		{Name: "payload", Type: strType},
		{Name: "processed", Type: boolType},
	})
	if err != nil {
		slog.Error("create events table", "error", err)
		os.Exit(1)
	}
}

func registerBuiltinProcedures(procedures *procedure.Registry) {
	_ = procedures.Register(procedure.Definition{
		Name: "echo",
		Run: func(db procedure.Database, tx *txn.Handle, params []byte) ([]byte, error) {
			return params, nil
		},
	})
}
