// Package dbtest opens migrated in-memory sqlite databases for tests.
package dbtest

import (
	"context"
	"testing"

	"github.com/Additional-Code/parcel/internal/config"
	"github.com/Additional-Code/parcel/internal/database"
	"github.com/Additional-Code/parcel/internal/migration"
)

// Open returns connections to a fresh, fully migrated sqlite database. A
// single pooled connection keeps the in-memory database alive and
// serializes concurrent writers the way row locks would.
func Open(t testing.TB) *database.Connections {
	t.Helper()

	cfg := config.Database{
		Driver:       "sqlite",
		WriterDSN:    "file::memory:?_foreign_keys=on",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	}
	conns, err := database.Open(cfg)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = conns.Close() })

	mig, err := migration.NewForDriver(cfg.Driver, conns.Writer, nil)
	if err != nil {
		t.Fatalf("new migrator: %v", err)
	}
	if err := mig.Up(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conns
}
