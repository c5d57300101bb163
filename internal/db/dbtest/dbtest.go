// Package dbtest opens throwaway sqlite databases for package tests.
package dbtest

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/suPer8Hu/kel/internal/db"
	"gorm.io/gorm"
)

var seq atomic.Int64

// Open returns a fresh in-memory database with models migrated. Each call gets
// its own named database so tests in one package do not share rows.
func Open(t *testing.T, models ...any) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:kel_test_%d?mode=memory&cache=shared", seq.Add(1))
	gdb, err := db.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.Migrate(gdb, models...); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return gdb
}
