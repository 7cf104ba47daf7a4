package repository

import (
	"fmt"
	"sync/atomic"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"orderengine/src/model"
)

var testDBSeq int64

// newTestDB opens a fresh in-memory database with the full schema. Each call
// gets its own named database so tests cannot see each other's rows.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:repotest%d?mode=memory&cache=shared", atomic.AddInt64(&testDBSeq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open in memory db: %v", err)
	}

	if err := db.AutoMigrate(
		&model.Order{},
		&model.OrderLog{},
		&model.Transaction{},
		&model.PersistedTask{},
	); err != nil {
		t.Fatalf("failed to automigrate: %v", err)
	}

	return db
}

func floatPtr(v float64) *float64 { return &v }

func uintPtr(v uint) *uint { return &v }
