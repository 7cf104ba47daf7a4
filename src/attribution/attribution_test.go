package attribution

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"orderengine/src/model"
)

var testDBSeq int64

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:attrtest%d?mode=memory&cache=shared", atomic.AddInt64(&testDBSeq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open in memory db: %v", err)
	}
	if err := db.AutoMigrate(&model.Transaction{}, &model.Recommendation{}); err != nil {
		t.Fatalf("failed to automigrate: %v", err)
	}
	return db
}

func uintPtr(v uint) *uint { return &v }

func TestExpertIDForPrefersTransactionPath(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	resolver := (&Resolver{}).WithDB(db)

	transaction := &model.Transaction{AccountID: 1, Symbol: "BTC_USDT", Quantity: 1, ExpertID: uintPtr(11)}
	if err := db.Create(transaction).Error; err != nil {
		t.Fatalf("failed to seed transaction: %v", err)
	}
	recommendation := &model.Recommendation{ExpertInstanceID: 22, Symbol: "BTC_USDT"}
	if err := db.Create(recommendation).Error; err != nil {
		t.Fatalf("failed to seed recommendation: %v", err)
	}

	order := &model.Order{
		TransactionID:    &transaction.ID,
		RecommendationID: &recommendation.ID,
	}

	expertID, err := resolver.ExpertIDFor(ctx, order)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if expertID == nil || *expertID != 11 {
		t.Fatalf("transaction path must win, got %v", expertID)
	}
}

func TestExpertIDForFallsBackToRecommendation(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	resolver := (&Resolver{}).WithDB(db)

	// Transaction without an expert: the resolver must keep looking.
	transaction := &model.Transaction{AccountID: 1, Symbol: "BTC_USDT", Quantity: 1}
	if err := db.Create(transaction).Error; err != nil {
		t.Fatalf("failed to seed transaction: %v", err)
	}
	recommendation := &model.Recommendation{ExpertInstanceID: 22, Symbol: "BTC_USDT"}
	if err := db.Create(recommendation).Error; err != nil {
		t.Fatalf("failed to seed recommendation: %v", err)
	}

	order := &model.Order{
		TransactionID:    &transaction.ID,
		RecommendationID: &recommendation.ID,
	}

	expertID, err := resolver.ExpertIDFor(ctx, order)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if expertID == nil || *expertID != 22 {
		t.Fatalf("recommendation path must resolve, got %v", expertID)
	}
}

func TestExpertIDForUnattributed(t *testing.T) {
	ctx := context.Background()
	resolver := (&Resolver{}).WithDB(newTestDB(t))

	expertID, err := resolver.ExpertIDFor(ctx, &model.Order{})
	if err != nil {
		t.Fatalf("absence is not an error, got %v", err)
	}
	if expertID != nil {
		t.Fatalf("expected nil expert, got %v", expertID)
	}
}

func TestExpertIDForDanglingReferences(t *testing.T) {
	ctx := context.Background()
	resolver := (&Resolver{}).WithDB(newTestDB(t))

	order := &model.Order{
		TransactionID:    uintPtr(404),
		RecommendationID: uintPtr(404),
	}

	expertID, err := resolver.ExpertIDFor(ctx, order)
	if err != nil {
		t.Fatalf("dangling references resolve to nil, not error: %v", err)
	}
	if expertID != nil {
		t.Fatalf("expected nil expert, got %v", expertID)
	}
}
