package executors

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"orderengine/src/connectors"
	"orderengine/src/model"
	"orderengine/src/repository"
	"orderengine/src/trigger"
)

var testDBSeq int64

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:executortest%d?mode=memory&cache=shared", atomic.AddInt64(&testDBSeq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open in memory db: %v", err)
	}
	if err := db.AutoMigrate(&model.Order{}, &model.OrderLog{}, &model.Transaction{}, &model.PersistedTask{}); err != nil {
		t.Fatalf("failed to automigrate: %v", err)
	}
	return db
}

type fakeGateway struct {
	mu      sync.Mutex
	submits []connectors.SubmitOrderRequest
	seq     int
}

func (g *fakeGateway) Submit(_ context.Context, request connectors.SubmitOrderRequest) (*connectors.SubmitOrderResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	g.submits = append(g.submits, request)
	return &connectors.SubmitOrderResult{BrokerOrderID: fmt.Sprintf("brk-%d", g.seq)}, nil
}

func (g *fakeGateway) Cancel(_ context.Context, _ string) error { return nil }

func (g *fakeGateway) SupportsBracketOrders() bool { return false }

func (g *fakeGateway) submitCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.submits)
}

type fakeOracle struct {
	prices map[string]*float64
	err    error
}

func (f *fakeOracle) CurrentPrice(_ context.Context, symbol string) (*float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.prices[symbol], nil
}

func (f *fakeOracle) CurrentPrices(_ context.Context, symbols []string) (map[string]*float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	result := make(map[string]*float64, len(symbols))
	for _, symbol := range symbols {
		result[symbol] = f.prices[symbol]
	}
	return result, nil
}

type fixture struct {
	orders       *repository.OrderRepository
	transactions *repository.TransactionRepository
	gateway      *fakeGateway
	oracle       *fakeOracle
	trigger      *trigger.Service
	manager      *RiskManager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := newTestDB(t)
	orders := (&repository.OrderRepository{}).WithDB(db)
	transactions := (&repository.TransactionRepository{}).WithDB(db)
	gateway := &fakeGateway{}
	oracle := &fakeOracle{prices: map[string]*float64{}}
	triggerService := trigger.NewService(orders, transactions, trigger.StaticGatewayProvider{1: gateway})

	return &fixture{
		orders:       orders,
		transactions: transactions,
		gateway:      gateway,
		oracle:       oracle,
		trigger:      triggerService,
		manager:      NewRiskManager(transactions, orders, triggerService, oracle),
	}
}

func (f *fixture) openTransaction(t *testing.T, accountID uint, takeProfit, stopLoss *float64) *model.Transaction {
	t.Helper()
	ctx := context.Background()

	transaction := &model.Transaction{
		AccountID:  accountID,
		Symbol:     "BTC_USDT",
		Quantity:   2,
		TakeProfit: takeProfit,
		StopLoss:   stopLoss,
	}
	if err := f.transactions.Create(ctx, transaction); err != nil {
		t.Fatalf("failed to create transaction: %v", err)
	}

	entry := &model.Order{
		AccountID:     accountID,
		TransactionID: &transaction.ID,
		Symbol:        "BTC_USDT",
		Side:          model.OrderSideBuy,
		OrderType:     model.OrderTypeMarket,
		Quantity:      2,
		Status:        model.OrderStatusNew,
		OpenType:      model.OpenTypeAutomatic,
	}
	if err := f.orders.Create(ctx, entry); err != nil {
		t.Fatalf("failed to create entry order: %v", err)
	}
	price := 50.0
	if err := f.trigger.ProcessFill(ctx, entry.ID, 2, &price, model.OrderStatusFilled); err != nil {
		t.Fatalf("failed to fill entry order: %v", err)
	}
	return transaction
}

func floatPtr(v float64) *float64 { return &v }

func riskManagerTask(accountID uint) *model.PersistedTask {
	return &model.PersistedTask{
		TaskID:    "smart_risk_manager_1",
		TaskType:  model.TaskTypeSmartRiskManager,
		AccountID: &accountID,
	}
}

func TestRunReconcilesProtectiveLegs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	takeProfit, stopLoss := 55.0, 45.0
	transaction := f.openTransaction(t, 1, &takeProfit, &stopLoss)
	f.oracle.prices["BTC_USDT"] = floatPtr(52)

	if err := f.manager.Run(ctx, riskManagerTask(1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	orders, err := f.orders.FindByTransactionID(ctx, transaction.ID)
	if err != nil {
		t.Fatalf("failed to list orders: %v", err)
	}
	if len(orders) != 3 {
		t.Fatalf("expected entry plus two protective legs, got %d orders", len(orders))
	}
	if f.gateway.submitCount() != 2 {
		t.Fatalf("expected 2 protective submissions, got %d", f.gateway.submitCount())
	}
}

func TestRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	takeProfit, stopLoss := 55.0, 45.0
	f.openTransaction(t, 1, &takeProfit, &stopLoss)

	if err := f.manager.Run(ctx, riskManagerTask(1)); err != nil {
		t.Fatalf("unexpected error on first pass: %v", err)
	}
	if err := f.manager.Run(ctx, riskManagerTask(1)); err != nil {
		t.Fatalf("unexpected error on second pass: %v", err)
	}

	if f.gateway.submitCount() != 2 {
		t.Fatalf("second pass must not resubmit, got %d submissions", f.gateway.submitCount())
	}
}

func TestRunSkipsTaskWithoutAccount(t *testing.T) {
	f := newFixture(t)

	task := &model.PersistedTask{TaskID: "smart_risk_manager_1", TaskType: model.TaskTypeSmartRiskManager}
	if err := f.manager.Run(context.Background(), task); err != nil {
		t.Fatalf("task without account must be a no-op, got %v", err)
	}
	if f.gateway.submitCount() != 0 {
		t.Fatalf("expected no submissions, got %d", f.gateway.submitCount())
	}
}

func TestRunIgnoresOtherAccounts(t *testing.T) {
	f := newFixture(t)

	takeProfit, stopLoss := 55.0, 45.0
	f.openTransaction(t, 1, &takeProfit, &stopLoss)

	if err := f.manager.Run(context.Background(), riskManagerTask(9)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.gateway.submitCount() != 0 {
		t.Fatalf("pass over another account must not touch this one, got %d submissions", f.gateway.submitCount())
	}
}

func TestRunPropagatesOracleFailure(t *testing.T) {
	f := newFixture(t)

	takeProfit, stopLoss := 55.0, 45.0
	f.openTransaction(t, 1, &takeProfit, &stopLoss)
	f.oracle.err = context.DeadlineExceeded

	if err := f.manager.Run(context.Background(), riskManagerTask(1)); err == nil {
		t.Fatal("oracle failure must abort the pass")
	}
	if f.gateway.submitCount() != 0 {
		t.Fatalf("aborted pass must not submit, got %d submissions", f.gateway.submitCount())
	}
}
