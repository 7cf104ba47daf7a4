package executors

import (
	"context"

	logger "github.com/sirupsen/logrus"

	"orderengine/src/connectors"
	"orderengine/src/model"
	"orderengine/src/position"
	"orderengine/src/repository"
	"orderengine/src/trigger"
)

// RiskManager is the smart_risk_manager task handler: it walks the open
// transactions of the task's account, recomputes exposure from the order
// snapshot, and reconciles missing or stale protective orders.
type RiskManager struct {
	transactions *repository.TransactionRepository
	orders       *repository.OrderRepository
	trigger      *trigger.Service
	oracle       connectors.PriceOracle
}

func NewRiskManager(
	transactions *repository.TransactionRepository,
	orders *repository.OrderRepository,
	triggerService *trigger.Service,
	oracle connectors.PriceOracle,
) *RiskManager {
	return &RiskManager{
		transactions: transactions,
		orders:       orders,
		trigger:      triggerService,
		oracle:       oracle,
	}
}

// Run executes one risk-manager pass for the task's account.
func (r *RiskManager) Run(ctx context.Context, task *model.PersistedTask) error {
	if task.AccountID == nil {
		logger.WithField("task_id", task.TaskID).Warn("Risk manager task without account, skipping")
		return nil
	}
	accountID := *task.AccountID

	transactions, err := r.transactions.FindOpenByAccount(ctx, accountID)
	if err != nil {
		return err
	}

	log := logger.WithFields(map[string]interface{}{
		"executor":     "risk_manager",
		"task_id":      task.TaskID,
		"account_id":   accountID,
		"transactions": len(transactions),
	})
	log.Info("Risk manager pass started")

	for i := range transactions {
		transaction := &transactions[i]

		orders, err := r.orders.FindByTransactionID(ctx, transaction.ID)
		if err != nil {
			return err
		}

		openQty := position.CurrentOpenQuantity(orders)
		pendingQty := position.PendingOpenQuantity(orders)
		openEquity := position.CurrentOpenEquity(orders)

		marketPrice, err := r.oracle.CurrentPrice(ctx, transaction.Symbol)
		if err != nil {
			return err
		}
		pendingEquity := position.PendingOpenEquity(transaction, orders, marketPrice)

		log.WithFields(map[string]interface{}{
			"transaction_id": transaction.ID,
			"symbol":         transaction.Symbol,
			"open_qty":       openQty.String(),
			"pending_qty":    pendingQty.String(),
			"open_equity":    openEquity.String(),
			"pending_equity": pendingEquity.String(),
		}).Debug("Position snapshot")

		if !task.BypassTransactionCheck &&
			transaction.Status == model.TransactionStatusOpened && openQty.IsZero() {
			log.WithField("transaction_id", transaction.ID).
				Warn("Opened transaction has no executed quantity")
		}

		if err := r.trigger.EnsureProtectiveOrders(ctx, transaction.ID); err != nil {
			return err
		}
	}

	log.Info("Risk manager pass completed")
	return nil
}
