package trigger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"orderengine/src/model"
	"orderengine/src/repository"
)

// PriceMatches compares two prices at one decimal of precision. Broker-side
// rounding makes exact equality useless for deciding whether an existing
// protective order already satisfies a target.
func PriceMatches(a, b float64) bool {
	return decimal.NewFromFloat(a).Round(1).Equal(decimal.NewFromFloat(b).Round(1))
}

// EnsureProtectiveOrders is the idempotent recreation path: it verifies that a
// transaction with a take-profit/stop-loss target has matching, non-terminal
// protective orders, cancels stale ones, and creates whatever is missing. This
// covers the gap left by a broker-side rejection of a protective leg.
func (s *Service) EnsureProtectiveOrders(ctx context.Context, transactionID uint) error {
	transaction, err := s.transactions.FindByID(ctx, transactionID)
	if err != nil {
		return err
	}
	if transaction.TakeProfit == nil && transaction.StopLoss == nil {
		return nil
	}
	if model.IsTerminalTransactionStatus(transaction.Status) {
		return nil
	}

	orders, err := s.orders.FindByTransactionID(ctx, transactionID)
	if err != nil {
		return err
	}

	entry := findEntryOrder(orders)
	if entry == nil {
		return fmt.Errorf("%w: transaction %d has no entry order",
			repository.ErrConstraintViolation, transactionID)
	}

	var stale []*model.Order
	tpSatisfied := transaction.TakeProfit == nil
	slSatisfied := transaction.StopLoss == nil

	for i := range orders {
		order := &orders[i]
		if order.DependsOnOrder == nil || *order.DependsOnOrder != entry.ID {
			continue
		}
		if model.IsTerminalStatus(order.Status) {
			continue
		}

		valid := false
		if transaction.TakeProfit != nil && order.LimitPrice != nil &&
			PriceMatches(*order.LimitPrice, *transaction.TakeProfit) {
			tpSatisfied = true
			valid = true
		}
		if transaction.StopLoss != nil && order.StopPrice != nil &&
			PriceMatches(*order.StopPrice, *transaction.StopLoss) {
			slSatisfied = true
			valid = true
		}
		// Deferred-price orders still waiting on the entry fill count as
		// valid: their absolute price is resolved at activation.
		if order.Status == model.OrderStatusWaitingTrigger && order.Metadata != nil {
			if order.Metadata.TakeProfit != nil {
				tpSatisfied = true
				valid = true
			}
			if order.Metadata.StopLoss != nil {
				slSatisfied = true
				valid = true
			}
		}

		if !valid {
			stale = append(stale, order)
		}
	}

	if tpSatisfied && slSatisfied && len(stale) == 0 {
		return nil
	}

	logger.WithFields(map[string]interface{}{
		"service":        "trigger",
		"transaction_id": transactionID,
		"stale":          len(stale),
		"tp_satisfied":   tpSatisfied,
		"sl_satisfied":   slSatisfied,
	}).Info("Reconciling protective orders")

	for _, order := range stale {
		if err := s.cancelOrderCascade(ctx, order, "protective order stale"); err != nil {
			return err
		}
	}

	if tpSatisfied && slSatisfied {
		return nil
	}

	gateway, err := s.provider.GatewayForAccount(transaction.AccountID)
	if err != nil {
		return err
	}

	needTP := !tpSatisfied
	needSL := !slSatisfied

	// Prefer a single combined bracket order when both targets are missing
	// and the broker can encode them together.
	if needTP && needSL && gateway.SupportsBracketOrders() {
		return s.createProtectiveOrder(ctx, transaction, entry,
			model.OrderTypeOCO, transaction.TakeProfit, transaction.StopLoss)
	}

	if needTP {
		if err := s.createProtectiveOrder(ctx, transaction, entry,
			model.OrderTypeLimit, transaction.TakeProfit, nil); err != nil {
			return err
		}
	}
	if needSL {
		if err := s.createProtectiveOrder(ctx, transaction, entry,
			model.OrderTypeStop, nil, transaction.StopLoss); err != nil {
			return err
		}
	}

	return nil
}

// createProtectiveOrder builds one protective leg. If the entry has already
// executed the leg is created PENDING and submitted immediately; otherwise it
// waits on the entry's FILLED trigger.
func (s *Service) createProtectiveOrder(
	ctx context.Context,
	transaction *model.Transaction,
	entry *model.Order,
	orderType string,
	takeProfit *float64,
	stopLoss *float64,
) error {

	side := model.OrderSideSell
	if entry.Side == model.OrderSideSell {
		side = model.OrderSideBuy
	}

	quantity := entry.Quantity
	if model.IsExecutedStatus(entry.Status) && entry.FilledQuantity > 0 {
		quantity = entry.FilledQuantity
	}

	trigger := model.OrderStatusFilled
	order := &model.Order{
		AccountID:                 transaction.AccountID,
		TransactionID:             &transaction.ID,
		Symbol:                    transaction.Symbol,
		Side:                      side,
		OrderType:                 orderType,
		Quantity:                  quantity,
		LimitPrice:                takeProfit,
		StopPrice:                 stopLoss,
		Status:                    model.OrderStatusWaitingTrigger,
		DependsOnOrder:            &entry.ID,
		DependsOrderStatusTrigger: &trigger,
		OpenType:                  model.OpenTypeAutomatic,
		Comment:                   "protective order recreated",
	}

	entryExecuted := model.IsExecutedStatus(entry.Status)
	if entryExecuted {
		order.Status = model.OrderStatusPending
	}

	if err := s.orders.Create(ctx, order); err != nil {
		return err
	}

	logger.WithFields(map[string]interface{}{
		"service":        "trigger",
		"transaction_id": transaction.ID,
		"order_id":       order.ID,
		"order_type":     orderType,
	}).Info("Protective order created")

	if entryExecuted {
		return s.submitOrder(ctx, order)
	}
	return nil
}

// findEntryOrder picks the transaction's entry: the oldest non-dependent
// order, preferring one that already executed.
func findEntryOrder(orders []model.Order) *model.Order {
	var first *model.Order
	for i := range orders {
		order := &orders[i]
		if order.DependsOnOrder != nil {
			continue
		}
		if model.IsExecutedStatus(order.Status) {
			return order
		}
		if first == nil {
			first = order
		}
	}
	return first
}
