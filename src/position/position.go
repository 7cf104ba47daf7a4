package position

import (
	"github.com/shopspring/decimal"

	"orderengine/src/model"
)

// Pure aggregation over an order snapshot. None of these functions touch the
// database or the broker; callers pass the orders they already loaded, which
// keeps the math trivially unit-testable.

// CurrentOpenQuantity returns the signed open quantity of a transaction: the
// sum of filled quantities over executed orders, positive for BUY fills and
// negative for SELL fills. Executed protective legs net out the entry they
// close.
func CurrentOpenQuantity(orders []model.Order) decimal.Decimal {
	total := decimal.Zero
	for i := range orders {
		order := &orders[i]
		if !model.IsExecutedStatus(order.Status) {
			continue
		}
		total = total.Add(signedQuantity(order.Side, order.FilledQuantity))
	}
	return total
}

// PendingOpenQuantity returns the unfilled remainder over open, non-dependent
// orders. Only entry-side exposure counts toward pending buying power;
// protective legs are excluded because they never add exposure.
func PendingOpenQuantity(orders []model.Order) decimal.Decimal {
	total := decimal.Zero
	for i := range orders {
		order := &orders[i]
		if !model.IsOpenStatus(order.Status) || order.DependsOnOrder != nil {
			continue
		}
		total = total.Add(signedQuantity(order.Side, order.RemainingQuantity()))
	}
	return total
}

// CurrentOpenEquity returns the notional of the executed fills:
// Σ |filled quantity| × fill price. Orders without a recorded fill price
// contribute nothing.
func CurrentOpenEquity(orders []model.Order) decimal.Decimal {
	total := decimal.Zero
	for i := range orders {
		order := &orders[i]
		if !model.IsExecutedStatus(order.Status) || order.FillPrice == nil {
			continue
		}
		qty := decimal.NewFromFloat(order.FilledQuantity).Abs()
		price := decimal.NewFromFloat(*order.FillPrice)
		total = total.Add(qty.Mul(price))
	}
	return total
}

// PendingOpenEquity estimates the notional of pending, non-dependent,
// non-exit orders at the current market price. A nil market price is the
// defined "unknown" case and yields zero, not an error: equity cannot be
// estimated without a price.
func PendingOpenEquity(transaction *model.Transaction, orders []model.Order, marketPrice *float64) decimal.Decimal {
	if marketPrice == nil {
		return decimal.Zero
	}

	price := decimal.NewFromFloat(*marketPrice)
	total := decimal.Zero
	for i := range orders {
		order := &orders[i]
		if !model.IsOpenStatus(order.Status) || order.DependsOnOrder != nil {
			continue
		}
		if isExitSide(transaction, order.Side) {
			continue
		}
		qty := decimal.NewFromFloat(order.RemainingQuantity()).Abs()
		total = total.Add(qty.Mul(price))
	}
	return total
}

func signedQuantity(side string, qty float64) decimal.Decimal {
	value := decimal.NewFromFloat(qty).Abs()
	if side == model.OrderSideSell {
		return value.Neg()
	}
	return value
}

// isExitSide reports whether an order on the given side reduces the
// transaction's position rather than opening it.
func isExitSide(transaction *model.Transaction, side string) bool {
	if transaction == nil {
		return false
	}
	if transaction.Quantity > 0 {
		return side == model.OrderSideSell
	}
	if transaction.Quantity < 0 {
		return side == model.OrderSideBuy
	}
	return false
}
