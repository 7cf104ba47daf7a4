package trigger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"orderengine/src/connectors"
	"orderengine/src/model"
	"orderengine/src/repository"
)

// GatewayProvider resolves the broker gateway for an account. The registry-
// backed implementation lives in the instances package; tests inject a static
// map.
type GatewayProvider interface {
	GatewayForAccount(accountID uint) (connectors.BrokerGateway, error)
}

// StaticGatewayProvider maps account ids to gateways directly.
type StaticGatewayProvider map[uint]connectors.BrokerGateway

func (p StaticGatewayProvider) GatewayForAccount(accountID uint) (connectors.BrokerGateway, error) {
	gateway, ok := p[accountID]
	if !ok {
		return nil, fmt.Errorf("gateway for account %d not found", accountID)
	}
	return gateway, nil
}

// Service is the order dependency resolver: it decides, on every observed
// order status change, which dependent orders must be activated, canceled or
// re-priced, and applies those decisions synchronously.
type Service struct {
	orders       *repository.OrderRepository
	transactions *repository.TransactionRepository
	provider     GatewayProvider
}

func NewService(
	orders *repository.OrderRepository,
	transactions *repository.TransactionRepository,
	provider GatewayProvider,
) *Service {
	return &Service{
		orders:       orders,
		transactions: transactions,
		provider:     provider,
	}
}

// ProcessStatusChange persists a plain status transition and propagates its
// consequences: dependent activation, OCO sibling cancellation and the owning
// transaction's lifecycle.
func (s *Service) ProcessStatusChange(ctx context.Context, orderID uint, newStatus string, reason string) error {
	if err := s.orders.UpdateStatusWithAutoLog(ctx, orderID, newStatus, reason); err != nil {
		return err
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return err
	}

	return s.propagate(ctx, order)
}

// ProcessFill persists an observed fill and propagates it. This is the entry
// point for broker stream events carrying quantities.
func (s *Service) ProcessFill(
	ctx context.Context,
	orderID uint,
	filledQty float64,
	fillPrice *float64,
	newStatus string,
) error {

	if err := s.orders.ApplyFill(ctx, orderID, filledQty, fillPrice, newStatus); err != nil {
		return err
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return err
	}

	return s.propagate(ctx, order)
}

// RetryOrder is the explicit operator action recovering an ERROR order: it
// transitions back to PENDING and re-attempts broker submission. Nothing
// retries automatically, because a financial operation must never be repeated
// without confirmation the first attempt did not partially succeed.
func (s *Service) RetryOrder(ctx context.Context, orderID uint) error {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status != model.OrderStatusError {
		return fmt.Errorf("%w: order %d is %s, only ERROR orders can be retried",
			repository.ErrConstraintViolation, orderID, order.Status)
	}

	if err := s.orders.UpdateStatusWithAutoLog(ctx, orderID, model.OrderStatusPending, "operator retry"); err != nil {
		return err
	}
	order.Status = model.OrderStatusPending

	return s.submitOrder(ctx, order)
}

// propagate applies the synchronous consequences of the order's current
// status. It is idempotent: re-delivering the same status change finds no
// remaining WAITING_TRIGGER dependents and no cancellable siblings.
func (s *Service) propagate(ctx context.Context, order *model.Order) error {
	if err := s.activateDependents(ctx, order); err != nil {
		return err
	}

	if model.IsExecutedStatus(order.Status) && order.ParentOrderID != nil {
		if err := s.cancelOCOSiblings(ctx, order); err != nil {
			return err
		}
	}

	return s.updateOwningTransaction(ctx, order)
}

// activateDependents moves matching WAITING_TRIGGER orders to PENDING,
// resolves deferred protective prices from the parent fill, and submits them
// to the broker.
func (s *Service) activateDependents(ctx context.Context, parent *model.Order) error {
	dependents, err := s.orders.FindActivatableDependents(ctx, parent.ID, parent.Status)
	if err != nil {
		return err
	}

	for i := range dependents {
		dependent := &dependents[i]

		log := logger.WithFields(map[string]interface{}{
			"service":   "trigger",
			"parent_id": parent.ID,
			"order_id":  dependent.ID,
			"trigger":   parent.Status,
		})
		log.Info("Activating dependent order")

		if err := s.resolveDeferredPrices(ctx, dependent, parent); err != nil {
			return err
		}

		if err := s.orders.UpdateStatusWithAutoLog(ctx, dependent.ID,
			model.OrderStatusPending, "trigger activated"); err != nil {
			return err
		}
		dependent.Status = model.OrderStatusPending

		if err := s.submitOrder(ctx, dependent); err != nil {
			// submitOrder already recorded the ERROR status; keep going so one
			// failed leg does not block its siblings.
			log.WithError(err).Error("Dependent order submission failed")
		}
	}

	return nil
}

// resolveDeferredPrices computes absolute protective prices from the parent's
// fill price. This is the only correct moment to do so: the fill price is not
// known earlier.
func (s *Service) resolveDeferredPrices(ctx context.Context, dependent *model.Order, parent *model.Order) error {
	if dependent.Metadata == nil {
		return nil
	}
	if parent.FillPrice == nil {
		return fmt.Errorf("parent order %d has no fill price to resolve deferred prices", parent.ID)
	}

	fill := decimal.NewFromFloat(*parent.FillPrice)
	hundred := decimal.NewFromInt(100)
	long := parent.Side == model.OrderSideBuy

	if tp := dependent.Metadata.TakeProfit; tp != nil {
		pct := decimal.NewFromFloat(tp.Percent).Div(hundred)
		// Long entries take profit above the fill, shorts below.
		factor := decimal.NewFromInt(1).Add(pct)
		if !long {
			factor = decimal.NewFromInt(1).Sub(pct)
		}
		price, _ := fill.Mul(factor).Float64()

		if err := s.orders.UpdateLimitPriceWithAutoLog(ctx, dependent.ID, price,
			"take-profit resolved from parent fill"); err != nil {
			return err
		}
		dependent.LimitPrice = &price
	}

	if sl := dependent.Metadata.StopLoss; sl != nil {
		pct := decimal.NewFromFloat(sl.Percent).Div(hundred)
		factor := decimal.NewFromInt(1).Sub(pct)
		if !long {
			factor = decimal.NewFromInt(1).Add(pct)
		}
		price, _ := fill.Mul(factor).Float64()

		if err := s.orders.UpdateStopPriceWithAutoLog(ctx, dependent.ID, price,
			"stop-loss resolved from parent fill"); err != nil {
			return err
		}
		dependent.StopPrice = &price
	}

	return nil
}

// cancelOCOSiblings cancels every still-open leg sharing the executed leg's
// OCO parent. Already terminal siblings are left untouched; cancellation
// cascades to the canceled legs' own dependents.
func (s *Service) cancelOCOSiblings(ctx context.Context, executed *model.Order) error {
	siblings, err := s.orders.FindOCOSiblings(ctx, *executed.ParentOrderID, executed.ID)
	if err != nil {
		return err
	}

	for i := range siblings {
		sibling := &siblings[i]
		if model.IsTerminalStatus(sibling.Status) || model.IsExecutedStatus(sibling.Status) {
			continue
		}

		if err := s.cancelOrderCascade(ctx, sibling, "oco sibling executed"); err != nil {
			return err
		}
	}

	return nil
}

// cancelOrderCascade cancels one order at the broker and locally, then
// transitively cancels its non-terminal dependents. A leg's dependents must
// not outlive the leg they were chained to.
func (s *Service) cancelOrderCascade(ctx context.Context, order *model.Order, reason string) error {
	log := logger.WithFields(map[string]interface{}{
		"service":  "trigger",
		"order_id": order.ID,
		"reason":   reason,
	})

	if order.BrokerOrderID != "" {
		gateway, err := s.provider.GatewayForAccount(order.AccountID)
		if err != nil {
			return err
		}
		if err := gateway.Cancel(ctx, order.BrokerOrderID); err != nil {
			log.WithError(err).Error("Broker cancel failed")
			return s.orders.MarkError(ctx, order.ID, fmt.Sprintf("cancel failed: %v", err))
		}
	}

	if err := s.orders.UpdateStatusWithAutoLog(ctx, order.ID, model.OrderStatusCanceled, reason); err != nil {
		return err
	}
	log.Info("Order canceled")

	dependents, err := s.orders.FindDependents(ctx, order.ID)
	if err != nil {
		return err
	}
	for i := range dependents {
		dependent := &dependents[i]
		if model.IsTerminalStatus(dependent.Status) || model.IsExecutedStatus(dependent.Status) {
			continue
		}
		if err := s.cancelOrderCascade(ctx, dependent, "parent canceled"); err != nil {
			return err
		}
	}

	return nil
}

// submitOrder sends a PENDING order to the broker. Success moves it to NEW
// with the broker id recorded; failure captures the message under ERROR and
// is never retried automatically.
func (s *Service) submitOrder(ctx context.Context, order *model.Order) error {
	gateway, err := s.provider.GatewayForAccount(order.AccountID)
	if err != nil {
		if markErr := s.orders.MarkError(ctx, order.ID, err.Error()); markErr != nil {
			return markErr
		}
		return err
	}

	request := connectors.SubmitOrderRequest{
		ClientOrderID: connectors.NewClientOrderID(),
		Symbol:        order.Symbol,
		Side:          order.Side,
		OrderType:     order.OrderType,
		Quantity:      order.Quantity,
		LimitPrice:    order.LimitPrice,
		StopPrice:     order.StopPrice,
	}
	if order.OrderType == model.OrderTypeOCO {
		// A bracket order encodes both protective targets in one submission.
		request.TakeProfitPrice = order.LimitPrice
		request.StopLossPrice = order.StopPrice
		request.LimitPrice = nil
		request.StopPrice = nil
	}

	result, err := gateway.Submit(ctx, request)
	if err != nil {
		if markErr := s.orders.MarkError(ctx, order.ID, err.Error()); markErr != nil {
			return markErr
		}
		return err
	}

	if err := s.orders.SetBrokerOrderID(ctx, order.ID, result.BrokerOrderID, result.LegBrokerIDs); err != nil {
		return err
	}

	return s.orders.UpdateStatusWithAutoLog(ctx, order.ID, model.OrderStatusNew, "submitted to broker")
}

// updateOwningTransaction keeps the transaction lifecycle in step with its
// orders: an executed entry opens the transaction, a fully filled exit closes
// it.
func (s *Service) updateOwningTransaction(ctx context.Context, order *model.Order) error {
	if order.TransactionID == nil || !model.IsExecutedStatus(order.Status) {
		return nil
	}

	transaction, err := s.transactions.FindByID(ctx, *order.TransactionID)
	if err != nil {
		return err
	}

	entrySide := order.Side == model.OrderSideBuy
	if transaction.Quantity < 0 {
		entrySide = order.Side == model.OrderSideSell
	}

	if entrySide {
		if transaction.Status == model.TransactionStatusWaiting {
			if err := s.transactions.UpdateStatus(ctx, transaction.ID, model.TransactionStatusOpened); err != nil {
				return err
			}
			if order.FillPrice != nil {
				return s.transactions.SetOpenPrice(ctx, transaction.ID, *order.FillPrice)
			}
		}
		return nil
	}

	// Exit side: the position is closed once the exit order fills completely.
	if order.Status == model.OrderStatusFilled &&
		(transaction.Status == model.TransactionStatusOpened ||
			transaction.Status == model.TransactionStatusClosing) {

		if transaction.Status == model.TransactionStatusOpened {
			if err := s.transactions.UpdateStatus(ctx, transaction.ID, model.TransactionStatusClosing); err != nil {
				return err
			}
		}
		if err := s.transactions.UpdateStatus(ctx, transaction.ID, model.TransactionStatusClosed); err != nil {
			return err
		}
		if order.FillPrice != nil {
			return s.transactions.SetClosePrice(ctx, transaction.ID, *order.FillPrice)
		}
	}

	return nil
}
