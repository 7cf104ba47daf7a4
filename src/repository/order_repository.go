package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"orderengine/src/database"
	"orderengine/src/model"
)

// OrderRepository handles read/write operations for orders and their audit
// logs. All multi-step mutations run inside a single gorm transaction so a
// status change and its log row are committed together.
type OrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new repository instance using the main
// read/write database.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *OrderRepository) WithDB(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create validates and inserts a new order together with its first audit log
// entry. The given order is updated with the generated ID and timestamps.
func (r *OrderRepository) Create(ctx context.Context, order *model.Order) error {
	if err := validateNewOrder(order); err != nil {
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":   "OrderRepository",
		"op":     "Create",
		"symbol": order.Symbol,
		"side":   order.Side,
		"qty":    order.Quantity,
		"status": order.Status,
	}).Debug("Creating new order")

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if order.DependsOnOrder != nil {
			if err := checkNoDependencyCycle(tx, order.ID, *order.DependsOnOrder); err != nil {
				return err
			}
		}

		if err := tx.Create(order).Error; err != nil {
			logger.WithError(err).Error("Failed to create order")
			return err
		}

		return tx.Create(auditSnapshot(order, "created")).Error
	})
}

// FindByID fetches a single order by its primary ID.
func (r *OrderRepository) FindByID(ctx context.Context, id uint) (*model.Order, error) {
	var order model.Order

	err := r.db.WithContext(ctx).First(&order, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("order %d: %w", id, ErrNotFound)
		}
		logger.WithFields(map[string]interface{}{
			"repo": "OrderRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch order by ID")
		return nil, err
	}

	return &order, nil
}

// FindByBrokerOrderID resolves a broker-assigned order id back to the local
// order, checking bracket leg ids as well. Returns (nil, nil) when no order
// carries the id.
func (r *OrderRepository) FindByBrokerOrderID(ctx context.Context, brokerOrderID string) (*model.Order, error) {
	var order model.Order

	err := r.db.WithContext(ctx).
		Where("broker_order_id = ? OR legs_broker_ids LIKE ?", brokerOrderID, "%\""+brokerOrderID+"\"%").
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.WithFields(map[string]interface{}{
			"repo":            "OrderRepository",
			"op":              "FindByBrokerOrderID",
			"broker_order_id": brokerOrderID,
		}).WithError(err).Error("Failed to fetch order by broker order ID")
		return nil, err
	}

	return &order, nil
}

// FindByTransactionID returns all orders owned by the given transaction,
// oldest first.
func (r *OrderRepository) FindByTransactionID(ctx context.Context, transactionID uint) ([]model.Order, error) {
	var orders []model.Order

	err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("id ASC").
		Find(&orders).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":           "OrderRepository",
			"op":             "FindByTransactionID",
			"transaction_id": transactionID,
		}).WithError(err).Error("Failed to fetch orders for transaction")
		return nil, err
	}

	return orders, nil
}

// FindActivatableDependents returns the WAITING_TRIGGER orders whose parent is
// the given order and whose trigger matches the parent's new status.
func (r *OrderRepository) FindActivatableDependents(
	ctx context.Context,
	parentID uint,
	parentStatus string,
) ([]model.Order, error) {

	var orders []model.Order

	err := r.db.WithContext(ctx).
		Where("depends_on_order = ? AND depends_order_status_trigger = ? AND status = ?",
			parentID, parentStatus, model.OrderStatusWaitingTrigger).
		Order("id ASC").
		Find(&orders).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":          "OrderRepository",
			"op":            "FindActivatableDependents",
			"parent_id":     parentID,
			"parent_status": parentStatus,
		}).WithError(err).Error("Failed to fetch activatable dependents")
		return nil, err
	}

	return orders, nil
}

// FindDependents returns every order that depends on the given parent,
// regardless of status.
func (r *OrderRepository) FindDependents(ctx context.Context, parentID uint) ([]model.Order, error) {
	var orders []model.Order

	err := r.db.WithContext(ctx).
		Where("depends_on_order = ?", parentID).
		Order("id ASC").
		Find(&orders).Error
	if err != nil {
		return nil, err
	}

	return orders, nil
}

// FindOCOSiblings returns the other legs sharing the same OCO parent,
// excluding the given order.
func (r *OrderRepository) FindOCOSiblings(
	ctx context.Context,
	parentOrderID uint,
	excludeOrderID uint,
) ([]model.Order, error) {

	var orders []model.Order

	err := r.db.WithContext(ctx).
		Where("parent_order_id = ? AND id <> ?", parentOrderID, excludeOrderID).
		Order("id ASC").
		Find(&orders).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":            "OrderRepository",
			"op":              "FindOCOSiblings",
			"parent_order_id": parentOrderID,
		}).WithError(err).Error("Failed to fetch OCO siblings")
		return nil, err
	}

	return orders, nil
}

// UpdateStatusWithAutoLog validates the status transition, updates the order
// and writes an audit log row in the same transaction.
func (r *OrderRepository) UpdateStatusWithAutoLog(
	ctx context.Context,
	orderID uint,
	newStatus string,
	reason string,
) error {

	logger.WithFields(map[string]interface{}{
		"repo":      "OrderRepository",
		"op":        "UpdateStatusWithAutoLog",
		"order_id":  orderID,
		"newStatus": newStatus,
		"reason":    reason,
	}).Debug("Updating order status with automatic audit log")

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order model.Order

		if err := tx.First(&order, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("order %d: %w", orderID, ErrNotFound)
			}
			return err
		}

		// Redelivered status: nothing changed, no audit row.
		if order.Status == newStatus {
			return nil
		}

		if !model.CanTransitionStatus(order.Status, newStatus) {
			return fmt.Errorf("%w: order %d cannot transition %s -> %s",
				ErrConstraintViolation, orderID, order.Status, newStatus)
		}

		if err := tx.
			Model(&model.Order{}).
			Where("id = ?", orderID).
			Update("status", newStatus).Error; err != nil {
			return err
		}

		order.Status = newStatus
		return tx.Create(auditSnapshot(&order, reason)).Error
	})
}

// ApplyFill records a fill observed at the broker: filled quantity, fill price
// and the resulting status. Filled quantity is monotonic non-decreasing and
// may never exceed the order quantity.
func (r *OrderRepository) ApplyFill(
	ctx context.Context,
	orderID uint,
	filledQty float64,
	fillPrice *float64,
	newStatus string,
) error {

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order model.Order

		if err := tx.First(&order, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("order %d: %w", orderID, ErrNotFound)
			}
			return err
		}

		if filledQty < order.FilledQuantity {
			return fmt.Errorf("%w: order %d filled quantity shrank %.8f -> %.8f",
				ErrConstraintViolation, orderID, order.FilledQuantity, filledQty)
		}
		if filledQty > order.Quantity {
			return fmt.Errorf("%w: order %d filled quantity %.8f exceeds quantity %.8f",
				ErrConstraintViolation, orderID, filledQty, order.Quantity)
		}
		if !model.CanTransitionStatus(order.Status, newStatus) {
			return fmt.Errorf("%w: order %d cannot transition %s -> %s",
				ErrConstraintViolation, orderID, order.Status, newStatus)
		}

		now := time.Now()
		updates := map[string]interface{}{
			"filled_quantity": filledQty,
			"status":          newStatus,
			"executed_at":     &now,
		}
		if fillPrice != nil {
			updates["fill_price"] = fillPrice
		}

		if err := tx.
			Model(&model.Order{}).
			Where("id = ?", orderID).
			Updates(updates).Error; err != nil {
			return err
		}

		order.FilledQuantity = filledQty
		order.Status = newStatus
		if fillPrice != nil {
			order.FillPrice = fillPrice
		}
		return tx.Create(auditSnapshot(&order, "fill")).Error
	})
}

// UpdateLimitPriceWithAutoLog sets a new limit price and records the change.
// Used when a deferred protective price is resolved from the parent fill.
func (r *OrderRepository) UpdateLimitPriceWithAutoLog(
	ctx context.Context,
	orderID uint,
	price float64,
	reason string,
) error {

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order model.Order

		if err := tx.First(&order, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("order %d: %w", orderID, ErrNotFound)
			}
			return err
		}

		if err := tx.
			Model(&model.Order{}).
			Where("id = ?", orderID).
			Update("limit_price", price).Error; err != nil {
			return err
		}

		order.LimitPrice = &price
		return tx.Create(auditSnapshot(&order, reason)).Error
	})
}

// UpdateStopPriceWithAutoLog sets a new stop price and records the change.
func (r *OrderRepository) UpdateStopPriceWithAutoLog(
	ctx context.Context,
	orderID uint,
	price float64,
	reason string,
) error {

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order model.Order

		if err := tx.First(&order, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("order %d: %w", orderID, ErrNotFound)
			}
			return err
		}

		if err := tx.
			Model(&model.Order{}).
			Where("id = ?", orderID).
			Update("stop_price", price).Error; err != nil {
			return err
		}

		order.StopPrice = &price
		return tx.Create(auditSnapshot(&order, reason)).Error
	})
}

// SetBrokerOrderID records the broker-assigned identifiers after a successful
// submission.
func (r *OrderRepository) SetBrokerOrderID(
	ctx context.Context,
	orderID uint,
	brokerOrderID string,
	legIDs []string,
) error {

	updates := map[string]interface{}{"broker_order_id": brokerOrderID}
	if len(legIDs) > 0 {
		updates["legs_broker_ids"] = model.StringList(legIDs)
	}

	result := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ?", orderID).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("order %d: %w", orderID, ErrNotFound)
	}

	return nil
}

// MarkError moves the order to ERROR with the captured broker message. The
// order can later be retried back to PENDING by an explicit operator action.
func (r *OrderRepository) MarkError(ctx context.Context, orderID uint, message string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order model.Order

		if err := tx.First(&order, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("order %d: %w", orderID, ErrNotFound)
			}
			return err
		}

		if !model.CanTransitionStatus(order.Status, model.OrderStatusError) {
			return fmt.Errorf("%w: order %d cannot transition %s -> %s",
				ErrConstraintViolation, orderID, order.Status, model.OrderStatusError)
		}

		if err := tx.
			Model(&model.Order{}).
			Where("id = ?", orderID).
			Updates(map[string]interface{}{
				"status":        model.OrderStatusError,
				"error_message": message,
			}).Error; err != nil {
			return err
		}

		order.Status = model.OrderStatusError
		return tx.Create(auditSnapshot(&order, message)).Error
	})
}

// Delete removes an order. Dependent and OCO references held by other orders
// are set to NULL rather than cascaded, so sibling protective orders survive.
func (r *OrderRepository) Delete(ctx context.Context, orderID uint) error {
	logger.WithFields(map[string]interface{}{
		"repo":     "OrderRepository",
		"op":       "Delete",
		"order_id": orderID,
	}).Info("Deleting order")

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Model(&model.Order{}).
			Where("depends_on_order = ?", orderID).
			Updates(map[string]interface{}{
				"depends_on_order":             nil,
				"depends_order_status_trigger": nil,
			}).Error; err != nil {
			return err
		}

		if err := tx.
			Model(&model.Order{}).
			Where("parent_order_id = ?", orderID).
			Update("parent_order_id", nil).Error; err != nil {
			return err
		}

		result := tx.Delete(&model.Order{}, orderID)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("order %d: %w", orderID, ErrNotFound)
		}

		return nil
	})
}

// OrderSearchOptions filters the Search listing.
type OrderSearchOptions struct {
	AccountID     uint
	Symbol        *string
	Status        *string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	Limit         int
	Offset        int
}

// Search lists orders for an account, newest first, with optional filters and
// pagination.
func (r *OrderRepository) Search(ctx context.Context, options OrderSearchOptions) ([]model.Order, error) {
	query := r.db.WithContext(ctx).
		Where("account_id = ?", options.AccountID)

	if options.Symbol != nil {
		query = query.Where("symbol = ?", *options.Symbol)
	}
	if options.Status != nil {
		query = query.Where("status = ?", *options.Status)
	}
	if options.CreatedAfter != nil {
		query = query.Where("created_at >= ?", *options.CreatedAfter)
	}
	if options.CreatedBefore != nil {
		query = query.Where("created_at <= ?", *options.CreatedBefore)
	}

	query = query.Order("created_at DESC, id DESC")
	if options.Limit > 0 {
		query = query.Limit(options.Limit)
	}
	if options.Offset > 0 {
		query = query.Offset(options.Offset)
	}

	var orders []model.Order
	if err := query.Find(&orders).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "OrderRepository",
			"op":         "Search",
			"account_id": options.AccountID,
		}).WithError(err).Error("Failed to search orders")
		return nil, err
	}

	return orders, nil
}

// ---------------------------------------------------
// helpers
// ---------------------------------------------------

func validateNewOrder(order *model.Order) error {
	if order.Quantity <= 0 {
		return fmt.Errorf("%w: order quantity must be positive, got %.8f",
			ErrConstraintViolation, order.Quantity)
	}
	if order.FilledQuantity < 0 || order.FilledQuantity > order.Quantity {
		return fmt.Errorf("%w: filled quantity %.8f out of range",
			ErrConstraintViolation, order.FilledQuantity)
	}
	if order.Side != model.OrderSideBuy && order.Side != model.OrderSideSell {
		return fmt.Errorf("%w: unknown order side %q", ErrConstraintViolation, order.Side)
	}
	if order.Status == model.OrderStatusWaitingTrigger && order.DependsOnOrder == nil {
		return fmt.Errorf("%w: WAITING_TRIGGER order requires depends_on_order",
			ErrConstraintViolation)
	}
	if order.DependsOnOrder != nil && order.DependsOrderStatusTrigger == nil {
		return fmt.Errorf("%w: dependent order requires a status trigger",
			ErrConstraintViolation)
	}
	return nil
}

// checkNoDependencyCycle walks the depends_on_order chain upward from the
// proposed parent. Reaching the order itself means the new edge would close a
// cycle. The walk is bounded to guard against corrupted chains.
func checkNoDependencyCycle(tx *gorm.DB, orderID uint, parentID uint) error {
	const maxDepth = 64

	current := parentID
	for depth := 0; depth < maxDepth; depth++ {
		if orderID != 0 && current == orderID {
			return fmt.Errorf("%w: order %d may not depend on its own descendant",
				ErrConstraintViolation, orderID)
		}

		var parent model.Order
		err := tx.Select("id", "depends_on_order").First(&parent, current).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("parent order %d: %w", current, ErrNotFound)
			}
			return err
		}

		if parent.DependsOnOrder == nil {
			return nil
		}
		current = *parent.DependsOnOrder
	}

	return fmt.Errorf("%w: dependency chain exceeds depth %d", ErrConstraintViolation, maxDepth)
}

func auditSnapshot(order *model.Order, reason string) *model.OrderLog {
	return &model.OrderLog{
		OrderID:    order.ID,
		AccountID:  order.AccountID,
		Symbol:     order.Symbol,
		Side:       order.Side,
		OrderType:  order.OrderType,
		Quantity:   order.Quantity,
		FilledQty:  order.FilledQuantity,
		LimitPrice: order.LimitPrice,
		StopPrice:  order.StopPrice,
		Status:     order.Status,
		Reason:     reason,
		CreatedAt:  time.Now(),
	}
}
