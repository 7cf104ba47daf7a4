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

// TransactionRepository handles read/write operations for transactions, the
// aggregate position units grouping an entry order and its protective legs.
type TransactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository creates a new repository instance using the main
// read/write database.
func NewTransactionRepository() *TransactionRepository {
	return &TransactionRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
// Useful for tests or when using a specific session/transaction.
func (r *TransactionRepository) WithDB(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create inserts a new transaction. New transactions start WAITING until their
// entry order executes.
func (r *TransactionRepository) Create(ctx context.Context, transaction *model.Transaction) error {
	if transaction.Status == "" {
		transaction.Status = model.TransactionStatusWaiting
	}

	logger.WithFields(map[string]interface{}{
		"repo":   "TransactionRepository",
		"op":     "Create",
		"symbol": transaction.Symbol,
		"qty":    transaction.Quantity,
	}).Debug("Creating new transaction")

	if err := r.db.WithContext(ctx).Create(transaction).Error; err != nil {
		logger.WithError(err).Error("Failed to create transaction")
		return err
	}

	return nil
}

// FindByID fetches a single transaction by its primary ID.
func (r *TransactionRepository) FindByID(ctx context.Context, id uint) (*model.Transaction, error) {
	var transaction model.Transaction

	err := r.db.WithContext(ctx).First(&transaction, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("transaction %d: %w", id, ErrNotFound)
		}
		logger.WithFields(map[string]interface{}{
			"repo": "TransactionRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch transaction by ID")
		return nil, err
	}

	return &transaction, nil
}

// FindOpenByAccount lists the non-closed transactions for an account, oldest
// first.
func (r *TransactionRepository) FindOpenByAccount(ctx context.Context, accountID uint) ([]model.Transaction, error) {
	var transactions []model.Transaction

	err := r.db.WithContext(ctx).
		Where("account_id = ? AND status <> ?", accountID, model.TransactionStatusClosed).
		Order("id ASC").
		Find(&transactions).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "TransactionRepository",
			"op":         "FindOpenByAccount",
			"account_id": accountID,
		}).WithError(err).Error("Failed to fetch open transactions")
		return nil, err
	}

	return transactions, nil
}

// UpdateStatus moves the transaction along its lifecycle. CLOSED is terminal;
// CLOSING may be retried back to OPENED or WAITING when a close attempt fails.
func (r *TransactionRepository) UpdateStatus(ctx context.Context, id uint, newStatus string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var transaction model.Transaction

		if err := tx.First(&transaction, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("transaction %d: %w", id, ErrNotFound)
			}
			return err
		}

		if !canTransitionTransaction(transaction.Status, newStatus) {
			return fmt.Errorf("%w: transaction %d cannot transition %s -> %s",
				ErrConstraintViolation, id, transaction.Status, newStatus)
		}

		updates := map[string]interface{}{"status": newStatus}
		now := time.Now()
		switch newStatus {
		case model.TransactionStatusOpened:
			if transaction.OpenDate == nil {
				updates["open_date"] = &now
			}
		case model.TransactionStatusClosed:
			updates["close_date"] = &now
		}

		return tx.
			Model(&model.Transaction{}).
			Where("id = ?", id).
			Updates(updates).Error
	})
}

// SetOpenPrice records the realized entry price once the entry order fills.
func (r *TransactionRepository) SetOpenPrice(ctx context.Context, id uint, price float64) error {
	result := r.db.WithContext(ctx).
		Model(&model.Transaction{}).
		Where("id = ?", id).
		Update("open_price", price)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("transaction %d: %w", id, ErrNotFound)
	}
	return nil
}

// SetClosePrice records the realized exit price.
func (r *TransactionRepository) SetClosePrice(ctx context.Context, id uint, price float64) error {
	result := r.db.WithContext(ctx).
		Model(&model.Transaction{}).
		Where("id = ?", id).
		Update("close_price", price)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("transaction %d: %w", id, ErrNotFound)
	}
	return nil
}

// Delete removes a transaction and, with it, the orders it owns. This is the
// one cascading delete in the schema.
func (r *TransactionRepository) Delete(ctx context.Context, id uint) error {
	logger.WithFields(map[string]interface{}{
		"repo":           "TransactionRepository",
		"op":             "Delete",
		"transaction_id": id,
	}).Info("Deleting transaction and its orders")

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Delete children explicitly so the cascade does not depend on
		// database-level constraint support (sqlite included).
		if err := tx.
			Where("transaction_id = ?", id).
			Delete(&model.Order{}).Error; err != nil {
			return err
		}

		result := tx.Delete(&model.Transaction{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("transaction %d: %w", id, ErrNotFound)
		}

		return nil
	})
}

func canTransitionTransaction(from, to string) bool {
	if from == to {
		return true
	}
	switch from {
	case model.TransactionStatusWaiting:
		return to == model.TransactionStatusOpened || to == model.TransactionStatusClosed
	case model.TransactionStatusOpened:
		return to == model.TransactionStatusClosing || to == model.TransactionStatusClosed
	case model.TransactionStatusClosing:
		// A failed close may be retried back to OPENED or WAITING.
		return to == model.TransactionStatusClosed ||
			to == model.TransactionStatusOpened ||
			to == model.TransactionStatusWaiting
	}
	return false
}
