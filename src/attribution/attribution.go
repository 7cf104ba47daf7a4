package attribution

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"orderengine/src/database"
	"orderengine/src/model"
)

// Resolver answers "which expert owns this order". An order carries two
// independent attribution paths: through its transaction and through the
// recommendation that produced it. Both must be checked, in that fixed order,
// because either foreign key may be null.
type Resolver struct {
	db *gorm.DB
}

// NewResolver creates a resolver using the main read/write database.
func NewResolver() *Resolver {
	return &Resolver{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *Resolver) WithDB(db *gorm.DB) *Resolver {
	return &Resolver{db: db}
}

// ExpertIDFor resolves the owning expert of an order, or nil when neither
// path yields one.
func (r *Resolver) ExpertIDFor(ctx context.Context, order *model.Order) (*uint, error) {
	// Path 1: the owning transaction's expert.
	if order.TransactionID != nil {
		var transaction model.Transaction
		err := r.db.WithContext(ctx).
			Select("id", "expert_id").
			First(&transaction, *order.TransactionID).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		if err == nil && transaction.ExpertID != nil {
			return transaction.ExpertID, nil
		}
	}

	// Path 2: the originating recommendation's expert.
	if order.RecommendationID != nil {
		var recommendation model.Recommendation
		err := r.db.WithContext(ctx).
			Select("id", "expert_instance_id").
			First(&recommendation, *order.RecommendationID).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		if err == nil && recommendation.ExpertInstanceID != 0 {
			expertID := recommendation.ExpertInstanceID
			return &expertID, nil
		}
	}

	logger.WithFields(map[string]interface{}{
		"component": "attribution",
		"order_id":  order.ID,
	}).Debug("Order has no resolvable expert")

	return nil, nil
}
