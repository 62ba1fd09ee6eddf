package repository

import (
	"context"
	"time"

	"potledger/internal/domain"
	"potledger/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PotTransactionRepository is append-only apart from settling a PENDING row.
type PotTransactionRepository struct {
	db *gorm.DB
}

func NewPotTransactionRepository(db *gorm.DB) *PotTransactionRepository {
	return &PotTransactionRepository{db: db}
}

func (r *PotTransactionRepository) Append(ctx context.Context, t *models.PotTransaction) error {
	return r.db.WithContext(ctx).Create(t).Error
}

func (r *PotTransactionRepository) Complete(ctx context.Context, id string, balanceAfter decimal.Decimal) error {
	return r.settle(ctx, id, map[string]interface{}{
		"status":        domain.TxStatusCompleted,
		"balance_after": decimal.NullDecimal{Decimal: balanceAfter, Valid: true},
	})
}

func (r *PotTransactionRepository) Fail(ctx context.Context, id, reason string, retryCount int) error {
	return r.settle(ctx, id, map[string]interface{}{
		"status":         domain.TxStatusFailed,
		"failure_reason": reason,
		"retry_count":    retryCount,
	})
}

func (r *PotTransactionRepository) settle(ctx context.Context, id string, fields map[string]interface{}) error {
	fields["updated_at"] = time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&models.PotTransaction{}).
		Where("id = ? AND status = ?", id, domain.TxStatusPending).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.Conflictf("pot transaction %s is not pending", id)
	}
	return nil
}

func (r *PotTransactionRepository) GetByReference(ctx context.Context, reference string) (*models.PotTransaction, error) {
	var t models.PotTransaction
	if err := r.db.WithContext(ctx).Where("reference = ?", reference).First(&t).Error; err != nil {
		return nil, notFound(err, "pot transaction", reference)
	}
	return &t, nil
}

func (r *PotTransactionRepository) ListByPot(ctx context.Context, potID, txType string, page, limit int) ([]models.PotTransaction, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.PotTransaction{}).Where("pot_id = ?", potID)
	if txType != "" {
		q = q.Where("type = ?", txType)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []models.PotTransaction
	err := q.Order("created_at DESC").Limit(limit).Offset(offset(page, limit)).Find(&list).Error
	return list, total, err
}

func (r *PotTransactionRepository) CountFailedSince(ctx context.Context, potID, txType string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.PotTransaction{}).
		Where("pot_id = ? AND type = ? AND status = ? AND created_at >= ?", potID, txType, domain.TxStatusFailed, since).
		Count(&count).Error
	return count, err
}
