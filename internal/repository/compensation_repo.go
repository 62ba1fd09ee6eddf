package repository

import (
	"context"
	"time"

	"potledger/internal/domain"
	"potledger/internal/models"

	"gorm.io/gorm"
)

// CompensationRepository is the durable outbox behind ledger.Saga.
type CompensationRepository struct {
	db *gorm.DB
}

func NewCompensationRepository(db *gorm.DB) *CompensationRepository {
	return &CompensationRepository{db: db}
}

func (r *CompensationRepository) Enqueue(ctx context.Context, c *models.Compensation) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *CompensationRepository) Due(ctx context.Context, now time.Time, limit int) ([]models.Compensation, error) {
	var list []models.Compensation
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_attempt_at <= ?", domain.CompensationPending, now).
		Order("next_attempt_at ASC").
		Limit(limit).
		Find(&list).Error
	return list, err
}

func (r *CompensationRepository) MarkResolved(ctx context.Context, id string, at time.Time) error {
	return r.update(ctx, id, map[string]interface{}{
		"status":      domain.CompensationResolved,
		"resolved_at": at,
	})
}

func (r *CompensationRepository) MarkAttempt(ctx context.Context, id string, attempts int, lastErr string, next time.Time, status string) error {
	return r.update(ctx, id, map[string]interface{}{
		"attempts":        attempts,
		"last_error":      lastErr,
		"next_attempt_at": next,
		"status":          status,
	})
}

func (r *CompensationRepository) update(ctx context.Context, id string, fields map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&models.Compensation{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.NotFoundf("compensation %s not found", id)
	}
	return nil
}

func (r *CompensationRepository) List(ctx context.Context, status string, page, limit int) ([]models.Compensation, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Compensation{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []models.Compensation
	err := q.Order("created_at DESC").Limit(limit).Offset(offset(page, limit)).Find(&list).Error
	return list, total, err
}
