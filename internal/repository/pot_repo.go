package repository

import (
	"context"
	"time"

	"potledger/internal/domain"
	"potledger/internal/models"

	"gorm.io/gorm"
)

type PotFilter struct {
	Status string
	UserID string
}

type PotRepository struct {
	db *gorm.DB
}

func NewPotRepository(db *gorm.DB) *PotRepository {
	return &PotRepository{db: db}
}

func (r *PotRepository) Create(ctx context.Context, p *models.Pot) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *PotRepository) GetByID(ctx context.Context, id string) (*models.Pot, error) {
	var p models.Pot
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, notFound(err, "pot", id)
	}
	return &p, nil
}

// Update writes the given columns in a single statement.
func (r *PotRepository) Update(ctx context.Context, id string, fields map[string]interface{}) error {
	db := r.db.WithContext(ctx)
	res := db.Model(&models.Pot{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := db.Model(&models.Pot{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return domain.NotFoundf("pot %s not found", id)
		}
	}
	return nil
}

func (r *PotRepository) List(ctx context.Context, f PotFilter, page, limit int) ([]models.Pot, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Pot{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.UserID != "" {
		q = q.Where("user_id = ?", f.UserID)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []models.Pot
	err := q.Order("created_at DESC").Limit(limit).Offset(offset(page, limit)).Find(&list).Error
	return list, total, err
}

func (r *PotRepository) CountOpenByUser(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Pot{}).
		Where("user_id = ? AND status <> ?", userID, domain.PotStatusClosed).
		Count(&count).Error
	return count, err
}

func (r *PotRepository) ListDueAutoDeposits(ctx context.Context, now time.Time, limit int) ([]models.Pot, error) {
	var list []models.Pot
	err := r.db.WithContext(ctx).
		Where("auto_deposit_enabled = ? AND status <> ? AND admin_locked = ?", true, domain.PotStatusClosed, false).
		Where("next_auto_deposit_date IS NOT NULL AND next_auto_deposit_date <= ?", now).
		Order("next_auto_deposit_date ASC").
		Limit(limit).
		Find(&list).Error
	return list, err
}
