package repository

import (
	"context"

	"potledger/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SettingRepository struct {
	db *gorm.DB
}

func NewSettingRepository(db *gorm.DB) *SettingRepository {
	return &SettingRepository{db: db}
}

func (r *SettingRepository) Get(ctx context.Context, key string) (string, error) {
	var s models.SystemSetting
	if err := r.db.WithContext(ctx).Where("`key` = ?", key).First(&s).Error; err != nil {
		return "", notFound(err, "setting", key)
	}
	return s.Value, nil
}

func (r *SettingRepository) Set(ctx context.Context, key, value, updatedBy string) error {
	return upsertSetting(r.db.WithContext(ctx), key, value, updatedBy)
}

// SetMany writes all values in one transaction.
func (r *SettingRepository) SetMany(ctx context.Context, values map[string]string, updatedBy string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for k, v := range values {
			if err := upsertSetting(tx, k, v, updatedBy); err != nil {
				return err
			}
		}
		return nil
	})
}

func upsertSetting(db *gorm.DB, key, value, updatedBy string) error {
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_by", "updated_at"}),
	}).Create(&models.SystemSetting{Key: key, Value: value, UpdatedBy: updatedBy}).Error
}

func (r *SettingRepository) GetAll(ctx context.Context) (map[string]string, error) {
	var list []models.SystemSetting
	if err := r.db.WithContext(ctx).Order("`key` ASC").Find(&list).Error; err != nil {
		return nil, err
	}
	out := make(map[string]string, len(list))
	for _, s := range list {
		out[s.Key] = s.Value
	}
	return out, nil
}

// SeedDefaults inserts default settings if they don't already exist.
func (r *SettingRepository) SeedDefaults(ctx context.Context, defaults map[string]string) error {
	db := r.db.WithContext(ctx)
	for k, v := range defaults {
		var count int64
		if err := db.Model(&models.SystemSetting{}).Where("`key` = ?", k).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			if err := db.Create(&models.SystemSetting{Key: k, Value: v, UpdatedBy: "system"}).Error; err != nil {
				return err
			}
		}
	}
	return nil
}
