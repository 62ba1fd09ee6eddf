package repository

import (
	"errors"

	"potledger/internal/domain"

	"gorm.io/gorm"
)

func notFound(err error, what, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.NotFoundf("%s %s not found", what, id)
	}
	return err
}

func offset(page, limit int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * limit
}
