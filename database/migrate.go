package database

import (
	"gorm.io/gorm"

	"go-payment-service/domain"
)

func MigrateDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Payment{},
		&domain.Enrollment{},
	)
}
