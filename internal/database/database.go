package database

import (
	"fmt"
	"strings"

	"github.com/parish-camps/camp-api/internal/config"
	"github.com/parish-camps/camp-api/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func Connect(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DatabaseDriver {
	case "postgres":
		dialector = postgres.Open(cfg.DatabaseDSN)
	case "sqlite", "":
		dialector = sqlite.Open(cfg.DatabaseDSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// EnsureAdmin provisions an admin staff account for email so a fresh
// installation has someone able to log in. Existing accounts are promoted.
func EnsureAdmin(db *gorm.DB, email string) (*models.Staff, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, fmt.Errorf("admin email is empty")
	}
	var staff models.Staff
	if err := db.Where(models.Staff{Email: email}).Assign(models.Staff{Admin: true}).FirstOrCreate(&staff).Error; err != nil {
		return nil, fmt.Errorf("ensure admin: %w", err)
	}
	return &staff, nil
}
