package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/mailfleet/tokenstack/config"
	"github.com/mailfleet/tokenstack/interfaces"
	"github.com/mailfleet/tokenstack/internal/crypto"
	"github.com/mailfleet/tokenstack/internal/models"
)

type Repositories struct {
	AccountRepository        interfaces.AccountRepository
	RefreshLogRepository     interfaces.RefreshLogRepository
	SchedulePolicyRepository interfaces.SchedulePolicyRepository
}

func InitRepositories(db *gorm.DB, cipher *crypto.Cipher) *Repositories {
	return &Repositories{
		AccountRepository:        NewAccountRepository(db, cipher),
		RefreshLogRepository:     NewRefreshLogRepository(db),
		SchedulePolicyRepository: NewSchedulePolicyRepository(db),
	}
}

func MigrateDB(dbConfig *config.DatabaseConfig, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	sqlDB.SetMaxOpenConns(5)

	err = db.AutoMigrate(
		&models.Account{},
		&models.RefreshLog{},
		&models.SchedulePolicy{},
	)

	sqlDB.Close()

	sqlDB, _ = db.DB()
	sqlDB.SetMaxIdleConns(dbConfig.MaxIdleConn)
	sqlDB.SetMaxOpenConns(dbConfig.MaxConn)
	sqlDB.SetConnMaxLifetime(time.Duration(dbConfig.ConnMaxLifetime) * time.Minute)

	return err
}
