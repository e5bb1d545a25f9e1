package database

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/tableops/tableops/app/models"
	"github.com/tableops/tableops/internal/pkg/env"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

var DB *gorm.DB

// GetDB returns the connection opened by SetupDatabase.
func GetDB() *gorm.DB {
	return DB
}

// DSN builds the MySQL data source name from DB_* variables. Timestamps are
// read and written in UTC so day windows line up with the database.
func DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		env.GetEnv("DB_USER", ""),
		env.GetEnv("DB_PASSWORD", ""),
		env.GetEnv("DB_HOST", "127.0.0.1"),
		env.GetEnv("DB_PORT", "3306"),
		env.GetEnv("DB_NAME", ""),
	)
}

func SetupDatabase() {
	var err error
	dsn := DSN()

	gormLogger := logger.Default.LogMode(logger.Warn)
	if env.IsDev() {
		gormLogger = logger.Default.LogMode(logger.Info)
	}

	for i := 0; i < maxRetries; i++ {
		DB, err = gorm.Open(mysql.New(mysql.Config{
			DSN:                       dsn,
			DefaultStringSize:         256,
			DisableDatetimePrecision:  true,
			DontSupportRenameIndex:    true,
			DontSupportRenameColumn:   true,
			SkipInitializeWithVersion: false,
		}), &gorm.Config{
			Logger:  gormLogger,
			NowFunc: func() time.Time { return time.Now().UTC() },
		})
		if err == nil {
			if env.GetEnvBool("DB_AUTO_MIGRATE", true) {
				if err = DB.AutoMigrate(
					&models.Owner{},
					&models.Restaurant{},
					&models.Subscription{},
				); err != nil {
					panic(fmt.Errorf("auto migrate: %w", err))
				}
			}
			log.Info("[Database] Connected")
			return
		}

		log.Warnf("[Database] Failed to connect (try %d/%d): %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			log.Infof("[Database] Retrying in %v...", retryDelay)
			time.Sleep(retryDelay)
		}
	}

	if err != nil {
		panic(err)
	}
}
