package model

import (
	"context"
	"fmt"
	"time"

	"github.com/blobsync/pinner/src/utils/config"
	l "github.com/blobsync/pinner/src/utils/logger"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func NewConnection(ctx context.Context, config *config.Config, applicationName string) (self *gorm.DB, err error) {
	log := l.NewSublogger("db")

	gormLogger := logger.New(log,
		logger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  logger.Error,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s application_name=%s",
		config.Database.Host,
		config.Database.Port,
		config.Database.User,
		config.Database.Password,
		config.Database.Name,
		config.Database.SslMode,
		applicationName,
	)

	if config.Database.ClientCert != "" && config.Database.ClientKey != "" && config.Database.CaCert != "" {
		dsn += fmt.Sprintf(" sslcert=%s sslkey=%s sslrootcert=%s",
			config.Database.ClientCert,
			config.Database.ClientKey,
			config.Database.CaCert)
	}

	self, err = gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return
	}

	db, err := self.DB()
	if err != nil {
		return
	}

	db.SetMaxOpenConns(config.Database.MaxOpenConns)
	db.SetMaxIdleConns(config.Database.MaxIdleConns)
	db.SetConnMaxIdleTime(config.Database.ConnMaxIdleTime)
	db.SetConnMaxLifetime(config.Database.ConnMaxLifetime)

	err = Ping(ctx, config, self)
	if err != nil {
		return
	}

	return
}

func Ping(ctx context.Context, config *config.Config, db *gorm.DB) (err error) {
	if config.Database.PingTimeout < 0 {
		// Ping disabled
		return nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return
	}

	dbCtx, cancel := context.WithTimeout(ctx, config.Database.PingTimeout)
	defer cancel()

	return sqlDB.PingContext(dbCtx)
}
