// Package postgres opens the shared Postgres handle used by the document store.
package postgres

import (
	"context"
	"strconv"
	"time"

	errors "github.com/Laisky/errors/v2"
	logSDK "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	gormPostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// DialInfo postgres dial info
type DialInfo struct {
	Addr,
	DBName,
	User,
	Pwd string
	Port int
}

// BuildDSN builds a PostgreSQL DSN for shared database clients.
func BuildDSN(dialInfo DialInfo) string {
	port := dialInfo.Port
	if port <= 0 {
		port = 5432
	}
	return "host=" + dialInfo.Addr + " user=" + dialInfo.User + " password=" + dialInfo.Pwd +
		" dbname=" + dialInfo.DBName + " port=" + strconv.Itoa(port) + " sslmode=disable TimeZone=UTC"
}

// NewGormDB connects to postgres through pgx and returns a configured gorm handle.
//
// The returned handle is meant to be built once at startup and passed to every component;
// call Close on shutdown.
func NewGormDB(ctx context.Context, dialInfo DialInfo, logger logSDK.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(gormPostgres.New(gormPostgres.Config{
		DSN: BuildDSN(dialInfo),
	}), &gorm.Config{
		Logger: newTruncatingParamsLogger(gormLogger.Default.LogMode(gormLogger.Warn)),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "get sql db")
	}
	if err = sqlDB.PingContext(ctx); err != nil {
		return nil, errors.Wrap(err, "ping postgres")
	}

	// config db
	sqlDB.SetMaxIdleConns(6)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if logger != nil {
		logger.Info("connected postgres",
			zap.String("addr", dialInfo.Addr),
			zap.String("db", dialInfo.DBName))
	}
	return db, nil
}

// Close releases the connection pool behind db.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return errors.Wrap(err, "get sql db")
	}
	return errors.WithStack(sqlDB.Close())
}
