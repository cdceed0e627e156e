package db

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/smallbiznis/chatorder/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	maxIdleConns    = 5
	maxOpenConns    = 20
	connMaxLifetime = 30 * time.Minute
)

// Open connects to Postgres using the DATABASE_URL DSN. When a CA
// certificate is configured the connection requires verified TLS.
func Open(cfg config.Config, log *zap.Logger) (*gorm.DB, error) {
	dsn := cfg.DatabaseURL
	if cfg.DatabaseCA != "" {
		// lib/pq-style DSNs take the CA as a file path, so materialize it.
		caFile, err := os.CreateTemp("", "db-ca-*.pem")
		if err != nil {
			return nil, fmt.Errorf("write DATABASE_CA_CERT: %w", err)
		}
		if _, err := caFile.WriteString(cfg.DatabaseCA); err != nil {
			return nil, fmt.Errorf("write DATABASE_CA_CERT: %w", err)
		}
		if err := caFile.Close(); err != nil {
			return nil, err
		}
		dsn = withTLSParams(dsn, caFile.Name())
	}

	logLevel := gormlogger.Warn
	if cfg.IsProduction() {
		logLevel = gormlogger.Error
	}

	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)

	log.Info("database connected",
		zap.Int("max_open_conns", maxOpenConns),
		zap.Bool("ca_pinned", cfg.DatabaseCA != ""),
	)
	return conn, nil
}

// withTLSParams handles both URL and keyword DSN forms.
func withTLSParams(dsn, caPath string) string {
	if strings.Contains(dsn, "://") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		return fmt.Sprintf("%s%ssslmode=verify-full&sslrootcert=%s", dsn, sep, caPath)
	}
	return fmt.Sprintf("%s sslmode=verify-full sslrootcert=%s", dsn, caPath)
}

var Module = fx.Module("db",
	fx.Provide(Open),
	fx.Invoke(func(lc fx.Lifecycle, conn *gorm.DB) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				sqlDB, err := conn.DB()
				if err != nil {
					return err
				}
				return sqlDB.Close()
			},
		})
	}),
)
