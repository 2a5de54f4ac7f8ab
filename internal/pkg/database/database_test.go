package database

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lk2023060901/searchview-backend/internal/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"default config", func(c *Config) {}, false},
		{"missing host", func(c *Config) { c.Host = "" }, true},
		{"invalid port", func(c *Config) { c.Port = 0 }, true},
		{"missing user", func(c *Config) { c.User = "" }, true},
		{"missing db name", func(c *Config) { c.DBName = "" }, true},
		{"invalid ssl mode", func(c *Config) { c.SSLMode = "maybe" }, true},
		{"invalid log level", func(c *Config) { c.LogLevel = "debug" }, true},
		{"idle above open", func(c *Config) { c.MaxIdleConns = 50 }, true},
		{"unlimited open", func(c *Config) { c.MaxOpenConns = 0 }, false},
		{"negative lifetime", func(c *Config) { c.ConnMaxLifetime = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_DSN(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timezone = ""
	assert.Equal(t,
		"host=localhost port=5432 user=postgres password=postgres dbname=searchview sslmode=disable TimeZone=UTC",
		cfg.DSN())
}

func TestNewWithConn(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	cfg := DefaultConfig()
	cfg.PrepareStmt = false

	db, err := NewWithConn(sqlDB, cfg, logger.NewNop())
	require.NoError(t, err)
	require.NoError(t, db.HealthCheck(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAutoMigrate_Disabled(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	cfg := DefaultConfig()
	cfg.PrepareStmt = false
	cfg.AutoMigrate = false

	db, err := NewWithConn(sqlDB, cfg, logger.NewNop())
	require.NoError(t, err)

	// no statements are expected
	require.NoError(t, db.AutoMigrate(&struct{ ID int }{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIsRecordNotFoundError(t *testing.T) {
	assert.True(t, IsRecordNotFoundError(gorm.ErrRecordNotFound))
	assert.False(t, IsRecordNotFoundError(assert.AnError))
}
