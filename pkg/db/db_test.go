package db

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"taskpoint/pkg/config"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestRegisterTelemetrySqlite(t *testing.T) {
	gdb, err := gorm.Open(sqlite.Open("file:telemetry?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Database.Type = "sqlite"

	// tracing is registered; the prometheus collector is skipped on the
	// sqlite dialect
	require.NoError(t, RegisterTelemetry(gdb, cfg))
	require.NotEmpty(t, gdb.Config.Plugins)
}
