package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/fastingles-audio/internal/data/db"
	types "github.com/yungbote/fastingles-audio/internal/domain"
	"github.com/yungbote/fastingles-audio/internal/platform/logger"
)

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	return logger.Nop()
}

// DB returns a migrated database. TEST_POSTGRES_DSN selects a shared Postgres
// instance (tables are truncated per test); otherwise each test gets its own
// sqlite file.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()

	cfg := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
		Logger:                                   gormLogger.Default.LogMode(gormLogger.Silent),
	}

	if dsn := os.Getenv("TEST_POSTGRES_DSN"); dsn != "" {
		gdb, err := gorm.Open(postgres.Open(dsn), cfg)
		if err != nil {
			tb.Fatalf("open postgres: %v", err)
		}
		if err := db.AutoMigrateAll(gdb); err != nil {
			tb.Fatalf("migrate: %v", err)
		}
		if err := gdb.Exec("DELETE FROM " + (types.AudioCache{}).TableName()).Error; err != nil {
			tb.Fatalf("truncate: %v", err)
		}
		return gdb
	}

	path := filepath.Join(tb.TempDir(), "audiocache.db")
	gdb, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000"), cfg)
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		tb.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	tb.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.AutoMigrateAll(gdb); err != nil {
		tb.Fatalf("migrate: %v", err)
	}
	return gdb
}

func Tx(tb testing.TB, gdb *gorm.DB) *gorm.DB {
	tb.Helper()
	tx := gdb.Begin()
	if tx.Error != nil {
		tb.Fatalf("begin tx: %v", tx.Error)
	}
	tb.Cleanup(func() {
		_ = tx.Rollback().Error
	})
	return tx
}

func SeedAudioCache(tb testing.TB, gdb *gorm.DB, identity, storageKey string) *types.AudioCache {
	tb.Helper()
	rec := &types.AudioCache{
		ContentIdentity: identity,
		RawText:         "seed",
		Language:        "en-US",
		Provider:        "test",
		StorageKey:      storageKey,
	}
	if err := gdb.Create(rec).Error; err != nil {
		tb.Fatalf("seed audio cache: %v", err)
	}
	return rec
}
