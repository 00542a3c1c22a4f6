package repository

import (
	"io/fs"
	"sort"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"autoenroll-service/migrations"
)

// setupTestDB はスキーマ適用済みのインメモリSQLiteデータベースを作成する。
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	// :memory: は接続ごとに別DBになる
	sqlDB.SetMaxOpenConns(1)

	source, err := migrations.ForDriver("sqlite")
	if err != nil {
		t.Fatalf("failed to load migrations: %v", err)
	}
	names, err := fs.Glob(source, "*.sql")
	if err != nil {
		t.Fatalf("failed to list migrations: %v", err)
	}
	sort.Strings(names)
	for _, name := range names {
		body, err := fs.ReadFile(source, name)
		if err != nil {
			t.Fatalf("failed to read %s: %v", name, err)
		}
		if err := db.Exec(string(body)).Error; err != nil {
			t.Fatalf("failed to apply %s: %v", name, err)
		}
	}
	return db
}
