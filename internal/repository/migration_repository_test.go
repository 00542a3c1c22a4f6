package repository

import (
	"context"
	"testing"

	"autoenroll-service/internal/domain"
)

func TestMigrationRepository_RecordAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewMigrationRepository(setupTestDB(t))

	if err := repo.EnsureTable(ctx); err != nil {
		t.Fatalf("EnsureTable failed: %v", err)
	}
	// 2回目も失敗しない
	if err := repo.EnsureTable(ctx); err != nil {
		t.Fatalf("second EnsureTable failed: %v", err)
	}

	applied, err := repo.IsApplied(ctx, "001")
	if err != nil {
		t.Fatalf("IsApplied failed: %v", err)
	}
	if applied {
		t.Error("expected 001 not applied")
	}

	migration := &domain.Migration{Version: "001", Checksum: "abc"}
	if err := repo.Record(ctx, nil, migration); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if migration.AppliedAt == nil {
		t.Error("expected applied_at to be set")
	}

	applied, err = repo.IsApplied(ctx, "001")
	if err != nil {
		t.Fatalf("IsApplied failed: %v", err)
	}
	if !applied {
		t.Error("expected 001 applied")
	}

	all, err := repo.FindAllApplied(ctx)
	if err != nil {
		t.Fatalf("FindAllApplied failed: %v", err)
	}
	if len(all) != 1 || all[0].Checksum != "abc" || all[0].Status != domain.MigrationStatusApplied {
		t.Errorf("unexpected applied migrations: %+v", all)
	}
}
