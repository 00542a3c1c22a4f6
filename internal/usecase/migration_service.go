package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"

	"gorm.io/gorm"

	"autoenroll-service/internal/domain"
)

// MigrationRepository はスキーマ変更履歴を管理するリポジトリのインターフェース。
type MigrationRepository interface {
	FindAllApplied(ctx context.Context) ([]*domain.Migration, error)
	IsApplied(ctx context.Context, version string) (bool, error)
	// Record は tx が nil でなければ同じトランザクション内で履歴を記録する。
	Record(ctx context.Context, tx *gorm.DB, migration *domain.Migration) error
}

// MigrationService はストアのスキーマ変更を適用する。
type MigrationService struct {
	repo   MigrationRepository
	db     *gorm.DB
	source fs.FS
}

// NewMigrationService は新しいMigrationServiceを生成する。
// source はドライバごとのSQLファイルを直下に持つFS。
func NewMigrationService(repo MigrationRepository, db *gorm.DB, source fs.FS) *MigrationService {
	return &MigrationService{
		repo:   repo,
		db:     db,
		source: source,
	}
}

// scan は source から .sql ファイルを読み込みバージョン順に並べる。
func (s *MigrationService) scan() ([]*domain.Migration, map[string][]byte, error) {
	entries, err := fs.ReadDir(s.source, ".")
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrMigrationFileNotFound, err)
	}

	var migrations []*domain.Migration
	bodies := make(map[string][]byte)
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".sql" {
			continue
		}

		version, name, err := parseMigrationFileName(entry.Name())
		if err != nil {
			return nil, nil, err
		}
		if _, dup := bodies[version]; dup {
			return nil, nil, fmt.Errorf("%w: duplicate version %s", domain.ErrInvalidMigrationFile, version)
		}

		body, err := fs.ReadFile(s.source, entry.Name())
		if err != nil {
			return nil, nil, fmt.Errorf("reading %s: %w", entry.Name(), err)
		}
		sum := sha256.Sum256(body)

		bodies[version] = body
		migrations = append(migrations, &domain.Migration{
			Version:  version,
			Name:     name,
			Path:     entry.Name(),
			Checksum: hex.EncodeToString(sum[:]),
			Status:   domain.MigrationStatusPending,
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, bodies, nil
}

// parseMigrationFileName はファイル名からバージョンと名前を抽出する。
// フォーマット: {version}_{name}.sql (例: 001_create_end_entities.sql)
func parseMigrationFileName(filename string) (version, name string, err error) {
	version, name, ok := strings.Cut(strings.TrimSuffix(filename, ".sql"), "_")
	if !ok || version == "" || name == "" {
		return "", "", fmt.Errorf("%w: %s (expected format: {version}_{name}.sql)", domain.ErrInvalidMigrationFile, filename)
	}
	return version, name, nil
}

// ApplyMigrations は未適用のスキーマ変更を番号順に実行し、適用数を返す。
func (s *MigrationService) ApplyMigrations(ctx context.Context) (int, error) {
	migrations, bodies, err := s.scan()
	if err != nil {
		slog.ErrorContext(ctx, "failed to scan migration files",
			"operation", "apply_migrations",
			"error", err,
		)
		return 0, err
	}

	applied := 0
	for _, migration := range migrations {
		done, err := s.repo.IsApplied(ctx, migration.Version)
		if err != nil {
			slog.ErrorContext(ctx, "failed to check migration status",
				"operation", "apply_migrations",
				"version", migration.Version,
				"error", err,
			)
			return applied, fmt.Errorf("checking migration %s: %w", migration.Version, err)
		}
		if done {
			continue
		}

		if err := s.apply(ctx, migration, bodies[migration.Version]); err != nil {
			slog.ErrorContext(ctx, "failed to apply migration",
				"operation", "apply_migrations",
				"version", migration.Version,
				"error", err,
			)
			return applied, fmt.Errorf("%w: version %s: %v", domain.ErrMigrationFailed, migration.Version, err)
		}
		slog.InfoContext(ctx, "applied migration",
			"version", migration.Version,
			"name", migration.Name,
		)
		applied++
	}
	return applied, nil
}

// apply は単一のスキーマ変更と履歴記録を1トランザクションで実行する。
func (s *MigrationService) apply(ctx context.Context, migration *domain.Migration, body []byte) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(string(body)).Error; err != nil {
			return fmt.Errorf("executing SQL: %w", err)
		}
		return s.repo.Record(ctx, tx, migration)
	})
}

// GetMigrationStatus はファイルごとの適用状況を返す。
func (s *MigrationService) GetMigrationStatus(ctx context.Context) ([]*domain.Migration, error) {
	migrations, _, err := s.scan()
	if err != nil {
		return nil, err
	}

	applied, err := s.repo.FindAllApplied(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to fetch applied migrations",
			"operation", "get_migration_status",
			"error", err,
		)
		return nil, fmt.Errorf("fetching applied migrations: %w", err)
	}

	byVersion := make(map[string]*domain.Migration, len(applied))
	for _, m := range applied {
		byVersion[m.Version] = m
	}

	for _, migration := range migrations {
		record, ok := byVersion[migration.Version]
		if !ok {
			continue
		}
		migration.AppliedAt = record.AppliedAt
		migration.Status = domain.MigrationStatusApplied
		if record.Checksum != "" && record.Checksum != migration.Checksum {
			migration.Status = domain.MigrationStatusModified
		}
	}
	return migrations, nil
}
