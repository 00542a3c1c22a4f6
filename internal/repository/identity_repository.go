// Package repository はデータアクセス層の実装を提供する。
package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"autoenroll-service/internal/domain"
)

// EndEntityModel はgorm用のモデル定義。
type EndEntityModel struct {
	ID                   string    `gorm:"type:char(36);primaryKey"`
	Username             string    `gorm:"type:varchar(255);not null;uniqueIndex:uk_end_entities_username"`
	SubjectDN            string    `gorm:"type:varchar(1024);not null;default:''"`
	SubjectAltName       string    `gorm:"type:varchar(1024);not null;default:''"`
	AuthorityID          string    `gorm:"type:varchar(64);not null"`
	CertificateProfileID uint      `gorm:"not null"`
	EndEntityProfileID   uint      `gorm:"not null"`
	Status               string    `gorm:"type:enum('new','active');not null;default:'new'"`
	CredentialHash       []byte    `gorm:"type:varbinary(72);not null"`
	CreatedAt            time.Time `gorm:"type:datetime(6);not null;autoCreateTime"`
	UpdatedAt            time.Time `gorm:"type:datetime(6);not null;autoUpdateTime"`
}

// TableName はテーブル名を返す。
func (EndEntityModel) TableName() string {
	return "end_entities"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (e *EndEntityModel) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return nil
}

// toDomain はモデルをドメインエンティティに変換する。
func (e *EndEntityModel) toDomain() *domain.Identity {
	return &domain.Identity{
		ID:                   e.ID,
		Username:             e.Username,
		SubjectDN:            e.SubjectDN,
		SubjectAltName:       e.SubjectAltName,
		AuthorityID:          e.AuthorityID,
		CertificateProfileID: e.CertificateProfileID,
		EndEntityProfileID:   e.EndEntityProfileID,
		Status:               domain.IdentityStatus(e.Status),
		CredentialHash:       e.CredentialHash,
		CreatedAt:            e.CreatedAt,
		UpdatedAt:            e.UpdatedAt,
	}
}

// IdentityRepository はエンドエンティティのデータアクセスを提供する。
type IdentityRepository struct {
	db *gorm.DB
}

// NewIdentityRepository は新しいIdentityRepositoryを生成する。
func NewIdentityRepository(db *gorm.DB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

// Exists はユーザー名のエンドエンティティが存在するか確認する。
func (r *IdentityRepository) Exists(ctx context.Context, username string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&EndEntityModel{}).
		Where("username = ?", username).
		Count(&count).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to count end entities by username",
			"operation", "exists",
			"username", username,
			"error", err,
		)
		return false, err
	}
	return count > 0, nil
}

// FindByUsername はユーザー名でエンドエンティティを取得する。
func (r *IdentityRepository) FindByUsername(ctx context.Context, username string) (*domain.Identity, error) {
	var model EndEntityModel
	err := r.db.WithContext(ctx).
		Where("username = ?", username).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrIdentityNotFound
		}
		slog.ErrorContext(ctx, "failed to find end entity",
			"operation", "find_by_username",
			"username", username,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// Create は新しいエンドエンティティを保存する。
func (r *IdentityRepository) Create(ctx context.Context, identity *domain.Identity) error {
	model := &EndEntityModel{
		ID:                   identity.ID,
		Username:             identity.Username,
		SubjectDN:            identity.SubjectDN,
		SubjectAltName:       identity.SubjectAltName,
		AuthorityID:          identity.AuthorityID,
		CertificateProfileID: identity.CertificateProfileID,
		EndEntityProfileID:   identity.EndEntityProfileID,
		Status:               string(identity.Status),
		CredentialHash:       identity.CredentialHash,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrIdentityAlreadyExists
		}
		slog.ErrorContext(ctx, "failed to create end entity",
			"operation", "create",
			"username", identity.Username,
			"error", err,
		)
		return err
	}
	// gormで設定された値をドメインエンティティに反映
	identity.ID = model.ID
	identity.CreatedAt = model.CreatedAt
	identity.UpdatedAt = model.UpdatedAt
	return nil
}

// Update はユーザー名で特定したエンドエンティティを更新する。IDは変更しない。
func (r *IdentityRepository) Update(ctx context.Context, identity *domain.Identity) error {
	var model EndEntityModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("username = ?", identity.Username).First(&model).Error; err != nil {
			return err
		}
		return tx.Model(&model).Updates(map[string]interface{}{
			"subject_dn":             identity.SubjectDN,
			"subject_alt_name":       identity.SubjectAltName,
			"authority_id":           identity.AuthorityID,
			"certificate_profile_id": identity.CertificateProfileID,
			"end_entity_profile_id":  identity.EndEntityProfileID,
			"status":                 string(identity.Status),
			"credential_hash":        identity.CredentialHash,
		}).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrIdentityNotFound
		}
		slog.ErrorContext(ctx, "failed to update end entity",
			"operation", "update",
			"username", identity.Username,
			"error", err,
		)
		return err
	}
	identity.ID = model.ID
	identity.CreatedAt = model.CreatedAt
	identity.UpdatedAt = model.UpdatedAt
	return nil
}

// UpdateStatus はエンドエンティティの状態を更新する。
func (r *IdentityRepository) UpdateStatus(ctx context.Context, username string, status domain.IdentityStatus) error {
	result := r.db.WithContext(ctx).
		Model(&EndEntityModel{}).
		Where("username = ?", username).
		Update("status", string(status))
	if result.Error != nil {
		slog.ErrorContext(ctx, "failed to update end entity status",
			"operation", "update_status",
			"username", username,
			"status", status,
			"error", result.Error,
		)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrIdentityNotFound
	}
	return nil
}
