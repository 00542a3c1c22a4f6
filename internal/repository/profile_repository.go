package repository

import (
	"context"
	"crypto/x509"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"autoenroll-service/internal/domain"
)

// CertificateProfileModel はgorm用のモデル定義。
type CertificateProfileModel struct {
	ID            uint      `gorm:"primaryKey;autoIncrement"`
	TemplateIndex int       `gorm:"not null;uniqueIndex:uk_certificate_profiles_template"`
	Name          string    `gorm:"type:varchar(128);not null"`
	KeyUsage      int       `gorm:"not null;default:0"`
	ExtKeyUsages  string    `gorm:"type:varchar(255);not null;default:''"`
	ValidityDays  int       `gorm:"not null"`
	CreatedAt     time.Time `gorm:"type:datetime(6);not null;autoCreateTime"`
}

// TableName はテーブル名を返す。
func (CertificateProfileModel) TableName() string {
	return "certificate_profiles"
}

func (m *CertificateProfileModel) toDomain() *domain.CertificateProfile {
	return &domain.CertificateProfile{
		ID:            m.ID,
		TemplateIndex: m.TemplateIndex,
		Name:          m.Name,
		KeyUsage:      x509.KeyUsage(m.KeyUsage),
		ExtKeyUsages:  decodeExtKeyUsages(m.ExtKeyUsages),
		ValidityDays:  m.ValidityDays,
	}
}

// EndEntityProfileModel はgorm用のモデル定義。
type EndEntityProfileModel struct {
	ID                   uint      `gorm:"primaryKey;autoIncrement"`
	TemplateIndex        int       `gorm:"not null;uniqueIndex:uk_end_entity_profiles_template"`
	Name                 string    `gorm:"type:varchar(128);not null"`
	CertificateProfileID uint      `gorm:"not null"`
	AuthorityID          string    `gorm:"type:varchar(64);not null"`
	RequiredFields       int       `gorm:"not null;default:0"`
	CreatedAt            time.Time `gorm:"type:datetime(6);not null;autoCreateTime"`
}

// TableName はテーブル名を返す。
func (EndEntityProfileModel) TableName() string {
	return "end_entity_profiles"
}

func (m *EndEntityProfileModel) toDomain() *domain.EndEntityProfile {
	return &domain.EndEntityProfile{
		ID:                   m.ID,
		TemplateIndex:        m.TemplateIndex,
		Name:                 m.Name,
		CertificateProfileID: m.CertificateProfileID,
		AuthorityID:          m.AuthorityID,
		RequiredFields:       domain.Attribute(m.RequiredFields),
	}
}

func encodeExtKeyUsages(usages []x509.ExtKeyUsage) string {
	parts := make([]string, len(usages))
	for i, u := range usages {
		parts[i] = strconv.Itoa(int(u))
	}
	return strings.Join(parts, ",")
}

func decodeExtKeyUsages(s string) []x509.ExtKeyUsage {
	if s == "" {
		return nil
	}
	var usages []x509.ExtKeyUsage
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		usages = append(usages, x509.ExtKeyUsage(n))
	}
	return usages
}

// ProfileRepository はテンプレートごとの証明書・エンドエンティティプロファイルを管理する。
type ProfileRepository struct {
	db *gorm.DB
}

// NewProfileRepository は新しいProfileRepositoryを生成する。
func NewProfileRepository(db *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// ResolveOrCreate はテンプレート番号に対応するプロファイルを取得し、無ければ作成する。
// 別プロセスとの作成競合で一意制約に当たった場合は読み直す。
func (r *ProfileRepository) ResolveOrCreate(ctx context.Context, tmpl domain.Template, authorityID string) (domain.ProfileIDs, error) {
	ids, err := r.resolveOrCreate(ctx, tmpl, authorityID)
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		ids, err = r.resolveOrCreate(ctx, tmpl, authorityID)
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to resolve profiles",
			"operation", "resolve_or_create",
			"template", tmpl.Name,
			"template_index", tmpl.Index,
			"error", err,
		)
		return domain.ProfileIDs{}, err
	}
	return ids, nil
}

func (r *ProfileRepository) resolveOrCreate(ctx context.Context, tmpl domain.Template, authorityID string) (domain.ProfileIDs, error) {
	var ids domain.ProfileIDs
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cp := CertificateProfileModel{
			TemplateIndex: tmpl.Index,
			Name:          tmpl.Name,
			KeyUsage:      int(tmpl.KeyUsage),
			ExtKeyUsages:  encodeExtKeyUsages(tmpl.ExtKeyUsages),
			ValidityDays:  tmpl.ValidityDays,
		}
		if err := firstOrCreateByTemplate(tx, &cp, tmpl.Index); err != nil {
			return err
		}

		ee := EndEntityProfileModel{
			TemplateIndex:        tmpl.Index,
			Name:                 tmpl.Name,
			CertificateProfileID: cp.ID,
			AuthorityID:          authorityID,
			RequiredFields:       int(tmpl.Required),
		}
		if err := firstOrCreateByTemplate(tx, &ee, tmpl.Index); err != nil {
			return err
		}
		// 署名CAの切り替え後も既存プロファイルを現在のCAに向ける
		if ee.AuthorityID != authorityID {
			slog.InfoContext(ctx, "rebinding end entity profile to authority",
				"operation", "resolve_or_create",
				"template", tmpl.Name,
				"from", ee.AuthorityID,
				"to", authorityID,
			)
			if err := tx.Model(&ee).Update("authority_id", authorityID).Error; err != nil {
				return err
			}
		}

		ids = domain.ProfileIDs{CertificateProfileID: cp.ID, EndEntityProfileID: ee.ID}
		return nil
	})
	return ids, err
}

// firstOrCreateByTemplate は template_index で既存行を読み込み、無ければ model を作成する。
// テンプレート番号0があるため構造体条件は使わない。
func firstOrCreateByTemplate(tx *gorm.DB, model interface{}, templateIndex int) error {
	err := tx.Where("template_index = ?", templateIndex).Take(model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return tx.Create(model).Error
	}
	return err
}

// FindCertificateProfile はIDで証明書プロファイルを取得する。
func (r *ProfileRepository) FindCertificateProfile(ctx context.Context, id uint) (*domain.CertificateProfile, error) {
	var model CertificateProfileModel
	if err := r.db.WithContext(ctx).First(&model, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrProfileNotFound
		}
		slog.ErrorContext(ctx, "failed to find certificate profile",
			"operation", "find_certificate_profile",
			"id", id,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// FindEndEntityProfile はIDでエンドエンティティプロファイルを取得する。
func (r *ProfileRepository) FindEndEntityProfile(ctx context.Context, id uint) (*domain.EndEntityProfile, error) {
	var model EndEntityProfileModel
	if err := r.db.WithContext(ctx).First(&model, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrProfileNotFound
		}
		slog.ErrorContext(ctx, "failed to find end entity profile",
			"operation", "find_end_entity_profile",
			"id", id,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}
