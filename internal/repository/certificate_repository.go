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

// CertificateModel はgorm用のモデル定義。
type CertificateModel struct {
	ID                string    `gorm:"type:char(36);primaryKey"`
	Username          string    `gorm:"type:varchar(255);not null;index:idx_certificates_username"`
	SerialNumber      string    `gorm:"type:varchar(64);not null;uniqueIndex:uk_certificates_serial"`
	FingerprintSHA256 string    `gorm:"column:fingerprint_sha256;type:char(64);not null"`
	NotBefore         time.Time `gorm:"type:datetime(6);not null"`
	NotAfter          time.Time `gorm:"type:datetime(6);not null"`
	DER               []byte    `gorm:"column:der;type:blob;not null"`
	CreatedAt         time.Time `gorm:"type:datetime(6);not null;autoCreateTime;index:idx_certificates_username"`
}

// TableName はテーブル名を返す。
func (CertificateModel) TableName() string {
	return "certificates"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (c *CertificateModel) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

func (c *CertificateModel) toDomain() *domain.StoredCertificate {
	return &domain.StoredCertificate{
		ID:                c.ID,
		Username:          c.Username,
		SerialNumber:      c.SerialNumber,
		FingerprintSHA256: c.FingerprintSHA256,
		NotBefore:         c.NotBefore,
		NotAfter:          c.NotAfter,
		DER:               c.DER,
		CreatedAt:         c.CreatedAt,
	}
}

// CertificateRepository は発行済み証明書のデータアクセスを提供する。
type CertificateRepository struct {
	db *gorm.DB
}

// NewCertificateRepository は新しいCertificateRepositoryを生成する。
func NewCertificateRepository(db *gorm.DB) *CertificateRepository {
	return &CertificateRepository{db: db}
}

// Create は発行済み証明書を保存する。
func (r *CertificateRepository) Create(ctx context.Context, cert *domain.StoredCertificate) error {
	model := &CertificateModel{
		ID:                cert.ID,
		Username:          cert.Username,
		SerialNumber:      cert.SerialNumber,
		FingerprintSHA256: cert.FingerprintSHA256,
		NotBefore:         cert.NotBefore.UTC(),
		NotAfter:          cert.NotAfter.UTC(),
		DER:               cert.DER,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to store certificate",
			"operation", "create",
			"username", cert.Username,
			"serial_number", cert.SerialNumber,
			"error", err,
		)
		return err
	}
	cert.ID = model.ID
	cert.CreatedAt = model.CreatedAt
	return nil
}

// ListByUsername はユーザー名に発行された証明書を発行順に返す。
func (r *CertificateRepository) ListByUsername(ctx context.Context, username string) ([]*domain.StoredCertificate, error) {
	var models []CertificateModel
	err := r.db.WithContext(ctx).
		Where("username = ?", username).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to list certificates",
			"operation", "list_by_username",
			"username", username,
			"error", err,
		)
		return nil, err
	}

	certs := make([]*domain.StoredCertificate, len(models))
	for i := range models {
		certs[i] = models[i].toDomain()
	}
	return certs, nil
}

// FindBySerialNumber はシリアル番号で証明書を取得する。見つからない場合はnilを返す。
func (r *CertificateRepository) FindBySerialNumber(ctx context.Context, serial string) (*domain.StoredCertificate, error) {
	var model CertificateModel
	err := r.db.WithContext(ctx).
		Where("serial_number = ?", serial).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find certificate",
			"operation", "find_by_serial_number",
			"serial_number", serial,
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}
