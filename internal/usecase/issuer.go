package usecase

import (
	"context"
	"crypto/x509"
	"log/slog"

	"autoenroll-service/internal/domain"
)

// SigningEngine は証明書の署名とエンベロープ生成を行う外部エンジン。
type SigningEngine interface {
	// Sign はDERエンコードされたX.509証明書を返す。
	Sign(ctx context.Context, req *domain.SignRequest) ([]byte, error)
	// Envelope は証明書と発行チェーンをPKCS#7で包む。
	Envelope(ctx context.Context, cert *x509.Certificate) ([]byte, error)
}

// Issuer は署名エンジンを駆動して証明書を発行する。
type Issuer struct {
	engine SigningEngine
}

// NewIssuer は新しいIssuerを生成する。
func NewIssuer(engine SigningEngine) *Issuer {
	return &Issuer{engine: engine}
}

// Issue はエンドエンティティに対して証明書を発行する。
// 失敗の詳細はログにのみ出力し、呼び出し元には domain.ErrIssuanceFailed を返す。
func (i *Issuer) Issue(ctx context.Context, identity *domain.Identity, credential string, req *domain.EnrollmentRequest) (*domain.IssuedCertificate, error) {
	signReq := req.Bind(identity.Username, credential)

	der, err := i.engine.Sign(ctx, signReq)
	if err != nil {
		slog.ErrorContext(ctx, "signing engine rejected request",
			"operation", "issue",
			"username", identity.Username,
			"error", err,
		)
		return nil, domain.ErrIssuanceFailed
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		slog.ErrorContext(ctx, "signing engine returned a malformed certificate",
			"operation", "issue",
			"username", identity.Username,
			"error", err,
		)
		return nil, domain.ErrIssuanceFailed
	}

	envelope, err := i.engine.Envelope(ctx, cert)
	if err != nil {
		slog.ErrorContext(ctx, "could not create PKCS#7 envelope",
			"operation", "issue",
			"username", identity.Username,
			"error", err,
		)
		return nil, domain.ErrIssuanceFailed
	}

	return &domain.IssuedCertificate{
		Certificate: cert,
		DER:         der,
		Envelope:    envelope,
	}, nil
}
