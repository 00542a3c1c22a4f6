package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"autoenroll-service/internal/domain"
)

// RenewalWindow は更新を促し始める有効期限までの期間。
const RenewalWindow = 14 * 24 * time.Hour

// CertificateStore は発行済み証明書を参照するインターフェース。
// ListByUsername の順序はストアが返す順序のまま扱う。
type CertificateStore interface {
	ListByUsername(ctx context.Context, username string) ([]*domain.StoredCertificate, error)
}

// IdentityLookup はエンドエンティティの存在確認インターフェース。
type IdentityLookup interface {
	Exists(ctx context.Context, username string) (bool, error)
}

// StatusEvaluator はエンドエンティティの証明書群から更新要否を判定する。
type StatusEvaluator struct {
	identities IdentityLookup
	certs      CertificateStore
	now        func() time.Time
}

// NewStatusEvaluator は新しいStatusEvaluatorを生成する。
func NewStatusEvaluator(identities IdentityLookup, certs CertificateStore) *StatusEvaluator {
	return &StatusEvaluator{
		identities: identities,
		certs:      certs,
		now:        time.Now,
	}
}

// Evaluate はユーザー名の証明書群を判定する。最初に該当した証明書で結果が決まる。
func (e *StatusEvaluator) Evaluate(ctx context.Context, username string) (domain.StatusVerdict, error) {
	exists, err := e.identities.Exists(ctx, username)
	if err != nil {
		return "", fmt.Errorf("checking end entity: %w", err)
	}
	if !exists {
		return domain.VerdictNoSuchUser, nil
	}

	certs, err := e.certs.ListByUsername(ctx, username)
	if err != nil {
		return "", fmt.Errorf("listing certificates: %w", err)
	}
	if len(certs) == 0 {
		return domain.VerdictNoCertificates, nil
	}

	now := e.now()
	window := now.Add(RenewalWindow)
	for _, cert := range certs {
		switch err := cert.CheckValidity(window); {
		case err == nil:
			return domain.VerdictOK, nil
		case errors.Is(err, domain.ErrCertificateNotYetValid):
			return domain.VerdictError, nil
		}

		// 猶予期間後には期限切れ。現時点の有効性で更新要否を決める
		switch err := cert.CheckValidity(now); {
		case err == nil:
			return domain.VerdictExpiring, nil
		case errors.Is(err, domain.ErrCertificateNotYetValid):
			return domain.VerdictError, nil
		}
	}
	return domain.VerdictExpired, nil
}
