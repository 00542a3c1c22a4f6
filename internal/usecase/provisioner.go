package usecase

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"golang.org/x/crypto/bcrypt"

	"autoenroll-service/internal/domain"
)

const credentialLength = 8

var credentialChars = []byte("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789")

// IdentityStore はエンドエンティティの永続化インターフェース。
type IdentityStore interface {
	Exists(ctx context.Context, username string) (bool, error)
	Create(ctx context.Context, identity *domain.Identity) error
	Update(ctx context.Context, identity *domain.Identity) error
}

// Provisioner はエンドエンティティを作成または更新する。
type Provisioner struct {
	identities IdentityStore
	bcryptCost int
}

// NewProvisioner は新しいProvisionerを生成する。
func NewProvisioner(identities IdentityStore) *Provisioner {
	return &Provisioner{
		identities: identities,
		bcryptCost: bcrypt.DefaultCost,
	}
}

// generateCredential は英数字のワンタイム認証情報を生成する。
func generateCredential() (string, error) {
	b := make([]byte, credentialLength)
	max := big.NewInt(int64(len(credentialChars)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generating credential: %w", err)
		}
		b[i] = credentialChars[n.Int64()]
	}
	return string(b), nil
}

// Provision はユーザー名に対応するエンドエンティティを作成または更新し、
// 新しいワンタイム認証情報を返す。
func (p *Provisioner) Provision(ctx context.Context, req domain.ProvisionRequest) (*domain.Identity, string, error) {
	credential, err := generateCredential()
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", domain.ErrProvisionFailed, err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(credential), p.bcryptCost)
	if err != nil {
		return nil, "", fmt.Errorf("%w: hashing credential: %v", domain.ErrProvisionFailed, err)
	}

	identity := &domain.Identity{
		Username:             req.Username,
		SubjectDN:            req.SubjectDN,
		SubjectAltName:       req.SubjectAltName,
		AuthorityID:          req.AuthorityID,
		CertificateProfileID: req.CertificateProfileID,
		EndEntityProfileID:   req.EndEntityProfileID,
		Status:               domain.IdentityStatusNew,
		CredentialHash:       hash,
	}

	exists, err := p.identities.Exists(ctx, req.Username)
	if err != nil {
		slog.ErrorContext(ctx, "could not check end entity",
			"operation", "provision",
			"username", req.Username,
			"error", err,
		)
		return nil, "", fmt.Errorf("%w: %v", domain.ErrProvisionFailed, err)
	}

	if exists {
		err = p.identities.Update(ctx, identity)
	} else {
		err = p.identities.Create(ctx, identity)
		if errors.Is(err, domain.ErrIdentityAlreadyExists) {
			// 並行する要求が先に作成した
			slog.InfoContext(ctx, "end entity created concurrently, updating",
				"operation", "provision",
				"username", req.Username,
			)
			exists = true
			err = p.identities.Update(ctx, identity)
		}
	}
	if err != nil {
		slog.ErrorContext(ctx, "could not add end entity",
			"operation", "provision",
			"username", req.Username,
			"update", exists,
			"error", err,
		)
		return nil, "", fmt.Errorf("%w: %v", domain.ErrProvisionFailed, err)
	}

	return identity, credential, nil
}
