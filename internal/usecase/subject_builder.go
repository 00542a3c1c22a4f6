package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"autoenroll-service/internal/domain"
)

// Directory は組織ディレクトリからサブジェクトDNを取得するインターフェース。
// 見つからない場合は domain.ErrDirectoryEntryNotFound を返す。
type Directory interface {
	LookupDN(ctx context.Context, shortName string) (string, error)
}

// SubjectNames はリクエストに対して構築したサブジェクトDNとSAN。
type SubjectNames struct {
	SubjectDN      string
	SubjectAltName string
}

// SubjectNameBuilder はテンプレートとプリンシパルからサブジェクト名を構築する。
type SubjectNameBuilder struct {
	directory Directory
}

// NewSubjectNameBuilder は新しいSubjectNameBuilderを生成する。
func NewSubjectNameBuilder(directory Directory) *SubjectNameBuilder {
	return &SubjectNameBuilder{directory: directory}
}

// Build はサブジェクトDNとSAN文字列を構築する。
func (b *SubjectNameBuilder) Build(ctx context.Context, profile *domain.TemplateProfile, principal domain.Principal, req *domain.EnrollmentRequest) (*SubjectNames, error) {
	var names SubjectNames

	switch {
	case profile.Requires(domain.AttrSubjectDNFromDirectory):
		dn, err := b.lookupDN(ctx, principal.Short)
		if err != nil {
			return nil, err
		}
		names.SubjectDN = dn
	case profile.Requires(domain.AttrCommonName):
		names.SubjectDN = "CN=" + principal.Short
	}

	var san []string
	if profile.Requires(domain.AttrUPN) {
		san = append(san, "UPN="+principal.Full)
	}
	if profile.Requires(domain.AttrDirectoryGUID) {
		guid := req.AltNames.Slot(0)
		if guid == "" {
			return nil, fmt.Errorf("%w: DIRECTORY_GUID", domain.ErrRequiredAttributeMissing)
		}
		san = append(san, "GUID="+guid)
	}
	if profile.Requires(domain.AttrDNSName) {
		dns := req.AltNames.Slot(1)
		if dns == "" {
			return nil, fmt.Errorf("%w: DNS_NAME", domain.ErrRequiredAttributeMissing)
		}
		san = append(san, "DNSNAME="+dns)
	}
	names.SubjectAltName = strings.Join(san, ",")

	return &names, nil
}

func (b *SubjectNameBuilder) lookupDN(ctx context.Context, shortName string) (string, error) {
	if b.directory == nil {
		slog.ErrorContext(ctx, "directory lookup required but no directory is configured",
			"operation", "build_subject",
			"principal", shortName,
		)
		return "", domain.ErrDirectoryUnavailable
	}

	dn, err := b.directory.LookupDN(ctx, shortName)
	if err != nil {
		slog.ErrorContext(ctx, "could not retrieve subject DN from directory",
			"operation", "build_subject",
			"principal", shortName,
			"error", err,
		)
		if errors.Is(err, domain.ErrDirectoryEntryNotFound) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", domain.ErrDirectoryUnavailable, err)
	}
	if dn == "" {
		slog.ErrorContext(ctx, "directory returned an empty DN",
			"operation", "build_subject",
			"principal", shortName,
		)
		return "", domain.ErrDirectoryEntryNotFound
	}
	return dn, nil
}
