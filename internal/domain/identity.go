package domain

import (
	"strings"
	"time"
)

// IdentityStatus はエンドエンティティのライフサイクル状態を表す。
type IdentityStatus string

const (
	// IdentityStatusNew は発行待ちのエンドエンティティを表す。
	IdentityStatusNew IdentityStatus = "new"
	// IdentityStatusActive は証明書発行済みのエンドエンティティを表す。
	IdentityStatusActive IdentityStatus = "active"
)

// UsernamePrefix は自動登録で作成されるユーザー名の接頭辞。
const UsernamePrefix = "Autoenrolled-"

// Identity はエンドエンティティを表す。
type Identity struct {
	ID                   string
	Username             string
	SubjectDN            string
	SubjectAltName       string
	AuthorityID          string
	CertificateProfileID uint
	EndEntityProfileID   uint
	Status               IdentityStatus
	CredentialHash       []byte
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// ProvisionRequest はエンドエンティティ作成・更新の入力。
type ProvisionRequest struct {
	Username             string
	SubjectDN            string
	SubjectAltName       string
	AuthorityID          string
	CertificateProfileID uint
	EndEntityProfileID   uint
}

// Principal は認証済みプリンシパルを表す。
type Principal struct {
	Full  string
	Short string
}

// NullPrincipal はフロントエンドがユーザー未設定時に送るセンチネル値。
const NullPrincipal = "(null)"

// DNに使えない文字。
const unsafeDNChars = "\n\r;!\x00%`?$~"

// ParsePrincipal は "shortname@domain" 形式のヘッダ値を解析する。
func ParsePrincipal(header string) (Principal, error) {
	header = strings.TrimSpace(header)
	if header == "" || header == NullPrincipal {
		return Principal{}, ErrPrincipalMissing
	}
	at := strings.Index(header, "@")
	if at <= 0 {
		return Principal{}, ErrPrincipalMissing
	}
	short := strings.Map(func(r rune) rune {
		if r == '/' || strings.ContainsRune(unsafeDNChars, r) {
			return -1
		}
		return r
	}, header[:at])
	short = strings.TrimSpace(short)
	if short == "" {
		return Principal{}, ErrPrincipalMissing
	}
	return Principal{Full: header, Short: short}, nil
}

// EnrollmentUsername はプリンシパルとテンプレートから決定的にユーザー名を導出する。
func EnrollmentUsername(short, templateName string) string {
	return UsernamePrefix + short + "-" + templateName
}
