// Package domain はドメインモデルとビジネスルールを定義する。
package domain

import (
	"crypto/x509"
	"strings"
)

// Attribute はテンプレートが要求するサブジェクト属性を表すビットフラグ。
type Attribute uint

const (
	// AttrCommonName はサブジェクトDNに CN=<短縮プリンシパル> を要求する。
	AttrCommonName Attribute = 1 << iota
	// AttrUPN はSANにユーザープリンシパル名を要求する。
	AttrUPN
	// AttrDirectoryGUID はSANにディレクトリGUID（リクエストのスロット0）を要求する。
	AttrDirectoryGUID
	// AttrDNSName はSANにDNS名（リクエストのスロット1）を要求する。
	AttrDNSName
	// AttrSubjectDNFromDirectory はサブジェクトDNをディレクトリから取得することを要求する。
	AttrSubjectDNFromDirectory
)

var attributeNames = []struct {
	attr Attribute
	name string
}{
	{AttrCommonName, "COMMON_NAME"},
	{AttrUPN, "USER_PRINCIPAL_NAME"},
	{AttrDirectoryGUID, "DIRECTORY_GUID"},
	{AttrDNSName, "DNS_NAME"},
	{AttrSubjectDNFromDirectory, "SUBJECT_DN_FROM_DIRECTORY"},
}

// Has は属性集合に a が含まれるか判定する。
func (s Attribute) Has(a Attribute) bool {
	return s&a == a
}

// Names は属性集合を語彙名のスライスに変換する。
func (s Attribute) Names() []string {
	var names []string
	for _, an := range attributeNames {
		if s.Has(an.attr) {
			names = append(names, an.name)
		}
	}
	return names
}

// String は属性集合をカンマ区切りで返す。
func (s Attribute) String() string {
	return strings.Join(s.Names(), ",")
}

// ParseAttribute は語彙名を属性に変換する。
func ParseAttribute(name string) (Attribute, bool) {
	for _, an := range attributeNames {
		if strings.EqualFold(an.name, strings.TrimSpace(name)) {
			return an.attr, true
		}
	}
	return 0, false
}

// Template は証明書テンプレート（登録ポリシー）の静的定義を表す。
type Template struct {
	Name         string
	Index        int
	Required     Attribute
	KeyUsage     x509.KeyUsage
	ExtKeyUsages []x509.ExtKeyUsage
	ValidityDays int
}

// ProfileIDs はテンプレートに対応する証明書プロファイルとエンドエンティティプロファイルのID。
type ProfileIDs struct {
	CertificateProfileID uint
	EndEntityProfileID   uint
}

// TemplateProfile は解決済みのテンプレートポリシーを表す。
type TemplateProfile struct {
	Template
	ProfileIDs
}

// Requires はテンプレートが属性 a を要求するか判定する。
func (p *TemplateProfile) Requires(a Attribute) bool {
	return p.Required.Has(a)
}

// CertificateProfile はテンプレートから派生した証明書発行ポリシー。
type CertificateProfile struct {
	ID            uint
	TemplateIndex int
	Name          string
	KeyUsage      x509.KeyUsage
	ExtKeyUsages  []x509.ExtKeyUsage
	ValidityDays  int
}

// EndEntityProfile はテンプレートから派生したエンドエンティティポリシー。
type EndEntityProfile struct {
	ID                   uint
	TemplateIndex        int
	Name                 string
	CertificateProfileID uint
	AuthorityID          string
	RequiredFields       Attribute
}

// DefaultTemplates は組み込みのテンプレートカタログを返す。
func DefaultTemplates() []Template {
	return []Template{
		{
			Name:         "User",
			Index:        0,
			Required:     AttrSubjectDNFromDirectory | AttrUPN,
			KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
			ExtKeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageEmailProtection},
			ValidityDays: 365,
		},
		{
			Name:         "Machine",
			Index:        1,
			Required:     AttrCommonName | AttrDNSName,
			KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
			ExtKeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
			ValidityDays: 365,
		},
		{
			Name:         "DomainController",
			Index:        2,
			Required:     AttrCommonName | AttrDirectoryGUID | AttrDNSName,
			KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
			ExtKeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
			ValidityDays: 365,
		},
		{
			Name:         "SmartcardLogon",
			Index:        3,
			Required:     AttrSubjectDNFromDirectory | AttrUPN,
			KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
			ExtKeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
			ValidityDays: 365,
		},
		{
			Name:         "Workstation",
			Index:        4,
			Required:     AttrCommonName | AttrUPN | AttrDNSName,
			KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
			ExtKeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
			ValidityDays: 365,
		},
	}
}
