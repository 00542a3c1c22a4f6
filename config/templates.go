package config

import (
	"crypto/x509"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"autoenroll-service/internal/domain"
)

// templateFile はテンプレート定義ファイルの形式。
//
//	templates:
//	  - name: Machine
//	    index: 1
//	    required: [COMMON_NAME, DNS_NAME]
//	    key_usage: [digitalSignature, keyEncipherment]
//	    ext_key_usage: [clientAuth, serverAuth]
//	    validity_days: 365
type templateFile struct {
	Templates []templateEntry `yaml:"templates"`
}

type templateEntry struct {
	Name         string   `yaml:"name"`
	Index        *int     `yaml:"index"`
	Required     []string `yaml:"required"`
	KeyUsage     []string `yaml:"key_usage"`
	ExtKeyUsage  []string `yaml:"ext_key_usage"`
	ValidityDays int      `yaml:"validity_days"`
}

var keyUsages = map[string]x509.KeyUsage{
	"digitalsignature":  x509.KeyUsageDigitalSignature,
	"contentcommitment": x509.KeyUsageContentCommitment,
	"keyencipherment":   x509.KeyUsageKeyEncipherment,
	"dataencipherment":  x509.KeyUsageDataEncipherment,
	"keyagreement":      x509.KeyUsageKeyAgreement,
}

var extKeyUsages = map[string]x509.ExtKeyUsage{
	"clientauth":      x509.ExtKeyUsageClientAuth,
	"serverauth":      x509.ExtKeyUsageServerAuth,
	"emailprotection": x509.ExtKeyUsageEmailProtection,
	"codesigning":     x509.ExtKeyUsageCodeSigning,
	"any":             x509.ExtKeyUsageAny,
}

// LoadTemplates はテンプレート一覧を返す。path が空なら組み込み定義を使う。
func LoadTemplates(path string) ([]domain.Template, error) {
	if path == "" {
		return domain.DefaultTemplates(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading templates file: %w", err)
	}
	return ParseTemplates(data)
}

// ParseTemplates はYAMLのテンプレート定義を解析する。
func ParseTemplates(data []byte) ([]domain.Template, error) {
	var f templateFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing templates file: %w", err)
	}
	if len(f.Templates) == 0 {
		return nil, fmt.Errorf("templates file defines no templates")
	}

	names := make(map[string]bool)
	indexes := make(map[int]bool)
	templates := make([]domain.Template, 0, len(f.Templates))
	for _, e := range f.Templates {
		if e.Name == "" || e.Index == nil {
			return nil, fmt.Errorf("template entry needs name and index")
		}
		if names[e.Name] || indexes[*e.Index] {
			return nil, fmt.Errorf("template %q: duplicate name or index %d", e.Name, *e.Index)
		}
		names[e.Name] = true
		indexes[*e.Index] = true

		tmpl := domain.Template{
			Name:         e.Name,
			Index:        *e.Index,
			ValidityDays: e.ValidityDays,
		}
		if tmpl.ValidityDays <= 0 {
			tmpl.ValidityDays = 365
		}
		for _, name := range e.Required {
			attr, ok := domain.ParseAttribute(name)
			if !ok {
				return nil, fmt.Errorf("template %q: unknown attribute %q", e.Name, name)
			}
			tmpl.Required |= attr
		}
		for _, name := range e.KeyUsage {
			ku, ok := keyUsages[strings.ToLower(name)]
			if !ok {
				return nil, fmt.Errorf("template %q: unknown key usage %q", e.Name, name)
			}
			tmpl.KeyUsage |= ku
		}
		for _, name := range e.ExtKeyUsage {
			eku, ok := extKeyUsages[strings.ToLower(name)]
			if !ok {
				return nil, fmt.Errorf("template %q: unknown extended key usage %q", e.Name, name)
			}
			tmpl.ExtKeyUsages = append(tmpl.ExtKeyUsages, eku)
		}
		templates = append(templates, tmpl)
	}
	return templates, nil
}
