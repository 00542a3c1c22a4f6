package config

import (
	"crypto/x509"
	"os"
	"path/filepath"
	"testing"

	"autoenroll-service/internal/domain"
)

func TestLoadTemplates_Default(t *testing.T) {
	templates, err := LoadTemplates("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(templates) != len(domain.DefaultTemplates()) {
		t.Errorf("expected built-in templates, got %d", len(templates))
	}
}

func TestLoadTemplates_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	body := `
templates:
  - name: WebServer
    index: 10
    required: [COMMON_NAME, DNS_NAME]
    key_usage: [digitalSignature, keyEncipherment]
    ext_key_usage: [serverAuth]
    validity_days: 90
  - name: Kiosk
    index: 0
    required: [common_name]
`
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("failed to write templates file: %v", err)
	}

	templates, err := LoadTemplates(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(templates) != 2 {
		t.Fatalf("expected 2 templates, got %d", len(templates))
	}

	web := templates[0]
	if web.Name != "WebServer" || web.Index != 10 || web.ValidityDays != 90 {
		t.Errorf("unexpected template: %+v", web)
	}
	if web.Required != domain.AttrCommonName|domain.AttrDNSName {
		t.Errorf("unexpected required attributes: %s", web.Required)
	}
	if web.KeyUsage != x509.KeyUsageDigitalSignature|x509.KeyUsageKeyEncipherment {
		t.Errorf("unexpected key usage: %d", web.KeyUsage)
	}
	if len(web.ExtKeyUsages) != 1 || web.ExtKeyUsages[0] != x509.ExtKeyUsageServerAuth {
		t.Errorf("unexpected ext key usage: %v", web.ExtKeyUsages)
	}

	kiosk := templates[1]
	if kiosk.Index != 0 || kiosk.ValidityDays != 365 {
		t.Errorf("expected index 0 and default validity, got %+v", kiosk)
	}
}

func TestParseTemplates_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty", "templates: []"},
		{"missing index", "templates:\n  - name: A\n"},
		{"duplicate index", "templates:\n  - {name: A, index: 1}\n  - {name: B, index: 1}\n"},
		{"unknown attribute", "templates:\n  - {name: A, index: 1, required: [FAVOURITE_COLOUR]}\n"},
		{"unknown key usage", "templates:\n  - {name: A, index: 1, key_usage: [certSign]}\n"},
		{"invalid yaml", "templates: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseTemplates([]byte(tt.body)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("AUTOENROLL_ENABLED", "")
	t.Setenv("AUTOENROLL_CA_ID", "")
	t.Setenv("LDAP_TIMEOUT", "")
	t.Setenv("REMOTE_USER_HEADER", "")

	cfg := Load()
	if cfg.AutoenrollEnabled {
		t.Error("expected autoenrollment disabled by default")
	}
	if cfg.AuthorityID != "" {
		t.Errorf("expected empty authority, got %q", cfg.AuthorityID)
	}
	if cfg.RemoteUserHeader != "X-Remote-User" {
		t.Errorf("unexpected remote user header: %s", cfg.RemoteUserHeader)
	}
	if cfg.LDAPTimeout.Seconds() != 10 {
		t.Errorf("unexpected LDAP timeout: %v", cfg.LDAPTimeout)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("AUTOENROLL_ENABLED", "true")
	t.Setenv("AUTOENROLL_CA_ID", "ca-42")
	t.Setenv("OTEL_SAMPLING_RATE", "0.25")
	t.Setenv("DATABASE_DRIVER", "sqlite")

	cfg := Load()
	if !cfg.AutoenrollEnabled || cfg.AuthorityID != "ca-42" {
		t.Errorf("unexpected autoenroll config: %v %q", cfg.AutoenrollEnabled, cfg.AuthorityID)
	}
	if cfg.OtelSamplingRate != 0.25 {
		t.Errorf("unexpected sampling rate: %v", cfg.OtelSamplingRate)
	}
	if cfg.DatabaseDriver != "sqlite" {
		t.Errorf("unexpected driver: %s", cfg.DatabaseDriver)
	}
}
