package usecase

import (
	"context"
	"errors"
	"testing"

	"autoenroll-service/internal/domain"
)

func profileFor(t *testing.T, name string) *domain.TemplateProfile {
	t.Helper()
	for _, tmpl := range domain.DefaultTemplates() {
		if tmpl.Name == name {
			return &domain.TemplateProfile{Template: tmpl}
		}
	}
	t.Fatalf("no template %s", name)
	return nil
}

var alice = domain.Principal{Full: "alice@example.com", Short: "alice"}

func TestSubjectNameBuilder_Build(t *testing.T) {
	tests := []struct {
		name     string
		template string
		alt      domain.AltNames
		wantDN   string
		wantSAN  string
	}{
		{
			name:     "upn and dns without guid",
			template: "Workstation",
			alt:      domain.AltNames{DNSName: "ws01.example.com"},
			wantDN:   "CN=alice",
			wantSAN:  "UPN=alice@example.com,DNSNAME=ws01.example.com",
		},
		{
			name:     "guid and dns",
			template: "DomainController",
			alt:      domain.AltNames{GUID: "0a0b", DNSName: "dc01.example.com"},
			wantDN:   "CN=alice",
			wantSAN:  "GUID=0a0b,DNSNAME=dc01.example.com",
		},
		{
			name:     "dns only",
			template: "Machine",
			alt:      domain.AltNames{GUID: "ignored", DNSName: "ws01.example.com"},
			wantDN:   "CN=alice",
			wantSAN:  "DNSNAME=ws01.example.com",
		},
		{
			name:     "directory subject",
			template: "User",
			wantDN:   "CN=Alice,OU=Staff,DC=example,DC=com",
			wantSAN:  "UPN=alice@example.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := &mockDirectory{dn: "CN=Alice,OU=Staff,DC=example,DC=com"}
			b := NewSubjectNameBuilder(dir)

			names, err := b.Build(context.Background(), profileFor(t, tt.template), alice, &domain.EnrollmentRequest{AltNames: tt.alt})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if names.SubjectDN != tt.wantDN {
				t.Errorf("want subject %q, got %q", tt.wantDN, names.SubjectDN)
			}
			if names.SubjectAltName != tt.wantSAN {
				t.Errorf("want alt name %q, got %q", tt.wantSAN, names.SubjectAltName)
			}
		})
	}
}

func TestSubjectNameBuilder_Build_MissingSlot(t *testing.T) {
	b := NewSubjectNameBuilder(nil)

	_, err := b.Build(context.Background(), profileFor(t, "Workstation"), alice, &domain.EnrollmentRequest{})
	if !errors.Is(err, domain.ErrRequiredAttributeMissing) {
		t.Errorf("want ErrRequiredAttributeMissing, got %v", err)
	}
}

func TestSubjectNameBuilder_Build_DirectoryErrors(t *testing.T) {
	tests := []struct {
		name    string
		dir     Directory
		wantErr error
	}{
		{"no directory configured", nil, domain.ErrDirectoryUnavailable},
		{"not found", &mockDirectory{err: domain.ErrDirectoryEntryNotFound}, domain.ErrDirectoryEntryNotFound},
		{"empty result", &mockDirectory{}, domain.ErrDirectoryEntryNotFound},
		{"connection failure", &mockDirectory{err: errors.New("ldap: connection refused")}, domain.ErrDirectoryUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewSubjectNameBuilder(tt.dir)
			_, err := b.Build(context.Background(), profileFor(t, "User"), alice, &domain.EnrollmentRequest{})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("want %v, got %v", tt.wantErr, err)
			}
		})
	}
}
