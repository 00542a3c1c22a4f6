package domain

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestParsePrincipal(t *testing.T) {
	tests := []struct {
		header    string
		wantShort string
		wantErr   bool
	}{
		{"alice@example.com", "alice", false},
		{"  bob@EXAMPLE.COM ", "bob", false},
		{"ws01$@example.com", "ws01", false},
		{"svc/web;01@example.com", "svcweb01", false},
		{"", "", true},
		{"(null)", "", true},
		{"alice", "", true},
		{"@example.com", "", true},
		{"$~@example.com", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			p, err := ParsePrincipal(tt.header)
			if tt.wantErr {
				if !errors.Is(err, ErrPrincipalMissing) {
					t.Errorf("want ErrPrincipalMissing, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.Short != tt.wantShort {
				t.Errorf("want short %q, got %q", tt.wantShort, p.Short)
			}
			if p.Full != strings.TrimSpace(tt.header) {
				t.Errorf("want full %q, got %q", strings.TrimSpace(tt.header), p.Full)
			}
		})
	}
}

func TestEnrollmentUsername(t *testing.T) {
	if got := EnrollmentUsername("alice", "User"); got != "Autoenrolled-alice-User" {
		t.Errorf("want Autoenrolled-alice-User, got %s", got)
	}
}

func TestStoredCertificate_CheckValidity(t *testing.T) {
	notBefore := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	notAfter := notBefore.AddDate(1, 0, 0)
	cert := &StoredCertificate{NotBefore: notBefore, NotAfter: notAfter}

	tests := []struct {
		name string
		at   time.Time
		want error
	}{
		{"before", notBefore.Add(-time.Second), ErrCertificateNotYetValid},
		{"at not before", notBefore, nil},
		{"inside", notBefore.AddDate(0, 6, 0), nil},
		{"at not after", notAfter, nil},
		{"after", notAfter.Add(time.Second), ErrCertificateExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := cert.CheckValidity(tt.at); err != tt.want {
				t.Errorf("want %v, got %v", tt.want, err)
			}
		})
	}
}
