package usecase

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"autoenroll-service/internal/domain"
)

func TestIssuer_Issue_Success(t *testing.T) {
	der := newTestCertificate(t)
	engine := &mockSigningEngine{der: der}
	issuer := NewIssuer(engine)

	identity := &domain.Identity{Username: "Autoenrolled-alice-User"}
	issued, err := issuer.Issue(context.Background(), identity, "s3cret12", &domain.EnrollmentRequest{TemplateName: "User"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !bytes.Equal(issued.DER, der) {
		t.Error("want DER returned by signing engine")
	}
	if issued.Certificate.Subject.CommonName != "alice" {
		t.Errorf("want decoded certificate, got subject %s", issued.Certificate.Subject)
	}
	if !bytes.HasPrefix(issued.Envelope, []byte("envelope:")) {
		t.Error("want envelope from signing engine")
	}
	if engine.lastReq.Username != identity.Username || engine.lastReq.Credential != "s3cret12" {
		t.Errorf("want username and credential bound to request, got %+v", engine.lastReq)
	}
}

func TestIssuer_Issue_Failures(t *testing.T) {
	tests := []struct {
		name          string
		engine        *mockSigningEngine
		wantEnvelopes int
	}{
		{"sign rejected", &mockSigningEngine{signErr: errors.New("end entity profile 11 does not allow key usage")}, 0},
		{"malformed response", &mockSigningEngine{der: []byte("not a certificate")}, 0},
		{"envelope failure", &mockSigningEngine{der: newTestCertificate(t), envelopeErr: errors.New("chain missing")}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issuer := NewIssuer(tt.engine)

			_, err := issuer.Issue(context.Background(), &domain.Identity{Username: "u"}, "c", &domain.EnrollmentRequest{})
			if err != domain.ErrIssuanceFailed {
				t.Errorf("want bare ErrIssuanceFailed, got %v", err)
			}
			if tt.engine.envelopeCalls != tt.wantEnvelopes {
				t.Errorf("want %d envelope calls, got %d", tt.wantEnvelopes, tt.engine.envelopeCalls)
			}
		})
	}
}
