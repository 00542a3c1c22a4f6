package usecase

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"autoenroll-service/internal/domain"
)

func newTestProvisioner(store IdentityStore) *Provisioner {
	p := NewProvisioner(store)
	p.bcryptCost = bcrypt.MinCost
	return p
}

var provisionReq = domain.ProvisionRequest{
	Username:             "Autoenrolled-alice-User",
	SubjectDN:            "CN=Alice,DC=example,DC=com",
	SubjectAltName:       "UPN=alice@example.com",
	AuthorityID:          "ca-1",
	CertificateProfileID: 10,
	EndEntityProfileID:   11,
}

func TestProvisioner_Provision_Create(t *testing.T) {
	store := newMockIdentityStore()
	p := newTestProvisioner(store)

	identity, credential, err := p.Provision(context.Background(), provisionReq)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if identity.Status != domain.IdentityStatusNew {
		t.Errorf("want status new, got %s", identity.Status)
	}
	if identity.ID != "id-1" {
		t.Errorf("want id id-1, got %s", identity.ID)
	}
	if len(credential) != credentialLength {
		t.Errorf("want credential length %d, got %d", credentialLength, len(credential))
	}
	for _, c := range credential {
		if !('a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9') {
			t.Errorf("credential contains non-alphanumeric %q", c)
		}
	}
	if err := bcrypt.CompareHashAndPassword(identity.CredentialHash, []byte(credential)); err != nil {
		t.Errorf("credential hash mismatch: %v", err)
	}
	if store.createCalls != 1 || store.updateCalls != 0 {
		t.Errorf("want 1 create and 0 update, got %d and %d", store.createCalls, store.updateCalls)
	}
}

func TestProvisioner_Provision_UpdatesExisting(t *testing.T) {
	store := newMockIdentityStore()
	p := newTestProvisioner(store)

	first, firstCredential, err := p.Provision(context.Background(), provisionReq)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := provisionReq
	req.SubjectDN = "CN=Alice Smith,DC=example,DC=com"
	second, secondCredential, err := p.Provision(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("want id %s preserved, got %s", first.ID, second.ID)
	}
	if second.SubjectDN != req.SubjectDN {
		t.Errorf("want updated subject, got %s", second.SubjectDN)
	}
	if len(store.identities) != 1 {
		t.Errorf("want 1 identity, got %d", len(store.identities))
	}
	if store.createCalls != 1 || store.updateCalls != 1 {
		t.Errorf("want 1 create and 1 update, got %d and %d", store.createCalls, store.updateCalls)
	}
	if bcrypt.CompareHashAndPassword(second.CredentialHash, []byte(secondCredential)) != nil {
		t.Error("want stored hash to match the new credential")
	}
	if firstCredential != secondCredential &&
		bcrypt.CompareHashAndPassword(second.CredentialHash, []byte(firstCredential)) == nil {
		t.Error("previous credential must not remain valid")
	}
}

func TestProvisioner_Provision_Errors(t *testing.T) {
	storeErr := errors.New("lock wait timeout")

	tests := []struct {
		name   string
		setup  func(*mockIdentityStore)
		create int
		update int
	}{
		{"exists fails", func(m *mockIdentityStore) { m.existsErr = storeErr }, 0, 0},
		{"create fails", func(m *mockIdentityStore) { m.createErr = storeErr }, 1, 0},
		{"update fails", func(m *mockIdentityStore) {
			m.identities[provisionReq.Username] = &domain.Identity{ID: "id-9", Username: provisionReq.Username}
			m.updateErr = storeErr
		}, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMockIdentityStore()
			tt.setup(store)
			p := newTestProvisioner(store)

			_, _, err := p.Provision(context.Background(), provisionReq)
			if !errors.Is(err, domain.ErrProvisionFailed) {
				t.Errorf("want ErrProvisionFailed, got %v", err)
			}
			if store.createCalls != tt.create || store.updateCalls != tt.update {
				t.Errorf("want %d create and %d update, got %d and %d", tt.create, tt.update, store.createCalls, store.updateCalls)
			}
		})
	}
}

func TestProvisioner_Provision_CreateRaceFallsBackToUpdate(t *testing.T) {
	store := newMockIdentityStore()
	// 存在確認の後に別の要求が作成した状態
	store.identities[provisionReq.Username] = &domain.Identity{ID: "id-7", Username: provisionReq.Username}
	store.staleExists = true
	p := newTestProvisioner(store)

	identity, credential, err := p.Provision(context.Background(), provisionReq)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if store.createCalls != 1 || store.updateCalls != 1 {
		t.Errorf("want 1 create and 1 update, got %d and %d", store.createCalls, store.updateCalls)
	}
	if identity.ID != "id-7" {
		t.Errorf("want persisted id id-7, got %s", identity.ID)
	}
	if err := bcrypt.CompareHashAndPassword(store.identities[provisionReq.Username].CredentialHash, []byte(credential)); err != nil {
		t.Errorf("want stored credential replaced: %v", err)
	}
}

func TestGenerateCredential_Varies(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		c, err := generateCredential()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		seen[c] = true
	}
	if len(seen) < 2 {
		t.Errorf("want varying credentials, got %d distinct", len(seen))
	}
}
