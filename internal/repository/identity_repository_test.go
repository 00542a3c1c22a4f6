package repository

import (
	"context"
	"errors"
	"testing"

	"autoenroll-service/internal/domain"
)

func newIdentity(username string) *domain.Identity {
	return &domain.Identity{
		Username:             username,
		SubjectDN:            "CN=alice",
		SubjectAltName:       "UPN=alice@example.com",
		AuthorityID:          "ca-1",
		CertificateProfileID: 1,
		EndEntityProfileID:   1,
		Status:               domain.IdentityStatusNew,
		CredentialHash:       []byte("hash-1"),
	}
}

func TestIdentityRepository_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewIdentityRepository(setupTestDB(t))

	identity := newIdentity("Autoenrolled-alice-User")
	if err := repo.Create(ctx, identity); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if identity.ID == "" {
		t.Error("expected generated ID")
	}

	found, err := repo.FindByUsername(ctx, "Autoenrolled-alice-User")
	if err != nil {
		t.Fatalf("FindByUsername failed: %v", err)
	}
	if found.ID != identity.ID {
		t.Errorf("expected id %s, got %s", identity.ID, found.ID)
	}
	if found.SubjectAltName != "UPN=alice@example.com" {
		t.Errorf("unexpected subject alt name: %s", found.SubjectAltName)
	}
	if found.Status != domain.IdentityStatusNew {
		t.Errorf("expected status new, got %s", found.Status)
	}
	if string(found.CredentialHash) != "hash-1" {
		t.Errorf("unexpected credential hash: %s", found.CredentialHash)
	}

	if _, err := repo.FindByUsername(ctx, "Autoenrolled-bob-User"); !errors.Is(err, domain.ErrIdentityNotFound) {
		t.Errorf("expected ErrIdentityNotFound, got %v", err)
	}
}

func TestIdentityRepository_Create_Duplicate(t *testing.T) {
	ctx := context.Background()
	repo := NewIdentityRepository(setupTestDB(t))

	if err := repo.Create(ctx, newIdentity("Autoenrolled-alice-User")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	err := repo.Create(ctx, newIdentity("Autoenrolled-alice-User"))
	if !errors.Is(err, domain.ErrIdentityAlreadyExists) {
		t.Errorf("expected ErrIdentityAlreadyExists, got %v", err)
	}
}

func TestIdentityRepository_Exists(t *testing.T) {
	ctx := context.Background()
	repo := NewIdentityRepository(setupTestDB(t))

	if err := repo.Create(ctx, newIdentity("Autoenrolled-alice-User")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	exists, err := repo.Exists(ctx, "Autoenrolled-alice-User")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !exists {
		t.Error("expected exists=true, got false")
	}

	exists, err = repo.Exists(ctx, "Autoenrolled-alice-Machine")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if exists {
		t.Error("expected exists=false, got true")
	}
}

func TestIdentityRepository_Update_PreservesID(t *testing.T) {
	ctx := context.Background()
	repo := NewIdentityRepository(setupTestDB(t))

	original := newIdentity("Autoenrolled-alice-User")
	if err := repo.Create(ctx, original); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := repo.UpdateStatus(ctx, original.Username, domain.IdentityStatusActive); err != nil {
		t.Fatalf("UpdateStatus failed: %v", err)
	}

	updated := newIdentity("Autoenrolled-alice-User")
	updated.SubjectDN = "CN=Alice Smith,DC=example,DC=com"
	updated.CredentialHash = []byte("hash-2")
	if err := repo.Update(ctx, updated); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.ID != original.ID {
		t.Errorf("expected id %s preserved, got %s", original.ID, updated.ID)
	}

	found, err := repo.FindByUsername(ctx, "Autoenrolled-alice-User")
	if err != nil {
		t.Fatalf("FindByUsername failed: %v", err)
	}
	if found.SubjectDN != "CN=Alice Smith,DC=example,DC=com" {
		t.Errorf("unexpected subject: %s", found.SubjectDN)
	}
	if found.Status != domain.IdentityStatusNew {
		t.Errorf("expected status reset to new, got %s", found.Status)
	}
	if string(found.CredentialHash) != "hash-2" {
		t.Errorf("expected new credential hash, got %s", found.CredentialHash)
	}

	var count int64
	if err := repo.db.Model(&EndEntityModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 end entity, got %d", count)
	}
}

func TestIdentityRepository_NotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewIdentityRepository(setupTestDB(t))

	if err := repo.Update(ctx, newIdentity("nobody")); !errors.Is(err, domain.ErrIdentityNotFound) {
		t.Errorf("Update: expected ErrIdentityNotFound, got %v", err)
	}
	if err := repo.UpdateStatus(ctx, "nobody", domain.IdentityStatusActive); !errors.Is(err, domain.ErrIdentityNotFound) {
		t.Errorf("UpdateStatus: expected ErrIdentityNotFound, got %v", err)
	}
}
