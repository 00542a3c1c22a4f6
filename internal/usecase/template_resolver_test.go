package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"

	"autoenroll-service/internal/domain"
)

func TestTemplateResolver_Resolve_CreatesOnce(t *testing.T) {
	store := &mockProfileStore{}
	r := NewTemplateResolver(domain.DefaultTemplates(), store, "ca-1")

	first, err := r.Resolve(context.Background(), "Machine")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := r.Resolve(context.Background(), "Machine")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first.ProfileIDs != second.ProfileIDs {
		t.Errorf("want same profile ids, got %+v and %+v", first.ProfileIDs, second.ProfileIDs)
	}
	if first.Index != 1 {
		t.Errorf("want index 1, got %d", first.Index)
	}
	if store.callCount() != 1 {
		t.Errorf("want 1 store call, got %d", store.callCount())
	}
}

func TestTemplateResolver_Resolve_Concurrent(t *testing.T) {
	store := &mockProfileStore{}
	r := NewTemplateResolver(domain.DefaultTemplates(), store, "ca-1")

	var wg sync.WaitGroup
	results := make([]*domain.TemplateProfile, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := r.Resolve(context.Background(), "DomainController")
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			results[i] = p
		}(i)
	}
	wg.Wait()

	if store.callCount() != 1 {
		t.Errorf("want 1 store call, got %d", store.callCount())
	}
	for i, p := range results {
		if p == nil || p.ProfileIDs != results[0].ProfileIDs {
			t.Errorf("result %d differs: %+v", i, p)
		}
	}
}

func TestTemplateResolver_Resolve_UnknownTemplate(t *testing.T) {
	store := &mockProfileStore{}
	r := NewTemplateResolver(domain.DefaultTemplates(), store, "ca-1")

	_, err := r.Resolve(context.Background(), "WebServer")
	if !errors.Is(err, domain.ErrUnknownTemplate) {
		t.Errorf("want ErrUnknownTemplate, got %v", err)
	}
	if store.callCount() != 0 {
		t.Errorf("want no store call, got %d", store.callCount())
	}
}

func TestTemplateResolver_Resolve_StoreErrorIsNotCached(t *testing.T) {
	store := &mockProfileStore{err: errors.New("deadlock")}
	r := NewTemplateResolver(domain.DefaultTemplates(), store, "ca-1")

	if _, err := r.Resolve(context.Background(), "User"); err == nil {
		t.Fatal("want error")
	}

	store.mu.Lock()
	store.err = nil
	store.mu.Unlock()

	p, err := r.Resolve(context.Background(), "User")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.CertificateProfileID != 10 {
		t.Errorf("want certificate profile 10, got %d", p.CertificateProfileID)
	}
	if store.callCount() != 2 {
		t.Errorf("want 2 store calls, got %d", store.callCount())
	}
}

func TestTemplateResolver_Resolve_CanceledCallerDoesNotAbortCreation(t *testing.T) {
	store := &mockProfileStore{}
	r := NewTemplateResolver(domain.DefaultTemplates(), store, "ca-1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p, err := r.Resolve(ctx, "Workstation")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	store.mu.Lock()
	ctxErr := store.ctxErr
	store.mu.Unlock()
	if ctxErr != nil {
		t.Errorf("want profile creation to run uncanceled, got %v", ctxErr)
	}

	// 後続の要求はキャッシュされた結果を受け取る
	again, err := r.Resolve(context.Background(), "Workstation")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again.ProfileIDs != p.ProfileIDs || store.callCount() != 1 {
		t.Errorf("want cached profile, got %+v after %d calls", again.ProfileIDs, store.callCount())
	}
}
