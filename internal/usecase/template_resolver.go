package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"autoenroll-service/internal/domain"
)

// ProfileStore はテンプレートごとのプロファイルを取得・作成するインターフェース。
// ResolveOrCreate は同じテンプレートに対して冪等でなければならない。
type ProfileStore interface {
	ResolveOrCreate(ctx context.Context, tmpl domain.Template, authorityID string) (domain.ProfileIDs, error)
}

// TemplateResolver はテンプレート名を解決済みプロファイルに対応付ける。
type TemplateResolver struct {
	templates   map[string]domain.Template
	profiles    ProfileStore
	authorityID string

	mu    sync.RWMutex
	cache map[string]*domain.TemplateProfile
	group singleflight.Group
}

// NewTemplateResolver は新しいTemplateResolverを生成する。
func NewTemplateResolver(templates []domain.Template, profiles ProfileStore, authorityID string) *TemplateResolver {
	m := make(map[string]domain.Template, len(templates))
	for _, t := range templates {
		m[t.Name] = t
	}
	return &TemplateResolver{
		templates:   m,
		profiles:    profiles,
		authorityID: authorityID,
		cache:       make(map[string]*domain.TemplateProfile),
	}
}

// Lookup はテンプレート定義を返す。プロファイルの作成は行わない。
func (r *TemplateResolver) Lookup(name string) (domain.Template, error) {
	tmpl, ok := r.templates[name]
	if !ok {
		return domain.Template{}, fmt.Errorf("%w: %q", domain.ErrUnknownTemplate, name)
	}
	return tmpl, nil
}

// Resolve はテンプレート名を解決する。プロファイルが未作成なら一度だけ作成する。
func (r *TemplateResolver) Resolve(ctx context.Context, name string) (*domain.TemplateProfile, error) {
	tmpl, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	cached, ok := r.cache[name]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	v, err, _ := r.group.Do(name, func() (interface{}, error) {
		r.mu.RLock()
		cached, ok := r.cache[name]
		r.mu.RUnlock()
		if ok {
			return cached, nil
		}

		// 作成結果は待機中の全要求で共有する。呼び出し元の取消には連動させない
		ids, err := r.profiles.ResolveOrCreate(context.WithoutCancel(ctx), tmpl, r.authorityID)
		if err != nil {
			slog.ErrorContext(ctx, "failed to resolve template profiles",
				"operation", "resolve_template",
				"template", name,
				"error", err,
			)
			return nil, fmt.Errorf("resolving profiles for template %q: %w", name, err)
		}

		profile := &domain.TemplateProfile{Template: tmpl, ProfileIDs: ids}
		r.mu.Lock()
		r.cache[name] = profile
		r.mu.Unlock()
		return profile, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.TemplateProfile), nil
}
