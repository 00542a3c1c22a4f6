// Package main はAPIサーバーのエントリポイント。
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"autoenroll-service/config"
	"autoenroll-service/internal/handler"
	"autoenroll-service/internal/infra"
	"autoenroll-service/internal/middleware"
	"autoenroll-service/internal/repository"
	"autoenroll-service/internal/usecase"
)

func main() {
	ctx := context.Background()

	// .envファイルを読み込む（存在しない場合は無視）
	// 既存の環境変数は上書きしない
	_ = godotenv.Load()

	// 設定読み込み
	cfg := config.Load()

	// トレーサー初期化（ロガー設定の前に実行）
	tp, err := infra.InitTracer(ctx, cfg)
	if err != nil {
		slog.Error("failed to init tracer", "error", err)
		os.Exit(1)
	}
	if tp != nil {
		defer func() {
			if err := tp.Shutdown(ctx); err != nil {
				slog.Error("failed to shutdown tracer", "error", err)
			}
		}()
	}

	// トレース情報付きロガーを設定
	infra.SetupLogger(cfg)

	templates, err := config.LoadTemplates(cfg.TemplatesFile)
	if err != nil {
		slog.Error("failed to load templates", "error", err)
		os.Exit(1)
	}

	// DB初期化
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is not set")
		os.Exit(1)
	}
	db, err := infra.NewDB(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to init database", "error", err)
		os.Exit(1)
	}

	identities := repository.NewIdentityRepository(db)
	certificates := repository.NewCertificateRepository(db)
	profiles := repository.NewProfileRepository(db)

	// 署名CA（鍵がKMSで封印されていれば開封する）
	// 無効化またはCA未設定の場合、要求は前提条件の検査で拒否される
	var engine usecase.SigningEngine
	if cfg.AutoenrollEnabled && cfg.AuthorityID != "" {
		var decrypter infra.KeyDecrypter
		if cfg.KMSKeyName != "" {
			kmsClient, err := infra.NewKMSClient(ctx, cfg.KMSKeyName)
			if err != nil {
				slog.Error("failed to init KMS client", "error", err)
				os.Exit(1)
			}
			defer func() {
				if closeErr := kmsClient.Close(); closeErr != nil {
					slog.Error("failed to close KMS client", "error", closeErr)
				}
			}()
			decrypter = kmsClient
		}
		caCert, chain, signer, err := infra.LoadCA(ctx, cfg.CACertFile, cfg.CAChainFile, cfg.CAKeyFile, decrypter)
		if err != nil {
			slog.Error("failed to load CA", "error", err)
			os.Exit(1)
		}
		ca, err := infra.NewLocalCA(cfg.AuthorityID, caCert, chain, signer, identities, profiles, certificates)
		if err != nil {
			slog.Error("failed to init signing authority", "error", err)
			os.Exit(1)
		}
		engine = ca
	} else {
		slog.Warn("autoenrollment is disabled or AUTOENROLL_CA_ID is not set; requests will be refused")
	}

	// ディレクトリ未設定時はディレクトリ必須テンプレートのみ失敗する
	var directory usecase.Directory
	if cfg.LDAPURL != "" {
		directory = infra.NewLDAPDirectory(infra.LDAPConfig{
			URL:          cfg.LDAPURL,
			BindDN:       cfg.LDAPBindDN,
			BindPassword: cfg.LDAPBindPassword,
			BaseDN:       cfg.LDAPBaseDN,
			Timeout:      cfg.LDAPTimeout,
		})
	} else {
		slog.Warn("LDAP_URL is not set; templates requiring the directory will fail")
	}

	// DI
	service := usecase.NewEnrollmentService(
		usecase.EnrollmentConfig{Enabled: cfg.AutoenrollEnabled, AuthorityID: cfg.AuthorityID},
		usecase.NewTemplateResolver(templates, profiles, cfg.AuthorityID),
		usecase.NewSubjectNameBuilder(directory),
		usecase.NewProvisioner(identities),
		usecase.NewIssuer(engine),
		usecase.NewStatusEvaluator(identities, certificates),
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := middleware.NewMetrics(registry)

	h := handler.NewEnrollHandler(service, cfg.RemoteUserHeader, metrics)
	router := handler.NewRouter(h, metrics, cfg)

	// サーバー起動
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		<-sigCh

		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("starting server",
		"port", cfg.Port,
		"autoenroll_enabled", cfg.AutoenrollEnabled,
		"authority_id", cfg.AuthorityID,
		"templates", len(templates),
	)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
