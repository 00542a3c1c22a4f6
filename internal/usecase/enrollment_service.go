// Package usecase はアプリケーションのユースケースを実装する。
package usecase

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"autoenroll-service/internal/domain"
	"autoenroll-service/internal/msreq"
)

var tracer = otel.Tracer("autoenroll-service/usecase")

// Command は自動登録プロトコルのコマンドを表す。
type Command string

const (
	// CommandRequest は証明書発行コマンド（既定）。
	CommandRequest Command = "request"
	// CommandStatus は更新要否の問い合わせコマンド。
	CommandStatus Command = "status"
)

// ParseCommand はコマンド文字列を解釈する。status 以外はすべて発行として扱う。
func ParseCommand(s string) Command {
	if strings.EqualFold(strings.TrimSpace(s), string(CommandStatus)) {
		return CommandStatus
	}
	return CommandRequest
}

// EnrollmentConfig は自動登録の設定。
type EnrollmentConfig struct {
	Enabled     bool
	AuthorityID string
}

// NameValue は診断用に収集した名前と値の組。
type NameValue struct {
	Name  string
	Value string
}

// DebugEcho は呼び出し元が送ったメタデータの診断用エコー。
type DebugEcho struct {
	Attributes []NameValue
	Parameters []NameValue
	Headers    []NameValue
	RemoteAddr string
}

// Render はエコーを人が読めるテキストにする。
func (d *DebugEcho) Render() string {
	var sb strings.Builder
	writeSection := func(title string, values []NameValue) {
		sb.WriteString(title + ":\n")
		for _, v := range values {
			fmt.Fprintf(&sb, "%s = %s\n", v.Name, v.Value)
		}
		sb.WriteString("\n")
	}
	writeSection("attributes", d.Attributes)
	writeSection("parameters", d.Parameters)
	writeSection("headers", d.Headers)
	fmt.Fprintf(&sb, "Remote address: %s\n", d.RemoteAddr)
	return sb.String()
}

// EnrollInput は自動登録リクエストの入力。
type EnrollInput struct {
	Command   Command
	Principal string
	Payload   string
	Template  string
	Debug     bool
	Echo      *DebugEcho
}

// EnrollOutput は自動登録リクエストの結果。
type EnrollOutput struct {
	Command     Command
	Username    string
	Template    string
	Verdict     domain.StatusVerdict
	Certificate *domain.IssuedCertificate
	// DebugInfo はデバッグモードのときのみ設定される。
	DebugInfo string
}

// EnrollmentService は自動登録リクエストを処理する。
type EnrollmentService struct {
	cfg         EnrollmentConfig
	resolver    *TemplateResolver
	builder     *SubjectNameBuilder
	provisioner *Provisioner
	issuer      *Issuer
	evaluator   *StatusEvaluator
}

// NewEnrollmentService は新しいEnrollmentServiceを生成する。
func NewEnrollmentService(
	cfg EnrollmentConfig,
	resolver *TemplateResolver,
	builder *SubjectNameBuilder,
	provisioner *Provisioner,
	issuer *Issuer,
	evaluator *StatusEvaluator,
) *EnrollmentService {
	return &EnrollmentService{
		cfg:         cfg,
		resolver:    resolver,
		builder:     builder,
		provisioner: provisioner,
		issuer:      issuer,
		evaluator:   evaluator,
	}
}

// Process は前提条件を検査し、コマンドに応じて発行または状態判定を行う。
func (s *EnrollmentService) Process(ctx context.Context, in *EnrollInput) (out *EnrollOutput, err error) {
	ctx, span := tracer.Start(ctx, "EnrollmentService.Process")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if !s.cfg.Enabled {
		return nil, domain.ErrFeatureDisabled
	}
	if s.cfg.AuthorityID == "" {
		return nil, domain.ErrAuthorityNotConfigured
	}

	principal, err := domain.ParsePrincipal(in.Principal)
	if err != nil {
		return nil, err
	}

	payload := msreq.ExtractRequest(in.Payload)
	if payload == "" {
		return nil, domain.ErrRequestMissing
	}
	der, err := msreq.DecodeBase64(payload)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.String("autoenroll.command", string(in.Command)),
		attribute.String("autoenroll.principal", principal.Short),
	)

	var debugInfo strings.Builder
	if in.Debug && in.Echo != nil {
		debugInfo.WriteString(in.Echo.Render())
	}

	if in.Command == CommandStatus {
		return s.status(ctx, principal, in.Template)
	}
	return s.issue(ctx, principal, payload, der, in.Debug, &debugInfo)
}

func (s *EnrollmentService) status(ctx context.Context, principal domain.Principal, template string) (*EnrollOutput, error) {
	if template == "" {
		return nil, domain.ErrTemplateMissing
	}
	username := domain.EnrollmentUsername(principal.Short, template)

	verdict, err := s.evaluator.Evaluate(ctx, username)
	if err != nil {
		slog.ErrorContext(ctx, "could not evaluate renewal status",
			"operation", "status",
			"username", username,
			"error", err,
		)
		return nil, err
	}

	return &EnrollOutput{
		Command:  CommandStatus,
		Username: username,
		Template: template,
		Verdict:  verdict,
	}, nil
}

func (s *EnrollmentService) issue(ctx context.Context, principal domain.Principal, payload string, der []byte, debug bool, debugInfo *strings.Builder) (*EnrollOutput, error) {
	req, err := msreq.Parse(der)
	if err != nil {
		return nil, err
	}

	profile, err := s.resolver.Resolve(ctx, req.TemplateName)
	if err != nil {
		return nil, err
	}

	username := domain.EnrollmentUsername(principal.Short, req.TemplateName)
	slog.InfoContext(ctx, "got autoenroll request",
		"principal", principal.Full,
		"username", username,
		"template", req.TemplateName,
	)

	names, err := s.builder.Build(ctx, profile, principal, req)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "built subject names",
		"username", username,
		"sdn", names.SubjectDN,
		"san", names.SubjectAltName,
	)
	fmt.Fprintf(debugInfo, "\nsdn=%s, san=%s\n", names.SubjectDN, names.SubjectAltName)

	identity, credential, err := s.provisioner.Provision(ctx, domain.ProvisionRequest{
		Username:             username,
		SubjectDN:            names.SubjectDN,
		SubjectAltName:       names.SubjectAltName,
		AuthorityID:          s.cfg.AuthorityID,
		CertificateProfileID: profile.CertificateProfileID,
		EndEntityProfileID:   profile.EndEntityProfileID,
	})
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(debugInfo, "Request: %s\n", payload)
	issued, err := s.issuer.Issue(ctx, identity, credential, req)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(debugInfo, "Resulting cert: %s\n", base64.StdEncoding.EncodeToString(issued.Envelope))

	out := &EnrollOutput{
		Command:     CommandRequest,
		Username:    username,
		Template:    req.TemplateName,
		Certificate: issued,
	}
	if debug {
		out.DebugInfo = debugInfo.String()
		slog.InfoContext(ctx, "autoenroll debug information", "debug", out.DebugInfo)
	}
	return out, nil
}
