// Package handler はHTTPハンドラを提供する。
package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"autoenroll-service/internal/domain"
	"autoenroll-service/internal/middleware"
	"autoenroll-service/internal/usecase"
	"autoenroll-service/pkg/httputil"
)

// 応答メッセージ。クライアントは文字列で結果を判別する。
const (
	msgNotAllowed        = "Not allowed."
	msgNoAuthority       = "Configure a proper CA to use with enroll."
	msgNoRequest         = "No request supplied.."
	msgNoTemplate        = "No template supplied.."
	msgUnknownTemplate   = "Unsupported certificate template."
	msgMissingAttributes = "Request does not contain the information required by the template."
	msgDirectory         = "Could not retrieve required information from AD."
	msgGeneric           = "An error has occurred."
)

// Enroller は自動登録要求を処理する。
type Enroller interface {
	Process(ctx context.Context, in *usecase.EnrollInput) (*usecase.EnrollOutput, error)
}

// EnrollHandler は自動登録エンドポイントを提供する。
type EnrollHandler struct {
	service         Enroller
	principalHeader string
	metrics         *middleware.Metrics
}

// NewEnrollHandler は新しいEnrollHandlerを生成する。
// principalHeader はフロントエンドが認証済みユーザーを渡すヘッダ名。
func NewEnrollHandler(service Enroller, principalHeader string, metrics *middleware.Metrics) *EnrollHandler {
	if principalHeader == "" {
		principalHeader = "X-Remote-User"
	}
	return &EnrollHandler{
		service:         service,
		principalHeader: principalHeader,
		metrics:         metrics,
	}
}

// Autoenroll は証明書発行または更新状態の問い合わせを処理する。GETとPOSTの両方を受け付ける。
func (h *EnrollHandler) Autoenroll(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	ctx := r.Context()

	if err := r.ParseForm(); err != nil {
		slog.WarnContext(ctx, "could not parse form", "remote_addr", r.RemoteAddr, "error", err)
		httputil.Text(w, http.StatusBadRequest, msgNoRequest+"\n")
		return
	}

	in := &usecase.EnrollInput{
		Command:   usecase.ParseCommand(r.Form.Get("command")),
		Principal: r.Header.Get(h.principalHeader),
		Payload:   r.Form.Get("request"),
		Template:  r.Form.Get("template"),
		Debug:     strings.EqualFold(r.Form.Get("debug"), "true"),
	}
	if in.Debug {
		in.Echo = debugEcho(r)
	}

	out, err := h.service.Process(ctx, in)
	if in.Debug && !isPreconditionFailure(err) {
		slog.InfoContext(ctx, "autoenroll debug request", "echo", in.Echo.Render())
	}

	audit := middleware.AuditLog{
		Operation: strings.ToUpper(string(in.Command)),
		Principal: in.Principal,
		Template:  in.Template,
		Result:    middleware.ResultSuccess,
	}
	if err != nil {
		status, msg := h.errorResponse(err)
		if errors.Is(err, domain.ErrFeatureDisabled) {
			slog.InfoContext(ctx, "unauthorized access attempt", "remote_addr", r.RemoteAddr)
		}
		audit.Result = middleware.ResultFailed
		middleware.WriteAuditLog(ctx, audit)
		h.metrics.ObserveEnrollment(string(in.Command), audit.Result, started)
		httputil.Text(w, status, msg+"\n")
		return
	}

	audit.Username = out.Username
	audit.Template = out.Template
	middleware.WriteAuditLog(ctx, audit)
	h.metrics.ObserveEnrollment(string(in.Command), audit.Result, started)

	switch {
	case out.Command == usecase.CommandStatus:
		httputil.Text(w, http.StatusOK, string(out.Verdict)+"\n")
	case out.DebugInfo != "":
		httputil.Text(w, http.StatusOK, out.DebugInfo+"\n")
	default:
		httputil.PKCS7(w, out.Certificate.Envelope)
		slog.InfoContext(ctx, "sent certificate to client", "username", out.Username)
	}
}

// errorResponse はエラーをHTTPステータスと応答メッセージに変換する。
// 署名エンジンや永続化の詳細は返さない。
func (h *EnrollHandler) errorResponse(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrFeatureDisabled):
		return http.StatusForbidden, msgNotAllowed
	case errors.Is(err, domain.ErrAuthorityNotConfigured):
		return http.StatusServiceUnavailable, msgNoAuthority
	case errors.Is(err, domain.ErrPrincipalMissing):
		return http.StatusUnauthorized, fmt.Sprintf("%s was not supplied..", h.principalHeader)
	case errors.Is(err, domain.ErrRequestMissing), errors.Is(err, domain.ErrRequestMalformed):
		return http.StatusBadRequest, msgNoRequest
	case errors.Is(err, domain.ErrTemplateMissing):
		return http.StatusBadRequest, msgNoTemplate
	case errors.Is(err, domain.ErrUnknownTemplate):
		return http.StatusBadRequest, msgUnknownTemplate
	case errors.Is(err, domain.ErrRequiredAttributeMissing):
		return http.StatusBadRequest, msgMissingAttributes
	case errors.Is(err, domain.ErrDirectoryEntryNotFound):
		return http.StatusNotFound, msgDirectory
	case errors.Is(err, domain.ErrDirectoryUnavailable):
		return http.StatusBadGateway, msgDirectory
	}
	return http.StatusInternalServerError, msgGeneric
}

// isPreconditionFailure は有効化・CA設定・認証の検査で拒否されたかを判定する。
func isPreconditionFailure(err error) bool {
	return errors.Is(err, domain.ErrFeatureDisabled) ||
		errors.Is(err, domain.ErrAuthorityNotConfigured) ||
		errors.Is(err, domain.ErrPrincipalMissing)
}

// エコーに値を含めないヘッダ
var redactedHeaders = map[string]bool{
	"Authorization":       true,
	"Cookie":              true,
	"Proxy-Authorization": true,
}

const redacted = "[REDACTED]"

// debugEcho は呼び出し元が送ったメタデータを名前順に集める。
func debugEcho(r *http.Request) *usecase.DebugEcho {
	echo := &usecase.DebugEcho{RemoteAddr: r.RemoteAddr}
	if id := chimiddleware.GetReqID(r.Context()); id != "" {
		echo.Attributes = append(echo.Attributes, usecase.NameValue{Name: "request_id", Value: id})
	}
	echo.Parameters = sortedValues(r.Form, nil)
	echo.Headers = sortedValues(r.Header, redactedHeaders)
	return echo
}

func sortedValues(values map[string][]string, redact map[string]bool) []usecase.NameValue {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]usecase.NameValue, 0, len(names))
	for _, name := range names {
		value := strings.Join(values[name], ", ")
		if redact[http.CanonicalHeaderKey(name)] {
			value = redacted
		}
		out = append(out, usecase.NameValue{Name: name, Value: value})
	}
	return out
}
