// Package middleware はHTTPミドルウェアと監査・メトリクス出力を提供する。
package middleware

import (
	"context"
	"log/slog"
	"time"
)

// 監査ログの結果値。
const (
	ResultSuccess = "SUCCESS"
	ResultFailed  = "FAILED"
)

// AuditLog は監査ログの構造体。
type AuditLog struct {
	Operation string `json:"operation"`
	Principal string `json:"principal"`
	Username  string `json:"username,omitempty"`
	Template  string `json:"template,omitempty"`
	Result    string `json:"result"`
	Timestamp string `json:"timestamp"`
}

// WriteAuditLog は自動登録要求の監査ログを出力する。
func WriteAuditLog(ctx context.Context, entry AuditLog) {
	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	level := slog.LevelInfo
	if entry.Result != ResultSuccess {
		level = slog.LevelWarn
	}
	slog.Log(ctx, level, "autoenroll operation completed",
		"operation", entry.Operation,
		"principal", entry.Principal,
		"username", entry.Username,
		"template", entry.Template,
		"result", entry.Result,
		"timestamp", entry.Timestamp,
	)
}
