// Package httputil はHTTPレスポンス生成のユーティリティを提供する。
package httputil

import (
	"encoding/json"
	"encoding/pem"
	"log/slog"
	"net/http"
)

// PKCS#7エンベロープの枠。
const (
	PKCS7Header = "-----BEGIN PKCS7-----"
	PKCS7Footer = "-----END PKCS7-----"
)

// JSON はJSONレスポンスを返す。
func JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// ヘッダーは既に送信済みのため、エラーログのみ出力
			slog.Error("failed to encode response", "error", err)
		}
	}
}

// Text はプレーンテキストのレスポンスを返す。
func Text(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(body)); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

// FormatPKCS7 はDERのPKCS#7を64桁で折り返したBase64にし、PEM風の枠で囲む。
func FormatPKCS7(der []byte) string {
	return string(pem.EncodeToMemory(&pem.Block{Type: "PKCS7", Bytes: der}))
}

// PKCS7 は枠付きのPKCS#7エンベロープを返す。
func PKCS7(w http.ResponseWriter, der []byte) {
	Text(w, http.StatusOK, FormatPKCS7(der))
}
