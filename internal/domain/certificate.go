package domain

import (
	"crypto/x509"
	"time"
)

// StatusVerdict は更新要否の判定結果を表す。
type StatusVerdict string

const (
	VerdictOK             StatusVerdict = "OK"
	VerdictExpiring       StatusVerdict = "EXPIRING"
	VerdictExpired        StatusVerdict = "EXPIRED"
	VerdictError          StatusVerdict = "ERROR"
	VerdictNoSuchUser     StatusVerdict = "NO_SUCH_USER"
	VerdictNoCertificates StatusVerdict = "NO_CERTIFICATES"
)

// StoredCertificate は証明書ストアに保存された発行済み証明書を表す。
type StoredCertificate struct {
	ID                string
	Username          string
	SerialNumber      string
	FingerprintSHA256 string
	NotBefore         time.Time
	NotAfter          time.Time
	DER               []byte
	CreatedAt         time.Time
}

// CheckValidity は時刻 t において証明書が有効か検査する。
// 期限切れなら ErrCertificateExpired、有効期間開始前なら ErrCertificateNotYetValid を返す。
func (c *StoredCertificate) CheckValidity(t time.Time) error {
	if t.After(c.NotAfter) {
		return ErrCertificateExpired
	}
	if t.Before(c.NotBefore) {
		return ErrCertificateNotYetValid
	}
	return nil
}

// IssuedCertificate は発行された証明書とPKCS#7エンベロープ。
type IssuedCertificate struct {
	Certificate *x509.Certificate
	DER         []byte
	Envelope    []byte
}

// AltNames はリクエストに埋め込まれた代替名。
// ワイヤ上は位置固定（スロット0=GUID、スロット1=DNS名）。
type AltNames struct {
	GUID    string
	DNSName string
}

// Slot は位置固定の代替名スロットを返す。
func (a AltNames) Slot(i int) string {
	switch i {
	case 0:
		return a.GUID
	case 1:
		return a.DNSName
	}
	return ""
}

// EnrollmentRequest は解析済みの証明書リクエスト。解析後は変更しない。
type EnrollmentRequest struct {
	TemplateName string
	AltNames     AltNames
	Raw          []byte
	CSR          *x509.CertificateRequest
}

// SignRequest は署名エンジンに渡す発行要求。
type SignRequest struct {
	Username   string
	Credential string
	CSR        *x509.CertificateRequest
}

// Bind はユーザー名とワンタイム認証情報を結び付けた署名要求を生成する。
func (r *EnrollmentRequest) Bind(username, credential string) *SignRequest {
	return &SignRequest{
		Username:   username,
		Credential: credential,
		CSR:        r.CSR,
	}
}
