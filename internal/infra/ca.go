package infra

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/smallstep/pkcs7"
	"golang.org/x/crypto/bcrypt"

	"autoenroll-service/internal/domain"
	"autoenroll-service/internal/msreq"
)

// IdentityRecords はCAが参照・更新するエンドエンティティストア。
type IdentityRecords interface {
	FindByUsername(ctx context.Context, username string) (*domain.Identity, error)
	UpdateStatus(ctx context.Context, username string, status domain.IdentityStatus) error
}

// ProfileRecords はCAが参照するプロファイルストア。
type ProfileRecords interface {
	FindCertificateProfile(ctx context.Context, id uint) (*domain.CertificateProfile, error)
	FindEndEntityProfile(ctx context.Context, id uint) (*domain.EndEntityProfile, error)
}

// CertificateRecords は発行済み証明書の保存先。
type CertificateRecords interface {
	Create(ctx context.Context, cert *domain.StoredCertificate) error
	FindBySerialNumber(ctx context.Context, serial string) (*domain.StoredCertificate, error)
}

// KeyDecrypter は封印されたCA秘密鍵を開封する。
type KeyDecrypter interface {
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

var serialLimit = new(big.Int).Lsh(big.NewInt(1), 128)

// LocalCA はプロセス内で証明書に署名する署名エンジン。
type LocalCA struct {
	authorityID string
	cert        *x509.Certificate
	chain       []*x509.Certificate
	signer      crypto.Signer

	identities IdentityRecords
	profiles   ProfileRecords
	certs      CertificateRecords
	now        func() time.Time
}

// NewLocalCA は新しいLocalCAを生成する。signer はCA証明書の公開鍵と対でなければならない。
func NewLocalCA(authorityID string, cert *x509.Certificate, chain []*x509.Certificate, signer crypto.Signer,
	identities IdentityRecords, profiles ProfileRecords, certs CertificateRecords) (*LocalCA, error) {
	if authorityID == "" {
		return nil, domain.ErrAuthorityNotConfigured
	}
	if !publicKeysEqual(cert.PublicKey, signer.Public()) {
		return nil, fmt.Errorf("CA private key does not match certificate %s", cert.Subject)
	}
	return &LocalCA{
		authorityID: authorityID,
		cert:        cert,
		chain:       chain,
		signer:      signer,
		identities:  identities,
		profiles:    profiles,
		certs:       certs,
		now:         time.Now,
	}, nil
}

func publicKeysEqual(a, b crypto.PublicKey) bool {
	k, ok := a.(interface{ Equal(crypto.PublicKey) bool })
	return ok && k.Equal(b)
}

// Sign は一時認証情報を検証し、エンドエンティティの名前とプロファイルで証明書を発行する。
func (ca *LocalCA) Sign(ctx context.Context, req *domain.SignRequest) ([]byte, error) {
	identity, err := ca.identities.FindByUsername(ctx, req.Username)
	if err != nil {
		return nil, fmt.Errorf("loading end entity %s: %w", req.Username, err)
	}
	if identity.Status != domain.IdentityStatusNew {
		return nil, fmt.Errorf("end entity %s is %s: %w", req.Username, identity.Status, domain.ErrCredentialMismatch)
	}
	if err := bcrypt.CompareHashAndPassword(identity.CredentialHash, []byte(req.Credential)); err != nil {
		return nil, fmt.Errorf("end entity %s: %w", req.Username, domain.ErrCredentialMismatch)
	}
	if identity.AuthorityID != ca.authorityID {
		return nil, fmt.Errorf("end entity %s belongs to authority %q, not %q", req.Username, identity.AuthorityID, ca.authorityID)
	}
	if req.CSR == nil {
		return nil, fmt.Errorf("no certificate request: %w", domain.ErrRequestMalformed)
	}
	if err := req.CSR.CheckSignature(); err != nil {
		return nil, fmt.Errorf("certificate request signature: %w", err)
	}

	ee, err := ca.profiles.FindEndEntityProfile(ctx, identity.EndEntityProfileID)
	if err != nil {
		return nil, fmt.Errorf("loading end entity profile %d: %w", identity.EndEntityProfileID, err)
	}
	if ee.CertificateProfileID != identity.CertificateProfileID || ee.AuthorityID != ca.authorityID {
		return nil, fmt.Errorf("end entity profile %d does not allow certificate profile %d from authority %q",
			ee.ID, identity.CertificateProfileID, ca.authorityID)
	}
	profile, err := ca.profiles.FindCertificateProfile(ctx, identity.CertificateProfileID)
	if err != nil {
		return nil, fmt.Errorf("loading certificate profile %d: %w", identity.CertificateProfileID, err)
	}

	tmpl, err := ca.template(identity, profile)
	if err != nil {
		return nil, err
	}
	// 署名前にシリアルの重複を確認する
	existing, err := ca.certs.FindBySerialNumber(ctx, tmpl.SerialNumber.Text(16))
	if err != nil {
		return nil, fmt.Errorf("checking serial number: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("serial number %s already issued", existing.SerialNumber)
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, ca.cert, req.CSR.PublicKey, ca.signer)
	if err != nil {
		return nil, fmt.Errorf("signing certificate: %w", err)
	}

	sum := sha256.Sum256(der)
	stored := &domain.StoredCertificate{
		Username:          identity.Username,
		SerialNumber:      tmpl.SerialNumber.Text(16),
		FingerprintSHA256: hex.EncodeToString(sum[:]),
		NotBefore:         tmpl.NotBefore,
		NotAfter:          tmpl.NotAfter,
		DER:               der,
	}
	if err := ca.certs.Create(ctx, stored); err != nil {
		return nil, fmt.Errorf("storing certificate: %w", err)
	}
	if err := ca.identities.UpdateStatus(ctx, identity.Username, domain.IdentityStatusActive); err != nil {
		// 証明書は発行済みのため処理は続行する
		slog.WarnContext(ctx, "could not mark end entity active",
			"operation", "sign",
			"username", identity.Username,
			"error", err,
		)
	}

	slog.InfoContext(ctx, "issued certificate",
		"username", identity.Username,
		"serial_number", stored.SerialNumber,
		"not_after", stored.NotAfter,
		"certificate_profile", profile.Name,
	)
	return der, nil
}

func (ca *LocalCA) template(identity *domain.Identity, profile *domain.CertificateProfile) (*x509.Certificate, error) {
	serial, err := rand.Int(rand.Reader, serialLimit)
	if err != nil {
		return nil, fmt.Errorf("generating serial number: %w", err)
	}

	subject, err := parseDN(identity.SubjectDN)
	if err != nil {
		return nil, fmt.Errorf("subject %q: %w", identity.SubjectDN, err)
	}
	rawSubject, err := asn1.Marshal(subject)
	if err != nil {
		return nil, fmt.Errorf("encoding subject: %w", err)
	}

	now := ca.now()
	notAfter := now.AddDate(0, 0, profile.ValidityDays)
	if notAfter.After(ca.cert.NotAfter) {
		notAfter = ca.cert.NotAfter
	}

	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		RawSubject:            rawSubject,
		NotBefore:             now.Add(-5 * time.Minute),
		NotAfter:              notAfter,
		KeyUsage:              profile.KeyUsage,
		ExtKeyUsage:           profile.ExtKeyUsages,
		BasicConstraintsValid: true,
	}

	alt, err := msreq.ParseAltNameString(identity.SubjectAltName)
	if err != nil {
		return nil, err
	}
	if !alt.Empty() {
		ext, err := msreq.MarshalSubjectAltName(alt)
		if err != nil {
			return nil, fmt.Errorf("encoding subject alternative name: %w", err)
		}
		// 主体名が空ならSANは必須扱い
		ext.Critical = len(subject) == 0
		tmpl.ExtraExtensions = append(tmpl.ExtraExtensions, ext)
	}
	return tmpl, nil
}

// Envelope は証明書と発行チェーンを証明書のみのPKCS#7にする。
func (ca *LocalCA) Envelope(ctx context.Context, cert *x509.Certificate) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(cert.Raw)
	buf.Write(ca.cert.Raw)
	for _, c := range ca.chain {
		buf.Write(c.Raw)
	}
	return pkcs7.DegenerateCertificate(buf.Bytes())
}

var dnAttributeTypes = map[string]asn1.ObjectIdentifier{
	"CN":           {2, 5, 4, 3},
	"SN":           {2, 5, 4, 4},
	"SERIALNUMBER": {2, 5, 4, 5},
	"C":            {2, 5, 4, 6},
	"L":            {2, 5, 4, 7},
	"ST":           {2, 5, 4, 8},
	"S":            {2, 5, 4, 8},
	"STREET":       {2, 5, 4, 9},
	"O":            {2, 5, 4, 10},
	"OU":           {2, 5, 4, 11},
	"T":            {2, 5, 4, 12},
	"TITLE":        {2, 5, 4, 12},
	"GIVENNAME":    {2, 5, 4, 42},
	"UID":          {0, 9, 2342, 19200300, 100, 1, 1},
	"DC":           {0, 9, 2342, 19200300, 100, 1, 25},
	"E":            {1, 2, 840, 113549, 1, 9, 1},
	"EMAILADDRESS": {1, 2, 840, 113549, 1, 9, 1},
}

// parseDN はLDAP形式の識別名をX.509のRDN列に変換する。
// LDAPは末尾が上位なので順序を反転する。
func parseDN(dn string) (pkix.RDNSequence, error) {
	if strings.TrimSpace(dn) == "" {
		return pkix.RDNSequence{}, nil
	}
	parsed, err := ldap.ParseDN(dn)
	if err != nil {
		return nil, err
	}

	seq := make(pkix.RDNSequence, 0, len(parsed.RDNs))
	for i := len(parsed.RDNs) - 1; i >= 0; i-- {
		var set pkix.RelativeDistinguishedNameSET
		for _, atv := range parsed.RDNs[i].Attributes {
			oid, ok := dnAttributeTypes[strings.ToUpper(atv.Type)]
			if !ok {
				return nil, fmt.Errorf("unsupported attribute type %q", atv.Type)
			}
			set = append(set, pkix.AttributeTypeAndValue{Type: oid, Value: atv.Value})
		}
		seq = append(seq, set)
	}
	return seq, nil
}

// LoadCA はCA証明書・中間チェーン・秘密鍵を読み込む。
// decrypter が指定されていれば鍵ファイルはKMSで封印されたPEMとして扱う。
func LoadCA(ctx context.Context, certFile, chainFile, keyFile string, decrypter KeyDecrypter) (*x509.Certificate, []*x509.Certificate, crypto.Signer, error) {
	certPEM, err := os.ReadFile(certFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("reading CA certificate: %w", err)
	}
	certs, err := parseCertificates(certPEM)
	if err != nil || len(certs) == 0 {
		return nil, nil, nil, fmt.Errorf("parsing CA certificate %s: %v", certFile, err)
	}

	var chain []*x509.Certificate
	if chainFile != "" {
		chainPEM, err := os.ReadFile(chainFile)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("reading CA chain: %w", err)
		}
		if chain, err = parseCertificates(chainPEM); err != nil {
			return nil, nil, nil, fmt.Errorf("parsing CA chain %s: %w", chainFile, err)
		}
	}

	keyData, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("reading CA key: %w", err)
	}
	if decrypter != nil {
		if keyData, err = decrypter.Decrypt(ctx, keyData); err != nil {
			return nil, nil, nil, fmt.Errorf("unsealing CA key: %w", err)
		}
	}
	signer, err := ParsePrivateKey(keyData)
	if err != nil {
		return nil, nil, nil, err
	}
	return certs[0], append(certs[1:], chain...), signer, nil
}

func parseCertificates(data []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, err
		}
		certs = append(certs, cert)
	}
	return certs, nil
}

// ParsePrivateKey はPEM形式の秘密鍵（PKCS#8/PKCS#1/SEC1）を読み込む。
func ParsePrivateKey(data []byte) (crypto.Signer, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM private key found")
	}

	var (
		key any
		err error
	)
	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		key, err = x509.ParseECPrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	default:
		return nil, fmt.Errorf("unsupported PEM block %q", block.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("unsupported private key type %T", key)
	}
	return signer, nil
}
