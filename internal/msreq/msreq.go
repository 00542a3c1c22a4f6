// Package msreq はWindows自動登録クライアントが送るPKCS#10リクエストの解析と、
// Microsoft固有の拡張（テンプレート名、GUID/UPN otherName）のエンコードを提供する。
package msreq

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/text/encoding/unicode"

	"autoenroll-service/internal/domain"
)

var (
	// OIDTemplateName は証明書テンプレート名拡張 (szOID_ENROLL_CERTTYPE_EXTENSION)。
	OIDTemplateName = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 20, 2}
	// OIDUPN はユーザープリンシパル名 otherName。
	OIDUPN = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 20, 2, 3}
	// OIDGUID はディレクトリオブジェクトGUID otherName。
	OIDGUID = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 311, 25, 1}

	oidSubjectAltName = asn1.ObjectIdentifier{2, 5, 29, 17}
)

// ASN.1 universal/context タグ。
const (
	tagUTF8String      = 12
	tagPrintableString = 19
	tagIA5String       = 22
	tagBMPString       = 30

	tagOtherName = 0
	tagDNSName   = 2
)

var utf16be = unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)

// ExtractRequest は外側の封筒からbase64本体を取り出す。
// PEMマーカー行と改行・空白を取り除く。
func ExtractRequest(raw string) string {
	var sb strings.Builder
	for _, line := range strings.Split(strings.ReplaceAll(raw, "\r", ""), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "-----") {
			continue
		}
		sb.WriteString(strings.Join(strings.Fields(line), ""))
	}
	return sb.String()
}

// DecodeBase64 はbase64本体をDERに復号する。
func DecodeBase64(payload string) ([]byte, error) {
	if payload == "" {
		return nil, domain.ErrRequestMissing
	}
	der, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// パディング無しのクライアントもいる
		der, err = base64.RawStdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: decoding base64: %v", domain.ErrRequestMalformed, err)
		}
	}
	return der, nil
}

// Parse はDERエンコードされたPKCS#10を解析する。
func Parse(der []byte) (*domain.EnrollmentRequest, error) {
	csr, err := x509.ParseCertificateRequest(der)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing PKCS#10: %v", domain.ErrRequestMalformed, err)
	}

	req := &domain.EnrollmentRequest{
		Raw: der,
		CSR: csr,
	}
	for _, ext := range csr.Extensions {
		switch {
		case ext.Id.Equal(OIDTemplateName):
			name, err := decodeDirectoryString(ext.Value)
			if err != nil {
				return nil, fmt.Errorf("%w: template name: %v", domain.ErrRequestMalformed, err)
			}
			req.TemplateName = name
		case ext.Id.Equal(oidSubjectAltName):
			alt, err := parseAltNames(ext.Value)
			if err != nil {
				return nil, fmt.Errorf("%w: subject alternative name: %v", domain.ErrRequestMalformed, err)
			}
			req.AltNames = alt
		}
	}
	if req.TemplateName == "" {
		return nil, fmt.Errorf("%w: no certificate template name", domain.ErrRequestMalformed)
	}
	return req, nil
}

func decodeDirectoryString(der []byte) (string, error) {
	var raw asn1.RawValue
	if _, err := asn1.Unmarshal(der, &raw); err != nil {
		return "", err
	}
	switch raw.Tag {
	case tagBMPString:
		b, err := utf16be.NewDecoder().Bytes(raw.Bytes)
		if err != nil {
			return "", err
		}
		return string(b), nil
	case tagUTF8String, tagPrintableString, tagIA5String:
		return string(raw.Bytes), nil
	}
	return "", fmt.Errorf("unsupported string tag %d", raw.Tag)
}

// otherName の Value は [0] EXPLICIT の外側タグごと保持する。
type otherName struct {
	TypeID asn1.ObjectIdentifier
	Value  asn1.RawValue
}

func parseAltNames(der []byte) (domain.AltNames, error) {
	var alt domain.AltNames
	var seq asn1.RawValue
	rest, err := asn1.Unmarshal(der, &seq)
	if err != nil {
		return alt, err
	}
	if len(rest) > 0 {
		return alt, fmt.Errorf("trailing data after GeneralNames")
	}

	rest = seq.Bytes
	for len(rest) > 0 {
		var gn asn1.RawValue
		rest, err = asn1.Unmarshal(rest, &gn)
		if err != nil {
			return alt, err
		}
		if gn.Class != asn1.ClassContextSpecific {
			continue
		}
		switch gn.Tag {
		case tagDNSName:
			if alt.DNSName == "" {
				alt.DNSName = string(gn.Bytes)
			}
		case tagOtherName:
			var on otherName
			if _, err := asn1.UnmarshalWithParams(gn.FullBytes, &on, "tag:0"); err != nil {
				return alt, err
			}
			if on.TypeID.Equal(OIDGUID) && alt.GUID == "" {
				var guid []byte
				if _, err := asn1.Unmarshal(on.Value.Bytes, &guid); err != nil {
					return alt, fmt.Errorf("GUID: %w", err)
				}
				alt.GUID = hex.EncodeToString(guid)
			}
		}
	}
	return alt, nil
}

// AltNameSet は発行証明書のSANに載せる値。
type AltNameSet struct {
	UPN      string
	GUID     string
	DNSNames []string
}

// ParseAltNameString は "UPN=a,GUID=b,DNSNAME=c" 形式のSAN文字列を解析する。
func ParseAltNameString(s string) (AltNameSet, error) {
	var set AltNameSet
	if strings.TrimSpace(s) == "" {
		return set, nil
	}
	for _, part := range strings.Split(s, ",") {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return set, fmt.Errorf("invalid alt name %q", part)
		}
		value = strings.TrimSpace(value)
		switch strings.ToUpper(strings.TrimSpace(key)) {
		case "UPN":
			set.UPN = value
		case "GUID":
			set.GUID = value
		case "DNSNAME":
			set.DNSNames = append(set.DNSNames, value)
		default:
			return set, fmt.Errorf("unsupported alt name %q", key)
		}
	}
	return set, nil
}

// Empty はSANに載せる値が無いか判定する。
func (s AltNameSet) Empty() bool {
	return s.UPN == "" && s.GUID == "" && len(s.DNSNames) == 0
}

// MarshalSubjectAltName はSAN拡張を生成する。UPN/GUIDはotherNameとして符号化する。
func MarshalSubjectAltName(set AltNameSet) (pkix.Extension, error) {
	var names []asn1.RawValue
	if set.UPN != "" {
		value, err := asn1.MarshalWithParams(set.UPN, "utf8")
		if err != nil {
			return pkix.Extension{}, err
		}
		rv, err := marshalOtherName(OIDUPN, value)
		if err != nil {
			return pkix.Extension{}, err
		}
		names = append(names, rv)
	}
	if set.GUID != "" {
		guid, err := hex.DecodeString(strings.ReplaceAll(set.GUID, "-", ""))
		if err != nil {
			return pkix.Extension{}, fmt.Errorf("GUID: %w", err)
		}
		value, err := asn1.Marshal(guid)
		if err != nil {
			return pkix.Extension{}, err
		}
		rv, err := marshalOtherName(OIDGUID, value)
		if err != nil {
			return pkix.Extension{}, err
		}
		names = append(names, rv)
	}
	for _, dns := range set.DNSNames {
		names = append(names, asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: tagDNSName, Bytes: []byte(dns)})
	}

	value, err := asn1.Marshal(names)
	if err != nil {
		return pkix.Extension{}, err
	}
	return pkix.Extension{Id: oidSubjectAltName, Value: value}, nil
}

func marshalOtherName(typeID asn1.ObjectIdentifier, value []byte) (asn1.RawValue, error) {
	der, err := asn1.MarshalWithParams(otherName{
		TypeID: typeID,
		Value:  asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: 0, IsCompound: true, Bytes: value},
	}, "tag:0")
	if err != nil {
		return asn1.RawValue{}, err
	}
	return asn1.RawValue{FullBytes: der}, nil
}

// MarshalTemplateName はテンプレート名拡張をBMPStringで生成する。
func MarshalTemplateName(name string) (pkix.Extension, error) {
	b, err := utf16be.NewEncoder().Bytes([]byte(name))
	if err != nil {
		return pkix.Extension{}, err
	}
	value, err := asn1.Marshal(asn1.RawValue{Class: asn1.ClassUniversal, Tag: tagBMPString, Bytes: b})
	if err != nil {
		return pkix.Extension{}, err
	}
	return pkix.Extension{Id: OIDTemplateName, Value: value}, nil
}
