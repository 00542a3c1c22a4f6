package infra

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/go-ldap/ldap/v3"

	"autoenroll-service/internal/domain"
)

// ldapSearcher は*ldap.Connのうち使用する操作。
type ldapSearcher interface {
	Bind(username, password string) error
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
}

type ldapDialFunc func(ctx context.Context) (ldapSearcher, func(), error)

// LDAPConfig はディレクトリ接続の設定。
type LDAPConfig struct {
	URL          string
	BindDN       string
	BindPassword string
	BaseDN       string
	Timeout      time.Duration
}

// LDAPDirectory はActive Directoryからユーザーの識別名を引く。
type LDAPDirectory struct {
	cfg  LDAPConfig
	dial ldapDialFunc
}

// NewLDAPDirectory は新しいLDAPDirectoryを生成する。接続は検索ごとに張る。
func NewLDAPDirectory(cfg LDAPConfig) *LDAPDirectory {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	d := &LDAPDirectory{cfg: cfg}
	d.dial = d.dialURL
	return d
}

func (d *LDAPDirectory) dialURL(ctx context.Context) (ldapSearcher, func(), error) {
	conn, err := ldap.DialURL(d.cfg.URL, ldap.DialWithDialer(&net.Dialer{Timeout: d.cfg.Timeout}))
	if err != nil {
		return nil, nil, err
	}
	conn.SetTimeout(d.cfg.Timeout)
	return conn, func() { conn.Close() }, nil
}

// accountFilter は sAMAccountName 検索フィルタを組み立てる。
func accountFilter(shortName string) string {
	return fmt.Sprintf("(&(objectCategory=person)(objectClass=user)(sAMAccountName=%s))", ldap.EscapeFilter(shortName))
}

// LookupDN は短縮名に一致するアカウントの識別名を返す。
// 該当なしは domain.ErrDirectoryEntryNotFound。
func (d *LDAPDirectory) LookupDN(ctx context.Context, shortName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	conn, closeConn, err := d.dial(ctx)
	if err != nil {
		return "", fmt.Errorf("connecting to directory: %w", err)
	}
	defer closeConn()

	if d.cfg.BindDN != "" {
		if err := conn.Bind(d.cfg.BindDN, d.cfg.BindPassword); err != nil {
			return "", fmt.Errorf("binding to directory: %w", err)
		}
	}

	req := ldap.NewSearchRequest(
		d.cfg.BaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		2,
		int(d.cfg.Timeout/time.Second),
		false,
		accountFilter(shortName),
		[]string{"distinguishedName"},
		nil,
	)
	result, err := conn.Search(req)
	if err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
			return "", domain.ErrDirectoryEntryNotFound
		}
		return "", fmt.Errorf("searching directory: %w", err)
	}

	switch len(result.Entries) {
	case 0:
		return "", domain.ErrDirectoryEntryNotFound
	case 1:
		return result.Entries[0].DN, nil
	}
	return "", fmt.Errorf("searching directory: %d entries match %q", len(result.Entries), shortName)
}
