// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション設定を表す。
type Config struct {
	Port           string
	DatabaseDriver string
	DatabaseURL    string
	LogLevel       string

	// 自動登録
	AutoenrollEnabled bool
	AuthorityID       string
	TemplatesFile     string
	RemoteUserHeader  string

	// 署名CA
	CACertFile  string
	CAChainFile string
	CAKeyFile   string
	KMSKeyName  string

	// ディレクトリ
	LDAPURL          string
	LDAPBindDN       string
	LDAPBindPassword string
	LDAPBaseDN       string
	LDAPTimeout      time.Duration

	GoogleCloudProject string
	OtelEnabled        bool
	OtelEndpoint       string
	OtelServiceName    string
	OtelSamplingRate   float64
}

// Load は環境変数から設定を読み込む。
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		DatabaseDriver: getEnv("DATABASE_DRIVER", "mysql"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		LogLevel:       getEnv("LOG_LEVEL", "INFO"),

		AutoenrollEnabled: getBool("AUTOENROLL_ENABLED", false),
		AuthorityID:       os.Getenv("AUTOENROLL_CA_ID"),
		TemplatesFile:     os.Getenv("TEMPLATES_FILE"),
		RemoteUserHeader:  getEnv("REMOTE_USER_HEADER", "X-Remote-User"),

		CACertFile:  os.Getenv("CA_CERT_FILE"),
		CAChainFile: os.Getenv("CA_CHAIN_FILE"),
		CAKeyFile:   os.Getenv("CA_KEY_FILE"),
		KMSKeyName:  os.Getenv("KMS_KEY_NAME"),

		LDAPURL:          os.Getenv("LDAP_URL"),
		LDAPBindDN:       os.Getenv("LDAP_BIND_DN"),
		LDAPBindPassword: os.Getenv("LDAP_BIND_PASSWORD"),
		LDAPBaseDN:       os.Getenv("LDAP_BASE_DN"),
		LDAPTimeout:      getDuration("LDAP_TIMEOUT", 10*time.Second),

		GoogleCloudProject: os.Getenv("GOOGLE_CLOUD_PROJECT"),
		OtelEnabled:        getBool("OTEL_ENABLED", false),
		OtelEndpoint:       getEnv("OTEL_ENDPOINT", "localhost:4317"),
		OtelServiceName:    getEnv("OTEL_SERVICE_NAME", "autoenroll-service"),
		OtelSamplingRate:   getFloat("OTEL_SAMPLING_RATE", 1.0),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getBool(key string, defaultVal bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultVal
	}
	return b
}

func getFloat(key string, defaultVal float64) float64 {
	f, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return defaultVal
	}
	return d
}
