package domain

import "errors"

var (
	// ErrFeatureDisabled は自動登録が設定で無効化されている場合のエラー。
	ErrFeatureDisabled = errors.New("autoenrollment is disabled")

	// ErrAuthorityNotConfigured は発行元CAが設定されていない場合のエラー。
	ErrAuthorityNotConfigured = errors.New("signing authority is not configured")

	// ErrPrincipalMissing は認証済みプリンシパルヘッダが無い場合のエラー。
	ErrPrincipalMissing = errors.New("authenticated principal is missing")

	// ErrRequestMissing はリクエストペイロードが無い場合のエラー。
	ErrRequestMissing = errors.New("request payload is missing")

	// ErrRequestMalformed はリクエストペイロードを復号・解析できない場合のエラー。
	ErrRequestMalformed = errors.New("request payload is malformed")

	// ErrTemplateMissing はstatusコマンドでテンプレート名が無い場合のエラー。
	ErrTemplateMissing = errors.New("template name is missing")

	// ErrUnknownTemplate は未知のテンプレート名が指定された場合のエラー。
	ErrUnknownTemplate = errors.New("unknown certificate template")

	// ErrRequiredAttributeMissing はテンプレートの必須属性をリクエストが満たさない場合のエラー。
	ErrRequiredAttributeMissing = errors.New("required attribute is missing from request")

	// ErrDirectoryEntryNotFound はディレクトリにプリンシパルが存在しない場合のエラー。
	ErrDirectoryEntryNotFound = errors.New("directory entry not found")

	// ErrDirectoryUnavailable はディレクトリ参照に失敗した場合のエラー。
	ErrDirectoryUnavailable = errors.New("directory is unavailable")

	// ErrProvisionFailed はエンドエンティティの作成・更新に失敗した場合のエラー。
	ErrProvisionFailed = errors.New("could not provision end entity")

	// ErrIssuanceFailed は証明書発行に失敗した場合のエラー。
	ErrIssuanceFailed = errors.New("certificate issuance failed")

	// ErrIdentityNotFound はエンドエンティティが存在しない場合のエラー。
	ErrIdentityNotFound = errors.New("end entity not found")

	// ErrIdentityAlreadyExists は同名のエンドエンティティが既に存在する場合のエラー。
	ErrIdentityAlreadyExists = errors.New("end entity already exists")

	// ErrCredentialMismatch はワンタイム認証情報が一致しない場合のエラー。
	ErrCredentialMismatch = errors.New("one-time credential mismatch")

	// ErrProfileNotFound は証明書プロファイルが存在しない場合のエラー。
	ErrProfileNotFound = errors.New("certificate profile not found")

	// ErrCertificateExpired は証明書が期限切れの場合のエラー。
	ErrCertificateExpired = errors.New("certificate has expired")

	// ErrCertificateNotYetValid は証明書の有効期間が始まっていない場合のエラー。
	ErrCertificateNotYetValid = errors.New("certificate is not yet valid")

	// ErrMigrationFailed はマイグレーション実行時のエラー。
	ErrMigrationFailed = errors.New("migration failed")

	// ErrMigrationFileNotFound はマイグレーションファイルが見つからない場合のエラー。
	ErrMigrationFileNotFound = errors.New("migration file not found")

	// ErrInvalidMigrationFile はマイグレーションファイルのフォーマットが不正な場合のエラー。
	ErrInvalidMigrationFile = errors.New("invalid migration file")
)
