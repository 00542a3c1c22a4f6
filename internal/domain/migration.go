package domain

import "time"

// MigrationStatus はスキーマ変更の適用状態を表す
type MigrationStatus string

const (
	MigrationStatusPending MigrationStatus = "pending"
	MigrationStatusApplied MigrationStatus = "applied"
	// MigrationStatusModified は適用後にファイル内容が変わったことを表す
	MigrationStatusModified MigrationStatus = "modified"
)

// Migration はエンドエンティティ・証明書ストアのスキーマ変更を表す
type Migration struct {
	Version   string     // バージョン（例: "001"）
	Name      string     // ファイル名から抽出した名前
	Path      string     // 埋め込みFS上のパス
	Checksum  string     // SQL本文のSHA-256
	AppliedAt *time.Time // 未適用の場合はnil
	Status    MigrationStatus
}
