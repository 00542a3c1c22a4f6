// Package migrations はエンドエンティティ・証明書ストアのスキーマ定義を埋め込む。
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
)

//go:embed mysql/*.sql sqlite/*.sql
var files embed.FS

// ForDriver はドライバ名に対応するSQLファイル群を返す。
func ForDriver(driver string) (fs.FS, error) {
	switch driver {
	case "mysql", "sqlite":
		return fs.Sub(files, driver)
	}
	return nil, fmt.Errorf("no migrations for driver %q", driver)
}
