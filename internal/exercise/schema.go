package exercise

import (
	"database/sql"
	"fmt"
)

// スキーマ定義。
const schema = `
CREATE TABLE IF NOT EXISTS exercises (
    -- エクササイズの一意識別子（UUID）
    id TEXT PRIMARY KEY,
    -- エクササイズ名
    name TEXT NOT NULL,
    -- 説明文。"•" 区切りの箇条書きを含んでよい
    description TEXT NOT NULL DEFAULT '',
    -- 所要時間（分）
    duration_minutes INTEGER NOT NULL,
    -- 作成日時
    created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);
`

// initSchema はSQLiteデータベースにスキーマを適用する。
func initSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("スキーマの適用に失敗: %w", err)
	}
	return nil
}
