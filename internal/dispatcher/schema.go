package dispatcher

import "zazen/pkg/migration"

// migrations はディスパッチャーサービスのデータベースマイグレーション。
var migrations = []migration.Migration{
	{
		Version: 1,
		Name:    "create_deliveries",
		SQL: `
		CREATE TABLE IF NOT EXISTS deliveries (
			id TEXT PRIMARY KEY,
			schedule_id TEXT NOT NULL,
			exercise_name TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			message_id TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT (datetime('now'))
		);
		CREATE INDEX IF NOT EXISTS idx_deliveries_created_at ON deliveries(created_at);
		`,
	},
}
