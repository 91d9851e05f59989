package schedule

import "zazen/pkg/migration"

// migrations はスケジュールサービスのスキーマ定義。
// exercise_idのUNIQUE制約が「1エクササイズにつき1スケジュール」の不変条件を守る。
var migrations = []migration.Migration{
	{
		Version: 1,
		Name:    "create_schedules",
		SQL: `
CREATE TABLE IF NOT EXISTS schedules (
    -- スケジュールの一意識別子（UUID）
    id TEXT PRIMARY KEY,
    -- 対象エクササイズのID（弱参照、1件のみ）
    exercise_id TEXT NOT NULL UNIQUE,
    -- 通知時刻。ゼロ埋め済みの "HH:MM" 形式で保存する
    time TEXT NOT NULL,
    -- 通知先のデバイストークン。未登録の場合は空文字
    fcm_token TEXT NOT NULL DEFAULT '',
    -- 作成日時
    created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS schedule_days (
    -- 対象スケジュールのID
    schedule_id TEXT NOT NULL,
    -- 曜日名（正規化済み。例: "Wednesday"）
    day TEXT NOT NULL,
    PRIMARY KEY (schedule_id, day)
);

-- 曜日でのマッチング照会を高速化するインデックス。
CREATE INDEX IF NOT EXISTS idx_schedule_days_day
    ON schedule_days(day);
`,
	},
	{
		Version: 2,
		Name:    "index_schedules_time",
		SQL: `
-- 時刻の等値照会と時刻順ソートを高速化するインデックス。
CREATE INDEX IF NOT EXISTS idx_schedules_time
    ON schedules(time);
`,
	},
}
