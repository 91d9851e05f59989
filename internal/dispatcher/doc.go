// Package dispatcher は通知ディスパッチャーサービスを提供する。
//
// 毎分のcronジョブで現在の曜日・時刻に一致するスケジュールを
// スケジュールサービスに照会し、一致した各スケジュールのデバイストークンへ
// FCMでプッシュ通知を送信する。送信結果はdeliveriesテーブルに記録する。
//
// 1件の送信失敗は他の送信に影響しない。各送信は個別のタイムアウトと
// レートリミットの下で並行実行される。
//
// また、手動テスト通知用のHTTPエンドポイントを提供する。
package dispatcher
