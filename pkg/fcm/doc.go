// Package fcm はFirebase Cloud Messagingへのプッシュ通知送信クライアントを提供する。
//
// ディスパッチャーサービスがスケジュールに紐づくデバイストークンへ
// リマインダー通知を配信する際に使用する。トークンの無効・失効は
// ErrInvalidTokenとして他の送信エラーと区別される。
package fcm
