// Package schedule はスケジュールサービスの内部実装を提供する。
//
// エクササイズごとの曜日・時刻のリマインダー設定とデバイストークンを管理する。
// 1つのエクササイズに対するスケジュールは高々1件で、UNIQUE制約付きの
// アトミックなUPSERTにより重複を防ぐ。エクササイズ名は非正規化せず、
// 読み取り時にエクササイズサービスへ問い合わせて結合する。
package schedule
