// Package timeslot は曜日名と "HH:MM" 形式の時刻文字列の正規化を提供する。
//
// スケジュールの保存時とマッチング実行時で同一の表現を使うことで、
// ゼロ埋めの揺れ（"7:05" と "07:05"）によるマッチ漏れを防ぐ。
// 正規化後の時刻文字列は辞書順と時刻順が一致する。
package timeslot
