// Package exercise は瞑想エクササイズサービスの内部実装を提供する。
//
// エクササイズ（名前・説明・所要時間）のCRUD操作を行う。
// スケジュールサービスはここで管理されるエクササイズを弱参照する。
package exercise
