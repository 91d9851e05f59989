// Package httpclient はサービス間のHTTP通信を行うクライアントを提供する。
//
// スケジュールサービスがエクササイズ名を読み取り時に結合する際や、
// ディスパッチャーサービスがマッチング対象のスケジュールを照会する際に
// 使用し、サービス間の通信パターンを統一する。
package httpclient
