// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// CORS設定とパニックリカバリなど、全サービスで共通して使用する
// ミドルウェアを含む。
package middleware
