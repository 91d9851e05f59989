// スケジュールサービスのエントリポイント。
// 週次の通知スケジュールのCRUDとマッチング照会を提供する。
package main

import (
	"log"
	"os"

	"zazen/internal/schedule"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8082"
	}

	server, err := schedule.NewServer(port)
	if err != nil {
		log.Fatalf("スケジュールサーバーの初期化に失敗: %v", err)
	}

	log.Printf("スケジュールサービスを起動します: :%s", port)
	if err := server.Run(); err != nil {
		log.Fatalf("スケジュールサービスの起動に失敗: %v", err)
	}
}
