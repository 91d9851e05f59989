// ディスパッチャーサービスのエントリポイント。
// 毎分の通知マッチングジョブとテスト通知エンドポイントを提供する。
package main

import (
	"log"
	"os"

	"zazen/internal/dispatcher"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8083"
	}

	server, err := dispatcher.NewServer(port)
	if err != nil {
		log.Fatalf("ディスパッチャーサーバーの初期化に失敗: %v", err)
	}

	log.Printf("ディスパッチャーサービスを起動します: :%s", port)
	if err := server.Run(); err != nil {
		log.Fatalf("ディスパッチャーサービスの起動に失敗: %v", err)
	}
}
