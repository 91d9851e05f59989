// エクササイズサービスのエントリポイント。
// 瞑想エクササイズのCRUDを管理する。
package main

import (
	"log"
	"os"

	"zazen/internal/exercise"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8081"
	}

	server, err := exercise.NewServer(port)
	if err != nil {
		log.Fatalf("エクササイズサーバーの初期化に失敗: %v", err)
	}

	log.Printf("エクササイズサービスを起動します: :%s", port)
	if err := server.Run(); err != nil {
		log.Fatalf("エクササイズサービスの起動に失敗: %v", err)
	}
}
