package dispatcher

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	_ "modernc.org/sqlite"

	"zazen/pkg/fcm"
	"zazen/pkg/httpclient"
	"zazen/pkg/middleware"
	"zazen/pkg/migration"
)

// Server はディスパッチャーサービスのHTTPサーバー。
// 毎分の通知マッチングジョブと手動テスト通知エンドポイントを提供する。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// db はSQLiteデータベース接続。
	db *sql.DB
	// fcmClient はFCMへの通知送信クライアント。
	fcmClient *fcm.Client
	// job は毎分実行される通知マッチングジョブ。
	job *Job
	// cron はジョブのスケジューラー。
	cron *cron.Cron
}

// NewServer は新しいディスパッチャーサーバーを生成する。
// SQLiteデータベースの初期化とcronジョブの登録を行う。
func NewServer(port string) (*Server, error) {
	sqlDB, err := sql.Open("sqlite", "/data/dispatcher.db?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	if err := migration.Run(sqlDB, migrations); err != nil {
		return nil, fmt.Errorf("マイグレーション適用に失敗: %w", err)
	}

	scheduleURL := os.Getenv("SCHEDULE_URL")
	if scheduleURL == "" {
		scheduleURL = "http://localhost:8082"
	}

	fcmClient := fcm.New(os.Getenv("FCM_ENDPOINT"), os.Getenv("FCM_SERVER_KEY"))
	job := NewJob(sqlDB, httpclient.New(scheduleURL), fcmClient)

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())
	// テスト通知エンドポイントはオリジンを問わず呼び出せる
	router.Use(middleware.CORS([]string{"*"}))

	s := &Server{
		router:    router,
		port:      port,
		db:        sqlDB,
		fcmClient: fcmClient,
		job:       job,
		// 前回の実行が1分を超えて残っている間は次の実行をスキップする
		cron: cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
	}
	s.setupRoutes()

	if _, err := s.cron.AddFunc("* * * * *", s.runJob); err != nil {
		return nil, fmt.Errorf("cronジョブの登録に失敗: %w", err)
	}

	return s, nil
}

// Run はcronスケジューラーとHTTPサーバーを起動する。
func (s *Server) Run() error {
	s.cron.Start()
	log.Printf("[Dispatcher] 通知マッチングジョブを開始しました（毎分実行）")
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// Close はcronスケジューラーを停止し、データベース接続を閉じる。
func (s *Server) Close() error {
	<-s.cron.Stop().Done()
	return s.db.Close()
}

// runJob は1回分の通知マッチングジョブを実行する。
// 次の実行枠に食い込まないよう、実行全体に期限を設ける。
func (s *Server) runJob() {
	ctx, cancel := context.WithTimeout(context.Background(), 55*time.Second)
	defer cancel()

	if _, err := s.job.Run(ctx, time.Now()); err != nil {
		log.Printf("[Dispatcher] ジョブ実行エラー: %v", err)
	}
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	api := s.router.Group("/api/v1")
	{
		// 手動テスト通知の送信
		api.POST("/notifications/test", s.handleTestNotification())
		// 送信結果の一覧取得
		api.GET("/deliveries", s.handleDeliveries())
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "dispatcher"})
	})
}

// testNotificationRequest はテスト通知リクエストのJSON構造。
type testNotificationRequest struct {
	// Token は通知先のデバイストークン。
	Token string `json:"token"`
}

// handleTestNotification は指定されたデバイストークンへテスト通知を送信するハンドラ。
// デバイストークンの動作確認用で、スケジュールとは無関係に即時送信する。
func (s *Server) handleTestNotification() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req testNotificationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success":      false,
				"error":        "Failed to send test notification",
				"errorDetails": err.Error(),
			})
			return
		}

		messageID, err := s.fcmClient.Send(c.Request.Context(), req.Token, fcm.Notification{
			Title: "Test Meditation Reminder",
			Body:  "This is a test notification. Your meditation app is working!",
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success":      false,
				"error":        "Failed to send test notification",
				"errorDetails": err.Error(),
			})
			log.Printf("[Dispatcher] テスト通知の送信に失敗: %v", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success":   true,
			"message":   "Test notification sent successfully",
			"messageId": messageID,
		})
	}
}

// deliveryResponse は送信結果のJSONレスポンス構造。
type deliveryResponse struct {
	// ID は送信結果の一意識別子。
	ID string `json:"id"`
	// ScheduleID は送信対象のスケジュールID。
	ScheduleID string `json:"schedule_id"`
	// ExerciseName は通知本文に使用したエクササイズ名。
	ExerciseName string `json:"exercise_name"`
	// Status は送信結果のステータス（sent/failed/skipped）。
	Status string `json:"status"`
	// MessageID は送信成功時にFCMが発行したメッセージID。
	MessageID string `json:"message_id"`
	// Error は送信失敗時のエラーメッセージ。
	Error string `json:"error"`
	// CreatedAt は記録日時（RFC3339形式）。
	CreatedAt string `json:"created_at"`
}

// handleDeliveries は送信結果の一覧を新しい順で返すハンドラ。
// ?limit= で取得件数を指定できる（デフォルト50件）。
func (s *Server) handleDeliveries() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 50
		if limitParam := c.Query("limit"); limitParam != "" {
			parsed, err := strconv.Atoi(limitParam)
			if err != nil || parsed < 1 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limitには1以上の整数を指定してください"})
				return
			}
			limit = parsed
		}

		rows, err := s.db.QueryContext(c.Request.Context(),
			`SELECT id, schedule_id, exercise_name, status, message_id, error, created_at
			FROM deliveries ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "送信結果一覧の取得に失敗しました"})
			log.Printf("[Dispatcher] 送信結果一覧取得エラー: %v", err)
			return
		}
		defer func() { _ = rows.Close() }()

		deliveries := make([]deliveryResponse, 0)
		for rows.Next() {
			var d deliveryResponse
			var createdAt time.Time
			if err := rows.Scan(&d.ID, &d.ScheduleID, &d.ExerciseName, &d.Status, &d.MessageID, &d.Error, &createdAt); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "送信結果一覧の取得に失敗しました"})
				log.Printf("[Dispatcher] 送信結果のスキャンエラー: %v", err)
				return
			}
			d.CreatedAt = createdAt.Format(time.RFC3339)
			deliveries = append(deliveries, d)
		}
		if err := rows.Err(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "送信結果一覧の取得に失敗しました"})
			log.Printf("[Dispatcher] 送信結果一覧の読み取りエラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, deliveries)
	}
}
