package exercise

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"zazen/pkg/middleware"
)

// Server はエクササイズサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// db はSQLiteデータベース接続。
	db *sql.DB
}

// NewServer は新しいエクササイズサーバーを生成する。
// SQLiteデータベースの初期化とスキーマ作成を行う。
func NewServer(port string) (*Server, error) {
	sqlDB, err := sql.Open("sqlite", "/data/exercise.db?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	if err := initSchema(sqlDB); err != nil {
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORS(allowedOrigins()))

	s := &Server{
		router: router,
		port:   port,
		db:     sqlDB,
	}
	s.setupRoutes()

	return s, nil
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// Close はデータベース接続を閉じる。
func (s *Server) Close() error {
	return s.db.Close()
}

// allowedOrigins はCORSで許可するオリジンを環境変数から取得する。
func allowedOrigins() []string {
	origins := os.Getenv("ALLOWED_ORIGINS")
	if origins == "" {
		origins = "http://localhost:5173"
	}
	return strings.Split(origins, ",")
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	api := s.router.Group("/api/v1")
	{
		exercises := api.Group("/exercises")
		{
			// エクササイズ作成
			exercises.POST("", s.handleCreate())
			// エクササイズ一覧取得
			exercises.GET("", s.handleList())
			// エクササイズ詳細取得
			exercises.GET("/:id", s.handleGetByID())
			// エクササイズ更新
			exercises.PUT("/:id", s.handleUpdate())
			// エクササイズ削除
			exercises.DELETE("/:id", s.handleDelete())
		}
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "exercise"})
	})
}

// exerciseRequest はエクササイズ作成・更新リクエストのJSON構造。
type exerciseRequest struct {
	// Name はエクササイズ名。
	Name string `json:"name" binding:"required"`
	// Description は説明文。
	Description string `json:"description"`
	// DurationMinutes は所要時間（分）。
	DurationMinutes int `json:"duration_minutes" binding:"required,gt=0"`
}

// exerciseResponse はエクササイズのJSONレスポンス構造。
type exerciseResponse struct {
	// ID はエクササイズの一意識別子。
	ID string `json:"id"`
	// Name はエクササイズ名。
	Name string `json:"name"`
	// Description は説明文。
	Description string `json:"description"`
	// DurationMinutes は所要時間（分）。
	DurationMinutes int `json:"duration_minutes"`
	// CreatedAt は作成日時（RFC3339形式）。
	CreatedAt string `json:"created_at"`
}

// exerciseRow はexercisesテーブルの1行。
type exerciseRow struct {
	ID              string
	Name            string
	Description     string
	DurationMinutes int
	CreatedAt       time.Time
}

// toExerciseResponse はDB行をJSONレスポンスに変換する。
func toExerciseResponse(e exerciseRow) exerciseResponse {
	return exerciseResponse{
		ID:              e.ID,
		Name:            e.Name,
		Description:     e.Description,
		DurationMinutes: e.DurationMinutes,
		CreatedAt:       e.CreatedAt.Format(time.RFC3339),
	}
}

// handleCreate はエクササイズを作成するハンドラ。
func (s *Server) handleCreate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req exerciseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		exerciseID := uuid.New().String()
		_, err := s.db.ExecContext(c.Request.Context(),
			"INSERT INTO exercises (id, name, description, duration_minutes) VALUES (?, ?, ?, ?)",
			exerciseID, req.Name, req.Description, req.DurationMinutes,
		)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "エクササイズの作成に失敗しました"})
			log.Printf("[Exercise] エクササイズ作成エラー: %v", err)
			return
		}

		row, err := s.getExercise(c, exerciseID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "エクササイズの取得に失敗しました"})
			log.Printf("[Exercise] エクササイズ取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusCreated, toExerciseResponse(row))
	}
}

// handleList はエクササイズの一覧を作成順で返すハンドラ。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := s.db.QueryContext(c.Request.Context(),
			"SELECT id, name, description, duration_minutes, created_at FROM exercises ORDER BY created_at, id",
		)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "エクササイズ一覧の取得に失敗しました"})
			log.Printf("[Exercise] エクササイズ一覧取得エラー: %v", err)
			return
		}
		defer func() { _ = rows.Close() }()

		responses := make([]exerciseResponse, 0)
		for rows.Next() {
			var e exerciseRow
			if err := rows.Scan(&e.ID, &e.Name, &e.Description, &e.DurationMinutes, &e.CreatedAt); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "エクササイズ一覧の取得に失敗しました"})
				log.Printf("[Exercise] 行のスキャンエラー: %v", err)
				return
			}
			responses = append(responses, toExerciseResponse(e))
		}
		if err := rows.Err(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "エクササイズ一覧の取得に失敗しました"})
			log.Printf("[Exercise] 行の読み取りエラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, responses)
	}
}

// handleGetByID は指定されたエクササイズの詳細を返すハンドラ。
func (s *Server) handleGetByID() gin.HandlerFunc {
	return func(c *gin.Context) {
		row, err := s.getExercise(c, c.Param("id"))
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "エクササイズが見つかりません"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "エクササイズの取得に失敗しました"})
			log.Printf("[Exercise] エクササイズ取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, toExerciseResponse(row))
	}
}

// handleUpdate は指定されたエクササイズを更新するハンドラ。
func (s *Server) handleUpdate() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req exerciseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		exerciseID := c.Param("id")
		result, err := s.db.ExecContext(c.Request.Context(),
			"UPDATE exercises SET name = ?, description = ?, duration_minutes = ? WHERE id = ?",
			req.Name, req.Description, req.DurationMinutes, exerciseID,
		)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "エクササイズの更新に失敗しました"})
			log.Printf("[Exercise] エクササイズ更新エラー: %v", err)
			return
		}

		affected, err := result.RowsAffected()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "エクササイズの更新に失敗しました"})
			log.Printf("[Exercise] 更新行数の取得エラー: %v", err)
			return
		}
		if affected == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "エクササイズが見つかりません"})
			return
		}

		row, err := s.getExercise(c, exerciseID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "エクササイズの取得に失敗しました"})
			log.Printf("[Exercise] エクササイズ取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, toExerciseResponse(row))
	}
}

// handleDelete は指定されたエクササイズを削除するハンドラ。
// 参照しているスケジュールは削除しない（弱参照）。
func (s *Server) handleDelete() gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := s.db.ExecContext(c.Request.Context(),
			"DELETE FROM exercises WHERE id = ?", c.Param("id"),
		)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "エクササイズの削除に失敗しました"})
			log.Printf("[Exercise] エクササイズ削除エラー: %v", err)
			return
		}

		affected, err := result.RowsAffected()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "エクササイズの削除に失敗しました"})
			log.Printf("[Exercise] 削除行数の取得エラー: %v", err)
			return
		}
		if affected == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "エクササイズが見つかりません"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "エクササイズを削除しました"})
	}
}

// getExercise は指定IDのエクササイズを1件取得する。
func (s *Server) getExercise(c *gin.Context, id string) (exerciseRow, error) {
	var e exerciseRow
	err := s.db.QueryRowContext(c.Request.Context(),
		"SELECT id, name, description, duration_minutes, created_at FROM exercises WHERE id = ?", id,
	).Scan(&e.ID, &e.Name, &e.Description, &e.DurationMinutes, &e.CreatedAt)
	return e, err
}
