package schedule

import (
	"context"
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

	"zazen/pkg/httpclient"
	"zazen/pkg/middleware"
	"zazen/pkg/migration"
	"zazen/pkg/timeslot"
)

// Server はスケジュールサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// db はSQLiteデータベース接続。
	db *sql.DB
	// exerciseClient はエクササイズサービスへの通信クライアント。
	// エクササイズ名を読み取り時に結合するために使用する。
	exerciseClient *httpclient.Client
}

// NewServer は新しいスケジュールサーバーを生成する。
// SQLiteデータベースの初期化とマイグレーションの適用を行う。
func NewServer(port string) (*Server, error) {
	sqlDB, err := sql.Open("sqlite", "/data/schedule.db?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	if err := migration.Run(sqlDB, migrations); err != nil {
		return nil, fmt.Errorf("マイグレーション適用に失敗: %w", err)
	}

	exerciseURL := os.Getenv("EXERCISE_URL")
	if exerciseURL == "" {
		exerciseURL = "http://localhost:8081"
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORS(allowedOrigins()))

	s := &Server{
		router:         router,
		port:           port,
		db:             sqlDB,
		exerciseClient: httpclient.New(exerciseURL),
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
		schedules := api.Group("/schedules")
		{
			// スケジュールの保存（エクササイズ単位のUPSERT）
			schedules.PUT("", s.handleUpsert())
			// スケジュール一覧取得（?day= で曜日フィルタ）
			schedules.GET("", s.handleList())
			// マッチング照会（ディスパッチャーから呼び出される）
			schedules.GET("/due", s.handleDue())
			// スケジュール詳細取得
			schedules.GET("/:id", s.handleGetByID())
			// スケジュール削除
			schedules.DELETE("/:id", s.handleDelete())
		}
	}

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "schedule"})
	})
}

// upsertRequest はスケジュール保存リクエストのJSON構造。
type upsertRequest struct {
	// ExerciseID は対象エクササイズのID。
	ExerciseID string `json:"exercise_id" binding:"required"`
	// Days は通知する曜日名の集合。
	Days []string `json:"days" binding:"required"`
	// Time は通知時刻（"HH:MM" または "H:MM"）。保存時に正規化される。
	Time string `json:"time" binding:"required"`
	// FCMToken は通知先のデバイストークン。未登録なら空でよい。
	FCMToken string `json:"fcm_token"`
}

// scheduleResponse はスケジュールのJSONレスポンス構造。
type scheduleResponse struct {
	// ID はスケジュールの一意識別子。
	ID string `json:"id"`
	// ExerciseID は対象エクササイズのID。
	ExerciseID string `json:"exercise_id"`
	// ExerciseName は読み取り時に結合したエクササイズ名。
	// エクササイズが削除済みの場合は空文字。
	ExerciseName string `json:"exercise_name"`
	// Days は通知する曜日名（月曜始まりの正規順）。
	Days []string `json:"days"`
	// Time は正規化済みの通知時刻。
	Time string `json:"time"`
	// FCMToken は通知先のデバイストークン。
	FCMToken string `json:"fcm_token"`
	// CreatedAt は作成日時（RFC3339形式）。
	CreatedAt string `json:"created_at"`
}

// scheduleRow はschedulesテーブルの1行。
type scheduleRow struct {
	ID         string
	ExerciseID string
	Time       string
	FCMToken   string
	CreatedAt  time.Time
}

// handleUpsert はスケジュールを保存するハンドラ。
// 同じexercise_idのスケジュールが既にあれば上書きし、無ければ作成する。
// UNIQUE制約付きの単一INSERTで行うため、並行保存でも重複は発生しない。
func (s *Server) handleUpsert() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req upsertRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		days, err := normalizeDays(req.Days)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		slot, err := timeslot.ParseTime(req.Time)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		scheduleID, err := s.upsertSchedule(c.Request.Context(), req.ExerciseID, days, slot, req.FCMToken)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "スケジュールの保存に失敗しました"})
			log.Printf("[Schedule] スケジュール保存エラー: %v", err)
			return
		}

		resp, err := s.buildResponse(c.Request.Context(), scheduleID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "スケジュールの取得に失敗しました"})
			log.Printf("[Schedule] スケジュール取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

// handleList はスケジュールの一覧を時刻順で返すハンドラ。
// ?day= を指定すると該当曜日のスケジュールのみ返す。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		query := `SELECT id, exercise_id, time, fcm_token, created_at FROM schedules ORDER BY time, id`
		args := []any{}

		if dayParam := c.Query("day"); dayParam != "" {
			day, err := timeslot.ParseDay(dayParam)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			query = `SELECT s.id, s.exercise_id, s.time, s.fcm_token, s.created_at
				FROM schedules s
				JOIN schedule_days d ON d.schedule_id = s.id
				WHERE d.day = ?
				ORDER BY s.time, s.id`
			args = []any{day}
		}

		rows, err := s.queryScheduleRows(c.Request.Context(), query, args...)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "スケジュール一覧の取得に失敗しました"})
			log.Printf("[Schedule] スケジュール一覧取得エラー: %v", err)
			return
		}

		responses, err := s.toResponses(c.Request.Context(), rows)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "スケジュール一覧の取得に失敗しました"})
			log.Printf("[Schedule] スケジュール一覧の構築エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, responses)
	}
}

// dueScheduleResponse はマッチング照会のJSONレスポンス内の1件。
type dueScheduleResponse struct {
	// ID はスケジュールの一意識別子。
	ID string `json:"id"`
	// ExerciseID は対象エクササイズのID。
	ExerciseID string `json:"exercise_id"`
	// ExerciseName は読み取り時に結合したエクササイズ名。
	ExerciseName string `json:"exercise_name"`
	// Time は正規化済みの通知時刻。
	Time string `json:"time"`
	// FCMToken は通知先のデバイストークン。
	FCMToken string `json:"fcm_token"`
}

// handleDue は指定された曜日・時刻に一致するスケジュールを返すハンドラ。
// ディスパッチャーサービスが毎分のマッチング実行で呼び出す。
func (s *Server) handleDue() gin.HandlerFunc {
	return func(c *gin.Context) {
		day, err := timeslot.ParseDay(c.Query("day"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		slot, err := timeslot.ParseTime(c.Query("time"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		rows, err := s.queryScheduleRows(c.Request.Context(),
			`SELECT s.id, s.exercise_id, s.time, s.fcm_token, s.created_at
			FROM schedules s
			JOIN schedule_days d ON d.schedule_id = s.id
			WHERE d.day = ? AND s.time = ?
			ORDER BY s.id`,
			day, slot,
		)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "マッチング照会に失敗しました"})
			log.Printf("[Schedule] マッチング照会エラー: %v", err)
			return
		}

		due := make([]dueScheduleResponse, 0, len(rows))
		for _, row := range rows {
			due = append(due, dueScheduleResponse{
				ID:           row.ID,
				ExerciseID:   row.ExerciseID,
				ExerciseName: s.exerciseName(c.Request.Context(), row.ExerciseID),
				Time:         row.Time,
				FCMToken:     row.FCMToken,
			})
		}

		c.JSON(http.StatusOK, gin.H{"schedules": due})
	}
}

// handleGetByID は指定されたスケジュールの詳細を返すハンドラ。
func (s *Server) handleGetByID() gin.HandlerFunc {
	return func(c *gin.Context) {
		resp, err := s.buildResponse(c.Request.Context(), c.Param("id"))
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "スケジュールが見つかりません"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "スケジュールの取得に失敗しました"})
			log.Printf("[Schedule] スケジュール取得エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

// handleDelete は指定されたスケジュールと曜日行を削除するハンドラ。
func (s *Server) handleDelete() gin.HandlerFunc {
	return func(c *gin.Context) {
		scheduleID := c.Param("id")

		tx, err := s.db.BeginTx(c.Request.Context(), nil)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "スケジュールの削除に失敗しました"})
			log.Printf("[Schedule] トランザクション開始エラー: %v", err)
			return
		}
		defer tx.Rollback() //nolint:errcheck

		result, err := tx.ExecContext(c.Request.Context(), "DELETE FROM schedules WHERE id = ?", scheduleID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "スケジュールの削除に失敗しました"})
			log.Printf("[Schedule] スケジュール削除エラー: %v", err)
			return
		}

		affected, err := result.RowsAffected()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "スケジュールの削除に失敗しました"})
			log.Printf("[Schedule] 削除行数の取得エラー: %v", err)
			return
		}
		if affected == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "スケジュールが見つかりません"})
			return
		}

		if _, err := tx.ExecContext(c.Request.Context(), "DELETE FROM schedule_days WHERE schedule_id = ?", scheduleID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "スケジュールの削除に失敗しました"})
			log.Printf("[Schedule] 曜日行の削除エラー: %v", err)
			return
		}

		if err := tx.Commit(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "スケジュールの削除に失敗しました"})
			log.Printf("[Schedule] コミットエラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "スケジュールを削除しました"})
	}
}

// normalizeDays は曜日名のスライスを検証・正規化し、重複を除去して正規順で返す。
func normalizeDays(days []string) ([]string, error) {
	if len(days) == 0 {
		return nil, errors.New("daysには1つ以上の曜日を指定してください")
	}

	seen := make(map[string]struct{}, len(days))
	normalized := make([]string, 0, len(days))
	for _, d := range days {
		day, err := timeslot.ParseDay(d)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[day]; ok {
			continue
		}
		seen[day] = struct{}{}
		normalized = append(normalized, day)
	}
	return timeslot.SortDays(normalized), nil
}

// upsertSchedule はスケジュール本体と曜日行をトランザクション内で保存する。
// 保存後のスケジュールIDを返す。
func (s *Server) upsertSchedule(ctx context.Context, exerciseID string, days []string, slot, fcmToken string) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	// 既存行があればtimeとfcm_tokenだけ上書きし、idとcreated_atは維持する
	_, err = tx.ExecContext(ctx,
		`INSERT INTO schedules (id, exercise_id, time, fcm_token) VALUES (?, ?, ?, ?)
		ON CONFLICT(exercise_id) DO UPDATE SET time = excluded.time, fcm_token = excluded.fcm_token`,
		uuid.New().String(), exerciseID, slot, fcmToken,
	)
	if err != nil {
		return "", fmt.Errorf("スケジュールのUPSERTに失敗: %w", err)
	}

	var scheduleID string
	if err := tx.QueryRowContext(ctx, "SELECT id FROM schedules WHERE exercise_id = ?", exerciseID).Scan(&scheduleID); err != nil {
		return "", fmt.Errorf("保存後のスケジュールIDの取得に失敗: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM schedule_days WHERE schedule_id = ?", scheduleID); err != nil {
		return "", fmt.Errorf("曜日行の削除に失敗: %w", err)
	}
	for _, day := range days {
		if _, err := tx.ExecContext(ctx, "INSERT INTO schedule_days (schedule_id, day) VALUES (?, ?)", scheduleID, day); err != nil {
			return "", fmt.Errorf("曜日行の挿入に失敗: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("コミットに失敗: %w", err)
	}
	return scheduleID, nil
}

// queryScheduleRows はschedulesテーブルへの問い合わせ結果をスライスで返す。
func (s *Server) queryScheduleRows(ctx context.Context, query string, args ...any) ([]scheduleRow, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []scheduleRow
	for rows.Next() {
		var r scheduleRow
		if err := rows.Scan(&r.ID, &r.ExerciseID, &r.Time, &r.FCMToken, &r.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// loadDays は指定スケジュールの曜日集合を正規順で取得する。
func (s *Server) loadDays(ctx context.Context, scheduleID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT day FROM schedule_days WHERE schedule_id = ?", scheduleID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	days := make([]string, 0)
	for rows.Next() {
		var day string
		if err := rows.Scan(&day); err != nil {
			return nil, err
		}
		days = append(days, day)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return timeslot.SortDays(days), nil
}

// exerciseName はエクササイズサービスからエクササイズ名を取得する。
// エクササイズが削除済み、またはサービスに到達できない場合は空文字を返す
// （弱参照のため、結合の失敗でスケジュールの読み取りを失敗させない）。
func (s *Server) exerciseName(ctx context.Context, exerciseID string) string {
	var exercise struct {
		Name string `json:"name"`
	}
	err := s.exerciseClient.GetJSON(ctx, "/api/v1/exercises/"+exerciseID, &exercise)
	if errors.Is(err, httpclient.ErrNotFound) {
		return ""
	}
	if err != nil {
		log.Printf("[Schedule] エクササイズ名の結合に失敗: exercise_id=%s: %v", exerciseID, err)
		return ""
	}
	return exercise.Name
}

// buildResponse は指定IDのスケジュールから曜日とエクササイズ名を結合した
// レスポンスを構築する。
func (s *Server) buildResponse(ctx context.Context, scheduleID string) (scheduleResponse, error) {
	var r scheduleRow
	err := s.db.QueryRowContext(ctx,
		"SELECT id, exercise_id, time, fcm_token, created_at FROM schedules WHERE id = ?", scheduleID,
	).Scan(&r.ID, &r.ExerciseID, &r.Time, &r.FCMToken, &r.CreatedAt)
	if err != nil {
		return scheduleResponse{}, err
	}

	days, err := s.loadDays(ctx, scheduleID)
	if err != nil {
		return scheduleResponse{}, err
	}

	return scheduleResponse{
		ID:           r.ID,
		ExerciseID:   r.ExerciseID,
		ExerciseName: s.exerciseName(ctx, r.ExerciseID),
		Days:         days,
		Time:         r.Time,
		FCMToken:     r.FCMToken,
		CreatedAt:    r.CreatedAt.Format(time.RFC3339),
	}, nil
}

// toResponses はスケジュール行のスライスからレスポンスのスライスを構築する。
func (s *Server) toResponses(ctx context.Context, rows []scheduleRow) ([]scheduleResponse, error) {
	responses := make([]scheduleResponse, 0, len(rows))
	for _, r := range rows {
		days, err := s.loadDays(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		responses = append(responses, scheduleResponse{
			ID:           r.ID,
			ExerciseID:   r.ExerciseID,
			ExerciseName: s.exerciseName(ctx, r.ExerciseID),
			Days:         days,
			Time:         r.Time,
			FCMToken:     r.FCMToken,
			CreatedAt:    r.CreatedAt.Format(time.RFC3339),
		})
	}
	return responses, nil
}
