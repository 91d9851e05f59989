package exercise

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	_ "modernc.org/sqlite"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// setupTestServer はテスト用のエクササイズサーバーをインメモリSQLiteで構築する。
func setupTestServer(t *testing.T) (*Server, *gin.Engine) {
	t.Helper()

	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("インメモリDBの作成に失敗: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	if err := initSchema(sqlDB); err != nil {
		t.Fatalf("スキーマ初期化に失敗: %v", err)
	}

	router := gin.New()
	s := &Server{
		router: router,
		port:   "0",
		db:     sqlDB,
	}
	s.setupRoutes()

	return s, router
}

// doRequest はテスト用のHTTPリクエストを実行し、レスポンスを返すヘルパー関数。
func doRequest(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var reqBody *bytes.Reader
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewReader(jsonBytes)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// parseJSON はレスポンスボディをmapにデコードするヘルパー関数。
func parseJSON(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var result map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("JSONのデコードに失敗: %v, body=%s", err, w.Body.String())
	}
	return result
}

// parseJSONArray はレスポンスボディをスライスにデコードするヘルパー関数。
func parseJSONArray(t *testing.T, w *httptest.ResponseRecorder) []map[string]any {
	t.Helper()
	var result []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("JSON配列のデコードに失敗: %v, body=%s", err, w.Body.String())
	}
	return result
}

// createTestExercise はテスト用にエクササイズをAPI経由で作成し、IDを返すヘルパー関数。
func createTestExercise(t *testing.T, router *gin.Engine, name string, duration int) string {
	t.Helper()

	body := map[string]any{
		"name":             name,
		"description":      "姿勢を正す • 呼吸に意識を向ける",
		"duration_minutes": duration,
	}
	w := doRequest(router, http.MethodPost, "/api/v1/exercises", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("テスト用エクササイズの作成に失敗: status=%d, body=%s", w.Code, w.Body.String())
	}

	result := parseJSON(t, w)
	id, ok := result["id"].(string)
	if !ok || id == "" {
		t.Fatal("作成結果にidが含まれていません")
	}
	return id
}

// TestHealthCheck はヘルスチェックエンドポイントの正常動作を検証する。
func TestHealthCheck(t *testing.T) {
	t.Parallel()

	_, router := setupTestServer(t)

	w := doRequest(router, http.MethodGet, "/health", nil)

	if w.Code != http.StatusOK {
		t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
	}

	result := parseJSON(t, w)
	if result["service"] != "exercise" {
		t.Errorf("service: got %v, want exercise", result["service"])
	}
}

// TestHandleCreate はエクササイズ作成ハンドラのテスト。
func TestHandleCreate(t *testing.T) {
	t.Parallel()

	t.Run("正常にエクササイズを作成できる", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		body := map[string]any{
			"name":             "Mindfulness Breathing",
			"description":      "背筋を伸ばして座る • 鼻呼吸に集中する",
			"duration_minutes": 10,
		}
		w := doRequest(router, http.MethodPost, "/api/v1/exercises", body)

		if w.Code != http.StatusCreated {
			t.Fatalf("ステータスコード: got %d, want %d, body=%s", w.Code, http.StatusCreated, w.Body.String())
		}

		result := parseJSON(t, w)
		if result["id"] == nil || result["id"] == "" {
			t.Error("idが空です")
		}
		if result["name"] != "Mindfulness Breathing" {
			t.Errorf("name: got %v, want Mindfulness Breathing", result["name"])
		}
		if result["duration_minutes"] != float64(10) {
			t.Errorf("duration_minutes: got %v, want 10", result["duration_minutes"])
		}
		if result["created_at"] == nil || result["created_at"] == "" {
			t.Error("created_atが空です")
		}
	})

	t.Run("説明は省略できる", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		body := map[string]any{
			"name":             "Body Scan",
			"duration_minutes": 15,
		}
		w := doRequest(router, http.MethodPost, "/api/v1/exercises", body)

		if w.Code != http.StatusCreated {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusCreated)
		}
	})

	t.Run("nameが未指定の場合はBadRequest", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		body := map[string]any{"duration_minutes": 10}
		w := doRequest(router, http.MethodPost, "/api/v1/exercises", body)

		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("duration_minutesが0の場合はBadRequest", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		body := map[string]any{"name": "Walking Meditation", "duration_minutes": 0}
		w := doRequest(router, http.MethodPost, "/api/v1/exercises", body)

		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("duration_minutesが負の場合はBadRequest", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		body := map[string]any{"name": "Walking Meditation", "duration_minutes": -5}
		w := doRequest(router, http.MethodPost, "/api/v1/exercises", body)

		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusBadRequest)
		}
	})
}

// TestHandleList はエクササイズ一覧取得ハンドラのテスト。
func TestHandleList(t *testing.T) {
	t.Parallel()

	t.Run("エクササイズが存在しない場合は空配列を返す", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		w := doRequest(router, http.MethodGet, "/api/v1/exercises", nil)

		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}

		result := parseJSONArray(t, w)
		if len(result) != 0 {
			t.Errorf("配列の長さ: got %d, want 0", len(result))
		}
	})

	t.Run("作成したエクササイズの一覧を取得できる", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		createTestExercise(t, router, "Mindfulness Breathing", 10)
		createTestExercise(t, router, "Body Scan", 15)
		createTestExercise(t, router, "Walking Meditation", 20)

		w := doRequest(router, http.MethodGet, "/api/v1/exercises", nil)

		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}

		result := parseJSONArray(t, w)
		if len(result) != 3 {
			t.Errorf("配列の長さ: got %d, want 3", len(result))
		}
	})
}

// TestHandleGetByID はエクササイズ詳細取得ハンドラのテスト。
func TestHandleGetByID(t *testing.T) {
	t.Parallel()

	t.Run("作成したエクササイズの詳細を取得できる", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		id := createTestExercise(t, router, "Body Scan", 15)

		w := doRequest(router, http.MethodGet, "/api/v1/exercises/"+id, nil)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}

		result := parseJSON(t, w)
		if result["id"] != id {
			t.Errorf("id: got %v, want %v", result["id"], id)
		}
		if result["name"] != "Body Scan" {
			t.Errorf("name: got %v, want Body Scan", result["name"])
		}
		if result["duration_minutes"] != float64(15) {
			t.Errorf("duration_minutes: got %v, want 15", result["duration_minutes"])
		}
	})

	t.Run("存在しないIDの場合はNotFound", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		w := doRequest(router, http.MethodGet, "/api/v1/exercises/nonexistent", nil)

		if w.Code != http.StatusNotFound {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusNotFound)
		}
	})
}

// TestHandleUpdate はエクササイズ更新ハンドラのテスト。
func TestHandleUpdate(t *testing.T) {
	t.Parallel()

	t.Run("正常にエクササイズを更新できる", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		id := createTestExercise(t, router, "Body Scan", 15)

		body := map[string]any{
			"name":             "Deep Body Scan",
			"description":      "足先から順に感覚を観察する",
			"duration_minutes": 25,
		}
		w := doRequest(router, http.MethodPut, "/api/v1/exercises/"+id, body)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d, body=%s", w.Code, http.StatusOK, w.Body.String())
		}

		result := parseJSON(t, w)
		if result["name"] != "Deep Body Scan" {
			t.Errorf("name: got %v, want Deep Body Scan", result["name"])
		}
		if result["duration_minutes"] != float64(25) {
			t.Errorf("duration_minutes: got %v, want 25", result["duration_minutes"])
		}

		// 取得し直しても更新が反映されていることを確認する
		w2 := doRequest(router, http.MethodGet, "/api/v1/exercises/"+id, nil)
		got := parseJSON(t, w2)
		if got["name"] != "Deep Body Scan" {
			t.Errorf("再取得後のname: got %v, want Deep Body Scan", got["name"])
		}
	})

	t.Run("存在しないIDの場合はNotFound", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		body := map[string]any{"name": "X", "duration_minutes": 5}
		w := doRequest(router, http.MethodPut, "/api/v1/exercises/nonexistent", body)

		if w.Code != http.StatusNotFound {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusNotFound)
		}
	})

	t.Run("不正なボディの場合はBadRequest", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		id := createTestExercise(t, router, "Body Scan", 15)

		body := map[string]any{"duration_minutes": 5}
		w := doRequest(router, http.MethodPut, "/api/v1/exercises/"+id, body)

		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusBadRequest)
		}
	})
}

// TestHandleDelete はエクササイズ削除ハンドラのテスト。
func TestHandleDelete(t *testing.T) {
	t.Parallel()

	t.Run("正常にエクササイズを削除できる", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		id := createTestExercise(t, router, "Body Scan", 15)

		w := doRequest(router, http.MethodDelete, "/api/v1/exercises/"+id, nil)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード: got %d, want %d", w.Code, http.StatusOK)
		}

		// 削除後は取得できないことを確認する
		w2 := doRequest(router, http.MethodGet, "/api/v1/exercises/"+id, nil)
		if w2.Code != http.StatusNotFound {
			t.Errorf("削除後のステータスコード: got %d, want %d", w2.Code, http.StatusNotFound)
		}
	})

	t.Run("存在しないIDの場合はNotFound", func(t *testing.T) {
		t.Parallel()
		_, router := setupTestServer(t)

		w := doRequest(router, http.MethodDelete, "/api/v1/exercises/nonexistent", nil)

		if w.Code != http.StatusNotFound {
			t.Errorf("ステータスコード: got %d, want %d", w.Code, http.StatusNotFound)
		}
	})
}

// TestCreateListFlow は複数作成から一覧・削除までの一連のフローを検証する。
func TestCreateListFlow(t *testing.T) {
	t.Parallel()

	_, router := setupTestServer(t)

	ids := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		ids = append(ids, createTestExercise(t, router, fmt.Sprintf("Exercise %d", i), 10+i*5))
	}

	w := doRequest(router, http.MethodGet, "/api/v1/exercises", nil)
	if got := len(parseJSONArray(t, w)); got != 3 {
		t.Fatalf("一覧の長さ: got %d, want 3", got)
	}

	// 1件削除すると一覧から消えることを確認する
	w2 := doRequest(router, http.MethodDelete, "/api/v1/exercises/"+ids[1], nil)
	if w2.Code != http.StatusOK {
		t.Fatalf("削除のステータスコード: got %d, want %d", w2.Code, http.StatusOK)
	}

	w3 := doRequest(router, http.MethodGet, "/api/v1/exercises", nil)
	remaining := parseJSONArray(t, w3)
	if len(remaining) != 2 {
		t.Errorf("削除後の一覧の長さ: got %d, want 2", len(remaining))
	}
	for _, e := range remaining {
		if e["id"] == ids[1] {
			t.Errorf("削除したエクササイズが一覧に残っています: %v", ids[1])
		}
	}
}
