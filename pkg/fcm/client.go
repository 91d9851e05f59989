package fcm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultEndpoint はFCM HTTP APIのデフォルトエンドポイント。
const DefaultEndpoint = "https://fcm.googleapis.com/fcm/send"

// ErrInvalidToken はデバイストークンが無効または失効している場合のエラー。
// アプリの再インストールや通知許可の取り消しで発生する。
var ErrInvalidToken = errors.New("デバイストークンが無効です")

// Notification はプッシュ通知のタイトルと本文。
type Notification struct {
	// Title は通知のタイトル。
	Title string `json:"title"`
	// Body は通知の本文。
	Body string `json:"body"`
}

// Client はFCM HTTP APIへの通信クライアント。
type Client struct {
	// httpClient は内部で使用するHTTPクライアント。
	httpClient *http.Client
	// endpoint は送信先エンドポイントのURL。
	endpoint string
	// serverKey はFCMのサーバーキー。
	serverKey string
}

// New は新しいFCMクライアントを生成する。
// endpointが空の場合はDefaultEndpointを使用する。
func New(endpoint, serverKey string) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		endpoint:  endpoint,
		serverKey: serverKey,
	}
}

// sendRequest はFCM送信リクエストのJSON構造。
type sendRequest struct {
	// To は宛先のデバイストークン。
	To string `json:"to"`
	// Notification は通知の内容。
	Notification Notification `json:"notification"`
}

// sendResult はFCMレスポンス内の1件分の送信結果。
type sendResult struct {
	// MessageID は送信成功時にFCMが発行するメッセージID。
	MessageID string `json:"message_id"`
	// Error は送信失敗時のエラーコード。
	Error string `json:"error"`
}

// sendResponse はFCM送信レスポンスのJSON構造。
type sendResponse struct {
	// Success は成功した送信数。
	Success int `json:"success"`
	// Failure は失敗した送信数。
	Failure int `json:"failure"`
	// Results は送信結果の配列。
	Results []sendResult `json:"results"`
}

// Send は1つのデバイストークンへ通知を送信し、FCMが発行したメッセージIDを返す。
// トークンが無効な場合はErrInvalidTokenをラップしたエラーを返す。
func (c *Client) Send(ctx context.Context, token string, n Notification) (string, error) {
	if token == "" {
		return "", fmt.Errorf("%w: トークンが空です", ErrInvalidToken)
	}

	jsonBody, err := json.Marshal(sendRequest{To: token, Notification: n})
	if err != nil {
		return "", fmt.Errorf("リクエストボディのシリアライズに失敗: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("key=%s", c.serverKey))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTPリクエストの送信に失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("FCMエラー: status=%d, body=%s", resp.StatusCode, string(respBody))
	}

	var result sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("レスポンスボディのデシリアライズに失敗: %w", err)
	}

	if len(result.Results) == 0 {
		return "", fmt.Errorf("FCMレスポンスに送信結果が含まれていません")
	}

	r := result.Results[0]
	if r.Error != "" {
		switch r.Error {
		case "NotRegistered", "InvalidRegistration", "MissingRegistration":
			return "", fmt.Errorf("%w: %s", ErrInvalidToken, r.Error)
		default:
			return "", fmt.Errorf("FCM送信に失敗: %s", r.Error)
		}
	}

	return r.MessageID, nil
}
