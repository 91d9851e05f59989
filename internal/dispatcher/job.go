package dispatcher

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"zazen/pkg/fcm"
	"zazen/pkg/httpclient"
	"zazen/pkg/timeslot"
)

// 送信結果のステータス。deliveriesテーブルのstatus列に記録される。
const (
	// statusSent は通知の送信に成功したことを示す。
	statusSent = "sent"
	// statusFailed は通知の送信に失敗したことを示す。
	statusFailed = "failed"
	// statusSkipped はデバイストークン未登録のため送信しなかったことを示す。
	statusSkipped = "skipped"
)

// sendTimeout は1件の通知送信に許容する時間。
// 1件の遅延がジョブ全体を止めないよう、送信ごとに個別に適用される。
const sendTimeout = 10 * time.Second

// Job は毎分実行される通知マッチングジョブ。
type Job struct {
	// db は送信結果を記録するSQLiteデータベース接続。
	db *sql.DB
	// scheduleClient はスケジュールサービスへの通信クライアント。
	scheduleClient *httpclient.Client
	// fcmClient はFCMへの通知送信クライアント。
	fcmClient *fcm.Client
	// limiter はFCMへの送信レートを制限するリミッター。
	limiter *rate.Limiter
}

// NewJob は新しい通知マッチングジョブを生成する。
func NewJob(db *sql.DB, scheduleClient *httpclient.Client, fcmClient *fcm.Client) *Job {
	return &Job{
		db:             db,
		scheduleClient: scheduleClient,
		fcmClient:      fcmClient,
		// FCM側の流量制限を避けるため毎秒10件、バースト10件まで
		limiter: rate.NewLimiter(rate.Limit(10), 10),
	}
}

// dueSchedule はマッチング照会レスポンス内の1件。
type dueSchedule struct {
	// ID はスケジュールの一意識別子。
	ID string `json:"id"`
	// ExerciseID は対象エクササイズのID。
	ExerciseID string `json:"exercise_id"`
	// ExerciseName はエクササイズ名。エクササイズが削除済みの場合は空文字。
	ExerciseName string `json:"exercise_name"`
	// Time は正規化済みの通知時刻。
	Time string `json:"time"`
	// FCMToken は通知先のデバイストークン。
	FCMToken string `json:"fcm_token"`
}

// dueResponse はマッチング照会のJSONレスポンス構造。
type dueResponse struct {
	// Schedules は一致したスケジュールの配列。
	Schedules []dueSchedule `json:"schedules"`
}

// delivery は1件の送信結果。
type delivery struct {
	// ScheduleID は送信対象のスケジュールID。
	ScheduleID string
	// ExerciseName は通知本文に使用したエクササイズ名。
	ExerciseName string
	// Status は送信結果のステータス（sent/failed/skipped）。
	Status string
	// MessageID は送信成功時にFCMが発行したメッセージID。
	MessageID string
	// Error は送信失敗時のエラーメッセージ。
	Error string
}

// Result は1回のジョブ実行の集計結果。
type Result struct {
	// Sent は送信に成功した件数。
	Sent int
	// Failed は送信に失敗した件数。
	Failed int
	// Skipped はトークン未登録のため送信しなかった件数。
	Skipped int
}

// Run は指定時刻の曜日・時刻に一致するスケジュールを照会し、
// 一致した各スケジュールへプッシュ通知を送信する。
// マッチング照会自体の失敗はジョブ全体の失敗として返すが、
// 個々の送信失敗は記録したうえで他の送信を継続する。
func (j *Job) Run(ctx context.Context, now time.Time) (Result, error) {
	day := timeslot.DayOf(now)
	slot := timeslot.Format(now)

	query := url.Values{}
	query.Set("day", day)
	query.Set("time", slot)

	var due dueResponse
	if err := j.scheduleClient.GetJSON(ctx, "/api/v1/schedules/due?"+query.Encode(), &due); err != nil {
		return Result{}, fmt.Errorf("マッチング照会に失敗: %w", err)
	}

	if len(due.Schedules) == 0 {
		return Result{}, nil
	}
	log.Printf("[Dispatcher] %s %s に一致するスケジュール: %d件", day, slot, len(due.Schedules))

	// スケジュールごとに並行送信する。1件の失敗や遅延が他に波及しないよう、
	// インデックスで結果スロットを分けて書き込む
	deliveries := make([]delivery, len(due.Schedules))
	var wg sync.WaitGroup
	for i, sched := range due.Schedules {
		wg.Add(1)
		go func(i int, sched dueSchedule) {
			defer wg.Done()
			deliveries[i] = j.dispatch(ctx, sched)
		}(i, sched)
	}
	wg.Wait()

	var result Result
	for _, d := range deliveries {
		switch d.Status {
		case statusSent:
			result.Sent++
		case statusFailed:
			result.Failed++
			log.Printf("[Dispatcher] 通知送信に失敗: schedule_id=%s: %s", d.ScheduleID, d.Error)
		case statusSkipped:
			result.Skipped++
		}
		if err := j.record(ctx, d); err != nil {
			log.Printf("[Dispatcher] 送信結果の記録に失敗: schedule_id=%s: %v", d.ScheduleID, err)
		}
	}

	log.Printf("[Dispatcher] ジョブ完了: sent=%d, failed=%d, skipped=%d", result.Sent, result.Failed, result.Skipped)
	return result, nil
}

// dispatch は1件のスケジュールへの通知送信を実行し、送信結果を返す。
func (j *Job) dispatch(ctx context.Context, sched dueSchedule) delivery {
	d := delivery{
		ScheduleID:   sched.ID,
		ExerciseName: sched.ExerciseName,
	}

	if sched.FCMToken == "" {
		d.Status = statusSkipped
		return d
	}

	if err := j.limiter.Wait(ctx); err != nil {
		d.Status = statusFailed
		d.Error = err.Error()
		return d
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	messageID, err := j.fcmClient.Send(sendCtx, sched.FCMToken, notificationFor(sched.ExerciseName))
	if err != nil {
		d.Status = statusFailed
		d.Error = err.Error()
		return d
	}

	d.Status = statusSent
	d.MessageID = messageID
	return d
}

// notificationFor はエクササイズ名から通知の内容を組み立てる。
func notificationFor(exerciseName string) fcm.Notification {
	body := "It's time for your meditation"
	if exerciseName != "" {
		body = fmt.Sprintf("It's time for your %s meditation", exerciseName)
	}
	return fcm.Notification{
		Title: "Time to Meditate",
		Body:  body,
	}
}

// record は送信結果をdeliveriesテーブルに記録する。
func (j *Job) record(ctx context.Context, d delivery) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO deliveries (id, schedule_id, exercise_name, status, message_id, error)
		VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), d.ScheduleID, d.ExerciseName, d.Status, d.MessageID, d.Error,
	)
	return err
}
