package timeslot

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// weekdays は正規化された曜日名（月曜始まり）。
var weekdays = []string{
	"Monday",
	"Tuesday",
	"Wednesday",
	"Thursday",
	"Friday",
	"Saturday",
	"Sunday",
}

// Days は正規化された曜日名の一覧を月曜始まりで返す。
// 返り値のスライスは呼び出し側で変更してよい。
func Days() []string {
	days := make([]string, len(weekdays))
	copy(days, weekdays)
	return days
}

// DayOf は時刻から正規化された曜日名（例: "Wednesday"）を導出する。
func DayOf(t time.Time) string {
	return t.Weekday().String()
}

// Format は時刻を24時間・ゼロ埋めの "HH:MM" 形式に変換する。
func Format(t time.Time) string {
	return t.Format("15:04")
}

// ParseDay は曜日名を検証し、正規化された表記を返す。
// 大文字小文字は区別せず、前後の空白は無視する。
func ParseDay(s string) (string, error) {
	trimmed := strings.TrimSpace(s)
	for _, d := range weekdays {
		if strings.EqualFold(trimmed, d) {
			return d, nil
		}
	}
	return "", fmt.Errorf("不正な曜日です: %q", s)
}

// ParseTime は "H:MM" や "HH:MM" 形式の時刻文字列を検証し、
// ゼロ埋めされた24時間表記の "HH:MM" に正規化する。
func ParseTime(s string) (string, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("不正な時刻です: %q（HH:MM形式で指定してください）", s)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("不正な時です: %q", s)
	}

	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("不正な分です: %q", s)
	}

	return fmt.Sprintf("%02d:%02d", hour, minute), nil
}

// SortDays は曜日名のスライスを月曜始まりの正規順に並べ替えた新しいスライスを返す。
// 正規化されていない曜日名は末尾に回る。
func SortDays(days []string) []string {
	order := make(map[string]int, len(weekdays))
	for i, d := range weekdays {
		order[d] = i
	}

	rank := func(day string) int {
		if i, ok := order[day]; ok {
			return i
		}
		return len(weekdays)
	}

	sorted := make([]string, len(days))
	copy(sorted, days)
	sort.SliceStable(sorted, func(i, j int) bool {
		return rank(sorted[i]) < rank(sorted[j])
	})
	return sorted
}
