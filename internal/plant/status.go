package plant

import (
	"math"
	"time"
)

// StatusCode は水やり状況の分類を表す。
type StatusCode string

const (
	// StatusOnTrack は次回予定日まで2日以上ある状態。
	StatusOnTrack StatusCode = "on_track"
	// StatusDueSoon は次回予定日が今日または明日の状態。
	StatusDueSoon StatusCode = "due_soon"
	// StatusOverdue は次回予定日を過ぎた状態。
	StatusOverdue StatusCode = "overdue"
)

// dueSoonThresholdDays はこの日数未満でdue_soonとなる境界。
const dueSoonThresholdDays = 2

// Status は水やり状況の分類結果。
type Status struct {
	Code         StatusCode
	Label        string
	Severity     string // ok, warn, danger
	DaysUntilDue int
}

// ComputeStatus は最終水やり日と間隔から、todayの時点での水やり状況を求める。
// 両日付は時刻を切り捨てた暦日として比較する。
// 結果は「今日」に依存するため保存せず、リクエストごとに再計算する。
func ComputeStatus(lastWatered time.Time, intervalDays int, today time.Time) Status {
	next := NextWaterDate(lastWatered, intervalDays)
	delta := daysBetween(dateOnly(today), next)

	switch {
	case delta >= dueSoonThresholdDays:
		return Status{Code: StatusOnTrack, Label: "On track", Severity: "ok", DaysUntilDue: delta}
	case delta >= 0:
		return Status{Code: StatusDueSoon, Label: "Water soon", Severity: "warn", DaysUntilDue: delta}
	default:
		return Status{Code: StatusOverdue, Label: "Overdue", Severity: "danger", DaysUntilDue: delta}
	}
}

// NextWaterDate は最終水やり日に間隔日数を暦日で加算した日付を返す。
func NextWaterDate(lastWatered time.Time, intervalDays int) time.Time {
	return dateOnly(lastWatered).AddDate(0, 0, intervalDays)
}

// dateOnly はtの暦日をUTCの0時として返す。
func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// daysBetween はfromからtoまでの日数を返す。どちらもdateOnly済みであること。
func daysBetween(from, to time.Time) int {
	return int(math.Round(to.Sub(from).Hours() / 24))
}
