package model

import "time"

// Sunlight は植物の日照条件を表す。
type Sunlight string

const (
	SunlightLow    Sunlight = "low"
	SunlightMedium Sunlight = "medium"
	SunlightHigh   Sunlight = "high"
)

// DefaultSunlight は日照条件が未指定の場合の値。
const DefaultSunlight = SunlightMedium

// Valid は閉じた集合に含まれる値かどうかを返す。
func (s Sunlight) Valid() bool {
	switch s {
	case SunlightLow, SunlightMedium, SunlightHigh:
		return true
	default:
		return false
	}
}

// Plant はユーザーが管理する植物レコードを表す。
// 所有者（UserID）以外からは参照も変更もできない。
type Plant struct {
	ID           string
	UserID       string
	Name         string
	Species      string
	LastWatered  time.Time // 日付のみ意味を持つ（UTC 00:00）
	IntervalDays int
	Sunlight     Sunlight
	Indoors      bool
	Notes        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NextWaterDate は次回の水やり予定日を返す。保存はしない。
func (p *Plant) NextWaterDate() time.Time {
	return p.LastWatered.AddDate(0, 0, p.IntervalDays)
}

// PlantFields は作成・更新時にクライアントが指定できるフィールド。
type PlantFields struct {
	Name         string
	Species      string
	LastWatered  time.Time
	IntervalDays int
	Sunlight     Sunlight
	Indoors      bool
	Notes        string
}
