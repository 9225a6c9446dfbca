package model

import "time"

// DayPart は1日の時間帯（4区分）を表す。
type DayPart string

const (
	DayPartMorning   DayPart = "morgens"
	DayPartMidday    DayPart = "mittags"
	DayPartAfternoon DayPart = "nachmittags"
	DayPartEvening   DayPart = "abends"
)

// DayPartAt は時刻から時間帯を判定する。
// 境界は6時/11時/15時/18時で、18時〜翌6時は夕方扱い（日付をまたいで循環）。
func DayPartAt(t time.Time) DayPart {
	h := t.Hour()
	switch {
	case h >= 6 && h < 11:
		return DayPartMorning
	case h >= 11 && h < 15:
		return DayPartMidday
	case h >= 15 && h < 18:
		return DayPartAfternoon
	default:
		return DayPartEvening
	}
}

// Valid は定義済みの時間帯かどうかを返す。
func (d DayPart) Valid() bool {
	switch d {
	case DayPartMorning, DayPartMidday, DayPartAfternoon, DayPartEvening:
		return true
	}
	return false
}
