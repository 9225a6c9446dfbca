// Package model はドメインモデルを定義する。
package model

import "time"

// TeaType はお茶の種類（閉じた列挙）を表す。
type TeaType string

const (
	TeaTypeBlack   TeaType = "schwarz"
	TeaTypeGreen   TeaType = "grün"
	TeaTypeWhite   TeaType = "weiß"
	TeaTypeOolong  TeaType = "oolong"
	TeaTypePuErh   TeaType = "pu-erh"
	TeaTypeHerbal  TeaType = "kräuter"
	TeaTypeFruit   TeaType = "früchte"
	TeaTypeRooibos TeaType = "rooibos"
	TeaTypeMate    TeaType = "mate"
	TeaTypeChai    TeaType = "chai"
)

// AllTeaTypes は定義済みのお茶の種類を表示順で返す。
func AllTeaTypes() []TeaType {
	return []TeaType{
		TeaTypeBlack, TeaTypeGreen, TeaTypeWhite, TeaTypeOolong, TeaTypePuErh,
		TeaTypeHerbal, TeaTypeFruit, TeaTypeRooibos, TeaTypeMate, TeaTypeChai,
	}
}

// Valid は定義済みの種類かどうかを返す。
func (t TeaType) Valid() bool {
	_, ok := teaDefaults[t]
	return ok
}

// Tea はカタログに登録された1種類のお茶を表す。
// JSONのフィールド名は既存のエクスポート形式（ドイツ語）に合わせている。
type Tea struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Manufacturer     string     `json:"hersteller,omitempty"`
	TeaType          TeaType    `json:"teeArt"`
	BrewTemperatureC float64    `json:"bruehtemperatur"`
	GramsPerPot      float64    `json:"grammAnzahl"`
	FillLevelPercent int        `json:"fuellstand"`
	LastConsumedAt   *time.Time `json:"zuletztGetrunken"`
	Rating           *int       `json:"bewertung,omitempty"`
	RatingUpdatedAt  *time.Time `json:"bewertungAktualisiert,omitempty"`
	BestTimeOfDay    []DayPart  `json:"tageszeit"`
	CreatedAt        *time.Time `json:"erstelltAm,omitempty"`
}

// IsConsumed は直近に飲まれた（ローテーションから外れている）かどうかを返す。
func (t Tea) IsConsumed() bool {
	return t.LastConsumedAt != nil
}

// Clone はポインタ・スライスを複製したコピーを返す。
func (t Tea) Clone() Tea {
	c := t
	if t.LastConsumedAt != nil {
		v := *t.LastConsumedAt
		c.LastConsumedAt = &v
	}
	if t.Rating != nil {
		v := *t.Rating
		c.Rating = &v
	}
	if t.RatingUpdatedAt != nil {
		v := *t.RatingUpdatedAt
		c.RatingUpdatedAt = &v
	}
	if t.CreatedAt != nil {
		v := *t.CreatedAt
		c.CreatedAt = &v
	}
	if t.BestTimeOfDay != nil {
		c.BestTimeOfDay = append([]DayPart(nil), t.BestTimeOfDay...)
	}
	return c
}

// ClampFillLevel は残量パーセントを0〜100に丸める。
func ClampFillLevel(percent int) int {
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}
	return percent
}
