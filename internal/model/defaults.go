package model

// TeaDefaults はお茶の種類ごとの抽出パラメータと推奨時間帯の既定値。
type TeaDefaults struct {
	BrewTemperatureC float64
	GramsPerPot      float64
	BestTimeOfDay    []DayPart
}

var teaDefaults = map[TeaType]TeaDefaults{
	TeaTypeBlack:   {95, 12, []DayPart{DayPartMorning, DayPartMidday}},
	TeaTypeGreen:   {75, 8, []DayPart{DayPartMidday, DayPartAfternoon}},
	TeaTypeWhite:   {80, 8, []DayPart{DayPartAfternoon}},
	TeaTypeOolong:  {90, 10, []DayPart{DayPartMidday, DayPartAfternoon}},
	TeaTypePuErh:   {95, 10, []DayPart{DayPartMorning, DayPartMidday}},
	TeaTypeHerbal:  {100, 10, []DayPart{DayPartEvening}},
	TeaTypeFruit:   {100, 14, []DayPart{DayPartAfternoon, DayPartEvening}},
	TeaTypeRooibos: {100, 12, []DayPart{DayPartEvening}},
	TeaTypeMate:    {80, 12, []DayPart{DayPartMorning}},
	TeaTypeChai:    {95, 12, []DayPart{DayPartMorning, DayPartAfternoon}},
}

// fallbackDefaults は未知の種類（旧データ）に使う既定値。
var fallbackDefaults = TeaDefaults{
	BrewTemperatureC: 90,
	GramsPerPot:      10,
	BestTimeOfDay:    []DayPart{DayPartMorning, DayPartMidday, DayPartAfternoon, DayPartEvening},
}

// DefaultsFor はお茶の種類に対応する既定値を返す。
// 返却されるスライスは呼び出し側で変更してよい。
func DefaultsFor(t TeaType) TeaDefaults {
	d, ok := teaDefaults[t]
	if !ok {
		d = fallbackDefaults
	}
	d.BestTimeOfDay = append([]DayPart(nil), d.BestTimeOfDay...)
	return d
}

// ApplyBrewDefaults は未設定（0以下）の抽出パラメータに種類ごとの既定値を補う。
func ApplyBrewDefaults(t *Tea) {
	d := DefaultsFor(t.TeaType)
	if t.BrewTemperatureC <= 0 {
		t.BrewTemperatureC = d.BrewTemperatureC
	}
	if t.GramsPerPot <= 0 {
		t.GramsPerPot = d.GramsPerPot
	}
}

// BackfillTimeOfDay はbestTimeOfDayが空のお茶に種類ごとの既定値を補う。
// 入力スライスは変更せず、新しいスライスと変更有無を返す。
// 既に値を持つお茶には触れないため、2回適用しても結果は変わらない。
func BackfillTimeOfDay(teas []Tea) ([]Tea, bool) {
	out := make([]Tea, len(teas))
	changed := false
	for i, t := range teas {
		c := t.Clone()
		if len(c.BestTimeOfDay) == 0 {
			c.BestTimeOfDay = DefaultsFor(c.TeaType).BestTimeOfDay
			changed = true
		}
		out[i] = c
	}
	return out, changed
}
