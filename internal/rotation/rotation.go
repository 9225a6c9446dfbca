// Package rotation は未消費のお茶から「今の1杯」を導出するローテーションロジックを提供する。
// 状態は持たず、お茶の一覧・カーソル・現在時刻から毎回導出する。
package rotation

import (
	"slices"
	"time"

	"github.com/hitoshi/teerotation/internal/model"
)

var recommendedTypes = map[model.DayPart][]model.TeaType{
	model.DayPartMorning:   {model.TeaTypeBlack, model.TeaTypeChai, model.TeaTypeMate, model.TeaTypePuErh},
	model.DayPartMidday:    {model.TeaTypeGreen, model.TeaTypeOolong, model.TeaTypeBlack},
	model.DayPartAfternoon: {model.TeaTypeWhite, model.TeaTypeGreen, model.TeaTypeOolong, model.TeaTypeFruit, model.TeaTypeChai},
	model.DayPartEvening:   {model.TeaTypeHerbal, model.TeaTypeRooibos, model.TeaTypeFruit},
}

// RecommendedTypes は時間帯に推奨されるお茶の種類を返す。
func RecommendedTypes(part model.DayPart) []model.TeaType {
	return slices.Clone(recommendedTypes[part])
}

// Available はlastConsumedAtが未設定のお茶をコレクション順で返す。
func Available(teas []model.Tea) []model.Tea {
	out := make([]model.Tea, 0, len(teas))
	for _, t := range teas {
		if !t.IsConsumed() {
			out = append(out, t)
		}
	}
	return out
}

// Recommended はavailableのうち時間帯の推奨種類に該当するものを返す。
func Recommended(available []model.Tea, part model.DayPart) []model.Tea {
	types := recommendedTypes[part]
	out := make([]model.Tea, 0, len(available))
	for _, t := range available {
		if slices.Contains(types, t.TeaType) {
			out = append(out, t)
		}
	}
	return out
}

// Suggested は推奨に該当するお茶があればそれを、無ければavailable全体を返す。
func Suggested(teas []model.Tea, now time.Time) []model.Tea {
	available := Available(teas)
	if rec := Recommended(available, model.DayPartAt(now)); len(rec) > 0 {
		return rec
	}
	return available
}

// Current はsuggested[cursor mod len]を返す。候補が無い場合はfalseを返す。
func Current(teas []model.Tea, cursor int, now time.Time) (model.Tea, bool) {
	suggested := Suggested(teas, now)
	if len(suggested) == 0 {
		return model.Tea{}, false
	}
	return suggested[index(cursor, len(suggested))], true
}

func index(cursor, n int) int {
	i := cursor % n
	if i < 0 {
		i += n
	}
	return i
}

// View はUIに返すローテーションの表示状態。
// Emptyは「候補なし」を表し、読み込み中とは区別される。
type View struct {
	Current          *model.Tea      `json:"current"`
	Empty            bool            `json:"empty"`
	Cursor           int             `json:"cursor"`
	DayPart          model.DayPart   `json:"dayPart"`
	RecommendedTypes []model.TeaType `json:"recommendedTypes"`
	FromRecommended  bool            `json:"fromRecommended"`
	TotalCount       int             `json:"totalCount"`
	AvailableCount   int             `json:"availableCount"`
	SuggestedCount   int             `json:"suggestedCount"`
}

// Build はお茶の一覧とカーソルからViewを組み立てる。
func Build(teas []model.Tea, cursor int, now time.Time) View {
	part := model.DayPartAt(now)
	available := Available(teas)
	recommended := Recommended(available, part)

	suggested := available
	if len(recommended) > 0 {
		suggested = recommended
	}

	v := View{
		Cursor:           cursor,
		DayPart:          part,
		RecommendedTypes: RecommendedTypes(part),
		FromRecommended:  len(recommended) > 0,
		TotalCount:       len(teas),
		AvailableCount:   len(available),
		SuggestedCount:   len(suggested),
	}
	if len(suggested) == 0 {
		v.Empty = true
		return v
	}
	cur := suggested[index(cursor, len(suggested))].Clone()
	v.Current = &cur
	return v
}
