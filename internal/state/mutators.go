package state

import (
	"time"

	"github.com/hitoshi/teerotation/internal/model"
)

// TeaInput はお茶の作成・更新時の入力値。
// 抽出パラメータが0以下の場合は種類ごとの既定値を補う。
type TeaInput struct {
	Name             string          `json:"name"`
	Manufacturer     string          `json:"hersteller"`
	TeaType          model.TeaType   `json:"teeArt"`
	BrewTemperatureC float64         `json:"bruehtemperatur"`
	GramsPerPot      float64         `json:"grammAnzahl"`
	FillLevelPercent *int            `json:"fuellstand"`
	BestTimeOfDay    []model.DayPart `json:"tageszeit"`
	Rating           *int            `json:"bewertung"`
	LastConsumedAt   *time.Time      `json:"zuletztGetrunken"`
}

// normalize はテキストをサニタイズし、必須項目と列挙値を検証する。
func (s *Store) normalize(in TeaInput) (TeaInput, error) {
	in.Name = s.sanitizer.SanitizeText(in.Name)
	in.Manufacturer = s.sanitizer.SanitizeText(in.Manufacturer)

	if in.Name == "" {
		return in, model.NewInvalidTeaError("名前は必須です")
	}
	if !in.TeaType.Valid() {
		return in, model.NewInvalidTeaError("不明なお茶の種類です: " + string(in.TeaType))
	}
	for _, p := range in.BestTimeOfDay {
		if !p.Valid() {
			return in, model.NewInvalidTeaError("不明な時間帯です: " + string(p))
		}
	}
	return in, nil
}

// Create は新しいお茶を登録し、キューの末尾に追加する。
func (s *Store) Create(in TeaInput) (model.Tea, error) {
	in, err := s.normalize(in)
	if err != nil {
		return model.Tea{}, err
	}

	now := s.now()
	tea := model.Tea{
		ID:               s.newID(),
		Name:             in.Name,
		Manufacturer:     in.Manufacturer,
		TeaType:          in.TeaType,
		BrewTemperatureC: in.BrewTemperatureC,
		GramsPerPot:      in.GramsPerPot,
		FillLevelPercent: 100,
		LastConsumedAt:   in.LastConsumedAt,
		BestTimeOfDay:    in.BestTimeOfDay,
		CreatedAt:        &now,
	}
	model.ApplyBrewDefaults(&tea)
	if in.FillLevelPercent != nil {
		tea.FillLevelPercent = model.ClampFillLevel(*in.FillLevelPercent)
	}
	if len(tea.BestTimeOfDay) == 0 {
		tea.BestTimeOfDay = model.DefaultsFor(tea.TeaType).BestTimeOfDay
	}
	if in.Rating != nil {
		r := *in.Rating
		tea.Rating = &r
		tea.RatingUpdatedAt = &now
	}

	err = s.mutate(OriginLocal, func(d *model.Document) error {
		d.Teas = append(d.Teas, tea)
		d.Queue = append(d.Queue, tea.ID)
		return nil
	})
	return tea.Clone(), err
}

// Update は指定IDのお茶のフィールドを置き換える。IDは変更されない。
// 残量・時間帯・評価・最終消費日時は入力で指定された場合のみ置き換える。
func (s *Store) Update(id string, in TeaInput) (model.Tea, error) {
	in, err := s.normalize(in)
	if err != nil {
		return model.Tea{}, err
	}

	var updated model.Tea
	err = s.mutate(OriginLocal, func(d *model.Document) error {
		i := d.FindTea(id)
		if i < 0 {
			return model.NewTeaNotFoundError(id)
		}
		t := d.Teas[i]
		t.Name = in.Name
		t.Manufacturer = in.Manufacturer
		t.TeaType = in.TeaType
		t.BrewTemperatureC = in.BrewTemperatureC
		t.GramsPerPot = in.GramsPerPot
		model.ApplyBrewDefaults(&t)

		if in.FillLevelPercent != nil {
			t.FillLevelPercent = model.ClampFillLevel(*in.FillLevelPercent)
		}
		if len(in.BestTimeOfDay) > 0 {
			t.BestTimeOfDay = in.BestTimeOfDay
		}
		if in.Rating != nil && (t.Rating == nil || *t.Rating != *in.Rating) {
			r := *in.Rating
			now := s.now()
			t.Rating = &r
			t.RatingUpdatedAt = &now
		}
		if in.LastConsumedAt != nil {
			v := *in.LastConsumedAt
			t.LastConsumedAt = &v
		}

		d.Teas[i] = t
		updated = t.Clone()
		return nil
	})
	return updated, err
}

// Delete は指定IDのお茶をteasとqueueの両方から削除する。
func (s *Store) Delete(id string) error {
	return s.mutate(OriginLocal, func(d *model.Document) error {
		i := d.FindTea(id)
		if i < 0 {
			return model.NewTeaNotFoundError(id)
		}
		d.Teas = append(d.Teas[:i], d.Teas[i+1:]...)
		d.Queue = model.ReconcileQueue(d.Teas, d.Queue)
		return nil
	})
}

// Rate は評価と評価日時を設定する。範囲検証は入力層で行う。
func (s *Store) Rate(id string, rating int) (model.Tea, error) {
	return s.updateTea(id, func(t *model.Tea) {
		now := s.now()
		t.Rating = &rating
		t.RatingUpdatedAt = &now
	})
}

// SetFillLevel は残量パーセントを0〜100に丸めて設定する。
func (s *Store) SetFillLevel(id string, percent int) (model.Tea, error) {
	return s.updateTea(id, func(t *model.Tea) {
		t.FillLevelPercent = model.ClampFillLevel(percent)
	})
}

// Select はお茶を「飲んだ」として記録する。
// lastConsumedAtを現在時刻にし、IDをキュー末尾へ移動し、カーソルを0に戻す。
func (s *Store) Select(id string) (model.Tea, error) {
	var selected model.Tea
	err := s.mutate(OriginLocal, func(d *model.Document) error {
		i := d.FindTea(id)
		if i < 0 {
			return model.NewTeaNotFoundError(id)
		}
		now := s.now()
		d.Teas[i].LastConsumedAt = &now
		d.Queue = model.MoveToQueueTail(model.ReconcileQueue(d.Teas, d.Queue), id)
		s.cursor = 0
		selected = d.Teas[i].Clone()
		return nil
	})
	return selected, err
}

// Skip はカーソルを1つ進める。ドキュメントは変更しないため通知も永続化も行わない。
func (s *Store) Skip() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursor++
	return s.cursor
}

// ResetRotation はすべてのお茶のlastConsumedAtを消去し、カーソルを0に戻す。
func (s *Store) ResetRotation() error {
	return s.mutate(OriginLocal, func(d *model.Document) error {
		for i := range d.Teas {
			d.Teas[i].LastConsumedAt = nil
		}
		s.cursor = 0
		return nil
	})
}

func (s *Store) updateTea(id string, fn func(t *model.Tea)) (model.Tea, error) {
	var updated model.Tea
	err := s.mutate(OriginLocal, func(d *model.Document) error {
		i := d.FindTea(id)
		if i < 0 {
			return model.NewTeaNotFoundError(id)
		}
		fn(&d.Teas[i])
		updated = d.Teas[i].Clone()
		return nil
	})
	return updated, err
}
