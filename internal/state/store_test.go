package state

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/hitoshi/teerotation/internal/model"
	"github.com/hitoshi/teerotation/internal/rotation"
)

var fixedNow = time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)

type recordedChange struct {
	doc    model.Document
	origin Origin
}

// newTestStore は固定時刻と連番IDを使うStoreと通知記録を返す。
func newTestStore(t *testing.T) (*Store, *[]recordedChange) {
	t.Helper()
	seq := 0
	s := New(
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("tea-%d", seq)
		}),
	)
	var changes []recordedChange
	s.OnChange(func(doc model.Document, origin Origin) {
		changes = append(changes, recordedChange{doc: doc, origin: origin})
	})
	return s, &changes
}

func intPtr(v int) *int { return &v }

func assertAPIErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError, got %T (%v)", err, err)
	}
	if apiErr.Code != code {
		t.Errorf("error code = %q, want %q", apiErr.Code, code)
	}
}

func TestCreate_AssignsIDAndAppendsToQueue(t *testing.T) {
	s, changes := newTestStore(t)

	a, err := s.Create(TeaInput{Name: "Assam", TeaType: model.TeaTypeBlack})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	b, err := s.Create(TeaInput{Name: "Sencha", TeaType: model.TeaTypeGreen, FillLevelPercent: intPtr(45)})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if a.ID != "tea-1" || b.ID != "tea-2" {
		t.Errorf("ids = %q, %q", a.ID, b.ID)
	}
	doc := s.Document()
	if !reflect.DeepEqual(doc.Queue, []string{"tea-1", "tea-2"}) {
		t.Errorf("Queue = %v", doc.Queue)
	}
	if a.BrewTemperatureC != 95 || a.GramsPerPot != 12 || a.FillLevelPercent != 100 {
		t.Errorf("defaults not applied: %+v", a)
	}
	if b.FillLevelPercent != 45 {
		t.Errorf("FillLevelPercent = %d, want 45", b.FillLevelPercent)
	}
	if !reflect.DeepEqual(b.BestTimeOfDay, []model.DayPart{model.DayPartMidday, model.DayPartAfternoon}) {
		t.Errorf("BestTimeOfDay = %v", b.BestTimeOfDay)
	}
	if b.CreatedAt == nil || !b.CreatedAt.Equal(fixedNow) {
		t.Errorf("CreatedAt = %v", b.CreatedAt)
	}
	if len(*changes) != 2 || (*changes)[1].origin != OriginLocal {
		t.Errorf("expected 2 local notifications, got %+v", *changes)
	}
}

func TestCreate_DefaultIDIsUUIDv7(t *testing.T) {
	s := New()
	tea, err := s.Create(TeaInput{Name: "Mate", TeaType: model.TeaTypeMate})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if len(tea.ID) != 36 || tea.ID[14] != '7' {
		t.Errorf("expected UUIDv7, got %q", tea.ID)
	}
}

func TestCreate_Validation(t *testing.T) {
	s, changes := newTestStore(t)

	tests := []struct {
		name string
		in   TeaInput
	}{
		{"empty name", TeaInput{Name: "  ", TeaType: model.TeaTypeBlack}},
		{"markup-only name", TeaInput{Name: "<script>x</script>", TeaType: model.TeaTypeBlack}},
		{"unknown type", TeaInput{Name: "Kaffee", TeaType: "kaffee"}},
		{"unknown day part", TeaInput{Name: "Assam", TeaType: model.TeaTypeBlack, BestTimeOfDay: []model.DayPart{"nachts"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Create(tt.in)
			assertAPIErrorCode(t, err, model.ErrCodeInvalidTea)
		})
	}
	if len(*changes) != 0 {
		t.Errorf("invalid input must not notify, got %d", len(*changes))
	}
}

func TestCreate_SanitizesText(t *testing.T) {
	s, _ := newTestStore(t)

	tea, err := s.Create(TeaInput{Name: "<b>Earl Grey</b>", Manufacturer: "Tee & Co", TeaType: model.TeaTypeBlack})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if tea.Name != "Earl Grey" || tea.Manufacturer != "Tee & Co" {
		t.Errorf("sanitized = %q / %q", tea.Name, tea.Manufacturer)
	}
}

func TestUpdate_PreservesIDAndUnspecifiedFields(t *testing.T) {
	s, _ := newTestStore(t)
	created, _ := s.Create(TeaInput{Name: "Assam", TeaType: model.TeaTypeBlack, FillLevelPercent: intPtr(60)})
	if _, err := s.Rate(created.ID, 4); err != nil {
		t.Fatalf("Rate returned error: %v", err)
	}

	updated, err := s.Update(created.ID, TeaInput{Name: "Assam TGFOP", TeaType: model.TeaTypeBlack, BrewTemperatureC: 98})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}

	if updated.ID != created.ID {
		t.Errorf("ID changed: %q -> %q", created.ID, updated.ID)
	}
	if updated.Name != "Assam TGFOP" || updated.BrewTemperatureC != 98 || updated.GramsPerPot != 12 {
		t.Errorf("unexpected update result: %+v", updated)
	}
	if updated.FillLevelPercent != 60 {
		t.Errorf("FillLevelPercent = %d, want 60", updated.FillLevelPercent)
	}
	if updated.Rating == nil || *updated.Rating != 4 {
		t.Errorf("Rating = %v, want 4", updated.Rating)
	}
}

func TestUpdate_NotFound(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Update("missing", TeaInput{Name: "x", TeaType: model.TeaTypeBlack})
	assertAPIErrorCode(t, err, model.ErrCodeTeaNotFound)
}

func TestDelete_RemovesFromTeasAndQueue(t *testing.T) {
	s, _ := newTestStore(t)
	a, _ := s.Create(TeaInput{Name: "A", TeaType: model.TeaTypeBlack})
	b, _ := s.Create(TeaInput{Name: "B", TeaType: model.TeaTypeGreen})

	if err := s.Delete(a.ID); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}

	doc := s.Document()
	if len(doc.Teas) != 1 || doc.Teas[0].ID != b.ID {
		t.Errorf("Teas = %+v", doc.Teas)
	}
	if !reflect.DeepEqual(doc.Queue, []string{b.ID}) {
		t.Errorf("Queue = %v", doc.Queue)
	}

	assertAPIErrorCode(t, s.Delete(a.ID), model.ErrCodeTeaNotFound)
}

func TestRate_SetsRatingWithoutRangeCheck(t *testing.T) {
	s, _ := newTestStore(t)
	tea, _ := s.Create(TeaInput{Name: "A", TeaType: model.TeaTypeBlack})

	rated, err := s.Rate(tea.ID, 5)
	if err != nil {
		t.Fatalf("Rate returned error: %v", err)
	}
	if *rated.Rating != 5 || rated.RatingUpdatedAt == nil {
		t.Errorf("rated = %+v", rated)
	}
}

func TestSetFillLevel_Clamps(t *testing.T) {
	s, _ := newTestStore(t)
	tea, _ := s.Create(TeaInput{Name: "A", TeaType: model.TeaTypeBlack})

	got, err := s.SetFillLevel(tea.ID, 140)
	if err != nil {
		t.Fatalf("SetFillLevel returned error: %v", err)
	}
	if got.FillLevelPercent != 100 {
		t.Errorf("FillLevelPercent = %d, want 100", got.FillLevelPercent)
	}
}

func TestSelect_SingleTeaLeavesNoCurrent(t *testing.T) {
	s, _ := newTestStore(t)
	s.Load(model.Document{
		Teas:  []model.Tea{{ID: "a", Name: "Assam", TeaType: model.TeaTypeBlack}},
		Queue: []string{"a"},
	})

	if _, err := s.Select("a"); err != nil {
		t.Fatalf("Select returned error: %v", err)
	}

	if got := rotation.Available(s.Teas()); len(got) != 0 {
		t.Errorf("available = %+v, want empty", got)
	}
	view := s.Rotation(fixedNow)
	if !view.Empty || view.Current != nil {
		t.Errorf("expected empty rotation, got %+v", view)
	}
}

func TestSelect_MovesToQueueTailAndResetsCursor(t *testing.T) {
	s, _ := newTestStore(t)
	s.Load(model.Document{
		Teas: []model.Tea{
			{ID: "a", Name: "A", TeaType: model.TeaTypeBlack},
			{ID: "b", Name: "B", TeaType: model.TeaTypeChai},
			{ID: "c", Name: "C", TeaType: model.TeaTypeMate},
		},
		Queue: []string{"a", "b", "c"},
	})
	s.Skip()
	s.Skip()

	selected, err := s.Select("a")
	if err != nil {
		t.Fatalf("Select returned error: %v", err)
	}
	if selected.LastConsumedAt == nil || !selected.LastConsumedAt.Equal(fixedNow) {
		t.Errorf("LastConsumedAt = %v", selected.LastConsumedAt)
	}
	if s.Cursor() != 0 {
		t.Errorf("Cursor = %d, want 0", s.Cursor())
	}
	if q := s.Document().Queue; !reflect.DeepEqual(q, []string{"b", "c", "a"}) {
		t.Errorf("Queue = %v", q)
	}
	for _, tea := range rotation.Available(s.Teas()) {
		if tea.ID == "a" {
			t.Error("selected tea must not be available")
		}
	}
}

func TestSkip_AdvancesCursorWithoutNotifying(t *testing.T) {
	s, changes := newTestStore(t)
	s.Load(model.Document{
		Teas: []model.Tea{
			{ID: "a", TeaType: model.TeaTypeBlack},
			{ID: "b", TeaType: model.TeaTypeChai},
		},
	})

	start := s.Rotation(fixedNow).Current.ID
	for k := 1; k <= 3; k++ {
		if got := s.Skip(); got != k {
			t.Errorf("Skip() = %d, want %d", got, k)
		}
	}

	suggested := rotation.Suggested(s.Teas(), fixedNow)
	want := suggested[3%len(suggested)].ID
	if got := s.Rotation(fixedNow).Current.ID; got != want {
		t.Errorf("current after 3 skips = %q, want %q (start %q)", got, want, start)
	}
	if len(*changes) != 0 {
		t.Errorf("Skip must not notify, got %d notifications", len(*changes))
	}
}

func TestResetRotation_ClearsConsumed(t *testing.T) {
	s, _ := newTestStore(t)
	consumed := fixedNow.Add(-time.Hour)
	s.Load(model.Document{Teas: []model.Tea{
		{ID: "a", TeaType: model.TeaTypeBlack, LastConsumedAt: &consumed},
		{ID: "b", TeaType: model.TeaTypeGreen, LastConsumedAt: &consumed},
	}})
	s.Skip()

	if err := s.ResetRotation(); err != nil {
		t.Fatalf("ResetRotation returned error: %v", err)
	}
	if got := len(rotation.Available(s.Teas())); got != 2 {
		t.Errorf("available = %d, want 2", got)
	}
	if s.Cursor() != 0 {
		t.Errorf("Cursor = %d, want 0", s.Cursor())
	}
}

func TestLoad_NormalizesQueueWithoutNotifying(t *testing.T) {
	s, changes := newTestStore(t)
	s.Load(model.Document{
		Teas:  []model.Tea{{ID: "a"}, {ID: "b"}},
		Queue: []string{"b", "gone"},
	})

	if q := s.Document().Queue; !reflect.DeepEqual(q, []string{"b", "a"}) {
		t.Errorf("Queue = %v", q)
	}
	if len(*changes) != 0 {
		t.Errorf("Load must not notify, got %d", len(*changes))
	}
}

func TestApplyRemote_OverwritesAndNotifiesRemoteOrigin(t *testing.T) {
	s, changes := newTestStore(t)
	s.Create(TeaInput{Name: "Local", TeaType: model.TeaTypeBlack})

	remote := model.Document{Teas: []model.Tea{{ID: "r", Name: "Remote", TeaType: model.TeaTypeGreen}}}
	s.ApplyRemote(remote)

	doc := s.Document()
	if len(doc.Teas) != 1 || doc.Teas[0].ID != "r" {
		t.Errorf("Teas = %+v", doc.Teas)
	}
	last := (*changes)[len(*changes)-1]
	if last.origin != OriginRemote {
		t.Errorf("origin = %v, want remote", last.origin)
	}
}

func TestImport_ReplacesDocument(t *testing.T) {
	s, changes := newTestStore(t)
	s.Create(TeaInput{Name: "Old", TeaType: model.TeaTypeBlack})

	s.Import(model.Document{Teas: []model.Tea{{ID: "x", Name: "Sencha", TeaType: model.TeaTypeGreen}}})

	doc := s.Document()
	if len(doc.Teas) != 1 || !reflect.DeepEqual(doc.Queue, []string{"x"}) {
		t.Errorf("doc = %+v", doc)
	}
	if (*changes)[len(*changes)-1].origin != OriginLocal {
		t.Error("import must count as a local change")
	}
}

func TestImport_DuplicateIDsAreCollapsed(t *testing.T) {
	s, _ := newTestStore(t)

	s.Import(model.Document{Teas: []model.Tea{
		{ID: "x", Name: "Sencha", TeaType: model.TeaTypeGreen},
		{ID: "x", Name: "Sencha again", TeaType: model.TeaTypeGreen},
	}})
	if teas := s.Teas(); len(teas) != 1 || teas[0].Name != "Sencha" {
		t.Fatalf("Teas = %+v, want single Sencha", teas)
	}

	if err := s.Delete("x"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	doc := s.Document()
	if len(doc.Teas) != 0 || len(doc.Queue) != 0 {
		t.Errorf("doc after delete = %+v, want empty", doc)
	}
}

func TestApplyRemote_DuplicateIDsAreCollapsed(t *testing.T) {
	s, _ := newTestStore(t)

	s.ApplyRemote(model.Document{
		Teas: []model.Tea{
			{ID: "r", Name: "Oolong", TeaType: model.TeaTypeOolong},
			{ID: "r", Name: "Oolong", TeaType: model.TeaTypeOolong},
		},
		Queue: []string{"r", "r"},
	})

	doc := s.Document()
	if len(doc.Teas) != 1 || !reflect.DeepEqual(doc.Queue, []string{"r"}) {
		t.Errorf("doc = %+v, want one tea and queue [r]", doc)
	}
}

func TestDocument_ReturnsCopy(t *testing.T) {
	s, _ := newTestStore(t)
	s.Create(TeaInput{Name: "A", TeaType: model.TeaTypeBlack})

	doc := s.Document()
	doc.Teas[0].Name = "changed"

	if s.Teas()[0].Name != "A" {
		t.Error("Document must return a copy")
	}
}

func TestOrigin_String(t *testing.T) {
	if OriginLocal.String() != "local" || OriginRemote.String() != "remote" {
		t.Errorf("unexpected names: %s %s", OriginLocal, OriginRemote)
	}
}
