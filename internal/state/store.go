// Package state はお茶のコレクションとローテーションキューを保持する
// アプリケーション状態を提供する。
//
// ドキュメント {teas, queue} の変更はすべてStoreの名前付き操作を経由し、
// teasとqueueの整合性はここで維持される。変更後は登録されたリスナーに
// 変更元（ローカル操作かリモート通知か）と共に通知される。
package state

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/teerotation/internal/model"
	"github.com/hitoshi/teerotation/internal/rotation"
	"github.com/hitoshi/teerotation/internal/security"
)

// Origin はドキュメント変更の発生元を表す。
type Origin int

const (
	// OriginLocal はこの端末での操作による変更。
	OriginLocal Origin = iota
	// OriginRemote はリモートの変更通知を適用したことによる変更。
	OriginRemote
)

// String はログ出力用の名前を返す。
func (o Origin) String() string {
	switch o {
	case OriginLocal:
		return "local"
	case OriginRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// Listener はドキュメント変更の通知を受け取る関数。
// docは呼び出し側が自由に扱ってよいコピー。
// リスナー内からStoreの変更操作を呼んではならない（デッドロックする）。
type Listener func(doc model.Document, origin Origin)

// Store はアプリケーション全体で1つだけ存在する状態ホルダー。
type Store struct {
	// writeMu は変更操作と通知を直列化し、通知順序を変更順序と一致させる。
	writeMu sync.Mutex

	mu        sync.RWMutex
	doc       model.Document
	cursor    int
	listeners []Listener

	now       func() time.Time
	newID     func() string
	sanitizer security.TextSanitizer
}

// Option はStoreの生成オプション。
type Option func(*Store)

// WithClock は現在時刻の取得関数を差し替える。テスト用。
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator はID生成関数を差し替える。テスト用。
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

// WithSanitizer は自由入力テキストのサニタイザーを差し替える。
func WithSanitizer(sanitizer security.TextSanitizer) Option {
	return func(s *Store) { s.sanitizer = sanitizer }
}

// New は空のドキュメントを持つStoreを生成する。
func New(opts ...Option) *Store {
	s := &Store{
		doc:       model.EmptyDocument(),
		now:       time.Now,
		newID:     newTeaID,
		sanitizer: security.NewTextSanitizer(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// newTeaID は時刻順＋乱数のUUIDv7を生成する。
func newTeaID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// OnChange はドキュメント変更のリスナーを登録する。
func (s *Store) OnChange(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Document は現在のドキュメントのコピーを返す。
func (s *Store) Document() model.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Clone()
}

// Teas はお茶の一覧のコピーをコレクション順で返す。
func (s *Store) Teas() []model.Tea {
	return s.Document().Teas
}

// Tea は指定IDのお茶を返す。
func (s *Store) Tea(id string) (model.Tea, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.doc.FindTea(id)
	if i < 0 {
		return model.Tea{}, model.NewTeaNotFoundError(id)
	}
	return s.doc.Teas[i].Clone(), nil
}

// Cursor は現在のローテーションカーソルを返す。
func (s *Store) Cursor() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor
}

// Rotation は指定時刻におけるローテーションの表示状態を返す。
func (s *Store) Rotation(now time.Time) rotation.View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return rotation.Build(s.doc.Teas, s.cursor, now)
}

// Load は起動時に解決したドキュメントを読み込む。リスナーには通知しない。
func (s *Store) Load(doc model.Document) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.doc = doc.Normalize()
	s.cursor = 0
	s.mu.Unlock()
}

// ApplyRemote はリモートから通知されたドキュメントで状態を無条件に上書きする（後勝ち）。
func (s *Store) ApplyRemote(doc model.Document) {
	s.mutate(OriginRemote, func(d *model.Document) error {
		*d = doc.Normalize()
		return nil
	})
}

// Import はドキュメント全体を置き換える（破壊的、マージしない）。
func (s *Store) Import(doc model.Document) {
	s.mutate(OriginLocal, func(d *model.Document) error {
		*d = doc.Normalize()
		s.cursor = 0
		return nil
	})
}

// mutate はドキュメントのコピーにfnを適用し、成功した場合のみ反映してリスナーに通知する。
func (s *Store) mutate(origin Origin, fn func(d *model.Document) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	next := s.doc.Clone()
	if err := fn(&next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.doc = next
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	for _, l := range listeners {
		l(next.Clone(), origin)
	}
	return nil
}
