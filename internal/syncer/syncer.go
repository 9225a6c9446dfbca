// Package syncer はローカルとリモートのドキュメントを同期する。
//
// 起動時はリモートを無条件に優先し（無ければローカル）、以降はローカル変更を
// 即座にローカルストアへ書き込みつつ、デバウンスしてリモートへupsertする。
// リモートの変更通知は後勝ちで状態を上書きする。競合解決は行わない。
package syncer

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hitoshi/teerotation/internal/metrics"
	"github.com/hitoshi/teerotation/internal/model"
	"github.com/hitoshi/teerotation/internal/state"
)

// LocalStore は端末ローカルのドキュメント永続化。
// Saveの失敗は実装側でログに記録し、呼び出し側には返さない。
type LocalStore interface {
	Load() model.Document
	Save(doc model.Document)
}

// RemoteStore は共有ドキュメントのリモート永続化と変更通知。
type RemoteStore interface {
	LoadRemote(ctx context.Context) *model.RemoteDocument
	SaveRemote(ctx context.Context, teas []model.Tea, queue []string) bool
	Subscribe(ctx context.Context, onChange func(model.RemoteDocument)) (func(), error)
}

// Options は同期処理の設定。
type Options struct {
	// Debounce はローカル変更からリモートへのpushまでの静止期間。
	Debounce time.Duration
	// RemoteTimeout はリモート呼び出し1回あたりのタイムアウト。
	RemoteTimeout time.Duration
}

// Source は起動時に採用したドキュメントの取得元。
type Source string

const (
	SourceRemote Source = "remote"
	SourceLocal  Source = "local"
)

// Synchronizer はstate.Storeとローカル・リモートのストアを仲介する。
//
// pushは同時に1つしか実行されない（pushMuで直列化）。
// 各pushは送信時点の最新ドキュメントを送るため、デバウンス中の途中状態は個別に送られない。
// Initが完了するまではstoreの変更を永続化せず、リモートの通知は最新の1件だけ保留する。
type Synchronizer struct {
	store   *state.Store
	local   LocalStore
	remote  RemoteStore
	status  *StatusTracker
	metrics metrics.MetricsCollector
	logger  *slog.Logger

	debounce      time.Duration
	remoteTimeout time.Duration

	mu          sync.Mutex
	timer       *time.Timer
	timerGen    uint64
	pending     bool
	closed      bool
	unsubscribe func()

	initialized atomic.Bool
	// remoteMu はリモート通知の適用とInitの引き継ぎを直列化する。
	remoteMu sync.Mutex
	early    *model.RemoteDocument

	pushMu sync.Mutex
}

// New はSynchronizerを生成し、storeの変更を購読する。
// remoteがnilの場合はローカルのみで動作する。collectorはnilでもよい。
func New(
	store *state.Store,
	local LocalStore,
	remote RemoteStore,
	status *StatusTracker,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	opts Options,
) *Synchronizer {
	if opts.Debounce <= 0 {
		opts.Debounce = 2 * time.Second
	}
	if opts.RemoteTimeout <= 0 {
		opts.RemoteTimeout = 10 * time.Second
	}
	if status == nil {
		status = NewStatusTracker(0)
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Synchronizer{
		store:         store,
		local:         local,
		remote:        remote,
		status:        status,
		metrics:       collector,
		logger:        logger,
		debounce:      opts.Debounce,
		remoteTimeout: opts.RemoteTimeout,
	}
	store.OnChange(s.handleChange)
	return s
}

// Status は同期状態のトラッカーを返す。
func (s *Synchronizer) Status() *StatusTracker {
	return s.status
}

// RemoteEnabled はリモート同期が有効かどうかを返す。
func (s *Synchronizer) RemoteEnabled() bool {
	return s.remote != nil
}

// Init は起動時の状態を解決してstoreに読み込む。
//
// リモートにドキュメントがあればそれを無条件に採用し、無ければローカルを使う。
// どちらの場合もbestTimeOfDayの補完を1回行い、リモート由来で補完が発生した場合は
// 補完後のドキュメントを即座にリモートへ書き戻す。最後に解決結果をローカルに保存する。
// Startを先に呼んでいた場合、解決中に届いたリモートの変更は解決後に適用する。
func (s *Synchronizer) Init(ctx context.Context) Source {
	source := SourceLocal
	var doc model.Document

	if s.remote != nil {
		rctx, cancel := context.WithTimeout(ctx, s.remoteTimeout)
		remoteDoc := s.remote.LoadRemote(rctx)
		cancel()
		if remoteDoc != nil {
			doc = remoteDoc.Document
			source = SourceRemote
		}
	}
	if source == SourceLocal {
		doc = s.local.Load()
	}

	teas, migrated := model.BackfillTimeOfDay(doc.Teas)
	doc.Teas = teas
	doc = doc.Normalize()

	s.store.Load(doc)
	s.setTeaCount(len(doc.Teas))

	s.logger.Info("ドキュメントを読み込みました",
		slog.String("source", string(source)),
		slog.Int("tea_count", len(doc.Teas)),
		slog.Bool("migrated", migrated),
	)

	if source == SourceRemote && migrated {
		// 書き戻しで上書きされる変更は破棄する
		s.remoteMu.Lock()
		s.early = nil
		s.remoteMu.Unlock()
		s.push(ctx, metrics.TriggerMigration)
	}

	s.local.Save(doc)

	s.remoteMu.Lock()
	defer s.remoteMu.Unlock()
	s.initialized.Store(true)
	if early := s.early; early != nil {
		s.early = nil
		s.applyRemoteLocked(*early)
	}
	return source
}

// Start はリモートの変更通知の購読を開始する。
// Initより前に呼ぶと、リモート読み込みとの間に届いた変更も取りこぼさない。
// リモートが無効の場合は何もしない。購読に失敗した場合はエラーを返し、ローカルのみで動作を続ける。
func (s *Synchronizer) Start(ctx context.Context) error {
	if s.remote == nil {
		return nil
	}
	unsubscribe, err := s.remote.Subscribe(ctx, s.applyRemote)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		unsubscribe()
		return nil
	}
	s.unsubscribe = unsubscribe
	s.mu.Unlock()
	return nil
}

// SyncNow は手動同期を行う。
// お茶が1件も無い場合はネットワーク呼び出しの前にNOTHING_TO_SYNCエラーを返す。
func (s *Synchronizer) SyncNow(ctx context.Context) error {
	if len(s.store.Teas()) == 0 {
		return model.NewNothingToSyncError()
	}
	if s.remote == nil {
		return model.NewRemoteDisabledError()
	}

	s.cancelPending()
	if !s.push(ctx, metrics.TriggerManual) {
		return model.NewSyncFailedError()
	}
	return nil
}

// Close は購読を解除し、保留中のデバウンスpushがあれば1回だけ送信する。
func (s *Synchronizer) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	pending := s.pending
	s.pending = false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if pending && len(s.store.Teas()) > 0 {
		s.push(context.Background(), metrics.TriggerDebounce)
	}
	s.status.Stop()
}

// handleChange はstoreの変更ごとに呼ばれる。
// ローカルストアへ即座に書き込み、ローカル由来の変更であればpushを予約する。
// Init完了前の変更はInitのstore.Loadで置き換えられるため、永続化しない。
func (s *Synchronizer) handleChange(doc model.Document, origin state.Origin) {
	if !s.initialized.Load() {
		s.logger.Warn("起動処理中の変更を破棄しました",
			slog.String("origin", origin.String()),
		)
		return
	}
	s.local.Save(doc)
	s.setTeaCount(len(doc.Teas))

	if origin == state.OriginLocal && s.remote != nil {
		s.schedule()
	}
}

// schedule はデバウンスタイマーを（再）設定する。
func (s *Synchronizer) schedule() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timerGen++
	gen := s.timerGen
	s.pending = true
	s.timer = time.AfterFunc(s.debounce, func() { s.flush(gen) })
}

// cancelPending は保留中のデバウンスpushを取り消す。
func (s *Synchronizer) cancelPending() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerGen++
	s.pending = false
}

// flush はデバウンスタイマー満了時に呼ばれる。teasが空の場合は送信しない。
// genが最新の予約と異なる場合（再予約・取り消し済み）は何もしない。
func (s *Synchronizer) flush(gen uint64) {
	s.mu.Lock()
	if s.closed || !s.pending || gen != s.timerGen {
		s.mu.Unlock()
		return
	}
	s.pending = false
	s.timer = nil
	s.mu.Unlock()

	if len(s.store.Teas()) == 0 {
		s.logger.Debug("お茶が無いためリモートへの送信をスキップしました")
		return
	}
	s.push(context.Background(), metrics.TriggerDebounce)
}

// push は現在のドキュメントをリモートへupsertし、同期状態を更新する。
func (s *Synchronizer) push(ctx context.Context, trigger string) bool {
	s.pushMu.Lock()
	defer s.pushMu.Unlock()

	doc := s.store.Document()
	s.status.Begin()

	ctx, cancel := context.WithTimeout(ctx, s.remoteTimeout)
	defer cancel()

	start := time.Now()
	ok := s.remote.SaveRemote(ctx, doc.Teas, doc.Queue)
	duration := time.Since(start)

	if s.metrics != nil {
		s.metrics.RecordSyncLatency(duration)
	}

	if !ok {
		s.status.Fail()
		if s.metrics != nil {
			s.metrics.RecordSyncFailure(trigger)
		}
		s.logger.Warn("リモートへの同期に失敗しました",
			slog.String("trigger", trigger),
			slog.Float64("duration_ms", float64(duration.Milliseconds())),
		)
		return false
	}

	s.status.Succeed()
	if s.metrics != nil {
		s.metrics.RecordSyncSuccess(trigger)
	}
	s.logger.Info("リモートへ同期しました",
		slog.String("trigger", trigger),
		slog.Int("tea_count", len(doc.Teas)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)
	return true
}

// applyRemote はリモートの変更通知でstoreを無条件に上書きする（後勝ち）。
// Init完了前の通知は最新の1件だけ保留する。
func (s *Synchronizer) applyRemote(doc model.RemoteDocument) {
	s.remoteMu.Lock()
	defer s.remoteMu.Unlock()
	if !s.initialized.Load() {
		s.early = &doc
		s.logger.Debug("起動処理中のため、リモートの変更を保留しました",
			slog.String("updated_by", doc.UpdatedBy),
		)
		return
	}
	s.applyRemoteLocked(doc)
}

// applyRemoteLocked はremoteMuを保持した状態で呼ぶ。
// 保留中のローカルpushは取り消され、リモート由来の状態は書き戻さない。
func (s *Synchronizer) applyRemoteLocked(doc model.RemoteDocument) {
	s.cancelPending()
	s.store.ApplyRemote(doc.Document)

	if s.metrics != nil {
		s.metrics.RecordRemoteChangeApplied()
	}
	s.logger.Info("リモートの変更を適用しました",
		slog.String("updated_by", doc.UpdatedBy),
		slog.Int("tea_count", len(doc.Teas)),
	)
}

func (s *Synchronizer) setTeaCount(n int) {
	if s.metrics != nil {
		s.metrics.SetTeaCount(n)
	}
}
