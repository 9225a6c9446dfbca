package syncer

import (
	"slices"
	"sync"
	"time"
)

// Status はUIに表示する同期状態。
type Status string

const (
	StatusIdle    Status = "idle"
	StatusSyncing Status = "syncing"
	StatusOK      Status = "ok"
	StatusError   Status = "error"
)

// StatusSnapshot はある時点の同期状態。
type StatusSnapshot struct {
	Status       Status     `json:"status"`
	ChangedAt    time.Time  `json:"changedAt"`
	LastSyncedAt *time.Time `json:"lastSyncedAt,omitempty"`
}

// StatusTracker は idle → syncing → {ok|error} → idle の状態遷移を管理する。
// ok / error は resetAfter 経過後に自動でidleに戻る。
// 自動リセット前に次の同期が始まった場合、古いリセットは無視される。
type StatusTracker struct {
	mu           sync.Mutex
	status       Status
	changedAt    time.Time
	lastSyncedAt *time.Time
	generation   uint64
	resetAfter   time.Duration
	timer        *time.Timer
	listeners    []func(StatusSnapshot)
	now          func() time.Time
}

// NewStatusTracker はidle状態のStatusTrackerを生成する。
func NewStatusTracker(resetAfter time.Duration) *StatusTracker {
	if resetAfter <= 0 {
		resetAfter = 2 * time.Second
	}
	return &StatusTracker{
		status:     StatusIdle,
		changedAt:  time.Now(),
		resetAfter: resetAfter,
		now:        time.Now,
	}
}

// OnChange は状態遷移のリスナーを登録する。
func (t *StatusTracker) OnChange(fn func(StatusSnapshot)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, fn)
}

// Current は現在の状態を返す。
func (t *StatusTracker) Current() StatusSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// Begin はsyncingに遷移する。保留中の自動リセットは取り消される。
func (t *StatusTracker) Begin() {
	t.transition(StatusSyncing)
}

// Succeed はokに遷移し、自動リセットを予約する。
func (t *StatusTracker) Succeed() {
	t.transition(StatusOK)
}

// Fail はerrorに遷移し、自動リセットを予約する。
func (t *StatusTracker) Fail() {
	t.transition(StatusError)
}

// Stop は保留中の自動リセットを取り消す。
func (t *StatusTracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.generation++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (t *StatusTracker) transition(next Status) {
	t.mu.Lock()
	t.generation++
	gen := t.generation
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}

	t.status = next
	t.changedAt = t.now()
	if next == StatusOK {
		at := t.changedAt
		t.lastSyncedAt = &at
	}
	if next == StatusOK || next == StatusError {
		t.timer = time.AfterFunc(t.resetAfter, func() { t.reset(gen) })
	}
	snap, listeners := t.snapshotLocked(), t.listenersLocked()
	t.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}

// reset は予約時の世代が現在の世代と一致する場合のみidleに戻す。
func (t *StatusTracker) reset(gen uint64) {
	t.mu.Lock()
	if gen != t.generation {
		t.mu.Unlock()
		return
	}
	t.status = StatusIdle
	t.changedAt = t.now()
	t.timer = nil
	snap, listeners := t.snapshotLocked(), t.listenersLocked()
	t.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}

func (t *StatusTracker) snapshotLocked() StatusSnapshot {
	snap := StatusSnapshot{Status: t.status, ChangedAt: t.changedAt}
	if t.lastSyncedAt != nil {
		at := *t.lastSyncedAt
		snap.LastSyncedAt = &at
	}
	return snap
}

func (t *StatusTracker) listenersLocked() []func(StatusSnapshot) {
	return slices.Clone(t.listeners)
}
