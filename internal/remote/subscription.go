package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/teerotation/internal/model"
)

// ChangeChannel はtea_stateの更新トリガーが通知するチャネル名。
const ChangeChannel = "tea_state_changed"

const (
	minReconnectInterval = 1 * time.Second
	maxReconnectInterval = 1 * time.Minute
	// listenerPingInterval は通知が無い間に接続の生存を確認する間隔。
	listenerPingInterval = 90 * time.Second
	listenTimeout        = 10 * time.Second
)

// ErrSubscriptionDisabled はLISTEN用の接続先が設定されていない場合に返る。
var ErrSubscriptionDisabled = errors.New("remote subscription is not configured")

// changePayload はトリガーが送るNOTIFYペイロード。
type changePayload struct {
	ID        string    `json:"id"`
	UpdatedBy string    `json:"updated_by"`
	UpdatedAt time.Time `json:"updated_at"`
}

// parseChangePayload はNOTIFYペイロードを解析する。
func parseChangePayload(extra string) (changePayload, error) {
	var p changePayload
	if err := json.Unmarshal([]byte(extra), &p); err != nil {
		return p, fmt.Errorf("failed to decode change payload: %w", err)
	}
	return p, nil
}

// isForeignChange は他端末による共有行の変更かどうかを判定する。
func (c *Client) isForeignChange(p changePayload) bool {
	return p.ID == SharedRowID && p.UpdatedBy != c.deviceID
}

// Subscription は共有行の変更イベントを配送する長寿命の購読。
// Events()は購読が閉じられるまで無限に値を返し、閉じられるとクローズされる。
// 切断中の変更は再送されない（再接続後の通知のみ届く）。
type Subscription struct {
	client   *Client
	listener *pq.Listener
	events   chan model.RemoteDocument
	cancel   context.CancelFunc
	done     chan struct{}
	once     sync.Once
}

// Listen は共有行の変更購読を開始する。
func (c *Client) Listen(ctx context.Context) (*Subscription, error) {
	if c.databaseURL == "" {
		return nil, ErrSubscriptionDisabled
	}

	listener := pq.NewListener(c.databaseURL, minReconnectInterval, maxReconnectInterval, c.logListenerEvent)

	// Listenは接続が確立するまでブロックするため、待ち時間に上限を設ける。
	listenErr := make(chan error, 1)
	go func() { listenErr <- listener.Listen(ChangeChannel) }()

	timer := time.NewTimer(listenTimeout)
	defer timer.Stop()

	select {
	case err := <-listenErr:
		if err != nil {
			listener.Close()
			return nil, fmt.Errorf("failed to listen on %s: %w", ChangeChannel, err)
		}
	case <-timer.C:
		listener.Close()
		return nil, fmt.Errorf("failed to listen on %s: timed out after %s", ChangeChannel, listenTimeout)
	case <-ctx.Done():
		listener.Close()
		return nil, ctx.Err()
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		client:   c,
		listener: listener,
		events:   make(chan model.RemoteDocument),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go s.run(ctx)

	c.logger.Info("リモート変更の購読を開始しました",
		slog.String("channel", ChangeChannel),
	)
	return s, nil
}

// Events は変更イベントのチャネルを返す。
func (s *Subscription) Events() <-chan model.RemoteDocument {
	return s.events
}

// Close は購読を終了し、接続を閉じる。複数回呼んでもよい。
func (s *Subscription) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		<-s.done
		err = s.listener.Close()
	})
	return err
}

func (s *Subscription) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.events)

	ticker := time.NewTicker(listenerPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case n := <-s.listener.Notify:
			if n == nil {
				// 再接続直後。切断中の変更は取りこぼす。
				s.client.logger.Warn("リモート変更の購読が再接続されました。切断中の変更は反映されません")
				continue
			}
			doc, ok := s.client.resolve(ctx, n.Extra)
			if !ok {
				continue
			}
			select {
			case s.events <- doc:
			case <-ctx.Done():
				return
			}
		case <-ticker.C:
			if err := s.listener.Ping(); err != nil {
				s.client.logger.Warn("リモート変更購読の死活確認に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// resolve は通知ペイロードを判定し、他端末による変更であれば行を再読み込みする。
func (c *Client) resolve(ctx context.Context, extra string) (model.RemoteDocument, bool) {
	p, err := parseChangePayload(extra)
	if err != nil {
		c.logger.Warn("リモート変更通知を解析できません",
			slog.String("error", err.Error()),
		)
		return model.RemoteDocument{}, false
	}
	if !c.isForeignChange(p) {
		return model.RemoteDocument{}, false
	}

	doc := c.LoadRemote(ctx)
	if doc == nil {
		return model.RemoteDocument{}, false
	}
	c.logger.Info("リモート変更を受信しました",
		slog.String("updated_by", p.UpdatedBy),
		slog.Time("updated_at", p.UpdatedAt),
	)
	return *doc, true
}

func (c *Client) logListenerEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventConnected:
		c.logger.Debug("LISTEN接続を確立しました")
	case pq.ListenerEventDisconnected:
		c.logger.Warn("LISTEN接続が切断されました", slog.Any("error", err))
	case pq.ListenerEventReconnected:
		c.logger.Info("LISTEN接続を再確立しました")
	case pq.ListenerEventConnectionAttemptFailed:
		c.logger.Warn("LISTEN接続の確立に失敗しました", slog.Any("error", err))
	}
}

// Subscribe は変更のたびにonChangeを呼び出す購読を開始し、購読解除関数を返す。
// onChangeは購読用のゴルーチンから順番に呼ばれる。
func (c *Client) Subscribe(ctx context.Context, onChange func(model.RemoteDocument)) (func(), error) {
	sub, err := c.Listen(ctx)
	if err != nil {
		return nil, err
	}

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for doc := range sub.Events() {
			onChange(doc)
		}
	}()

	return func() {
		if err := sub.Close(); err != nil {
			c.logger.Warn("リモート変更購読の終了に失敗しました",
				slog.String("error", err.Error()),
			)
		}
		<-finished
	}, nil
}
