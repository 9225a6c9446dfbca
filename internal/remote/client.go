// Package remote は全端末で共有するリモートドキュメントへのアクセスを提供する。
//
// リモートはPostgreSQLのtea_stateテーブルの1行（ID "shared"）で、
// 読み込み・保存の失敗は呼び出し側に返さず、nil / false として扱う。
// 変更通知はLISTEN/NOTIFYで受け取る（subscription.go）。
package remote

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/teerotation/internal/model"
	"github.com/hitoshi/teerotation/internal/repository"
)

// SharedRowID は全端末が共有する行の固定キー。
const SharedRowID = "shared"

// Client はリモートドキュメントのクライアント。
type Client struct {
	repo        repository.TeaStateRepository
	databaseURL string
	deviceID    string
	logger      *slog.Logger
	now         func() time.Time
}

// NewClient はClientを生成する。
// databaseURLは変更通知用のLISTEN接続に使用する。
// deviceIDは書き込み元の識別に使い、自端末の書き込み通知を無視するために使う。
func NewClient(repo repository.TeaStateRepository, databaseURL, deviceID string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		repo:        repo,
		databaseURL: databaseURL,
		deviceID:    deviceID,
		logger:      logger,
		now:         time.Now,
	}
}

// DeviceID はこの端末の識別子を返す。
func (c *Client) DeviceID() string {
	return c.deviceID
}

// LoadRemote は共有行を読み込む。行が無い場合やエラーの場合はnilを返す。
func (c *Client) LoadRemote(ctx context.Context) *model.RemoteDocument {
	doc, err := c.repo.FindByID(ctx, SharedRowID)
	if err != nil {
		c.logger.Warn("リモートドキュメントの読み込みに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil
	}
	if doc == nil {
		c.logger.Info("リモートドキュメントはまだありません")
		return nil
	}
	return doc
}

// SaveRemote は共有行をupsertし、updated_atを現在時刻にする。成功したかどうかを返す。
func (c *Client) SaveRemote(ctx context.Context, teas []model.Tea, queue []string) bool {
	doc := model.Document{Teas: teas, Queue: queue}
	if err := c.repo.Upsert(ctx, SharedRowID, doc, c.deviceID, c.now().UTC()); err != nil {
		c.logger.Warn("リモートドキュメントの保存に失敗しました",
			slog.String("error", err.Error()),
		)
		return false
	}
	return true
}
