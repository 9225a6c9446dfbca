// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/teerotation/internal/model"
)

// TeaStateRepository は全端末で共有するドキュメント行の永続化インターフェース。
type TeaStateRepository interface {
	// FindByID は指定IDの行を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.RemoteDocument, error)

	// Upsert は指定IDの行を作成または上書きする（後勝ち、ロックなし）。
	Upsert(ctx context.Context, id string, doc model.Document, updatedBy string, updatedAt time.Time) error
}
