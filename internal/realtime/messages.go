package realtime

import (
	"time"

	"github.com/hitoshi/teerotation/internal/model"
)

// DocumentMessage はドキュメント全体を送るメッセージを生成する。
// originは変更元（local / remote）。
func DocumentMessage(doc model.Document, origin string) Message {
	return Message{
		Type:      MessageTypeDocument,
		Timestamp: time.Now(),
		Origin:    origin,
		Data:      doc,
	}
}

// SyncStatusMessage は同期状態を送るメッセージを生成する。
func SyncStatusMessage(status any) Message {
	return Message{
		Type:      MessageTypeSyncStatus,
		Timestamp: time.Now(),
		Data:      status,
	}
}
