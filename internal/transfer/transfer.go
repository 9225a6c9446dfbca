// Package transfer はドキュメントのエクスポートとインポートを提供する。
package transfer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hitoshi/teerotation/internal/model"
)

// Export はドキュメントを {teas, queue} 形式のJSONに変換する。
func Export(doc model.Document) ([]byte, error) {
	data, err := json.MarshalIndent(doc.Normalize(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal export document: %w", err)
	}
	return append(data, '\n'), nil
}

// Filename はエクスポートファイル名（日付入り）を返す。
func Filename(now time.Time) string {
	return fmt.Sprintf("tee-rotation-%s.json", now.Format("2006-01-02"))
}

// importDocument はteasの有無を判定するためにRawMessageで受ける。
type importDocument struct {
	Teas  json.RawMessage `json:"teas"`
	Queue []string        `json:"queue"`
}

// Parse はインポートファイルを解析する。
// teas配列が存在することのみを検証し、queueが無い場合はteasのID順とする。
// スキーマバージョンの検証は行わない。
func Parse(data []byte) (model.Document, error) {
	var raw importDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return model.Document{}, model.NewInvalidImportError("JSONとして解析できません")
	}

	trimmed := bytes.TrimSpace(raw.Teas)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return model.Document{}, model.NewInvalidImportError("teas配列がありません")
	}

	var teas []model.Tea
	if err := json.Unmarshal(trimmed, &teas); err != nil {
		return model.Document{}, model.NewInvalidImportError("teas配列の形式が不正です")
	}
	if teas == nil {
		teas = []model.Tea{}
	}

	queue := raw.Queue
	if queue == nil {
		queue = make([]string, len(teas))
		for i, t := range teas {
			queue[i] = t.ID
		}
	}

	return model.Document{Teas: teas, Queue: queue}, nil
}
