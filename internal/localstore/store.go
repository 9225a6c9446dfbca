// Package localstore は端末ローカルの永続化を提供する。
// 固定キーごとに1つのJSONファイルをデータディレクトリに保存する。
// 書き込みは一時ファイルへの書き出しとリネームで行い、途中状態のファイルを残さない。
package localstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/hitoshi/teerotation/internal/model"
)

// 固定キー
const (
	DocumentKey = "tee-rotation-daten"
	SettingsKey = "tee-rotation-einstellungen"
)

// Store はデータディレクトリ上のキーバリューストア。
// 保存はベストエフォートで、失敗はログに記録するだけで呼び出し側には返さない。
type Store struct {
	dir    string
	logger *slog.Logger
	mu     sync.Mutex
}

// New はdirをデータディレクトリとするStoreを生成する。
// ディレクトリは最初の保存時に作成される。
func New(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dir: dir, logger: logger}
}

// Dir はデータディレクトリのパスを返す。
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

// Load は最後に保存されたドキュメントを返す。
// 未保存または解析に失敗した場合は空のドキュメントを返す。
func (s *Store) Load() model.Document {
	var doc model.Document
	if !s.get(DocumentKey, &doc) {
		return model.EmptyDocument()
	}
	if doc.Teas == nil {
		doc.Teas = []model.Tea{}
	}
	if doc.Queue == nil {
		doc.Queue = []string{}
	}
	return doc
}

// Save はドキュメントを同期的に保存する。失敗はログに記録する。
func (s *Store) Save(doc model.Document) {
	if err := s.put(DocumentKey, doc); err != nil {
		s.logger.Error("ローカルドキュメントの保存に失敗しました",
			slog.String("key", DocumentKey),
			slog.String("error", err.Error()),
		)
	}
}

// LoadSettings は端末設定を返す。選択モードは常にgridに正規化される。
func (s *Store) LoadSettings() model.Settings {
	var settings model.Settings
	s.get(SettingsKey, &settings)
	settings.SelectionMode = model.SelectionModeGrid
	return settings
}

// SaveSettings は端末設定を保存する。失敗はログに記録する。
func (s *Store) SaveSettings(settings model.Settings) {
	settings.SelectionMode = model.SelectionModeGrid
	if err := s.put(SettingsKey, settings); err != nil {
		s.logger.Error("ローカル設定の保存に失敗しました",
			slog.String("key", SettingsKey),
			slog.String("error", err.Error()),
		)
	}
}

// get はキーの値をvにデコードする。存在しない・読めない・解析できない場合はfalseを返す。
func (s *Store) get(key string, v any) bool {
	s.mu.Lock()
	data, err := os.ReadFile(s.path(key))
	s.mu.Unlock()

	if errors.Is(err, fs.ErrNotExist) {
		return false
	}
	if err != nil {
		s.logger.Warn("ローカルデータの読み込みに失敗しました",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		s.logger.Warn("ローカルデータの解析に失敗したため空として扱います",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return false
	}
	return true
}

// put はvをJSONにして一時ファイルへ書き出し、リネームで置き換える。
func (s *Store) put(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path(key)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace %s: %w", key, err)
	}
	return nil
}
