// Package backup はドキュメントの定期バックアップジョブを提供する。
// データディレクトリのbackups/にエクスポート形式のJSONを日付ごとに1ファイル書き出し、
// 保持日数を超えたファイルを削除する。
package backup

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hitoshi/teerotation/internal/model"
	"github.com/hitoshi/teerotation/internal/transfer"
)

// DirName はデータディレクトリ配下のバックアップ用サブディレクトリ名。
const DirName = "backups"

// DocumentSource はバックアップ対象のドキュメントを返す。
type DocumentSource interface {
	Document() model.Document
}

// Job はドキュメントのバックアップジョブ。
// 同じ日付のファイルは上書きするため、1日に何度実行しても冪等。
type Job struct {
	source        DocumentSource
	dir           string
	logger        *slog.Logger
	now           func() time.Time
	RetentionDays int // バックアップの保持日数（デフォルト: 14）
}

// NewJob は新しいJobを生成する。dirはバックアップの書き出し先。
func NewJob(source DocumentSource, dir string, logger *slog.Logger) *Job {
	if logger == nil {
		logger = slog.Default()
	}
	return &Job{
		source:        source,
		dir:           dir,
		logger:        logger,
		now:           time.Now,
		RetentionDays: 14,
	}
}

// Start は起動直後に1回実行し、以降は指定間隔のティッカーでジョブを実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *Job) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("バックアップジョブを開始しました",
		slog.Duration("interval", interval),
		slog.Int("retention_days", j.RetentionDays),
	)
	j.runLogged()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("バックアップジョブを停止しました")
			return
		case <-ticker.C:
			j.runLogged()
		}
	}
}

func (j *Job) runLogged() {
	if err := j.RunOnce(); err != nil {
		j.logger.Error("バックアップの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// RunOnce は現在のドキュメントを書き出し、古いバックアップを削除する。
// お茶が1件も無い場合は書き出さない。
func (j *Job) RunOnce() error {
	now := j.now()
	doc := j.source.Document()

	if len(doc.Teas) > 0 {
		data, err := transfer.Export(doc)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(j.dir, 0o755); err != nil {
			return fmt.Errorf("failed to create backup directory: %w", err)
		}
		path := filepath.Join(j.dir, transfer.Filename(now))
		tmp := path + ".tmp"
		if err := os.WriteFile(tmp, data, 0o644); err != nil {
			return fmt.Errorf("failed to write backup: %w", err)
		}
		if err := os.Rename(tmp, path); err != nil {
			_ = os.Remove(tmp)
			return fmt.Errorf("failed to write backup: %w", err)
		}
		j.logger.Info("バックアップを書き出しました",
			slog.String("path", path),
			slog.Int("tea_count", len(doc.Teas)),
		)
	}

	deleted, err := j.prune(now)
	if err != nil {
		return err
	}
	if deleted > 0 {
		j.logger.Info("古いバックアップを削除しました",
			slog.Int("deleted_count", deleted),
			slog.Int("retention_days", j.RetentionDays),
		)
	}
	return nil
}

// List はバックアップファイル名を古い順に返す。
func (j *Job) List() ([]string, error) {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := backupDate(e.Name(), time.UTC); ok {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// prune は保持日数より古い日付のバックアップを削除する。
func (j *Job) prune(now time.Time) (int, error) {
	if j.RetentionDays <= 0 {
		return 0, nil
	}
	names, err := j.List()
	if err != nil {
		return 0, err
	}

	cutoff := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).
		AddDate(0, 0, -j.RetentionDays)
	deleted := 0
	for _, name := range names {
		date, _ := backupDate(name, now.Location())
		if !date.Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(j.dir, name)); err != nil && !os.IsNotExist(err) {
			return deleted, fmt.Errorf("failed to delete backup %s: %w", name, err)
		}
		deleted++
	}
	return deleted, nil
}

// backupDate はtransfer.Filename形式のファイル名から日付を取り出す。
func backupDate(name string, loc *time.Location) (time.Time, bool) {
	const prefix, suffix = "tee-rotation-", ".json"
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
		return time.Time{}, false
	}
	date, err := time.ParseInLocation("2006-01-02", strings.TrimSuffix(strings.TrimPrefix(name, prefix), suffix), loc)
	if err != nil {
		return time.Time{}, false
	}
	return date, true
}
