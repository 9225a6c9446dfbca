package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hitoshi/teerotation/internal/model"
)

// PostgresTeaStateRepo はPostgreSQLのtea_stateテーブルを使用するリポジトリ。
// teasとqueueはJSONB列に配列のまま保存する。
type PostgresTeaStateRepo struct {
	db *sql.DB
}

// NewPostgresTeaStateRepo はPostgresTeaStateRepoを生成する。
func NewPostgresTeaStateRepo(db *sql.DB) *PostgresTeaStateRepo {
	return &PostgresTeaStateRepo{db: db}
}

// FindByID は指定IDの行を取得する。見つからない場合はnilを返す。
func (r *PostgresTeaStateRepo) FindByID(ctx context.Context, id string) (*model.RemoteDocument, error) {
	var (
		teasJSON  []byte
		queueJSON []byte
		doc       model.RemoteDocument
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT teas, queue, updated_by, updated_at FROM tea_state WHERE id = $1`,
		id,
	).Scan(&teasJSON, &queueJSON, &doc.UpdatedBy, &doc.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find tea state: %w", err)
	}

	if err := json.Unmarshal(teasJSON, &doc.Teas); err != nil {
		return nil, fmt.Errorf("failed to decode teas: %w", err)
	}
	if err := json.Unmarshal(queueJSON, &doc.Queue); err != nil {
		return nil, fmt.Errorf("failed to decode queue: %w", err)
	}
	if doc.Teas == nil {
		doc.Teas = []model.Tea{}
	}
	if doc.Queue == nil {
		doc.Queue = []string{}
	}

	return &doc, nil
}

// Upsert は指定IDの行を作成または上書きする。
func (r *PostgresTeaStateRepo) Upsert(ctx context.Context, id string, doc model.Document, updatedBy string, updatedAt time.Time) error {
	teasJSON, queueJSON, err := encodeDocument(doc)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO tea_state (id, teas, queue, updated_by, updated_at)
		 VALUES ($1, $2::jsonb, $3::jsonb, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET
		   teas = EXCLUDED.teas,
		   queue = EXCLUDED.queue,
		   updated_by = EXCLUDED.updated_by,
		   updated_at = EXCLUDED.updated_at`,
		id, string(teasJSON), string(queueJSON), updatedBy, updatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert tea state: %w", err)
	}

	return nil
}

// encodeDocument はteasとqueueをJSON配列にエンコードする。nilは空配列として扱う。
func encodeDocument(doc model.Document) ([]byte, []byte, error) {
	teas := doc.Teas
	if teas == nil {
		teas = []model.Tea{}
	}
	queue := doc.Queue
	if queue == nil {
		queue = []string{}
	}

	teasJSON, err := json.Marshal(teas)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode teas: %w", err)
	}
	queueJSON, err := json.Marshal(queue)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode queue: %w", err)
	}
	return teasJSON, queueJSON, nil
}

var _ TeaStateRepository = (*PostgresTeaStateRepo)(nil)
