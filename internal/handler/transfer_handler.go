package handler

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/teerotation/internal/model"
	"github.com/hitoshi/teerotation/internal/transfer"
)

// DocumentServiceInterface はエクスポート・インポートが必要とする状態操作。
type DocumentServiceInterface interface {
	Document() model.Document
	Import(doc model.Document)
}

// TransferHandler はJSONエクスポート・インポートのHTTPハンドラー。
type TransferHandler struct {
	service DocumentServiceInterface
	now     func() time.Time
}

// NewTransferHandler はTransferHandlerを生成する。nowがnilの場合はtime.Nowを使う。
func NewTransferHandler(service DocumentServiceInterface, now func() time.Time) *TransferHandler {
	if now == nil {
		now = time.Now
	}
	return &TransferHandler{service: service, now: now}
}

// importResponse はインポート結果。Appliedがfalseの場合はプレビューのみ。
type importResponse struct {
	Applied          bool `json:"applied"`
	TeaCount         int  `json:"teaCount"`
	QueueLength      int  `json:"queueLength"`
	ReplacedTeaCount int  `json:"replacedTeaCount"`
}

// Export は現在のドキュメントをダウンロード用JSONとして返す。
// GET /api/export
func (h *TransferHandler) Export(w http.ResponseWriter, r *http.Request) {
	data, err := transfer.Export(h.service.Document())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, transfer.Filename(h.now())))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		slog.Warn("failed to write export", slog.String("error", err.Error()))
	}
}

// Import はアップロードされたJSONを解析する。
// confirm=trueの場合のみ既存ドキュメントを置き換え、それ以外は件数のプレビューを返す。
// 解析に失敗した場合は何も適用せず400 INVALID_IMPORTを返す。
// POST /api/import[?confirm=true]
func (h *TransferHandler) Import(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidImportError("ファイルを読み込めません"))
		return
	}

	doc, err := transfer.Parse(body)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	confirm, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	resp := importResponse{
		Applied:          confirm,
		TeaCount:         len(doc.Teas),
		QueueLength:      len(doc.Queue),
		ReplacedTeaCount: len(h.service.Document().Teas),
	}
	if confirm {
		h.service.Import(doc)
		slog.Info("ドキュメントをインポートしました",
			slog.Int("tea_count", resp.TeaCount),
			slog.Int("replaced_tea_count", resp.ReplacedTeaCount),
		)
	}
	writeJSON(w, http.StatusOK, resp)
}
