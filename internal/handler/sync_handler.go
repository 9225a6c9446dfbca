package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/teerotation/internal/syncer"
)

// SyncServiceInterface は同期ハンドラーが必要とするインターフェース。
// syncer.Synchronizerが実装する。
type SyncServiceInterface interface {
	SyncNow(ctx context.Context) error
	RemoteEnabled() bool
	Status() *syncer.StatusTracker
}

// SyncHandler は手動同期と同期状態のHTTPハンドラー。
type SyncHandler struct {
	service  SyncServiceInterface
	deviceID string
}

// NewSyncHandler はSyncHandlerを生成する。
func NewSyncHandler(service SyncServiceInterface, deviceID string) *SyncHandler {
	return &SyncHandler{service: service, deviceID: deviceID}
}

// syncStatusResponse は同期状態のAPIレスポンス。
type syncStatusResponse struct {
	syncer.StatusSnapshot
	RemoteEnabled bool   `json:"remoteEnabled"`
	DeviceID      string `json:"deviceId"`
}

func (h *SyncHandler) statusResponse() syncStatusResponse {
	return syncStatusResponse{
		StatusSnapshot: h.service.Status().Current(),
		RemoteEnabled:  h.service.RemoteEnabled(),
		DeviceID:       h.deviceID,
	}
}

// SyncNow は手動同期を実行する。
// お茶が無い場合は409 NOTHING_TO_SYNCを返し、ネットワーク呼び出しは行わない。
// POST /api/sync
func (h *SyncHandler) SyncNow(w http.ResponseWriter, r *http.Request) {
	if err := h.service.SyncNow(r.Context()); err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.statusResponse())
}

// GetStatus は現在の同期状態を返す。
// GET /api/sync/status
func (h *SyncHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.statusResponse())
}
