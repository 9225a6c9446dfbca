package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/teerotation/internal/model"
	"github.com/hitoshi/teerotation/internal/rotation"
)

// RotationServiceInterface はローテーション操作のインターフェース。
type RotationServiceInterface interface {
	Rotation(now time.Time) rotation.View
	Skip() int
	Select(id string) (model.Tea, error)
	ResetRotation() error
}

// RotationHandler はローテーション（今日のお茶の提案）のHTTPハンドラー。
type RotationHandler struct {
	service RotationServiceInterface
	now     func() time.Time
}

// NewRotationHandler はRotationHandlerを生成する。nowがnilの場合はtime.Nowを使う。
func NewRotationHandler(service RotationServiceInterface, now func() time.Time) *RotationHandler {
	if now == nil {
		now = time.Now
	}
	return &RotationHandler{service: service, now: now}
}

type selectRequest struct {
	ID string `json:"id"`
}

type selectResponse struct {
	Selected model.Tea     `json:"selected"`
	Rotation rotation.View `json:"rotation"`
}

// GetRotation は現在の提案を返す。
// GET /api/rotation
func (h *RotationHandler) GetRotation(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Rotation(h.now()))
}

// Skip は次の候補へ進める。
// POST /api/rotation/skip
func (h *RotationHandler) Skip(w http.ResponseWriter, r *http.Request) {
	h.service.Skip()
	writeJSON(w, http.StatusOK, h.service.Rotation(h.now()))
}

// Select はお茶を飲んだものとして記録する。
// POST /api/rotation/select
func (h *RotationHandler) Select(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidTeaError("idは必須です"))
		return
	}

	tea, err := h.service.Select(req.ID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, selectResponse{
		Selected: tea,
		Rotation: h.service.Rotation(h.now()),
	})
}

// Reset はすべてのお茶をローテーションに戻す。
// POST /api/rotation/reset
func (h *RotationHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ResetRotation(); err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.service.Rotation(h.now()))
}
