package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/teerotation/internal/model"
	"github.com/hitoshi/teerotation/internal/state"
)

// TeaServiceInterface はお茶ハンドラーが必要とする状態操作。
// state.Storeが実装する。
type TeaServiceInterface interface {
	Teas() []model.Tea
	Tea(id string) (model.Tea, error)
	Create(in state.TeaInput) (model.Tea, error)
	Update(id string, in state.TeaInput) (model.Tea, error)
	Delete(id string) error
	Rate(id string, rating int) (model.Tea, error)
	SetFillLevel(id string, percent int) (model.Tea, error)
}

// TeaHandler はお茶コレクションのHTTPハンドラー。
type TeaHandler struct {
	service TeaServiceInterface
}

// NewTeaHandler はTeaHandlerを生成する。
func NewTeaHandler(service TeaServiceInterface) *TeaHandler {
	return &TeaHandler{service: service}
}

// teaListResponse はお茶一覧のAPIレスポンス。
type teaListResponse struct {
	Teas  []model.Tea `json:"teas"`
	Count int         `json:"count"`
}

type rateRequest struct {
	Rating *int `json:"bewertung"`
}

type fillLevelRequest struct {
	FillLevelPercent *int `json:"fuellstand"`
}

// ListTeas はお茶の一覧をコレクション順で返す。
// GET /api/teas
func (h *TeaHandler) ListTeas(w http.ResponseWriter, r *http.Request) {
	teas := h.service.Teas()
	if teas == nil {
		teas = []model.Tea{}
	}
	writeJSON(w, http.StatusOK, teaListResponse{Teas: teas, Count: len(teas)})
}

// CreateTea はお茶を登録する。
// POST /api/teas
func (h *TeaHandler) CreateTea(w http.ResponseWriter, r *http.Request) {
	var in state.TeaInput
	if !decodeJSON(w, r, &in) {
		return
	}
	if in.Rating != nil && !validRating(*in.Rating) {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRatingError(*in.Rating))
		return
	}

	tea, err := h.service.Create(in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tea)
}

// GetTea はお茶を1件返す。
// GET /api/teas/{id}
func (h *TeaHandler) GetTea(w http.ResponseWriter, r *http.Request) {
	tea, err := h.service.Tea(chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tea)
}

// UpdateTea はお茶のフィールドを置き換える。
// PUT /api/teas/{id}
func (h *TeaHandler) UpdateTea(w http.ResponseWriter, r *http.Request) {
	var in state.TeaInput
	if !decodeJSON(w, r, &in) {
		return
	}
	if in.Rating != nil && !validRating(*in.Rating) {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRatingError(*in.Rating))
		return
	}

	tea, err := h.service.Update(chi.URLParam(r, "id"), in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tea)
}

// DeleteTea はお茶を削除する。
// DELETE /api/teas/{id}
func (h *TeaHandler) DeleteTea(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RateTea は評価を設定する。評価は1〜5のみ受け付ける。
// PUT /api/teas/{id}/rating
func (h *TeaHandler) RateTea(w http.ResponseWriter, r *http.Request) {
	var req rateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Rating == nil {
		writeInvalidRequest(w)
		return
	}
	if !validRating(*req.Rating) {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRatingError(*req.Rating))
		return
	}

	tea, err := h.service.Rate(chi.URLParam(r, "id"), *req.Rating)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tea)
}

// SetFillLevel は残量を設定する。範囲外の値は0〜100に丸められる。
// PUT /api/teas/{id}/fill-level
func (h *TeaHandler) SetFillLevel(w http.ResponseWriter, r *http.Request) {
	var req fillLevelRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.FillLevelPercent == nil {
		writeInvalidRequest(w)
		return
	}

	tea, err := h.service.SetFillLevel(chi.URLParam(r, "id"), *req.FillLevelPercent)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tea)
}

func validRating(rating int) bool {
	return rating >= 1 && rating <= 5
}
