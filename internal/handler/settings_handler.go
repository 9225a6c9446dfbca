package handler

import (
	"net/http"
	"strings"

	"github.com/hitoshi/teerotation/internal/model"
)

// SettingsStoreInterface は端末ローカル設定の永続化。
type SettingsStoreInterface interface {
	LoadSettings() model.Settings
	SaveSettings(settings model.Settings)
}

// SettingsHandler はUI設定のHTTPハンドラー。
type SettingsHandler struct {
	store SettingsStoreInterface
}

// NewSettingsHandler はSettingsHandlerを生成する。
func NewSettingsHandler(store SettingsStoreInterface) *SettingsHandler {
	return &SettingsHandler{store: store}
}

// GetSettings は設定を返す。
// GET /api/settings
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.LoadSettings())
}

// UpdateSettings は設定を保存する。選択モードはgridのみ受け付ける。
// PUT /api/settings
func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req model.Settings
	if !decodeJSON(w, r, &req) {
		return
	}
	mode := strings.TrimSpace(req.SelectionMode)
	if mode != "" && mode != model.SelectionModeGrid {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidSettingsError(mode))
		return
	}

	settings := model.DefaultSettings()
	h.store.SaveSettings(settings)
	writeJSON(w, http.StatusOK, settings)
}
