package handler

import "net/http"

// HealthHandler は稼働状態を返すハンドラー。
// 起動時のドキュメント解決が終わるまでは503を返し、UIはこれで読み込み中を判定する。
type HealthHandler struct {
	ready         func() bool
	remoteEnabled bool
	deviceID      string
}

// NewHealthHandler はHealthHandlerを生成する。readyがnilの場合は常に準備完了とみなす。
func NewHealthHandler(ready func() bool, remoteEnabled bool, deviceID string) *HealthHandler {
	if ready == nil {
		ready = func() bool { return true }
	}
	return &HealthHandler{ready: ready, remoteEnabled: remoteEnabled, deviceID: deviceID}
}

type healthResponse struct {
	Status        string `json:"status"`
	Ready         bool   `json:"ready"`
	RemoteEnabled bool   `json:"remoteEnabled"`
	DeviceID      string `json:"deviceId"`
}

// ServeHTTP はGET /healthを処理する。
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:        "ok",
		Ready:         h.ready(),
		RemoteEnabled: h.remoteEnabled,
		DeviceID:      h.deviceID,
	}
	status := http.StatusOK
	if !resp.Ready {
		resp.Status = "starting"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
