package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, tea, sync, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeTeaNotFound     = "TEA_NOT_FOUND"
	ErrCodeInvalidTea      = "INVALID_TEA"
	ErrCodeInvalidRating   = "INVALID_RATING"
	ErrCodeInvalidImport   = "INVALID_IMPORT"
	ErrCodeNothingToSync   = "NOTHING_TO_SYNC"
	ErrCodeSyncFailed      = "SYNC_FAILED"
	ErrCodeRemoteDisabled  = "REMOTE_DISABLED"
	ErrCodeInvalidSettings = "INVALID_SETTINGS"
	ErrCodeNotReady        = "NOT_READY"
)

// NewTeaNotFoundError はお茶未検出エラーを生成する。
func NewTeaNotFoundError(teaID string) *APIError {
	return &APIError{
		Code:     ErrCodeTeaNotFound,
		Message:  fmt.Sprintf("指定されたお茶が見つかりません: %s", teaID),
		Category: "tea",
		Action:   "一覧を再読み込みしてから再度お試しください。",
	}
}

// NewInvalidTeaError は入力値不正エラーを生成する。
func NewInvalidTeaError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTea,
		Message:  fmt.Sprintf("お茶の入力内容が不正です: %s", reason),
		Category: "validation",
		Action:   "名前とお茶の種類を確認してください。",
	}
}

// NewInvalidRatingError は評価値が範囲外の場合のエラーを生成する。
func NewInvalidRatingError(rating int) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRating,
		Message:  fmt.Sprintf("無効な評価です: %d", rating),
		Category: "validation",
		Action:   "評価は1から5の範囲で指定してください。",
	}
}

// NewInvalidImportError はインポートファイルが不正な場合のエラーを生成する。
func NewInvalidImportError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidImport,
		Message:  fmt.Sprintf("インポートファイルを読み込めません: %s", reason),
		Category: "validation",
		Action:   "エクスポートしたJSONファイル（teas配列を含む）を選択してください。",
	}
}

// NewNothingToSyncError はお茶が1件も無い状態で同期しようとした場合のエラーを生成する。
func NewNothingToSyncError() *APIError {
	return &APIError{
		Code:     ErrCodeNothingToSync,
		Message:  "同期するお茶がありません。",
		Category: "sync",
		Action:   "お茶を登録してから同期してください。",
	}
}

// NewSyncFailedError はリモートへの保存に失敗した場合のエラーを生成する。
func NewSyncFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeSyncFailed,
		Message:  "リモートへの同期に失敗しました。",
		Category: "sync",
		Action:   "通信状況を確認し、しばらく待ってから再度お試しください。",
	}
}

// NewRemoteDisabledError はリモート同期が設定されていない場合のエラーを生成する。
func NewRemoteDisabledError() *APIError {
	return &APIError{
		Code:     ErrCodeRemoteDisabled,
		Message:  "リモート同期が設定されていません。",
		Category: "sync",
		Action:   "DATABASE_URLを設定してサービスを再起動してください。",
	}
}

// NewInvalidSettingsError は設定値が不正な場合のエラーを生成する。
func NewInvalidSettingsError(value string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSettings,
		Message:  fmt.Sprintf("サポートされていない選択モードです: %s", value),
		Category: "validation",
		Action:   "選択モードには grid を指定してください。",
	}
}

// NewNotReadyError は起動時のドキュメント解決が終わっていない場合のエラーを生成する。
func NewNotReadyError() *APIError {
	return &APIError{
		Code:     ErrCodeNotReady,
		Message:  "起動処理中です。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
