package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/teerotation/internal/metrics"
	"github.com/hitoshi/teerotation/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Metrics           metrics.MetricsCollector
	MetricsGatherer   prometheus.Gatherer

	// 状態
	Teas      TeaServiceInterface
	Rotation  RotationServiceInterface
	Documents DocumentServiceInterface
	Settings  SettingsStoreInterface

	// 同期
	Sync     SyncServiceInterface
	DeviceID string
	Ready    func() bool

	// Realtime はGET /wsのWebSocketハンドラー。nilの場合はルートを登録しない。
	Realtime http.Handler

	// Now はローテーション・エクスポートの基準時刻。nilの場合はtime.Now。
	Now func() time.Time
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → Metrics → Readiness → RateLimit(/api のみ)
//
// /health、/metrics、/ws はレート制限の外に配置する。
// /api は起動時のドキュメント解決が終わるまで503を返す。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.Metrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
	}

	r.NotFound(middleware.NotFoundHandler)
	r.MethodNotAllowed(middleware.MethodNotAllowedHandler)

	teaHandler := NewTeaHandler(deps.Teas)
	rotationHandler := NewRotationHandler(deps.Rotation, deps.Now)
	transferHandler := NewTransferHandler(deps.Documents, deps.Now)
	settingsHandler := NewSettingsHandler(deps.Settings)
	syncHandler := NewSyncHandler(deps.Sync, deps.DeviceID)
	healthHandler := NewHealthHandler(deps.Ready, deps.Sync.RemoteEnabled(), deps.DeviceID)

	// --- レート制限の対象外 ---
	r.Method(http.MethodGet, "/health", healthHandler)
	if deps.MetricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.SetupMetricsRoute(deps.MetricsGatherer))
	}
	if deps.Realtime != nil {
		r.Method(http.MethodGet, "/ws", deps.Realtime)
	}

	// --- API ---
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.NewReadinessMiddleware(deps.Ready))
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware())
		}

		r.Route("/teas", func(r chi.Router) {
			r.Get("/", teaHandler.ListTeas)
			r.Post("/", teaHandler.CreateTea)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", teaHandler.GetTea)
				r.Put("/", teaHandler.UpdateTea)
				r.Delete("/", teaHandler.DeleteTea)
				r.Put("/rating", teaHandler.RateTea)
				r.Put("/fill-level", teaHandler.SetFillLevel)
			})
		})

		r.Route("/rotation", func(r chi.Router) {
			r.Get("/", rotationHandler.GetRotation)
			r.Post("/skip", rotationHandler.Skip)
			r.Post("/select", rotationHandler.Select)
			r.Post("/reset", rotationHandler.Reset)
		})

		r.Post("/sync", syncHandler.SyncNow)
		r.Get("/sync/status", syncHandler.GetStatus)

		r.Get("/export", transferHandler.Export)
		r.Post("/import", transferHandler.Import)

		r.Get("/settings", settingsHandler.GetSettings)
		r.Put("/settings", settingsHandler.UpdateSettings)
	})

	return r
}
