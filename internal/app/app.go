package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/teerotation/internal/config"
	"github.com/hitoshi/teerotation/internal/database"
	"github.com/hitoshi/teerotation/internal/handler"
	"github.com/hitoshi/teerotation/internal/localstore"
	"github.com/hitoshi/teerotation/internal/logger"
	"github.com/hitoshi/teerotation/internal/metrics"
	"github.com/hitoshi/teerotation/internal/middleware"
	"github.com/hitoshi/teerotation/internal/model"
	"github.com/hitoshi/teerotation/internal/realtime"
	"github.com/hitoshi/teerotation/internal/remote"
	"github.com/hitoshi/teerotation/internal/repository"
	"github.com/hitoshi/teerotation/internal/state"
	"github.com/hitoshi/teerotation/internal/syncer"
	"github.com/hitoshi/teerotation/internal/transfer"
	"github.com/hitoshi/teerotation/internal/worker/backup"
)

// Init はアプリケーションの初期化を行う。
// 設定を読み込み、LOG_LEVELに従ってJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたレベルでロガーを作り直す
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	if cfg.LogFile != "" {
		out, closeLog := logger.Tee(w, cfg.LogFile)
		defer closeLog()
		logger.SetupDefault(out, logger.ParseLevel(cfg.LogLevel))
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("device_id", cfg.DeviceID),
		slog.String("data_dir", cfg.DataDir),
		slog.Bool("remote_enabled", cfg.RemoteEnabled()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandSync:
		return runSync(ctx, cfg)
	case CommandExport:
		return runExport(cfg, commandArgs(args), time.Now())
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// service はserve/syncで共有する依存関係一式。
type service struct {
	cfg       *config.Config
	logger    *slog.Logger
	db        *sql.DB
	local     *localstore.Store
	store     *state.Store
	status    *syncer.StatusTracker
	syncer    *syncer.Synchronizer
	hub       *realtime.Hub
	limiter   *middleware.RateLimiter
	registry  *prometheus.Registry
	collector *metrics.Collector
	backup    *backup.Job
	ready     atomic.Bool
}

// newService は設定から全依存関係をワイヤリングする。
// DATABASE_URLが空の場合はリモートを無効にしてローカルのみで動作する。
func newService(cfg *config.Config, log *slog.Logger) (*service, error) {
	s := &service{cfg: cfg, logger: log}

	// 1. メトリクス
	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.collector = metrics.NewCollector(s.registry)

	// 2. 状態とローカルストア
	s.local = localstore.New(cfg.DataDir, log)
	s.store = state.New()

	// 3. リモート（任意）
	// インターフェースにnilポインタを入れないよう、有効な場合のみ代入する
	var remoteStore syncer.RemoteStore
	if cfg.RemoteEnabled() {
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		s.db = db
		repo := repository.NewPostgresTeaStateRepo(db)
		remoteStore = remote.NewClient(repo, cfg.DatabaseURL, cfg.DeviceID, log)
	}

	// 4. 同期
	s.status = syncer.NewStatusTracker(cfg.SyncStatusReset)
	s.syncer = syncer.New(s.store, s.local, remoteStore, s.status, s.collector, log, syncer.Options{
		Debounce:      cfg.SyncDebounce,
		RemoteTimeout: cfg.RemoteTimeout,
	})

	// 5. リアルタイム配信
	s.hub = realtime.NewHub(realtime.HubConfig{
		OriginPatterns: originPatterns(cfg.CORSAllowedOrigin),
		Snapshot: func() []realtime.Message {
			return []realtime.Message{
				realtime.DocumentMessage(s.store.Document(), state.OriginLocal.String()),
				realtime.SyncStatusMessage(s.status.Current()),
			}
		},
		OnClientsChanged: s.collector.SetRealtimeClients,
		Logger:           log,
	})
	s.store.OnChange(func(doc model.Document, origin state.Origin) {
		s.hub.Broadcast(realtime.DocumentMessage(doc, origin.String()))
	})
	s.status.OnChange(func(snapshot syncer.StatusSnapshot) {
		s.hub.Broadcast(realtime.SyncStatusMessage(snapshot))
	})

	s.backup = backup.NewJob(s.store, filepath.Join(cfg.DataDir, backup.DirName), log)
	s.backup.RetentionDays = cfg.BackupRetentionDays

	s.limiter = middleware.NewRateLimiter(middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral))

	return s, nil
}

// Handler はHTTPルーターを構築する。
func (s *service) Handler() http.Handler {
	return handler.NewRouter(&handler.RouterDeps{
		Logger:            s.logger,
		CORSAllowedOrigin: s.cfg.CORSAllowedOrigin,
		RateLimiter:       s.limiter,
		Metrics:           s.collector,
		MetricsGatherer:   s.registry,
		Teas:              s.store,
		Rotation:          s.store,
		Documents:         s.store,
		Settings:          s.local,
		Sync:              s.syncer,
		DeviceID:          s.cfg.DeviceID,
		Ready:             s.ready.Load,
		Realtime:          s.hub,
	})
}

// Start はリモート購読を開始してから起動時のドキュメント解決を行い、準備完了にする。
// 購読に失敗してもローカルのみで動作を続ける。
func (s *service) Start(ctx context.Context) {
	if err := s.syncer.Start(ctx); err != nil {
		s.logger.Warn("リモート変更の購読を開始できませんでした。ローカルのみで動作します",
			slog.String("error", err.Error()),
		)
	}

	s.syncer.Init(ctx)
	s.ready.Store(true)
}

// Close は保留中の同期を送信し、すべての資源を解放する。
func (s *service) Close() {
	s.hub.Stop()
	s.syncer.Close()
	s.limiter.Stop()
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Warn("failed to close database", slog.String("error", err.Error()))
		}
	}
}

// runServe はAPIサーバーモードで起動する。
// HTTPサーバーを先に起動し、ドキュメント解決が終わるまで/healthと/apiは503を返す。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	svc, err := newService(cfg, slog.Default())
	if err != nil {
		return err
	}
	defer svc.Close()

	svc.hub.Start()

	// WebSocketの長時間接続を切らないよう、Read/WriteTimeoutは設定しない
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           svc.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	svc.Start(ctx)

	if cfg.BackupInterval > 0 {
		go svc.backup.Start(ctx, cfg.BackupInterval)
	}

	select {
	case <-ctx.Done():
	case err, ok := <-serverErr:
		if ok && err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
	}
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runSync は起動時と同じ手順でドキュメントを解決し、リモートへ1回だけ送信する。
// cronなどから端末の状態を共有行へ反映するためのワンショットコマンド。
func runSync(ctx context.Context, cfg *config.Config) error {
	if !cfg.RemoteEnabled() {
		return fmt.Errorf("sync requires DATABASE_URL")
	}

	svc, err := newService(cfg, slog.Default())
	if err != nil {
		return err
	}
	defer svc.Close()

	source := svc.syncer.Init(ctx)
	if err := svc.syncer.SyncNow(ctx); err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	slog.Info("sync completed",
		slog.String("source", string(source)),
		slog.Int("tea_count", len(svc.store.Teas())),
	)
	return nil
}

// runExport はローカルストアのドキュメントをJSONファイルに書き出す。
// パスが省略された場合はカレントディレクトリに日付入りのファイル名で書き出す。
// パスに"-"を指定した場合は標準出力に書き出す。
func runExport(cfg *config.Config, args []string, now time.Time) error {
	local := localstore.New(cfg.DataDir, slog.Default())
	data, err := transfer.Export(local.Load())
	if err != nil {
		return err
	}

	path := transfer.Filename(now)
	if len(args) > 0 && args[0] != "" {
		path = args[0]
	}
	if path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write export file: %w", err)
	}

	slog.Info("export written", slog.String("path", path))
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if !cfg.RemoteEnabled() {
		return fmt.Errorf("migrate requires DATABASE_URL")
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := database.MigrationVersion(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// originPatterns はCORS許可オリジンからWebSocketのOriginパターン（host[:port]）を作る。
func originPatterns(allowedOrigin string) []string {
	u, err := url.Parse(allowedOrigin)
	if err != nil || u.Host == "" {
		return nil
	}
	return []string{u.Host}
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
