package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	defaultDataDir           = "~/.local/share/teerotation"
	defaultServerPort        = "8080"
	defaultCORSAllowedOrigin = "http://localhost:5173"
	defaultSyncDebounce      = 2 * time.Second
	defaultSyncStatusReset   = 2 * time.Second
	defaultRemoteTimeout     = 10 * time.Second
	defaultRateLimitGeneral  = 120
	defaultBackupInterval    = 24 * time.Hour
	defaultBackupRetention   = 14
	defaultLogLevel          = "info"
)

// Config はアプリケーション全体の設定を保持する。
// 起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Remote
	// DatabaseURL が空の場合はリモート同期を無効にしてローカルのみで動作する。
	DatabaseURL string
	DeviceID    string

	// Local
	DataDir string

	// Sync
	SyncDebounce    time.Duration
	SyncStatusReset time.Duration
	RemoteTimeout   time.Duration

	// Backup
	// BackupInterval が0の場合は定期バックアップを行わない。
	BackupInterval      time.Duration
	BackupRetentionDays int

	// Rate Limit（クライアントIPごと、1分あたり）
	RateLimitGeneral int

	// Logging
	// LogFile が指定された場合は標準出力に加えてローテーション付きのファイルにも書き出す。
	LogLevel string
	LogFile  string

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// RemoteEnabled はリモート同期が設定されているかを返す。
func (c *Config) RemoteEnabled() bool {
	return c.DatabaseURL != ""
}

// fileConfig はCONFIG_FILEで指定するTOMLファイルの内容。
// 期間はGoのduration表記（例: "2s"）で記述する。
type fileConfig struct {
	DatabaseURL       string `toml:"database_url"`
	DeviceID          string `toml:"device_id"`
	DataDir           string `toml:"data_dir"`
	ServerPort        string `toml:"server_port"`
	CORSAllowedOrigin string `toml:"cors_allowed_origin"`
	SyncDebounce      string `toml:"sync_debounce"`
	SyncStatusReset   string `toml:"sync_status_reset"`
	RemoteTimeout     string `toml:"remote_timeout"`
	RateLimitGeneral  int    `toml:"rate_limit_general"`
	BackupInterval    string `toml:"backup_interval"`
	BackupRetention   int    `toml:"backup_retention_days"`
	LogLevel          string `toml:"log_level"`
	LogFile           string `toml:"log_file"`
}

// Load は設定を読み込む。
// CONFIG_FILEが指定されていればそのTOMLファイルを下敷きにし、環境変数で上書きする。
// 設定ファイルが読めない・解析できない場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{
		DataDir:           defaultDataDir,
		ServerPort:        defaultServerPort,
		CORSAllowedOrigin: defaultCORSAllowedOrigin,
		SyncDebounce:      defaultSyncDebounce,
		SyncStatusReset:   defaultSyncStatusReset,
		RemoteTimeout:     defaultRemoteTimeout,
		RateLimitGeneral:  defaultRateLimitGeneral,
		LogLevel:          defaultLogLevel,

		BackupInterval:      defaultBackupInterval,
		BackupRetentionDays: defaultBackupRetention,
	}

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, err
		}
	}

	cfg.DatabaseURL = getEnvString("DATABASE_URL", cfg.DatabaseURL)
	cfg.DeviceID = getEnvString("DEVICE_ID", cfg.DeviceID)
	cfg.DataDir = getEnvString("DATA_DIR", cfg.DataDir)
	cfg.ServerPort = getEnvString("SERVER_PORT", cfg.ServerPort)
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", cfg.CORSAllowedOrigin)
	cfg.SyncDebounce = getEnvDuration("SYNC_DEBOUNCE", cfg.SyncDebounce)
	cfg.SyncStatusReset = getEnvDuration("SYNC_STATUS_RESET", cfg.SyncStatusReset)
	cfg.RemoteTimeout = getEnvDuration("REMOTE_TIMEOUT", cfg.RemoteTimeout)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", cfg.RateLimitGeneral)
	cfg.BackupInterval = getEnvDuration("BACKUP_INTERVAL", cfg.BackupInterval)
	cfg.BackupRetentionDays = getEnvInt("BACKUP_RETENTION_DAYS", cfg.BackupRetentionDays)
	cfg.LogLevel = strings.ToLower(getEnvString("LOG_LEVEL", cfg.LogLevel))
	cfg.LogFile = getEnvString("LOG_FILE", cfg.LogFile)

	if cfg.DeviceID == "" {
		cfg.DeviceID = defaultDeviceID()
	}

	dataDir, err := expandPath(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve DATA_DIR: %w", err)
	}
	cfg.DataDir = dataDir

	if cfg.LogFile != "" {
		logFile, err := expandPath(cfg.LogFile)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve LOG_FILE: %w", err)
		}
		cfg.LogFile = logFile
	}

	return cfg, nil
}

// applyFile はTOMLファイルの値のうち空でないものをcfgへ反映する。
func applyFile(cfg *Config, path string) error {
	resolved, err := expandPath(path)
	if err != nil {
		return fmt.Errorf("failed to resolve config file path: %w", err)
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config file not found: %s", resolved)
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var raw fileConfig
	if err := toml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	setString(&cfg.DatabaseURL, raw.DatabaseURL)
	setString(&cfg.DeviceID, raw.DeviceID)
	setString(&cfg.DataDir, raw.DataDir)
	setString(&cfg.ServerPort, raw.ServerPort)
	setString(&cfg.CORSAllowedOrigin, raw.CORSAllowedOrigin)
	setString(&cfg.LogLevel, raw.LogLevel)
	setString(&cfg.LogFile, raw.LogFile)
	if raw.RateLimitGeneral > 0 {
		cfg.RateLimitGeneral = raw.RateLimitGeneral
	}
	if raw.BackupRetention > 0 {
		cfg.BackupRetentionDays = raw.BackupRetention
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"sync_debounce", raw.SyncDebounce, &cfg.SyncDebounce},
		{"sync_status_reset", raw.SyncStatusReset, &cfg.SyncStatusReset},
		{"remote_timeout", raw.RemoteTimeout, &cfg.RemoteTimeout},
		{"backup_interval", raw.BackupInterval, &cfg.BackupInterval},
	}
	for _, d := range durations {
		if strings.TrimSpace(d.raw) == "" {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return fmt.Errorf("invalid %s in config file: %w", d.key, err)
		}
		*d.dst = v
	}
	return nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func defaultDeviceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "unknown-device"
	}
	return host
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
