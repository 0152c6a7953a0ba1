package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	AppName = "hytale-manager"

	defaultConfigName   = "config.json"
	defaultInstancesDir = "instances"
	defaultCacheDir     = "cache"
	defaultRuntimesDir  = "runtimes"
	defaultToolsDir     = "tools"
	defaultDatabaseFile = "manager.db"
	defaultPort         = 8742
	defaultJavaVersion  = 25
	defaultHistory      = 500

	DefaultDownloaderURL = "https://downloader.hytale.com/hytale-downloader.zip"
)

type Config struct {
	RootDir            string `json:"root_dir"`
	DatabasePath       string `json:"database_path"`
	CacheDir           string `json:"cache_dir"`
	RuntimesPath       string `json:"runtimes_path"`
	ToolsDir           string `json:"tools_dir"`
	Port               int    `json:"port"`
	LogLevel           string `json:"log_level"`
	LogPretty          bool   `json:"log_pretty"`
	DownloaderPath     string `json:"downloader_path"`
	DownloaderURL      string `json:"downloader_url"`
	JavaPath           string `json:"java_path"`
	JavaVersion        int    `json:"java_version"`
	StopTimeout        string `json:"stop_timeout"`
	ForceKillOnTimeout bool   `json:"force_kill_on_timeout"`
	StatsInterval      string `json:"stats_interval"`
	ConsoleHistory     int    `json:"console_history"`
	BackupRetention    int    `json:"backup_retention"`
	GamePortBase       int    `json:"game_port_base"`
	GamePortMax        int    `json:"game_port_max"`
	WebPortOffset      int    `json:"web_port_offset"`
	APITokenRequired   bool   `json:"api_token_required"`

	Dir string `json:"-"`
}

func IsDev() bool {
	return os.Getenv("HSM_DEV") == "1"
}

// Dir returns the directory that holds config.json and the database.
func Dir() (string, error) {
	userConfigDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	name := AppName
	if IsDev() {
		name += "-dev"
	}
	return filepath.Join(userConfigDir, name), nil
}

func defaults(configDir string) Config {
	return Config{
		RootDir:            filepath.Join(configDir, defaultInstancesDir),
		DatabasePath:       filepath.Join(configDir, defaultDatabaseFile),
		CacheDir:           filepath.Join(configDir, defaultCacheDir),
		RuntimesPath:       filepath.Join(configDir, defaultRuntimesDir),
		ToolsDir:           filepath.Join(configDir, defaultToolsDir),
		Port:               defaultPort,
		LogLevel:           "info",
		DownloaderURL:      DefaultDownloaderURL,
		JavaVersion:        defaultJavaVersion,
		StopTimeout:        "8s",
		ForceKillOnTimeout: true,
		StatsInterval:      "2s",
		ConsoleHistory:     defaultHistory,
		GamePortBase:       5520,
		GamePortMax:        5600,
		WebPortOffset:      100,
	}
}

func LoadConfig(configDir string) (*Config, error) {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, err
	}

	configPath := filepath.Join(configDir, defaultConfigName)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg, err := createDefaultConfig(configPath, configDir)
		if err != nil {
			return nil, err
		}
		applyEnv(cfg)
		return cfg, nil
	}

	file, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	cfg := defaults(configDir)
	if err := json.Unmarshal(file, &cfg); err != nil {
		return nil, err
	}
	cfg.Dir = configDir

	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}
	if cfg.JavaVersion == 0 {
		cfg.JavaVersion = defaultJavaVersion
	}
	applyEnv(&cfg)

	return &cfg, nil
}

func createDefaultConfig(configPath, configDir string) (*Config, error) {
	cfg := defaults(configDir)
	cfg.Dir = configDir

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("HSM_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			cfg.Port = p
		}
	}
	if v := os.Getenv("HSM_ROOT_DIR"); v != "" {
		cfg.RootDir = v
	}
	if v := os.Getenv("HSM_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

// GetPort returns the API port from the environment or the config file,
// falling back to the default. It never fails.
func GetPort() int {
	if v := os.Getenv("HSM_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			return p
		}
	}
	dir, err := Dir()
	if err != nil {
		return defaultPort
	}
	data, err := os.ReadFile(filepath.Join(dir, defaultConfigName))
	if err != nil {
		return defaultPort
	}
	var cfg struct {
		Port int `json:"port"`
	}
	if json.Unmarshal(data, &cfg) != nil || cfg.Port == 0 {
		return defaultPort
	}
	return cfg.Port
}

func (c *Config) StopTimeoutDuration() time.Duration {
	return parseDuration(c.StopTimeout, 8*time.Second)
}

func (c *Config) StatsIntervalDuration() time.Duration {
	return parseDuration(c.StatsInterval, 2*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Paths lists the directories the daemon creates at startup.
func (c *Config) Paths() []string {
	return []string{c.RootDir, c.CacheDir, c.RuntimesPath, c.ToolsDir}
}
