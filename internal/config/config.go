package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration. The launcher,
// the license server and licensectl all read the same structure and use the
// sections they need.
type Config struct {
	Launcher  LauncherConfig  `yaml:"launcher" envconfig:"LAUNCHER"`
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Security  SecurityConfig  `yaml:"security" envconfig:"SECURITY"`
	Storage   StorageConfig   `yaml:"storage" envconfig:"STORAGE"`
	GeoIP     GeoIPConfig     `yaml:"geoip" envconfig:"GEOIP"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Paths     PathsConfig     `yaml:"paths" envconfig:"PATHS"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
	WebSocket WebSocketConfig `yaml:"websocket" envconfig:"WEBSOCKET"`
}

// LauncherConfig contains the client side license and launch settings
type LauncherConfig struct {
	ServerURL            string        `yaml:"server_url" envconfig:"SERVER_URL"`
	RequestTimeout       time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT"`
	HeartbeatInterval    time.Duration `yaml:"heartbeat_interval" envconfig:"HEARTBEAT_INTERVAL"`
	HeartbeatTimeout     time.Duration `yaml:"heartbeat_timeout" envconfig:"HEARTBEAT_TIMEOUT"`
	Targets              []string      `yaml:"targets" envconfig:"TARGETS"`
	ReleaseURL           string        `yaml:"release_url" envconfig:"RELEASE_URL"`
	GameDir              string        `yaml:"game_dir" envconfig:"GAME_DIR"`
	LibraryDir           string        `yaml:"library_dir" envconfig:"LIBRARY_DIR"`
	LaunchArgs           string        `yaml:"launch_args" envconfig:"LAUNCH_ARGS"`
	CallerPackage        string        `yaml:"caller_package" envconfig:"CALLER_PACKAGE"`
	StopGameOnDisconnect bool          `yaml:"stop_game_on_disconnect" envconfig:"STOP_GAME_ON_DISCONNECT"`
	// CertPins are hex SPKI SHA-256 hashes; empty disables pinning.
	CertPins []string `yaml:"cert_pins" envconfig:"CERT_PINS"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host" envconfig:"HOST"`
	Port            int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	ActiveWindow    time.Duration `yaml:"active_window" envconfig:"ACTIVE_WINDOW"`
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	AdminToken        string          `yaml:"admin_token" envconfig:"ADMIN_TOKEN"`
	TrustForwardedFor bool            `yaml:"trust_forwarded_for" envconfig:"TRUST_FORWARDED_FOR"`
	RateLimit         RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS"`
	Burst   int     `yaml:"burst" envconfig:"BURST"`
}

// StorageConfig selects where the license server keeps its data
type StorageConfig struct {
	DataDir     string       `yaml:"data_dir" envconfig:"DATA_DIR"`
	KeyBackend  string       `yaml:"key_backend" envconfig:"KEY_BACKEND"`
	MaxAttempts int          `yaml:"max_attempts" envconfig:"MAX_ATTEMPTS"`
	Sheets      SheetsConfig `yaml:"sheets" envconfig:"SHEETS"`
}

// SheetsConfig configures the Google Sheets key backend
type SheetsConfig struct {
	SpreadsheetID   string `yaml:"spreadsheet_id" envconfig:"SPREADSHEET_ID"`
	SheetName       string `yaml:"sheet_name" envconfig:"SHEET_NAME"`
	CredentialsFile string `yaml:"credentials_file" envconfig:"CREDENTIALS_FILE"`
	// APIKey gives read-only access when no credentials file is set.
	APIKey string `yaml:"api_key" envconfig:"API_KEY"`
}

// GeoIPConfig configures the ASN lookup used by the license server
type GeoIPConfig struct {
	Enabled  bool          `yaml:"enabled" envconfig:"ENABLED"`
	BaseURL  string        `yaml:"base_url" envconfig:"BASE_URL"`
	Token    string        `yaml:"token" envconfig:"TOKEN"`
	Timeout  time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
	CacheTTL time.Duration `yaml:"cache_ttl" envconfig:"CACHE_TTL"`
	// FailureTTL caches failed lookups so an unreachable provider is not
	// queried on every heartbeat.
	FailureTTL time.Duration `yaml:"failure_ttl" envconfig:"FAILURE_TTL"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL"`
	Format   string `yaml:"format" envconfig:"FORMAT"`
	Output   string `yaml:"output" envconfig:"OUTPUT"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// PathsConfig contains file system paths configuration
type PathsConfig struct {
	ConfigDir string `yaml:"config_dir" envconfig:"CONFIG_DIR"`
	PrefsFile string `yaml:"prefs_file" envconfig:"PREFS_FILE"`
	LogsDir   string `yaml:"logs_dir" envconfig:"LOGS_DIR"`
}

// TelemetryConfig controls tracing and metrics export
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name" envconfig:"SERVICE_NAME"`
	Environment    string `yaml:"environment" envconfig:"ENVIRONMENT"`
	TraceExporter  string `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER"`
	MetricsEnabled bool   `yaml:"metrics_enabled" envconfig:"METRICS_ENABLED"`
}

// WebSocketConfig contains admin feed WebSocket configuration
type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size" envconfig:"READ_BUFFER_SIZE"`
	WriteBufferSize int           `yaml:"write_buffer_size" envconfig:"WRITE_BUFFER_SIZE"`
	PingPeriod      time.Duration `yaml:"ping_period" envconfig:"PING_PERIOD"`
	PongWait        time.Duration `yaml:"pong_wait" envconfig:"PONG_WAIT"`
}

// Load builds the configuration from defaults, an optional YAML file and
// CS16_* environment variables, in increasing order of precedence. An empty
// path searches the usual locations.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// Unset variables leave file values alone; Default holds the defaults.
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.resolvePaths(); err != nil {
		return nil, fmt.Errorf("failed to resolve paths: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile overlays the YAML file on cfg
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// resolvePaths anchors relative paths
func (c *Config) resolvePaths() error {
	if c.Paths.ConfigDir == "" {
		dir, err := DefaultConfigDir()
		if err != nil {
			return err
		}
		c.Paths.ConfigDir = dir
	}
	c.Paths.PrefsFile = ResolvePath(c.Paths.ConfigDir, c.Paths.PrefsFile)
	c.Paths.LogsDir = ResolvePath(c.Paths.ConfigDir, c.Paths.LogsDir)
	if c.Logging.FilePath != "" && !filepath.IsAbs(c.Logging.FilePath) {
		c.Logging.FilePath = filepath.Join(c.Paths.LogsDir, filepath.Base(c.Logging.FilePath))
	}
	return nil
}

// validate validates the configuration
func (c *Config) validate() error {
	u, err := url.Parse(c.Launcher.ServerURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("invalid license server url: %q", c.Launcher.ServerURL)
	}

	if c.Launcher.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat interval must be positive")
	}

	if c.Launcher.RequestTimeout <= 0 || c.Launcher.HeartbeatTimeout <= 0 {
		return fmt.Errorf("launcher timeouts must be positive")
	}

	if len(c.Launcher.Targets) == 0 {
		return fmt.Errorf("at least one launch target must be specified")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server timeouts must be positive")
	}

	switch c.Storage.KeyBackend {
	case KeyBackendFile:
	case KeyBackendSheets:
		if c.Storage.Sheets.SpreadsheetID == "" {
			return fmt.Errorf("sheets key backend requires a spreadsheet id")
		}
		if c.Storage.Sheets.CredentialsFile == "" && c.Storage.Sheets.APIKey == "" {
			return fmt.Errorf("sheets key backend requires a credentials file or an api key")
		}
	default:
		return fmt.Errorf("unknown key backend: %q", c.Storage.KeyBackend)
	}

	if c.Security.RateLimit.Enabled && (c.Security.RateLimit.RPS <= 0 || c.Security.RateLimit.Burst <= 0) {
		return fmt.Errorf("rate limit rps and burst must be positive")
	}

	switch strings.ToLower(c.Logging.Output) {
	case "console", "file", "both":
	default:
		return fmt.Errorf("invalid logging output: %q", c.Logging.Output)
	}

	// Logs are always JSON
	c.Logging.Format = "json"

	return nil
}

// ListenAddr returns the address the license server binds to
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// findConfigFile returns the first config file found, or ""
func findConfigFile() string {
	locations := []string{
		os.Getenv(EnvPrefix + "_CONFIG_FILE"),
		"config.yaml",
		"configs/config.yaml",
	}
	if dir, err := DefaultConfigDir(); err == nil {
		locations = append(locations, filepath.Join(dir, "config.yaml"))
	}

	for _, location := range locations {
		if location == "" {
			continue
		}
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return ""
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Launcher: LauncherConfig{
			ServerURL:         DefaultServerURL,
			RequestTimeout:    DefaultRequestTimeout,
			HeartbeatInterval: DefaultHeartbeatInterval,
			HeartbeatTimeout:  DefaultHeartbeatTimeout,
			Targets:           []string{"xash3d-test", "xash3d"},
			ReleaseURL:        DefaultReleaseURL,
			GameDir:           DefaultGameDir,
			LaunchArgs:        DefaultLaunchArgs,
			CallerPackage:     DefaultCallerPackage,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            5000,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			MaxHeaderBytes:  1 << 20, // 1MB
			ShutdownTimeout: 30 * time.Second,
			ActiveWindow:    DefaultActiveWindow,
		},
		Security: SecurityConfig{
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     5,
				Burst:   20,
			},
		},
		Storage: StorageConfig{
			DataDir:     "license_data",
			KeyBackend:  KeyBackendFile,
			MaxAttempts: 500,
			Sheets: SheetsConfig{
				SheetName: "Keys",
			},
		},
		GeoIP: GeoIPConfig{
			Enabled:    true,
			BaseURL:    "https://ipinfo.io",
			Timeout:    2 * time.Second,
			CacheTTL:   time.Hour,
			FailureTTL: time.Minute,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: "app.log",
		},
		Paths: PathsConfig{
			PrefsFile: PrefsFileName,
			LogsDir:   "logs",
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "cs16-license",
			Environment:    "production",
			TraceExporter:  "none",
			MetricsEnabled: true,
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			PingPeriod:      30 * time.Second,
			PongWait:        60 * time.Second,
		},
	}
}
