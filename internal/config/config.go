package config

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sierrachat/client/internal/logger"
	"gopkg.in/yaml.v3"
)

// loadEnv reads .env only outside production (in containers/prod the config
// comes from real environment variables).
func loadEnv() {
	if os.Getenv("APP_ENV") == "production" {
		return
	}
	dir, err := os.Getwd()
	if err != nil {
		return
	}
	for i := 0; i < 5; i++ {
		path := dir + "/.env"
		f, err := os.Open(path)
		if err == nil {
			loadEnvFrom(f)
			f.Close()
			return
		}
		parent := strings.TrimSuffix(dir, "/")
		if idx := strings.LastIndex(parent, "/"); idx <= 0 {
			return
		} else {
			dir = parent[:idx]
			if dir == "" {
				dir = "/"
			}
		}
	}
}

func loadEnvFrom(f *os.File) {
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.Index(line, "=")
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])
		if key == "" {
			continue
		}
		if len(val) >= 2 && (val[0] == '"' && val[len(val)-1] == '"' || val[0] == '\'' && val[len(val)-1] == '\'') {
			val = val[1 : len(val)-1]
		}
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

// RedisConfig holds the optional Redis state cache (token + index snapshot).
// Empty URL means state lives in memory only.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// Config holds the client settings.
// Priority: environment variables > YAML file > defaults.
type Config struct {
	// Backend
	BackendURL  string        `yaml:"backend_url"`
	SocketURL   string        `yaml:"socket_url"`
	HTTPTimeout time.Duration `yaml:"-"`

	// WebSocket
	WSSendBufferSize int `yaml:"ws_send_buffer_size"`
	WSWriteTimeout   int `yaml:"ws_write_timeout"`
	WSPongTimeout    int `yaml:"ws_pong_timeout"`
	WSMaxMessageSize int `yaml:"ws_max_message_size"`

	// Local API (daemon)
	LocalAPIAddr       string `yaml:"local_api_addr"`
	CORSAllowedOrigins string `yaml:"cors_allowed_origins"`

	// Token storage
	TokenPath string `yaml:"token_path"`

	// Contacts
	DefaultRegion string `yaml:"default_region"`

	// Display timezone for day separators (IANA name, e.g. "Asia/Kolkata").
	DisplayTimezone string `yaml:"display_timezone"`

	// Logging
	LogLevel string `yaml:"log_level"`

	Redis RedisConfig `yaml:"-"`
}

// yamlConfig is the intermediate struct for parsing the client YAML.
type yamlConfig struct {
	BackendURL         string `yaml:"backend_url"`
	SocketURL          string `yaml:"socket_url"`
	HTTPTimeout        int    `yaml:"http_timeout"`
	WSSendBufferSize   int    `yaml:"ws_send_buffer_size"`
	WSWriteTimeout     int    `yaml:"ws_write_timeout"`
	WSPongTimeout      int    `yaml:"ws_pong_timeout"`
	WSMaxMessageSize   int    `yaml:"ws_max_message_size"`
	LocalAPIAddr       string `yaml:"local_api_addr"`
	CORSAllowedOrigins string `yaml:"cors_allowed_origins"`
	TokenPath          string `yaml:"token_path"`
	DefaultRegion      string `yaml:"default_region"`
	DisplayTimezone    string `yaml:"display_timezone"`
	LogLevel           string `yaml:"log_level"`
}

// Load loads the configuration.
// .env is applied first (if present), then YAML, then env vars on top.
func Load() *Config {
	loadEnv()
	// Defaults
	yc := yamlConfig{
		BackendURL:         "https://sierra-backend.onrender.com",
		SocketURL:          "wss://sierra-backend.onrender.com/socket",
		HTTPTimeout:        15,
		WSSendBufferSize:   256,
		WSWriteTimeout:     10,
		WSPongTimeout:      60,
		WSMaxMessageSize:   1 << 20,
		LocalAPIAddr:       "127.0.0.1:7080",
		CORSAllowedOrigins: "*",
		TokenPath:          "",
		DefaultRegion:      "IN",
		DisplayTimezone:    "Local",
		LogLevel:           "info",
	}

	// Client config: CONFIG_PATH > config/client.yaml
	paths := []string{os.Getenv("CONFIG_PATH"), "config/client.yaml"}
	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, &yc); err != nil {
			logger.Errorf("config: parse %s: %v (using defaults)", path, err)
		} else {
			logger.Infof("config: loaded %s", path)
		}
		break
	}

	cfg := &Config{
		BackendURL:         strings.TrimSuffix(envStr("BACKEND_URL", yc.BackendURL), "/"),
		SocketURL:          envStr("SOCKET_URL", yc.SocketURL),
		HTTPTimeout:        time.Duration(envInt("HTTP_TIMEOUT", yc.HTTPTimeout)) * time.Second,
		WSSendBufferSize:   envInt("WS_SEND_BUFFER_SIZE", yc.WSSendBufferSize),
		WSWriteTimeout:     envInt("WS_WRITE_TIMEOUT", yc.WSWriteTimeout),
		WSPongTimeout:      envInt("WS_PONG_TIMEOUT", yc.WSPongTimeout),
		WSMaxMessageSize:   envInt("WS_MAX_MESSAGE_SIZE", yc.WSMaxMessageSize),
		LocalAPIAddr:       envStr("LOCAL_API_ADDR", yc.LocalAPIAddr),
		CORSAllowedOrigins: envStr("CORS_ALLOWED_ORIGINS", yc.CORSAllowedOrigins),
		TokenPath:          envStr("TOKEN_PATH", yc.TokenPath),
		DefaultRegion:      envStr("DEFAULT_REGION", yc.DefaultRegion),
		DisplayTimezone:    envStr("DISPLAY_TIMEZONE", yc.DisplayTimezone),
		LogLevel:           envStr("LOG_LEVEL", yc.LogLevel),
		Redis:              RedisConfig{URL: envStr("REDIS_URL", "")},
	}

	return cfg
}

// envStr returns the environment value or fallback.
func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envInt returns the numeric environment value or fallback.
func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
