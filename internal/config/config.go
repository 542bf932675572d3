package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/geminid/internal/logging"
)

var (
	ErrMissingContentRoot = errors.New("config: content_root is required")
	ErrInvalidPort        = errors.New("config: port must be within 1-65535")
	ErrMissingIdentity    = errors.New("config: identity_file or cert_file and key_file required")
	ErrAmbiguousIdentity  = errors.New("config: identity_file and cert_file/key_file are mutually exclusive")
	ErrInvalidLogLevel    = errors.New("config: unknown log_level")
	ErrInvalidTimeout     = errors.New("config: timeouts must not be negative")
	ErrInvalidMaxConns    = errors.New("config: max_connections must not be negative")
	ErrInvalidIndexName   = errors.New("config: index_name must be a plain file name")
	ErrUnknownKey         = errors.New("config: unknown key")
)

// Config is the immutable server configuration, loaded once at startup.
type Config struct {
	ContentRoot        string
	Host               string
	Port               int
	CertFile           string
	KeyFile            string
	IdentityFile       string
	IdentityPassphrase string
	LogLevel           string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	MaxConnections     int
	IndexName          string
	FormSuffix         string
	HideDotfiles       bool
	MetricsAddr        string
}

// Default returns the documented defaults. No TLS identity is set.
func Default() Config {
	return Config{
		ContentRoot:    "content-root",
		Host:           "0.0.0.0",
		Port:           1965,
		LogLevel:       "info",
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxConnections: 256,
		IndexName:      "index.gmi",
		FormSuffix:     ".form.gmi",
	}
}

// geminid.toml key mapping.
type fileConfig struct {
	ContentRoot        string `toml:"content_root"`
	Host               string `toml:"host"`
	Port               int    `toml:"port"`
	CertFile           string `toml:"cert_file"`
	KeyFile            string `toml:"key_file"`
	IdentityFile       string `toml:"identity_file"`
	IdentityPassphrase string `toml:"identity_passphrase"`
	LogLevel           string `toml:"log_level"`
	ReadTimeout        string `toml:"read_timeout"`
	WriteTimeout       string `toml:"write_timeout"`
	MaxConnections     int    `toml:"max_connections"`
	IndexName          string `toml:"index_name"`
	FormSuffix         string `toml:"form_suffix"`
	HideDotfiles       bool   `toml:"hide_dotfiles"`
	MetricsAddr        string `toml:"metrics_addr"`
}

// Load overlays the keys present in the TOML file at path onto Default and
// validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%w: %q", ErrUnknownKey, undecoded[0].String())
	}

	if meta.IsDefined("content_root") {
		cfg.ContentRoot = strings.TrimSpace(raw.ContentRoot)
	}
	if meta.IsDefined("host") {
		cfg.Host = strings.TrimSpace(raw.Host)
	}
	if meta.IsDefined("port") {
		cfg.Port = raw.Port
	}
	if meta.IsDefined("cert_file") {
		cfg.CertFile = strings.TrimSpace(raw.CertFile)
	}
	if meta.IsDefined("key_file") {
		cfg.KeyFile = strings.TrimSpace(raw.KeyFile)
	}
	if meta.IsDefined("identity_file") {
		cfg.IdentityFile = strings.TrimSpace(raw.IdentityFile)
	}
	if meta.IsDefined("identity_passphrase") {
		cfg.IdentityPassphrase = raw.IdentityPassphrase
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("read_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ReadTimeout))
		if err != nil {
			return Config{}, fmt.Errorf("parse read_timeout: %w", err)
		}
		cfg.ReadTimeout = d
	}
	if meta.IsDefined("write_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.WriteTimeout))
		if err != nil {
			return Config{}, fmt.Errorf("parse write_timeout: %w", err)
		}
		cfg.WriteTimeout = d
	}
	if meta.IsDefined("max_connections") {
		cfg.MaxConnections = raw.MaxConnections
	}
	if meta.IsDefined("index_name") {
		cfg.IndexName = strings.TrimSpace(raw.IndexName)
	}
	if meta.IsDefined("form_suffix") {
		cfg.FormSuffix = strings.TrimSpace(raw.FormSuffix)
	}
	if meta.IsDefined("hide_dotfiles") {
		cfg.HideDotfiles = raw.HideDotfiles
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ContentRoot) == "" {
		return ErrMissingContentRoot
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, c.Port)
	}
	hasPair := c.CertFile != "" || c.KeyFile != ""
	if c.IdentityFile != "" && hasPair {
		return ErrAmbiguousIdentity
	}
	if c.IdentityFile == "" && (c.CertFile == "" || c.KeyFile == "") {
		return ErrMissingIdentity
	}
	if c.LogLevel != "" {
		if _, ok := logging.ParseLevel(c.LogLevel); !ok {
			return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.LogLevel)
		}
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		return ErrInvalidTimeout
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxConns, c.MaxConnections)
	}
	if c.IndexName != "" && (strings.ContainsAny(c.IndexName, `/\`) || c.IndexName == "." || c.IndexName == "..") {
		return fmt.Errorf("%w: %q", ErrInvalidIndexName, c.IndexName)
	}
	return nil
}

// ListenAddr joins host and port for net.Listen.
func (c Config) ListenAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
