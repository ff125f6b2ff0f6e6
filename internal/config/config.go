package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// Configuration keys. Each key doubles as the CLI flag name and, upper-cased
// with the MCPVERIFY_ prefix, as the environment variable name.
const (
	KeyDomain         = "domain"
	KeyNoHTTPS        = "no-https"
	KeySkipHealth     = "skip-health"
	KeyTool           = "tool"
	KeyQuery          = "query"
	KeyServerName     = "server-name"
	KeyInsecure       = "insecure"
	KeyRedact         = "redact"
	KeyGitleaksConfig = "gitleaks-config"
	KeyLogLevel       = "log-level"
)

// Defaults applied when neither a flag, an environment variable nor a config
// file provides a value.
const (
	DefaultDomain     = "zmcp.qandu.me"
	DefaultTool       = "web_search"
	DefaultQuery      = "site:demandiq.com pricing"
	DefaultServerName = "zhipu-web-search"
	DefaultLogLevel   = "warn"
)

// EnvPrefix is prepended to every environment variable viper consults.
const EnvPrefix = "MCPVERIFY"

// ErrEmptyDomain is returned by Load when no host was configured.
var ErrEmptyDomain = errors.New("domain must not be empty")

type Config struct {
	RunID          string
	Target         Target
	SkipHealth     bool
	ToolName       string
	Query          string
	ServerName     string
	Insecure       bool // skip TLS certificate verification
	Redact         bool // scrub secrets from remote text before printing
	GitleaksConfig string
	LogLevel       slog.Level
}

// NewConfig returns a Config populated with defaults only.
func NewConfig() *Config {
	return &Config{
		RunID:      uuid.NewString(),
		Target:     Target{Host: DefaultDomain, Secure: true},
		ToolName:   DefaultTool,
		Query:      DefaultQuery,
		ServerName: DefaultServerName,
		Redact:     true,
		LogLevel:   slog.LevelWarn,
	}
}

// NewViper returns a viper instance wired for MCPVERIFY_* environment
// variables with every default registered.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyDomain, DefaultDomain)
	v.SetDefault(KeyNoHTTPS, false)
	v.SetDefault(KeySkipHealth, false)
	v.SetDefault(KeyTool, DefaultTool)
	v.SetDefault(KeyQuery, DefaultQuery)
	v.SetDefault(KeyServerName, DefaultServerName)
	v.SetDefault(KeyInsecure, false)
	v.SetDefault(KeyRedact, true)
	v.SetDefault(KeyGitleaksConfig, "")
	v.SetDefault(KeyLogLevel, DefaultLogLevel)
	return v
}

// Load builds a Config from v. If configFile is non-empty it is read first;
// flags and environment variables bound to v still take precedence.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", configFile, err)
		}
	}

	host := strings.TrimRight(strings.TrimSpace(v.GetString(KeyDomain)), "/")
	if host == "" {
		return nil, ErrEmptyDomain
	}
	if strings.Contains(host, "://") {
		return nil, fmt.Errorf("domain %q must be a host name, not a URL", host)
	}

	levelName := strings.TrimSpace(v.GetString(KeyLogLevel))
	if levelName == "" {
		levelName = DefaultLogLevel
	}
	level, err := ParseLogLevel(levelName)
	if err != nil {
		return nil, err
	}

	tool := strings.TrimSpace(v.GetString(KeyTool))
	if tool == "" {
		tool = DefaultTool
	}

	cfg := NewConfig()
	cfg.Target = Target{Host: host, Secure: !v.GetBool(KeyNoHTTPS)}
	cfg.SkipHealth = v.GetBool(KeySkipHealth)
	cfg.ToolName = tool
	cfg.Query = v.GetString(KeyQuery)
	cfg.ServerName = v.GetString(KeyServerName)
	cfg.Insecure = v.GetBool(KeyInsecure)
	cfg.Redact = v.GetBool(KeyRedact)
	cfg.GitleaksConfig = v.GetString(KeyGitleaksConfig)
	cfg.LogLevel = level
	return cfg, nil
}
