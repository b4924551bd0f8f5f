// Package config loads relay settings from defaults, an optional YAML file
// and APP_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full relay configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server" json:"server"`
	Log         LogConfig         `yaml:"log" json:"log"`
	Upload      UploadConfig      `yaml:"upload" json:"upload"`
	Cache       CacheConfig       `yaml:"cache" json:"cache"`
	Pipeline    PipelineConfig    `yaml:"pipeline" json:"pipeline"`
	Translation TranslationConfig `yaml:"translation" json:"translation"`
	Speech      SpeechConfig      `yaml:"speech" json:"speech"`
}

type ServerConfig struct {
	Addr              string        `yaml:"addr" json:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" json:"readHeaderTimeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" json:"shutdownTimeout"`
	AllowedOrigins    []string      `yaml:"allowed_origins" json:"allowedOrigins"`
}

type LogConfig struct {
	Level string `yaml:"level" json:"level"`
}

type UploadConfig struct {
	MaxBytes          int64    `yaml:"max_bytes" json:"maxBytes"`
	AllowedExtensions []string `yaml:"allowed_extensions" json:"allowedExtensions"`
}

type CacheConfig struct {
	Backend       string        `yaml:"backend" json:"backend"`
	RedisAddr     string        `yaml:"redis_addr" json:"redisAddr"`
	TTL           time.Duration `yaml:"ttl" json:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval" json:"sweepInterval"`
}

type PipelineConfig struct {
	PacingDelay       time.Duration `yaml:"pacing_delay" json:"pacingDelay"`
	MaxParagraphRunes int           `yaml:"max_paragraph_runes" json:"maxParagraphRunes"`
}

type TranslationConfig struct {
	Provider     string        `yaml:"provider" json:"provider"`
	Model        string        `yaml:"model" json:"model"`
	BaseURL      string        `yaml:"base_url" json:"baseUrl"`
	APIKey       string        `yaml:"api_key" json:"-"`
	SystemPrompt string        `yaml:"system_prompt" json:"systemPrompt"`
	Timeout      time.Duration `yaml:"timeout" json:"timeout"`
}

type SpeechConfig struct {
	Provider string        `yaml:"provider" json:"provider"`
	Model    string        `yaml:"model" json:"model"`
	Voice    string        `yaml:"voice" json:"voice"`
	BaseURL  string        `yaml:"base_url" json:"baseUrl"`
	APIKey   string        `yaml:"api_key" json:"-"`
	AudioDir string        `yaml:"audio_dir" json:"audioDir"`
	AudioTTL time.Duration `yaml:"audio_ttl" json:"audioTtl"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`
}

// Providers and backends accepted by Validate.
const (
	ProviderStub      = "stub"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"

	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Default returns a configuration that runs fully offline.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   5 * time.Second,
		},
		Log: LogConfig{Level: "info"},
		Upload: UploadConfig{
			MaxBytes:          20 << 20,
			AllowedExtensions: []string{".txt", ".doc", ".docx"},
		},
		Cache: CacheConfig{
			Backend:       BackendMemory,
			RedisAddr:     "127.0.0.1:6379",
			TTL:           time.Hour,
			SweepInterval: 10 * time.Minute,
		},
		Pipeline: PipelineConfig{
			PacingDelay: 100 * time.Millisecond,
		},
		Translation: TranslationConfig{
			Provider: ProviderStub,
			Timeout:  60 * time.Second,
		},
		Speech: SpeechConfig{
			Provider: ProviderStub,
			AudioDir: "data/audio",
			AudioTTL: time.Hour,
			Timeout:  60 * time.Second,
		},
	}
}

// Load applies the YAML file at path (if non-empty) and then the environment
// on top of Default, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg, os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	get := func(key string) (string, bool) {
		val, ok := lookup(key)
		val = strings.TrimSpace(val)
		return val, ok && val != ""
	}

	if val, ok := get("APP_SERVER_ADDR"); ok {
		cfg.Server.Addr = val
	}
	if val, ok := get("APP_LOG_LEVEL"); ok {
		cfg.Log.Level = val
	}
	if val, ok := get("APP_CACHE_BACKEND"); ok {
		cfg.Cache.Backend = val
	}
	if val, ok := get("APP_REDIS_ADDR"); ok {
		cfg.Cache.RedisAddr = val
	}
	if val, ok := get("APP_UPLOAD_MAX_BYTES"); ok {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			cfg.Upload.MaxBytes = n
		}
	}
	if val, ok := get("APP_PACING_DELAY"); ok {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Pipeline.PacingDelay = d
		}
	}
	if val, ok := get("APP_TRANSLATION_PROVIDER"); ok {
		cfg.Translation.Provider = val
	}
	if val, ok := get("APP_TRANSLATION_API_KEY"); ok {
		cfg.Translation.APIKey = val
	}
	if val, ok := get("APP_SPEECH_PROVIDER"); ok {
		cfg.Speech.Provider = val
	}
	if val, ok := get("APP_SPEECH_API_KEY"); ok {
		cfg.Speech.APIKey = val
	}
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Upload.MaxBytes <= 0 {
		errs = append(errs, errors.New("upload.max_bytes must be positive"))
	}
	if len(c.Upload.AllowedExtensions) == 0 {
		errs = append(errs, errors.New("upload.allowed_extensions must not be empty"))
	}

	switch c.Cache.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Cache.RedisAddr == "" {
			errs = append(errs, errors.New("cache.redis_addr is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown cache.backend %q", c.Cache.Backend))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, errors.New("cache.ttl must be positive"))
	}
	if c.Cache.SweepInterval <= 0 {
		errs = append(errs, errors.New("cache.sweep_interval must be positive"))
	}
	if c.Pipeline.PacingDelay < 0 {
		errs = append(errs, errors.New("pipeline.pacing_delay must not be negative"))
	}

	switch c.Translation.Provider {
	case ProviderStub:
	case ProviderOpenAI, ProviderAnthropic:
		if c.Translation.Model == "" {
			errs = append(errs, fmt.Errorf("translation.model is required for provider %q", c.Translation.Provider))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown translation.provider %q", c.Translation.Provider))
	}

	switch c.Speech.Provider {
	case ProviderStub, ProviderOpenAI:
	default:
		errs = append(errs, fmt.Errorf("unknown speech.provider %q", c.Speech.Provider))
	}
	if c.Speech.AudioDir == "" {
		errs = append(errs, errors.New("speech.audio_dir is required"))
	}
	if c.Speech.AudioTTL <= 0 {
		errs = append(errs, errors.New("speech.audio_ttl must be positive"))
	}
	if c.Speech.Timeout < 0 {
		errs = append(errs, errors.New("speech.timeout must not be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}
