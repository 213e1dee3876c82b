package checky

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/harunnryd/checky/pkg/childcfg"
	"github.com/spf13/viper"
)

type Config struct {
	LogLevel      string              `mapstructure:"log_level"`
	LogFormat     string              `mapstructure:"log_format"`
	Server        ServerConfig        `mapstructure:"server"`
	Session       SessionConfig       `mapstructure:"session"`
	Child         ChildConfig         `mapstructure:"child"`
	Store         StoreConfig         `mapstructure:"store"`
	Vendors       VendorsConfig       `mapstructure:"vendors"`
	Credentials   CredentialsConfig   `mapstructure:"credentials"`
	Resilience    ResilienceConfig    `mapstructure:"resilience"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Privacy       PrivacyConfig       `mapstructure:"privacy"`
}

type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	WSPath         string        `mapstructure:"ws_path"`
	HealthPath     string        `mapstructure:"health_path"`
	MetricsPath    string        `mapstructure:"metrics_path"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	MaxSessions    int           `mapstructure:"max_sessions"`
	SampleRate     int           `mapstructure:"sample_rate"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
}

type SessionConfig struct {
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	DrainTimeout time.Duration `mapstructure:"drain_timeout"`
}

type ChildConfig struct {
	DefaultAge      int      `mapstructure:"default_age"`
	DefaultVoice    string   `mapstructure:"default_voice"`
	SupportedVoices []string `mapstructure:"supported_voices"`
}

type StoreConfig struct {
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
	// SeedPIN onboards a child with the default age and voice when the
	// memory store starts empty. Ignored for postgres.
	SeedPIN string `mapstructure:"seed_pin"`
}

type VendorConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type VendorsConfig struct {
	STT VendorConfig `mapstructure:"stt"`
	TTS VendorConfig `mapstructure:"tts"`
	LLM VendorConfig `mapstructure:"llm"`
}

type CredentialsConfig struct {
	// Required lists environment variables that must be set before a
	// session may start.
	Required []string `mapstructure:"required"`
}

type ResilienceConfig struct {
	LLMRetries       int           `mapstructure:"llm_retries"`
	BreakerThreshold int           `mapstructure:"breaker_threshold"`
	BreakerCooldown  time.Duration `mapstructure:"breaker_cooldown"`
}

type ObservabilityConfig struct {
	Metrics     bool          `mapstructure:"metrics"`
	TimelineDir string        `mapstructure:"timeline_dir"`
	Retention   time.Duration `mapstructure:"retention"`
}

type PrivacyConfig struct {
	// RedactLogs scrubs transcripts written to logs. The pipeline always
	// redacts.
	RedactLogs bool `mapstructure:"redact_logs"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.ws_path", "/chat")
	v.SetDefault("server.health_path", "/health")
	v.SetDefault("server.metrics_path", "/metrics")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.max_sessions", 0)
	v.SetDefault("server.sample_rate", 16000)
	v.SetDefault("server.write_timeout", "5s")
	v.SetDefault("session.idle_timeout", "300s")
	v.SetDefault("session.drain_timeout", "30s")
	v.SetDefault("child.default_age", 7)
	v.SetDefault("child.default_voice", childcfg.DefaultVoice)
	v.SetDefault("child.supported_voices", append([]string(nil), childcfg.DefaultVoices...))
	v.SetDefault("store.provider", "memory")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.seed_pin", "")
	v.SetDefault("vendors.stt.provider", "deepgram")
	v.SetDefault("vendors.tts.provider", "elevenlabs")
	v.SetDefault("vendors.llm.provider", "gemini")
	v.SetDefault("credentials.required", []string{})
	v.SetDefault("resilience.llm_retries", 2)
	v.SetDefault("resilience.breaker_threshold", 3)
	v.SetDefault("resilience.breaker_cooldown", "30s")
	v.SetDefault("observability.metrics", true)
	v.SetDefault("observability.timeline_dir", "")
	v.SetDefault("observability.retention", "0s")
	v.SetDefault("privacy.redact_logs", true)
}

// LoadConfig reads path (optional) on top of the defaults. Every key can be
// overridden from the environment as CHECKY_<KEY>, e.g.
// CHECKY_SESSION_IDLE_TIMEOUT=120s.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("CHECKY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}
	expandEnvStrings(&cfg)
	cfg.applyDerived()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// applyDerived fills values that depend on other keys.
func (c *Config) applyDerived() {
	c.Store.Provider = strings.ToLower(strings.TrimSpace(c.Store.Provider))
	if len(c.Credentials.Required) == 0 && strings.EqualFold(c.Vendors.LLM.Provider, "gemini") {
		c.Credentials.Required = []string{"GEMINI_API_KEY"}
	}
}

func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Vendors.STT.Provider) == "" {
		errs = append(errs, errors.New("vendors.stt.provider is required"))
	}
	if strings.TrimSpace(c.Vendors.TTS.Provider) == "" {
		errs = append(errs, errors.New("vendors.tts.provider is required"))
	}
	if strings.TrimSpace(c.Vendors.LLM.Provider) == "" {
		errs = append(errs, errors.New("vendors.llm.provider is required"))
	}
	if !strings.HasPrefix(c.Server.WSPath, "/") {
		errs = append(errs, fmt.Errorf("server.ws_path must start with /: %q", c.Server.WSPath))
	}
	if c.Server.MaxSessions < 0 {
		errs = append(errs, errors.New("server.max_sessions must not be negative"))
	}
	if c.Session.IdleTimeout <= 0 {
		errs = append(errs, errors.New("session.idle_timeout must be positive"))
	}
	if c.Child.DefaultAge < childcfg.MinAge || c.Child.DefaultAge > childcfg.MaxAge {
		errs = append(errs, fmt.Errorf("child.default_age must be between %d and %d", childcfg.MinAge, childcfg.MaxAge))
	}
	if len(c.Child.SupportedVoices) == 0 {
		errs = append(errs, errors.New("child.supported_voices must not be empty"))
	} else if !slices.Contains(c.Child.SupportedVoices, c.Child.DefaultVoice) {
		errs = append(errs, fmt.Errorf("child.default_voice %q is not in child.supported_voices", c.Child.DefaultVoice))
	}
	switch c.Store.Provider {
	case "memory":
	case "postgres":
		if strings.TrimSpace(c.Store.DSN) == "" {
			errs = append(errs, errors.New("store.dsn is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.provider must be memory or postgres, got %q", c.Store.Provider))
	}
	if c.Store.SeedPIN != "" && !childcfg.ValidPIN(c.Store.SeedPIN) {
		errs = append(errs, errors.New("store.seed_pin must be 4 digits"))
	}
	return errors.Join(errs...)
}

// Validator returns the child configuration rules this deployment uses.
func (c Config) Validator() childcfg.Validator {
	return childcfg.Validator{Voices: c.Child.SupportedVoices}
}

func expandEnvStrings(cfg *Config) {
	expandValue(reflect.ValueOf(cfg))
	cfg.Vendors.STT.Settings = expandSettings(cfg.Vendors.STT.Settings)
	cfg.Vendors.TTS.Settings = expandSettings(cfg.Vendors.TTS.Settings)
	cfg.Vendors.LLM.Settings = expandSettings(cfg.Vendors.LLM.Settings)
}

func expandSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
	for k, v := range settings {
		settings[k] = expandAny(v)
	}
	return settings
}

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
	case []any:
		for i := range val {
			val[i] = expandAny(val[i])
		}
		return val
	case map[string]any:
		for k, v := range val {
			val[k] = expandAny(v)
		}
		return val
	default:
		return v
	}
}

func expandValue(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return
		}
		expandValue(v.Elem())
		return
	}
	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			expandValue(v.Field(i))
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(os.ExpandEnv(v.String()))
		}
	case reflect.Slice:
		for i := 0; i < v.Len(); i++ {
			expandValue(v.Index(i))
		}
	}
}
