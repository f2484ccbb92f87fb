package voxmail

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/voxmail/voxmail/pkg/pipeline"
)

type Config struct {
	Pipeline    pipeline.Config  `mapstructure:"-"`
	Vendors     VendorsConfig    `mapstructure:"vendors"`
	Transports  TransportsConfig `mapstructure:"transports"`
	STT         STTConfig        `mapstructure:"stt"`
	Turn        TurnConfig       `mapstructure:"turn"`
	Session     SessionConfig    `mapstructure:"session"`
	Server      ServerConfig     `mapstructure:"server"`
	Greeting    string           `mapstructure:"greeting"`
	Environment string           `mapstructure:"environment"`
	LogLevel    string           `mapstructure:"log_level"`
	LogFormat   string           `mapstructure:"log_format"`
}

// VendorConfig selects a provider by name plus its free-form settings.
// Settings are decoded per provider with mapstructure.
type VendorConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type VendorsConfig struct {
	STT  VendorConfig `mapstructure:"stt"`
	TTS  VendorConfig `mapstructure:"tts"`
	LLM  VendorConfig `mapstructure:"llm"`
	Mail VendorConfig `mapstructure:"mail"`
}

type TransportsConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type STTConfig struct {
	ForwardInterim bool `mapstructure:"forward_interim"`
}

type TurnConfig struct {
	BargeInThresholdMS int `mapstructure:"barge_in_threshold_ms"`
}

type SessionConfig struct {
	Store         string `mapstructure:"store"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	TTLHours      int    `mapstructure:"ttl_hours"`
}

type ServerConfig struct {
	Addr            string `mapstructure:"addr"`
	DailyAPIKey     string `mapstructure:"daily_api_key"`
	RoomTTLMinutes  int    `mapstructure:"room_ttl_minutes"`
	TokenTTLMinutes int    `mapstructure:"token_ttl_minutes"`
}

func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("VOXMAIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("pipeline.async", true)
	v.SetDefault("pipeline.stagebuffer", 128)
	v.SetDefault("pipeline.highcapacity", 256)
	v.SetDefault("pipeline.lowcapacity", 512)
	v.SetDefault("pipeline.fairnessratio", 3)
	v.SetDefault("pipeline.backpressure", "drop")
	v.SetDefault("stt.forward_interim", false)
	v.SetDefault("turn.barge_in_threshold_ms", 500)
	v.SetDefault("session.store", "memory")
	v.SetDefault("session.ttl_hours", 24)
	v.SetDefault("server.addr", ":7860")
	v.SetDefault("server.room_ttl_minutes", 60)
	v.SetDefault("server.token_ttl_minutes", 60)
	v.SetDefault("greeting", "Hello! I'm your email assistant. How can I help you today?")
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}
	cfg.Pipeline = pipeline.Config{
		Async:         v.GetBool("pipeline.async"),
		StageBuffer:   v.GetInt("pipeline.stagebuffer"),
		HighCapacity:  v.GetInt("pipeline.highcapacity"),
		LowCapacity:   v.GetInt("pipeline.lowcapacity"),
		FairnessRatio: v.GetInt("pipeline.fairnessratio"),
		Backpressure:  parseBackpressure(v.GetString("pipeline.backpressure")),
	}

	expandEnvStrings(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Transports.Provider) == "" {
		return fmt.Errorf("transports.provider is required")
	}
	for name, vendor := range map[string]VendorConfig{
		"vendors.stt":  c.Vendors.STT,
		"vendors.tts":  c.Vendors.TTS,
		"vendors.llm":  c.Vendors.LLM,
		"vendors.mail": c.Vendors.Mail,
	} {
		if strings.TrimSpace(vendor.Provider) == "" {
			return fmt.Errorf("%s.provider is required", name)
		}
	}
	switch strings.ToLower(strings.TrimSpace(c.Session.Store)) {
	case "memory", "redis":
	default:
		return fmt.Errorf("session.store must be memory or redis")
	}
	return nil
}

// expandEnvStrings resolves ${VAR} references so secrets stay out of
// config files.
func expandEnvStrings(cfg *Config) {
	cfg.Greeting = os.ExpandEnv(cfg.Greeting)
	cfg.Session.RedisAddr = os.ExpandEnv(cfg.Session.RedisAddr)
	cfg.Session.RedisPassword = os.ExpandEnv(cfg.Session.RedisPassword)
	cfg.Server.DailyAPIKey = os.ExpandEnv(cfg.Server.DailyAPIKey)
	cfg.Vendors.STT.Settings = expandSettings(cfg.Vendors.STT.Settings)
	cfg.Vendors.TTS.Settings = expandSettings(cfg.Vendors.TTS.Settings)
	cfg.Vendors.LLM.Settings = expandSettings(cfg.Vendors.LLM.Settings)
	cfg.Vendors.Mail.Settings = expandSettings(cfg.Vendors.Mail.Settings)
	cfg.Transports.Settings = expandSettings(cfg.Transports.Settings)
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

func parseBackpressure(v string) pipeline.BackpressureMode {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "wait":
		return pipeline.BackpressureWait
	case "drop", "":
		return pipeline.BackpressureDrop
	default:
		if n, err := strconv.Atoi(v); err == nil {
			return pipeline.BackpressureMode(n)
		}
	}
	return pipeline.BackpressureDrop
}
