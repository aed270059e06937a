package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment override (CACTUS_REMOTE_TOKEN, ...).
const EnvPrefix = "CACTUS"

// Config represents the application configuration
type Config struct {
	CacheDir string        `mapstructure:"cache_dir"`
	Catalog  CatalogConfig `mapstructure:"catalog"`
	Native   NativeConfig  `mapstructure:"native"`
	Remote   RemoteConfig  `mapstructure:"remote"`
	LM       LMConfig      `mapstructure:"lm"`
	STT      STTConfig     `mapstructure:"stt"`
	Vision   VisionConfig  `mapstructure:"vision"`
	HTTP     HTTPConfig    `mapstructure:"http"`
}

// CatalogConfig holds the model catalog endpoint
type CatalogConfig struct {
	URL         string `mapstructure:"url"`
	DownloadURL string `mapstructure:"download_url"`
}

// NativeConfig holds the on-device runtime settings
type NativeConfig struct {
	Library string `mapstructure:"library"`
}

// RemoteConfig holds the cloud inference settings
type RemoteConfig struct {
	URL            string `mapstructure:"url"`
	Token          string `mapstructure:"token"`
	Model          string `mapstructure:"model"`
	EmbeddingModel string `mapstructure:"embedding_model"`
}

// LMConfig holds language model defaults
type LMConfig struct {
	Model       string `mapstructure:"model"`
	ContextSize int    `mapstructure:"context_size"`
}

// STTConfig holds speech-to-text defaults
type STTConfig struct {
	Model string `mapstructure:"model"`
}

// VisionConfig holds vision model defaults
type VisionConfig struct {
	Model string `mapstructure:"model"`
}

// HTTPConfig holds HTTP client settings
type HTTPConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// DefaultPath returns $XDG_CONFIG_HOME/cactus/config.yaml (or the OS equivalent).
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "cactus", "config.yaml")
}

func setDefaults(v *viper.Viper) {
	cache := ""
	if dir, err := os.UserCacheDir(); err == nil {
		cache = filepath.Join(dir, "cactus")
	}
	v.SetDefault("cache_dir", cache)
	v.SetDefault("catalog.url", "")
	v.SetDefault("catalog.download_url", "")
	v.SetDefault("native.library", "")
	v.SetDefault("remote.url", "https://api.openai.com/v1")
	v.SetDefault("remote.token", "")
	v.SetDefault("remote.model", "gpt-4o-mini")
	v.SetDefault("remote.embedding_model", "text-embedding-3-small")
	v.SetDefault("lm.model", "qwen3-0.6")
	v.SetDefault("lm.context_size", 2048)
	v.SetDefault("stt.model", "whisper-tiny")
	v.SetDefault("vision.model", "lfm2-vl-450m")
	v.SetDefault("http.timeout", "10m")
}

// Load reads the configuration from path (or the default location when empty),
// then applies CACTUS_* environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	return LoadWith(viper.New(), path)
}

// LoadWith is Load on a caller supplied viper instance, so flags bound to it apply.
func LoadWith(v *viper.Viper, path string) (*Config, error) {
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			switch {
			case errors.As(err, &notFound):
			case !explicit && errors.Is(err, os.ErrNotExist):
			default:
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.CacheDir = expandHome(cfg.CacheDir)
	if cfg.LM.ContextSize <= 0 {
		return nil, fmt.Errorf("lm.context_size must be positive, got %d", cfg.LM.ContextSize)
	}
	return &cfg, nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
