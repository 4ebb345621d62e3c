package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"match-service/internal/matching/model"
)

// ConfigPathEnvVar overrides the YAML file location.
const ConfigPathEnvVar = "CONFIG_PATH"

var defaultConfigPaths = []string{"config.yaml", "config.yml"}

type Config struct {
	Host         string          `koanf:"host" validate:"required"`
	Port         int             `koanf:"port" validate:"min=1,max=65535"`
	AllowOrigins []string        `koanf:"allow_origins"`
	LogLevel     string          `koanf:"log_level" validate:"oneof=trace debug info warn error fatal panic disabled"`
	LogFile      string          `koanf:"log_file"`
	MaxUploadMB  int             `koanf:"max_upload_mb" validate:"min=1"`
	UploadFolder string          `koanf:"upload_folder"`
	RateLimit    RateLimitConfig `koanf:"rate_limit"`
	Clip         ClipConfig      `koanf:"clip"`
	Matching     MatchingConfig  `koanf:"matching"`
}

// RateLimitConfig: Requests == 0 turns the limiter off.
type RateLimitConfig struct {
	Requests int           `koanf:"requests" validate:"gte=0"`
	Window   time.Duration `koanf:"window" validate:"gt=0"`
}

// ClipConfig: an empty URL leaves image similarity disabled.
type ClipConfig struct {
	URL            string        `koanf:"url" validate:"omitempty,url"`
	Model          string        `koanf:"model"`
	LoadTimeout    time.Duration `koanf:"load_timeout" validate:"gt=0"`
	RequestTimeout time.Duration `koanf:"request_timeout" validate:"gt=0"`
	CacheSize      int           `koanf:"cache_size" validate:"gte=0"`
	MaxPhotoMB     int           `koanf:"max_photo_mb" validate:"gte=0"`
}

type MatchingConfig struct {
	Workers            int                `koanf:"workers" validate:"gte=0"`
	RankWeights        map[string]float64 `koanf:"rank_weights"`
	DuplicateWeights   map[string]float64 `koanf:"duplicate_weights"`
	TextWeight         float64            `koanf:"text_weight" validate:"gte=0"`
	ImageWeight        float64            `koanf:"image_weight" validate:"gte=0"`
	CategoryBonus      float64            `koanf:"category_bonus"`
	NearDays           float64            `koanf:"near_days" validate:"gte=0"`
	NearBonus          float64            `koanf:"near_bonus"`
	FarDays            float64            `koanf:"far_days" validate:"gtefield=NearDays"`
	FarPenalty         float64            `koanf:"far_penalty"`
	Limit              int                `koanf:"limit" validate:"gt=0"`
	DuplicateThreshold float64            `koanf:"duplicate_threshold" validate:"gte=0,lte=100"`
	PairsThreshold     float64            `koanf:"pairs_threshold" validate:"gte=0,lte=100"`
}

func defaultConfig() Config {
	rank := model.RankingWeights()
	dup := model.DuplicateWeights()
	return Config{
		Host:         "127.0.0.1",
		Port:         8082,
		AllowOrigins: []string{"*"},
		LogLevel:     "info",
		LogFile:      "logs/match-service.log",
		MaxUploadMB:  64,
		UploadFolder: "media",
		RateLimit:    RateLimitConfig{Requests: 120, Window: time.Minute},
		Clip: ClipConfig{
			Model:          "clip-ViT-B-32",
			LoadTimeout:    20 * time.Second,
			RequestTimeout: 5 * time.Second,
			CacheSize:      2048,
			MaxPhotoMB:     16,
		},
		Matching: MatchingConfig{
			Workers:            0,
			RankWeights:        weightsToMap(rank),
			DuplicateWeights:   weightsToMap(dup),
			TextWeight:         0.6,
			ImageWeight:        0.4,
			CategoryBonus:      10,
			NearDays:           2,
			NearBonus:          10,
			FarDays:            14,
			FarPenalty:         10,
			Limit:              10,
			DuplicateThreshold: 70,
			PairsThreshold:     60,
		},
	}
}

// Load layers defaults, the optional YAML file and the environment, then validates.
func Load() (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}
	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider("", ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}
	if err := splitList(k, "allow_origins"); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks the struct tags and that the matching defaults form valid options.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if _, err := c.Matching.RankOptions(); err != nil {
		return err
	}
	if _, err := c.Matching.PairWeights(); err != nil {
		return err
	}
	return nil
}

func (c Config) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

// RankOptions builds the default ranking parameters.
func (m MatchingConfig) RankOptions() (model.RankOptions, error) {
	w, err := model.ParseFieldWeights(m.RankWeights)
	if err != nil {
		return model.RankOptions{}, err
	}
	opts := model.RankOptions{
		Weights:       w,
		CategoryBonus: m.CategoryBonus,
		Temporal: model.TemporalRules{
			NearDays:   m.NearDays,
			NearBonus:  m.NearBonus,
			FarDays:    m.FarDays,
			FarPenalty: m.FarPenalty,
		},
		TextWeight:  m.TextWeight,
		ImageWeight: m.ImageWeight,
		Limit:       m.Limit,
	}
	return opts, opts.Validate()
}

// PairWeights are the weights used for duplicate detection and the pairs report.
func (m MatchingConfig) PairWeights() (model.FieldWeights, error) {
	w, err := model.ParseFieldWeights(m.DuplicateWeights)
	if err != nil {
		return nil, err
	}
	return w, w.Validate()
}

func weightsToMap(w model.FieldWeights) map[string]float64 {
	out := make(map[string]float64, len(w))
	for f, v := range w {
		out[string(f)] = v
	}
	return out
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range defaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// historical variable names first, then a few matching knobs
var envMappings = map[string]string{
	"host":                 "host",
	"port":                 "port",
	"allow_origins":        "allow_origins",
	"log_level":            "log_level",
	"log_file":             "log_file",
	"max_upload_mb":        "max_upload_mb",
	"upload_folder":        "upload_folder",
	"rate_limit_requests":  "rate_limit.requests",
	"rate_limit_window":    "rate_limit.window",
	"clip_url":             "clip.url",
	"clip_model":           "clip.model",
	"clip_load_timeout":    "clip.load_timeout",
	"clip_request_timeout": "clip.request_timeout",
	"clip_cache_size":      "clip.cache_size",
	"clip_max_photo_mb":    "clip.max_photo_mb",
	"match_workers":        "matching.workers",
	"match_limit":          "matching.limit",
	"match_category_bonus": "matching.category_bonus",
	"match_text_weight":    "matching.text_weight",
	"match_image_weight":   "matching.image_weight",
	"duplicate_threshold":  "matching.duplicate_threshold",
	"pairs_threshold":      "matching.pairs_threshold",
}

// envKey maps known variables to config paths; everything else is ignored.
func envKey(key string) string {
	return envMappings[strings.ToLower(key)]
}

// splitList turns a comma separated env value into a slice.
func splitList(k *koanf.Koanf, path string) error {
	s, ok := k.Get(path).(string)
	if !ok {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if err := k.Set(path, out); err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	return nil
}
