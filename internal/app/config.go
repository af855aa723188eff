package app

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	HTTPAddr  string `mapstructure:"HTTP_ADDR" validate:"required"`
	APIPrefix string `mapstructure:"API_PREFIX" validate:"required,startswith=/"`
	LogLevel  string `mapstructure:"LOG_LEVEL" validate:"oneof=debug info warn warning error"`
	LogFormat string `mapstructure:"LOG_FORMAT" validate:"oneof=text json"`

	StoreBackend  string `mapstructure:"STORE_BACKEND" validate:"oneof=mongo memory"`
	MongoURI      string `mapstructure:"MONGO_URI" validate:"required_if=StoreBackend mongo"`
	MongoDatabase string `mapstructure:"MONGO_DB" validate:"required_if=StoreBackend mongo"`
	RedisURL      string `mapstructure:"REDIS_URL"`

	VideosDir       string   `mapstructure:"VIDEOS_DIR" validate:"required"`
	ChunksDir       string   `mapstructure:"CHUNKS_DIR" validate:"required"`
	WatcherEnabled  bool     `mapstructure:"WATCHER_ENABLED"`
	WatcherNotify   bool     `mapstructure:"WATCHER_NOTIFY"`
	ChunkDuration   int      `mapstructure:"CHUNK_DURATION" validate:"gt=0"`
	PollSeconds     int      `mapstructure:"POLL_INTERVAL" validate:"gt=0"`
	VideoExtensions []string `mapstructure:"VIDEO_EXTENSIONS" validate:"min=1,dive,startswith=."`

	FFMPEGPath       string `mapstructure:"FFMPEG_PATH" validate:"required"`
	SegmentTimeoutS  int    `mapstructure:"SEGMENT_TIMEOUT_SECONDS" validate:"gte=0"`
	ProcessWorkers   int    `mapstructure:"PROCESS_WORKERS" validate:"gt=0"`
	ProcessQueueSize int    `mapstructure:"PROCESS_QUEUE_SIZE" validate:"gt=0"`
	InFlightTTLS     int    `mapstructure:"INFLIGHT_TTL_SECONDS" validate:"gte=0"`

	MaxUploadSize      string   `mapstructure:"MAX_UPLOAD_SIZE" validate:"required"`
	MaxUploadBytes     int64    `mapstructure:"-" validate:"gt=0"`
	CORSAllowedOrigins []string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RateLimitRPS       float64  `mapstructure:"RATE_LIMIT_RPS" validate:"gte=0"`
	RateLimitBurst     int      `mapstructure:"RATE_LIMIT_BURST" validate:"gte=0"`

	OTelEndpoint   string  `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelSampleRate float64 `mapstructure:"OTEL_TRACES_SAMPLE_RATE" validate:"gte=0,lte=1"`
}

var defaults = map[string]any{
	"HTTP_ADDR":                   ":8000",
	"API_PREFIX":                  "/api",
	"LOG_LEVEL":                   "info",
	"LOG_FORMAT":                  "text",
	"STORE_BACKEND":               "mongo",
	"MONGO_URI":                   "mongodb://localhost:27017",
	"MONGO_DB":                    "streamswarm",
	"REDIS_URL":                   "",
	"VIDEOS_DIR":                  "storage/videos",
	"CHUNKS_DIR":                  "storage/chunks",
	"WATCHER_ENABLED":             true,
	"WATCHER_NOTIFY":              true,
	"CHUNK_DURATION":              5,
	"POLL_INTERVAL":               5,
	"VIDEO_EXTENSIONS":            []string{".mp4", ".mkv", ".avi", ".mov", ".flv", ".wmv"},
	"FFMPEG_PATH":                 "ffmpeg",
	"SEGMENT_TIMEOUT_SECONDS":     1800,
	"PROCESS_WORKERS":             2,
	"PROCESS_QUEUE_SIZE":          64,
	"INFLIGHT_TTL_SECONDS":        7200,
	"MAX_UPLOAD_SIZE":             "4GB",
	"CORS_ALLOWED_ORIGINS":        []string{"http://localhost:3000"},
	"RATE_LIMIT_RPS":              0.0,
	"RATE_LIMIT_BURST":            0,
	"OTEL_EXPORTER_OTLP_ENDPOINT": "",
	"OTEL_TRACES_SAMPLE_RATE":     1.0,
}

// LoadConfig reads the environment. List values are comma separated.
func LoadConfig() (Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	bindEnv(v, Config{})
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	cfg.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	cfg.APIPrefix = "/" + strings.Trim(strings.TrimSpace(cfg.APIPrefix), "/")
	cfg.VideoExtensions = normalizeExtensions(cfg.VideoExtensions)
	cfg.CORSAllowedOrigins = splitList(cfg.CORSAllowedOrigins)

	size, err := humanize.ParseBytes(cfg.MaxUploadSize)
	if err != nil {
		return Config{}, fmt.Errorf("parse MAX_UPLOAD_SIZE %q: %w", cfg.MaxUploadSize, err)
	}
	cfg.MaxUploadBytes = int64(size)

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollSeconds) * time.Second
}

// SegmentTimeout returns zero when the segmenter default applies.
func (c Config) SegmentTimeout() time.Duration {
	return time.Duration(c.SegmentTimeoutS) * time.Second
}

func (c Config) InFlightTTL() time.Duration {
	return time.Duration(c.InFlightTTLS) * time.Second
}

// bindEnv registers every mapstructure tag as an environment key.
func bindEnv(v *viper.Viper, c Config) {
	typ := reflect.TypeOf(c)
	for i := 0; i < typ.NumField(); i++ {
		tag := typ.Field(i).Tag.Get("mapstructure")
		if tag != "" && tag != "-" {
			_ = v.BindEnv(tag)
		}
	}
}

// splitList flattens values that arrived as one comma separated string.
func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func normalizeExtensions(values []string) []string {
	list := splitList(values)
	out := make([]string, 0, len(list))
	seen := make(map[string]struct{}, len(list))
	for _, ext := range list {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if _, ok := seen[ext]; ok {
			continue
		}
		seen[ext] = struct{}{}
		out = append(out, ext)
	}
	return out
}
