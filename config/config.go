// docwebapi/config/config.go
package config

import (
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type Config struct {
	OutputDir           string        `mapstructure:"OUTPUT_DIR"`
	MaxWorkers          int           `mapstructure:"MAX_WORKERS"`
	MaxQueue            int           `mapstructure:"MAX_QUEUE"`
	MaxBatches          int           `mapstructure:"MAX_BATCHES"`
	MaxInputSize        int64         `mapstructure:"MAX_INPUT_SIZE"`
	JobTimeout          time.Duration `mapstructure:"JOB_TIMEOUT"`
	OutputLocalLifetime time.Duration `mapstructure:"OUTPUT_LOCAL_LIFETIME"`
	PDFCommand          string        `mapstructure:"PDF_COMMAND"`
	OCRCommand          string        `mapstructure:"OCR_COMMAND"`
	AnalyzerRate        float64       `mapstructure:"ANALYZER_RATE"`
	ThrottleCPU         float64       `mapstructure:"THROTTLE_CPU"`
	ThrottleFreeMem     int64         `mapstructure:"THROTTLE_FREEMEM"`
	ThrottleFreeDisk    int64         `mapstructure:"THROTTLE_FREEDISK"`
	AuthEnable          bool          `mapstructure:"AUTH_ENABLE"`
	AuthKey             string        `mapstructure:"AUTH_KEY"`
	Port                string        `mapstructure:"PORT"`
	BaseURL             string        `mapstructure:"BASE"`
	LogLevel            string        `mapstructure:"LOG_LEVEL"`
}

// stringToDurationHookFunc is a custom Viper hook for parsing Go's duration strings.
func stringToDurationHookFunc() mapstructure.DecodeHookFunc {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		return time.ParseDuration(data.(string))
	}
}

// stringToByteSizeHookFunc is a custom Viper hook for parsing human-readable size strings.
func stringToByteSizeHookFunc() mapstructure.DecodeHookFunc {
	return func(
		f reflect.Type,
		t reflect.Type,
		data interface{},
	) (interface{}, error) {
		if f.Kind() != reflect.String || t.Kind() != reflect.Int64 {
			return data, nil
		}

		var size datasize.ByteSize
		err := size.UnmarshalText([]byte(data.(string)))
		if err != nil {
			// Not a valid size string, let other parsers handle it.
			return data, nil
		}

		return int64(size.Bytes()), nil
	}
}

func Load() (*Config, error) {
	vp := viper.New()

	// Set default values as strings, the hooks will handle them.
	vp.SetDefault("OUTPUT_DIR", "output")
	vp.SetDefault("MAX_WORKERS", 0) // 0 = two workers per logical CPU
	vp.SetDefault("MAX_QUEUE", 100)
	vp.SetDefault("MAX_BATCHES", 1)
	vp.SetDefault("MAX_INPUT_SIZE", "200MB")
	vp.SetDefault("JOB_TIMEOUT", "10m")
	vp.SetDefault("OUTPUT_LOCAL_LIFETIME", "24h")
	vp.SetDefault("PDF_COMMAND", "")
	vp.SetDefault("OCR_COMMAND", "")
	vp.SetDefault("ANALYZER_RATE", 0.0)
	vp.SetDefault("THROTTLE_CPU", 0.0)
	vp.SetDefault("THROTTLE_FREEMEM", "0B")
	vp.SetDefault("THROTTLE_FREEDISK", "200MB")
	vp.SetDefault("AUTH_ENABLE", false)
	vp.SetDefault("AUTH_KEY", "123456")
	vp.SetDefault("PORT", "7860")
	vp.SetDefault("BASE", "")
	vp.SetDefault("LOG_LEVEL", "info")

	vp.SetConfigName("docwebapi_config")
	vp.SetConfigType("yaml")
	vp.AddConfigPath(".")
	vp.AddConfigPath("/etc/docwebapi/")

	if err := vp.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	vp.SetEnvPrefix("DOCWEBAPI")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	var cfg Config
	// The first hook that succeeds is used.
	err := vp.Unmarshal(&cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			stringToDurationHookFunc(),
			stringToByteSizeHookFunc(),
		),
	))
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}

// SlogLevel maps LOG_LEVEL onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
