// Package config provides configuration for dispatch runtimes and the
// processes that host them. Values come from defaults, an optional YAML
// file, and environment variable overrides, in that order.
package config

import (
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/comalice/dispatchx"
)

const (
	// Default values
	DefaultLogLevel      = "info"
	DefaultQueueSize     = 256
	DefaultPublishBuffer = 16

	// Environment variable names
	EnvConfigFile    = "DISPATCHX_CONFIG"
	EnvLogLevel      = "DISPATCHX_LOG_LEVEL"
	EnvDebug         = "DISPATCHX_DEBUG"
	EnvQueueSize     = "DISPATCHX_QUEUE_SIZE"
	EnvStorePath     = "DISPATCHX_STORE_PATH"
	EnvAblyChannel   = "DISPATCHX_ABLY_CHANNEL"
	EnvPublishBuffer = "DISPATCHX_PUBLISH_BUFFER"
	EnvAblyKey       = "ABLY_API_KEY"
)

// Config holds everything a hosting process needs to assemble a runtime:
// logging, queue sizing, the optional commit archive, and the optional
// realtime channel commits are published on.
type Config struct {
	// LogLevel is the minimum level emitted: debug, info, warn, or error.
	LogLevel string `yaml:"log_level"`

	// Debug switches the logger to development output and enables debug
	// level regardless of LogLevel.
	Debug bool `yaml:"debug"`

	// QueueSize is the capacity of the deferred-dispatch queue.
	QueueSize int `yaml:"queue_size"`

	// StorePath is the bolt database file for the commit archive. Empty
	// disables archiving.
	StorePath string `yaml:"store_path"`

	// PublishBuffer is the channel buffer used when publishing commits to
	// in-process observers.
	PublishBuffer int `yaml:"publish_buffer"`

	// AblyKey authenticates against Ably when commits are mirrored to a
	// realtime channel. Read from ABLY_API_KEY, never from the file.
	AblyKey string `yaml:"-"`

	// AblyChannel is the realtime channel commits are mirrored to. Empty
	// disables mirroring.
	AblyChannel string `yaml:"ably_channel"`
}

// Default returns the configuration used when nothing is specified.
func Default() Config {
	return Config{
		LogLevel:      DefaultLogLevel,
		QueueSize:     DefaultQueueSize,
		PublishBuffer: DefaultPublishBuffer,
	}
}

// Load reads a YAML config file over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("yaml unmarshal %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// New builds the effective configuration: defaults, then the file named by
// DISPATCHX_CONFIG when set, then environment overrides, validated.
func New() (Config, error) {
	cfg := Default()
	if path := os.Getenv(EnvConfigFile); path != "" {
		loaded, err := Load(path)
		if err != nil {
			return Config{}, err
		}
		cfg = loaded
	}
	cfg, err := cfg.withEnv()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) withEnv() (Config, error) {
	if level := os.Getenv(EnvLogLevel); level != "" {
		c.LogLevel = level
	}
	if debug := os.Getenv(EnvDebug); debug != "" {
		v, err := strconv.ParseBool(debug)
		if err != nil {
			return Config{}, &Error{Field: "Debug", Message: EnvDebug + " must be a boolean: " + err.Error()}
		}
		c.Debug = v
	}
	if size := os.Getenv(EnvQueueSize); size != "" {
		n, err := strconv.Atoi(size)
		if err != nil {
			return Config{}, &Error{Field: "QueueSize", Message: EnvQueueSize + " must be an integer: " + err.Error()}
		}
		c.QueueSize = n
	}
	if buffer := os.Getenv(EnvPublishBuffer); buffer != "" {
		n, err := strconv.Atoi(buffer)
		if err != nil {
			return Config{}, &Error{Field: "PublishBuffer", Message: EnvPublishBuffer + " must be an integer: " + err.Error()}
		}
		c.PublishBuffer = n
	}
	if path := os.Getenv(EnvStorePath); path != "" {
		c.StorePath = path
	}
	if channel := os.Getenv(EnvAblyChannel); channel != "" {
		c.AblyChannel = channel
	}
	c.AblyKey = os.Getenv(EnvAblyKey)
	return c, nil
}

// Validate checks that the configuration can actually assemble a runtime.
func (c Config) Validate() error {
	if c.QueueSize < 1 {
		return &Error{Field: "QueueSize", Message: "queue size must be at least 1"}
	}
	if c.PublishBuffer < 1 {
		return &Error{Field: "PublishBuffer", Message: "publish buffer must be at least 1"}
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return &Error{Field: "LogLevel", Message: "unknown level " + strconv.Quote(c.LogLevel)}
	}
	if c.AblyChannel != "" && c.AblyKey == "" {
		return &Error{Field: "AblyKey", Message: EnvAblyKey + " environment variable is required when an Ably channel is configured"}
	}
	return nil
}

// Options translates the runtime-facing settings into functional options for
// dispatchx.New: the queue size always, plus the logger when one is given.
// It is a free function rather than a method so it can carry the runtime's
// state type parameter.
func Options[S any](c Config, log *zap.Logger) []dispatchx.Option[S] {
	opts := []dispatchx.Option[S]{dispatchx.WithQueueSize[S](c.QueueSize)}
	if log != nil {
		opts = append(opts, dispatchx.WithLogger[S](log))
	}
	return opts
}

// Logger builds a zap logger matching the configured level and mode.
func (c Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, &Error{Field: "LogLevel", Message: "unknown level " + strconv.Quote(c.LogLevel)}
	}
	if c.Debug {
		level = zapcore.DebugLevel
	}
	zc := zap.Config{
		Level:       zap.NewAtomicLevelAt(level),
		Development: c.Debug,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	return zc.Build()
}

// Error reports a configuration field that failed validation or parsing.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	return "config error: " + e.Field + ": " + e.Message
}
