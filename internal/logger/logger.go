package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation settings.
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// SlogConfig controls the daemon's own structured log output.
type SlogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error (default info)
	Format Format `mapstructure:"format"` // text or json (default text)
	Color  bool   `mapstructure:"color"`  // ANSI colours for text format on stderr
}

// FileConfig describes rotated log files.
// If StdoutPath/StderrPath are empty and Dir is set, subprocess streams go to
// Dir/<name>.stdout.log and Dir/<name>.stderr.log. The daemon log itself goes to
// Dir/crawlpost.log when Dir is set.
type FileConfig struct {
	Dir        string `mapstructure:"dir"`
	StdoutPath string `mapstructure:"stdout"`
	StderrPath string `mapstructure:"stderr"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type Config struct {
	Slog SlogConfig `mapstructure:"slog"`
	File FileConfig `mapstructure:"file"`
}

// New builds the daemon logger. Records always go to stderr; when File.Dir is
// set they are also written to a rotated crawlpost.log.
func New(cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Slog.Level)}
	var w io.Writer = os.Stderr
	if cfg.File.Dir != "" {
		_ = os.MkdirAll(cfg.File.Dir, 0o750)
		w = io.MultiWriter(os.Stderr, cfg.File.rotated(filepath.Join(cfg.File.Dir, "crawlpost.log")))
	}
	var h slog.Handler
	switch {
	case cfg.Slog.Format == FormatJSON:
		h = slog.NewJSONHandler(w, opts)
	case cfg.Slog.Color && cfg.File.Dir == "":
		h = NewColorTextHandler(w, opts, true)
	default:
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ProcessWriters returns rotated writers for a subprocess's stdout and stderr.
// Either may be nil when neither Dir nor the explicit path is configured.
func (c Config) ProcessWriters(name string) (io.WriteCloser, io.WriteCloser, error) {
	fc := c.File
	stdout := fc.StdoutPath
	stderr := fc.StderrPath
	if stdout == "" && fc.Dir != "" {
		stdout = filepath.Join(fc.Dir, fmt.Sprintf("%s.stdout.log", name))
	}
	if stderr == "" && fc.Dir != "" {
		stderr = filepath.Join(fc.Dir, fmt.Sprintf("%s.stderr.log", name))
	}
	var outW, errW io.WriteCloser
	if stdout != "" {
		outW = fc.rotated(stdout)
	}
	if stderr != "" {
		errW = fc.rotated(stderr)
	}
	return outW, errW, nil
}

func (fc FileConfig) rotated(path string) *lj.Logger {
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(fc.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(fc.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(fc.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   fc.Compress,
	}
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
