package config

import (
	"os"
	"path/filepath"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigtoml"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/ngld/star/pkg/archive"
)

// Config describes all configuration options
type Config struct {
	Log struct {
		Level string `default:"info" toml:"level" env:"LEVEL" usage:"Minimum log level (debug, info, warn, error)"`
		JSON  bool   `default:"false" toml:"json" env:"JSON" usage:"Output JSONND instead of pretty console messages"`
		File  string `default:"" toml:"file" env:"FILE" usage:"Append log messages to this file instead of stderr"`
	} `toml:"log" env:"LOG"`
	Progress bool `default:"true" toml:"progress" env:"PROGRESS" usage:"Show progress bars on interactive terminals"`
	Threads  int  `default:"0" toml:"threads" env:"THREADS" usage:"Encoder threads for gzip and zstd (0 = codec default)"`
	Levels   struct {
		Xz     int `default:"9" toml:"xz" env:"XZ"`
		Gzip   int `default:"9" toml:"gzip" env:"GZIP"`
		Zstd   int `default:"21" toml:"zstd" env:"ZSTD"`
		Brotli int `default:"11" toml:"brotli" env:"BROTLI"`
		Bzip2  int `default:"9" toml:"bzip2" env:"BZIP2"`
		Lz4    int `default:"9" toml:"lz4" env:"LZ4"`
	} `toml:"levels" env:"LEVELS"`
}

var logLevels = map[string]zerolog.Level{
	"trace":   zerolog.TraceLevel,
	"debug":   zerolog.DebugLevel,
	"info":    zerolog.InfoLevel,
	"warn":    zerolog.WarnLevel,
	"warning": zerolog.WarnLevel,
	"error":   zerolog.ErrorLevel,
	"fatal":   zerolog.FatalLevel,
}

// DefaultFiles lists the config files that are checked if no explicit file was passed
func DefaultFiles() []string {
	files := []string{"star.toml"}
	cfgDir, err := os.UserConfigDir()
	if err == nil {
		files = append(files, filepath.Join(cfgDir, "star", "star.toml"))
	}
	return files
}

// Loader initializes an empty config object and returns a new Loader for this object. If file is empty,
// the DefaultFiles are used.
func Loader(file string) (*Config, *aconfig.Loader) {
	files := DefaultFiles()
	if file != "" {
		files = []string{file}
	}

	cfg := Config{}
	return &cfg, aconfig.LoaderFor(&cfg, aconfig.Config{
		SkipFlags:        true,
		AllowUnknownEnvs: true,
		EnvPrefix:        "STAR",
		Files:            files,
		FileDecoders: map[string]aconfig.FileDecoder{
			".toml": aconfigtoml.New(),
		},
	})
}

// Load reads the configuration from defaults, the config file and the environment and validates the result
func Load(file string) (*Config, error) {
	if file != "" {
		_, err := os.Stat(file)
		if err != nil {
			return nil, eris.Wrapf(err, "Could not open config file %s", file)
		}
	}

	cfg, loader := Loader(file)
	err := loader.Load()
	if err != nil {
		return nil, eris.Wrap(err, "Failed to load configuration")
	}

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate verifies that all config fields have valid values
func (cfg *Config) Validate() error {
	_, ok := logLevels[cfg.Log.Level]
	if !ok {
		return eris.Errorf(`Invalid value for log.level: %s`, cfg.Log.Level)
	}

	if cfg.Threads < 0 {
		return eris.Errorf(`Invalid value for threads: %d`, cfg.Threads)
	}

	for format, level := range cfg.levels() {
		lo, hi := archive.LevelRange(format)
		if level < lo || level > hi {
			return eris.Errorf(`Invalid value for levels.%s: %d (must be between %d and %d)`, format, level, lo, hi)
		}
	}

	return nil
}

// SetLogLevel replaces the configured log level after validating it
func (cfg *Config) SetLogLevel(level string) error {
	_, ok := logLevels[level]
	if !ok {
		return eris.Errorf(`Invalid log level: %s`, level)
	}
	cfg.Log.Level = level
	return nil
}

// LogLevel converts the .Log.Level field to a zerolog.Level
func (cfg *Config) LogLevel() zerolog.Level {
	return logLevels[cfg.Log.Level]
}

func (cfg *Config) levels() map[archive.Format]int {
	return map[archive.Format]int{
		archive.FormatXz:     cfg.Levels.Xz,
		archive.FormatGzip:   cfg.Levels.Gzip,
		archive.FormatZstd:   cfg.Levels.Zstd,
		archive.FormatBrotli: cfg.Levels.Brotli,
		archive.FormatBzip2:  cfg.Levels.Bzip2,
		archive.FormatLz4:    cfg.Levels.Lz4,
	}
}

// CodecOptions returns the encoder settings for the given format. A positive override replaces the configured level.
func (cfg *Config) CodecOptions(format archive.Format, override int) archive.CodecOptions {
	level := cfg.levels()[format]
	if override > 0 {
		level = override
	}

	return archive.CodecOptions{
		Level:   level,
		Threads: cfg.Threads,
	}
}
