// Package config defines the job file of the bulksync CLI and loads it with
// viper.
//
// A job can come from a YAML/JSON file, BULKSYNC_* environment variables, a
// .env file and command-line flags, in increasing precedence for everything
// but the .env file, which never overrides variables that are already set.
//
//	job: clubs-nightly
//	storage:
//	  kind: postgres
//	  dsn: postgres://sync:${PGPASSWORD}@db/clubs
//	source:
//	  path: exports/clubs.csv
//	runtime:
//	  batch_size: 10
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"bulksync/internal/logging"
	"bulksync/internal/parser"
	"bulksync/internal/storage"
)

// EnvPrefix prefixes every environment override, e.g. BULKSYNC_STORAGE_DSN.
const EnvPrefix = "BULKSYNC"

// Job is one configured sync run.
type Job struct {
	// Job labels metrics and log lines.
	Job       string         `mapstructure:"job"`
	Storage   Storage        `mapstructure:"storage"`
	Source    Source         `mapstructure:"source"`
	Runtime   Runtime        `mapstructure:"runtime"`
	Update    Update         `mapstructure:"update"`
	Conflicts Conflicts      `mapstructure:"conflicts"`
	Metrics   Metrics        `mapstructure:"metrics"`
	Log       logging.Config `mapstructure:"log"`
}

// Storage selects the backend.
type Storage struct {
	// Kind is postgres, sqlite, mssql or memory.
	Kind string `mapstructure:"kind"`
	// DSN may reference environment variables as ${NAME}.
	DSN string `mapstructure:"dsn"`
	// AutoCreateTables creates missing tables before the run.
	AutoCreateTables bool `mapstructure:"auto_create_tables"`
}

// Source is the uploaded file.
type Source struct {
	Path     string `mapstructure:"path"`
	Format   string `mapstructure:"format"`
	Encoding string `mapstructure:"encoding"`
	// Comma is a single-character CSV delimiter; empty sniffs it. "\t" and
	// "tab" both mean a tab.
	Comma string `mapstructure:"comma"`
}

// Runtime tunes batching.
type Runtime struct {
	BatchSize   int `mapstructure:"batch_size"`
	StartingRow int `mapstructure:"starting_row"`
	Workers     int `mapstructure:"workers"`
}

// Update holds update-only settings.
type Update struct {
	SelectedColumns []string `mapstructure:"selected_columns"`
	NullifyEmpty    bool     `mapstructure:"nullify_empty"`
}

// Conflicts holds upload-only settings.
type Conflicts struct {
	// Default is skip or overwrite.
	Default string `mapstructure:"default"`
	// File is a conflicts YAML produced by "bulksync conflicts".
	File string `mapstructure:"file"`
}

// Metrics selects a metrics backend.
type Metrics struct {
	// Backend is none or datadog.
	Backend    string        `mapstructure:"backend"`
	Tags       []string      `mapstructure:"tags"`
	FlushEvery time.Duration `mapstructure:"flush_every"`
}

// SetDefaults registers every key so environment overrides reach Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("env_file", ".env")
	v.SetDefault("job", "bulksync")
	v.SetDefault("storage.kind", "")
	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.auto_create_tables", false)
	v.SetDefault("source.path", "")
	v.SetDefault("source.format", "auto")
	v.SetDefault("source.encoding", "")
	v.SetDefault("source.comma", "")
	v.SetDefault("runtime.batch_size", 0)
	v.SetDefault("runtime.starting_row", 0)
	v.SetDefault("runtime.workers", 0)
	v.SetDefault("update.selected_columns", []string{})
	v.SetDefault("update.nullify_empty", false)
	v.SetDefault("conflicts.default", "skip")
	v.SetDefault("conflicts.file", "")
	v.SetDefault("metrics.backend", "none")
	v.SetDefault("metrics.tags", []string{})
	v.SetDefault("metrics.flush_every", 60*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "auto")
	v.SetDefault("log.output", "stderr")
	v.SetDefault("log.no_color", false)
}

// Load reads the .env file named by "env_file", the config file named by
// "config" (if any) and BULKSYNC_* variables into a Job. Flags bound to v
// with BindPFlag win over all of them.
func Load(v *viper.Viper) (Job, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := loadDotEnv(v.GetString("env_file")); err != nil {
		return Job{}, err
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Job{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var job Job
	if err := v.Unmarshal(&job); err != nil {
		return Job{}, fmt.Errorf("decode config: %w", err)
	}
	job.Storage.DSN = os.ExpandEnv(job.Storage.DSN)
	job.Update.SelectedColumns = splitList(job.Update.SelectedColumns)
	job.Metrics.Tags = splitList(job.Metrics.Tags)
	return job, nil
}

func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// splitList flattens comma-separated entries so "Email,Phone" from an
// environment variable and a YAML list decode the same way.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// StorageConfig is the storage factory input.
func (j Job) StorageConfig() storage.Config {
	return storage.Config{Kind: j.Storage.Kind, DSN: j.Storage.DSN}
}

// ParserOptions converts Source into parser options.
func (j Job) ParserOptions() (parser.Options, error) {
	format, err := parser.ParseFormat(j.Source.Format)
	if err != nil {
		return parser.Options{}, err
	}
	comma, err := parseComma(j.Source.Comma)
	if err != nil {
		return parser.Options{}, err
	}
	return parser.Options{Format: format, Comma: comma, Encoding: j.Source.Encoding}, nil
}

func parseComma(s string) (rune, error) {
	switch strings.ToLower(s) {
	case "":
		return 0, nil
	case `\t`, "tab", "\t":
		return '\t', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("comma must be a single character, got %q", s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}
