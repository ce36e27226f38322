// Package config loads typeforge.toml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"

	"typeforge/internal/deduce"
	"typeforge/internal/trace"
)

// FileName is the configuration file looked up by FindFile.
const FileName = "typeforge.toml"

var validate = validator.New()

// Config is the decoded configuration.
type Config struct {
	Engine EngineConfig `toml:"engine"`
	Cache  CacheConfig  `toml:"cache"`
	Trace  TraceConfig  `toml:"trace"`
	Batch  BatchConfig  `toml:"batch"`
}

type EngineConfig struct {
	MaxDepth int `toml:"max_depth" validate:"gte=1,lte=4096"`
}

type CacheConfig struct {
	// Snapshot is a session snapshot path loaded before and saved after a run.
	Snapshot string `toml:"snapshot"`
	CapHint  int    `toml:"cap_hint" validate:"gte=0"`
}

type TraceConfig struct {
	Level    string `toml:"level" validate:"omitempty,oneof=off error phase detail debug"`
	Mode     string `toml:"mode" validate:"omitempty,oneof=stream ring both"`
	Format   string `toml:"format" validate:"omitempty,oneof=auto text ndjson"`
	Output   string `toml:"output"`
	RingSize int    `toml:"ring_size" validate:"gte=0"`
}

type BatchConfig struct {
	// Jobs bounds concurrent deductions; 0 means GOMAXPROCS.
	Jobs int `toml:"jobs" validate:"gte=0,lte=1024"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Engine: EngineConfig{MaxDepth: deduce.DefaultMaxDepth},
		Cache:  CacheConfig{CapHint: 256},
		Trace:  TraceConfig{Level: "off", Mode: "stream", Format: "auto", Output: "stderr", RingSize: 4096},
	}
}

// Validate checks field ranges and enumerations.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var valErrs validator.ValidationErrors
		if errors.As(err, &valErrs) {
			msgs := make([]string, 0, len(valErrs))
			for _, ve := range valErrs {
				msgs = append(msgs, ve.Namespace()+": "+formatValidationError(ve))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	return nil
}

func formatValidationError(ve validator.FieldError) string {
	switch ve.Tag() {
	case "gte":
		return fmt.Sprintf("must be at least %s", ve.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", ve.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", ve.Param())
	default:
		return fmt.Sprintf("failed %s validation", ve.Tag())
	}
}

// Load decodes path on top of Default. Keys absent from the file keep their
// default values. Relative snapshot and output paths resolve against the
// file's directory.
func Load(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%s: unknown key %s", path, undecoded[0])
	}
	dir := filepath.Dir(path)
	if meta.IsDefined("cache", "snapshot") && cfg.Cache.Snapshot != "" && !filepath.IsAbs(cfg.Cache.Snapshot) {
		cfg.Cache.Snapshot = filepath.Join(dir, cfg.Cache.Snapshot)
	}
	if meta.IsDefined("trace", "output") {
		switch out := strings.TrimSpace(cfg.Trace.Output); out {
		case "", "stderr", "-":
		default:
			if !filepath.IsAbs(out) {
				cfg.Trace.Output = filepath.Join(dir, out)
			}
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// FindFile walks from startDir up to the filesystem root looking for
// typeforge.toml.
func FindFile(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// Discover loads the nearest typeforge.toml above startDir, or returns
// Default when there is none.
func Discover(startDir string) (Config, string, error) {
	path, ok, err := FindFile(startDir)
	if err != nil {
		return Config{}, "", err
	}
	if !ok {
		return Default(), "", nil
	}
	cfg, err := Load(path)
	return cfg, path, err
}

// Tracer converts the [trace] section into a tracer configuration.
func (t TraceConfig) Tracer() (trace.Config, error) {
	level, err := trace.ParseLevel(t.Level)
	if err != nil {
		return trace.Config{}, err
	}
	mode, err := trace.ParseMode(t.Mode)
	if err != nil {
		return trace.Config{}, err
	}
	format, err := trace.ParseFormat(t.Format)
	if err != nil {
		return trace.Config{}, err
	}
	return trace.Config{
		Level:      level,
		Mode:       mode,
		Format:     format,
		OutputPath: t.Output,
		RingSize:   t.RingSize,
	}, nil
}
