// Package config loads engine-level settings (page size, max pages, data
// directory, default string capacity tier) through the same
// defaults-then-file-then-flags precedence chain the teacher's root
// config.go uses for ticket settings.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"

	"github.com/calvinalkan/recordstore/internal/storage/value"
)

// Config holds every setting needed to open or create a table directory.
type Config struct {
	PageSize           uint32 `json:"page_size"`                     //nolint:tagliatelle // snake_case for config file
	MaxPages           uint32 `json:"max_pages"`                     //nolint:tagliatelle
	DataDir            string `json:"data_dir,omitempty"`            //nolint:tagliatelle
	DefaultVarcharTier int    `json:"default_varchar_tier,omitempty"` //nolint:tagliatelle
}

// ConfigFileName is the default config file name, looked for in DataDir.
const ConfigFileName = "recsql.json"

// DefaultConfig returns the built-in defaults: an 8 KiB page (spec.md §3's
// suggested example size), room for 2047 data pages (the most an 8 KiB
// page-0 directory can describe), the current working directory, and the
// smallest Varchar capacity tier.
func DefaultConfig() Config {
	return Config{
		PageSize:           8192,
		MaxPages:           2047,
		DataDir:            ".",
		DefaultVarcharTier: value.CapacityTiers[0],
	}
}

var (
	errConfigFileRead  = errors.New("config: failed to read config file")
	errConfigInvalid   = errors.New("config: invalid config file")
	errPageSizeZero    = errors.New("config: page_size must be non-zero")
	errMaxPagesZero    = errors.New("config: max_pages must be non-zero")
	errBadVarcharTier  = errors.New("config: default_varchar_tier is not one of the declared tiers")
)

// Overrides carries CLI-flag-supplied values. A zero field means "not set
// on the command line"; ApplyOverrides only touches non-zero fields, so
// flags never clobber a config file's explicit choice with Go's zero value.
type Overrides struct {
	PageSize           uint32
	MaxPages           uint32
	DataDir            string
	DefaultVarcharTier int
}

// LoadConfig resolves settings with the following precedence (highest
// wins): defaults, an optional config file at dir/recsql.json, then
// overrides. dir is the table directory; a missing config file is not an
// error.
func LoadConfig(dir string, overrides Overrides) (Config, error) {
	cfg := DefaultConfig()
	cfg.DataDir = dir

	fileCfg, loaded, err := loadConfigFile(filepath.Join(dir, ConfigFileName))
	if err != nil {
		return Config{}, err
	}

	if loaded {
		cfg = mergeConfig(cfg, fileCfg)
	}

	cfg = applyOverrides(cfg, overrides)

	if validateErr := validateConfig(cfg); validateErr != nil {
		return Config{}, validateErr
	}

	return cfg, nil
}

func loadConfigFile(path string) (Config, bool, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is built from a caller-supplied table directory
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, false, nil
		}

		return Config{}, false, fmt.Errorf("%w: %s", errConfigFileRead, path)
	}

	cfg, err := parseConfig(data)
	if err != nil {
		return Config{}, false, fmt.Errorf("%w %s: %w", errConfigInvalid, path, err)
	}

	return cfg, true, nil
}

func parseConfig(data []byte) (Config, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg Config

	if unmarshalErr := json.Unmarshal(standardized, &cfg); unmarshalErr != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", unmarshalErr)
	}

	// mergeConfig treats zero as "not set", so an explicit 0 is caught here.
	var explicit struct {
		PageSize *uint32 `json:"page_size"`
		MaxPages *uint32 `json:"max_pages"`
	}

	_ = json.Unmarshal(standardized, &explicit)

	if explicit.PageSize != nil && *explicit.PageSize == 0 {
		return Config{}, errPageSizeZero
	}

	if explicit.MaxPages != nil && *explicit.MaxPages == 0 {
		return Config{}, errMaxPagesZero
	}

	return cfg, nil
}

func mergeConfig(base, overlay Config) Config {
	if overlay.PageSize != 0 {
		base.PageSize = overlay.PageSize
	}

	if overlay.MaxPages != 0 {
		base.MaxPages = overlay.MaxPages
	}

	if overlay.DefaultVarcharTier != 0 {
		base.DefaultVarcharTier = overlay.DefaultVarcharTier
	}

	return base
}

func applyOverrides(cfg Config, overrides Overrides) Config {
	if overrides.PageSize != 0 {
		cfg.PageSize = overrides.PageSize
	}

	if overrides.MaxPages != 0 {
		cfg.MaxPages = overrides.MaxPages
	}

	if overrides.DataDir != "" {
		cfg.DataDir = overrides.DataDir
	}

	if overrides.DefaultVarcharTier != 0 {
		cfg.DefaultVarcharTier = overrides.DefaultVarcharTier
	}

	return cfg
}

func validateConfig(cfg Config) error {
	if cfg.PageSize == 0 {
		return errPageSizeZero
	}

	if cfg.MaxPages == 0 {
		return errMaxPagesZero
	}

	for _, tier := range value.CapacityTiers {
		if tier == cfg.DefaultVarcharTier {
			return nil
		}
	}

	return fmt.Errorf("%w: %d", errBadVarcharTier, cfg.DefaultVarcharTier)
}

// FormatConfig returns cfg as formatted JSON, used by the REPL's ".config"
// introspection command.
func FormatConfig(cfg Config) (string, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to format config: %w", err)
	}

	return string(data), nil
}
