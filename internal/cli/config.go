package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Target languages accepted by --lang.
const (
	LangTS = "ts"
	LangGo = "go"
)

// Config captures all inputs that influence a command after merging
// defaults, config file values, and CLI overrides. check only reads the
// source and logging fields.
type Config struct {
	Source      string
	Lang        string
	Out         string
	PackageName string
	ConfigPath  string
	Concurrency int
	DryRun      bool
	Force       bool
	Verbose     bool
	NoColor     bool

	Stdout io.Writer
	Stderr io.Writer
}

func defaultConfig() Config {
	return Config{Source: ".", Lang: LangTS}
}

func (c *Config) stdout() io.Writer {
	if c.Stdout == nil {
		return os.Stdout
	}
	return c.Stdout
}

func (c *Config) stderr() io.Writer {
	if c.Stderr == nil {
		return os.Stderr
	}
	return c.Stderr
}

// resolveConfig layers the config file and then explicitly set flags on top
// of the defaults.
func resolveConfig(cmd *cobra.Command) (*Config, error) {
	cfg := defaultConfig()
	cfg.Stdout = cmd.OutOrStdout()
	cfg.Stderr = cmd.ErrOrStderr()

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	configPath = strings.TrimSpace(configPath)
	if configPath != "" {
		cfg.ConfigPath = configPath
		if err := applyConfigFromFile(&cfg, configPath); err != nil {
			return nil, err
		}
	}

	if err := applyFlagOverrides(cmd.Flags(), &cfg); err != nil {
		return nil, err
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyFlagOverrides copies only flags the user set. Flags a command does not
// define report Changed == false and are skipped.
func applyFlagOverrides(flags *pflag.FlagSet, cfg *Config) error {
	strs := []struct {
		name string
		dst  *string
	}{
		{"source", &cfg.Source},
		{"lang", &cfg.Lang},
		{"out", &cfg.Out},
		{"package-name", &cfg.PackageName},
	}
	for _, s := range strs {
		if !flags.Changed(s.name) {
			continue
		}
		value, err := flags.GetString(s.name)
		if err != nil {
			return err
		}
		*s.dst = strings.TrimSpace(value)
	}

	bools := []struct {
		name string
		dst  *bool
	}{
		{"dry-run", &cfg.DryRun},
		{"force", &cfg.Force},
		{"verbose", &cfg.Verbose},
		{"no-color", &cfg.NoColor},
	}
	for _, b := range bools {
		if !flags.Changed(b.name) {
			continue
		}
		value, err := flags.GetBool(b.name)
		if err != nil {
			return err
		}
		*b.dst = value
	}

	if flags.Changed("concurrency") {
		value, err := flags.GetInt("concurrency")
		if err != nil {
			return err
		}
		cfg.Concurrency = value
	}
	return nil
}

func (c *Config) normalize() {
	c.Source = strings.TrimSpace(c.Source)
	if c.Source == "" {
		c.Source = "."
	}
	c.Lang = strings.ToLower(strings.TrimSpace(c.Lang))
	if c.Lang == "typescript" {
		c.Lang = LangTS
	}
	c.Out = strings.TrimSpace(c.Out)
	c.PackageName = strings.TrimSpace(c.PackageName)
}

func (c *Config) validate() error {
	switch c.Lang {
	case "":
		c.Lang = LangTS
	case LangTS, LangGo:
	default:
		return newUsageError(fmt.Sprintf("unsupported --lang %q (allowed: ts, go)", c.Lang))
	}
	if c.Concurrency < 0 {
		return newUsageError(fmt.Sprintf("--concurrency must not be negative, got %d", c.Concurrency))
	}
	return nil
}

func applyConfigFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return newUsageError(fmt.Sprintf("read config file %q: %v", path, err))
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return newUsageError(fmt.Sprintf("parse config file %q: %v", path, err))
	}

	// Sorted so the first bad key reported is stable.
	keys := make([]string, 0, len(raw))
	for key := range raw {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := raw[key]
		var err error
		switch normalizeKey(key) {
		case "source":
			cfg.Source, err = valueAsString(value)
		case "lang":
			cfg.Lang, err = valueAsString(value)
		case "out":
			cfg.Out, err = valueAsString(value)
		case "packagename":
			cfg.PackageName, err = valueAsString(value)
		case "concurrency":
			cfg.Concurrency, err = valueAsInt(value)
		case "dryrun":
			cfg.DryRun, err = valueAsBool(value)
		case "force":
			cfg.Force, err = valueAsBool(value)
		case "verbose":
			cfg.Verbose, err = valueAsBool(value)
		case "nocolor":
			cfg.NoColor, err = valueAsBool(value)
		default:
			return newUsageError(fmt.Sprintf("config file %q: unknown field %q", path, key))
		}
		if err != nil {
			return newUsageError(fmt.Sprintf("config field %q: %v", key, err))
		}
	}
	return nil
}

func normalizeKey(raw string) string {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	lowered = strings.ReplaceAll(lowered, "-", "")
	lowered = strings.ReplaceAll(lowered, "_", "")
	return lowered
}

func valueAsString(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("expected string, got %T", v)
	}
}

func valueAsInt(v any) (int, error) {
	switch val := v.(type) {
	case int:
		return val, nil
	case string:
		trimmed := strings.TrimSpace(val)
		if trimmed == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(trimmed)
		if err != nil {
			return 0, fmt.Errorf("invalid integer value %q", val)
		}
		return n, nil
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
}

func valueAsBool(v any) (bool, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		trimmed := strings.ToLower(strings.TrimSpace(val))
		switch trimmed {
		case "true", "t", "1", "yes", "y":
			return true, nil
		case "false", "f", "0", "no", "n":
			return false, nil
		case "":
			return false, nil
		default:
			return false, fmt.Errorf("invalid boolean value %q", val)
		}
	case nil:
		return false, nil
	default:
		return false, fmt.Errorf("expected boolean, got %T", v)
	}
}
