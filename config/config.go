// Package config loads metabase-go client settings from defaults, YAML and
// the environment, and turns them into httpclient options.
//
// Sources are layered with increasing priority:
//  1. Built-in defaults
//  2. A YAML file (WithFile), skipped when missing
//  3. Raw YAML bytes (WithYAML)
//  4. Environment variables with the METABASE_ prefix
//
// Keys are lower case and dot separated. Environment variables map onto
// them by dropping the prefix and turning "_" into ".":
//
//	METABASE_BASEURL          -> baseurl
//	METABASE_AUTH_APIKEY      -> auth.apikey
//	METABASE_RETRY_MAXRETRIES -> retry.maxretries
//	METABASE_TIMEOUT_REQUEST  -> timeout.request
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	envprovider "github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// DefaultEnvPrefix is the prefix of environment variables read by Load.
const DefaultEnvPrefix = "METABASE_"

type loadOptions struct {
	files     []string
	yaml      [][]byte
	envPrefix string
	skipEnv   bool
}

// LoadOption customizes Load.
type LoadOption func(*loadOptions)

// WithFile loads a YAML file. A missing file is skipped; any other read or
// parse error fails Load. Files are applied in the order given.
func WithFile(path string) LoadOption {
	return func(o *loadOptions) {
		o.files = append(o.files, path)
	}
}

// WithYAML loads YAML from memory, after files and before the environment.
func WithYAML(data []byte) LoadOption {
	return func(o *loadOptions) {
		o.yaml = append(o.yaml, data)
	}
}

// WithEnvPrefix replaces DefaultEnvPrefix.
func WithEnvPrefix(prefix string) LoadOption {
	return func(o *loadOptions) {
		o.envPrefix = prefix
	}
}

// WithoutEnv skips environment variables.
func WithoutEnv() LoadOption {
	return func(o *loadOptions) {
		o.skipEnv = true
	}
}

// Load builds a validated Config.
func Load(opts ...LoadOption) (*Config, error) {
	o := loadOptions{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		opt(&o)
	}

	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	for _, path := range o.files {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	for i, data := range o.yaml {
		if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load yaml document %d: %w", i, err)
		}
	}

	if !o.skipEnv {
		prefix := o.envPrefix
		if err := k.Load(envprovider.Provider(prefix, ".", func(s string) string {
			return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, prefix)), "_", ".")
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load environment variables: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"baseurl":   "",
		"useragent": "",

		"timeout.connect": "10s",
		"timeout.request": "30s",
		"timeout.read":    "30s",
		"timeout.call":    "0s",

		"retry.maxretries": 3,
		"retry.basedelay":  "200ms",
		"retry.maxdelay":   "2s",
		"retry.jitter":     JitterFull,

		"snippet.capture": true,
		"snippet.limit":   4096,
		"snippet.redact":  true,

		"ratelimit.rps":   0,
		"ratelimit.burst": 0,
		"ratelimit.wait":  true,

		"breaker.enabled": false,
		"coalesce":        false,

		"debug.enabled": false,
		"debug.curl":    false,
	}

	return k.Load(confmap.Provider(defaults, "."), nil)
}
