package environment

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// Keys read by the emission layer.
const (
	KeyAppEnvironment = "APP_ENVIRONMENT"
	KeyAppVersion     = "APP_VERSION"
	KeyLogSampleRate  = "LOG_SAMPLE_RATE"
)

const maxFileSize = 1024 * 1024 // 1MB

// Lookup is a key/value lookup with default.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: Get never fails; absent keys return def.
type Lookup interface {
	Get(key, def string) string
}

// Source is a Lookup over koanf. Keys are case-insensitive.
type Source struct {
	k *koanf.Koanf
}

// Load builds a Source from YAML content (may be empty) overlaid with the
// process environment.
//
// YAML keys are flat:
//
//	app_environment: production
//	app_version: 1.4.2
//	log_sample_rate: 0.25
func Load(content []byte) (*Source, error) {
	k := koanf.New(".")

	if len(content) > 0 {
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse environment file: %w", err)
		}
	}

	if err := k.Load(env.Provider("", ".", strings.ToLower), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	return &Source{k: k}, nil
}

// LoadFile is Load with the content of path. A missing file is not an error.
func LoadFile(path string) (*Source, error) {
	if path == "" {
		return Load(nil)
	}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return Load(nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open environment file: %w", err)
	}
	defer f.Close()

	content, err := io.ReadAll(io.LimitReader(f, maxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read environment file: %w", err)
	}
	if len(content) > maxFileSize {
		return nil, fmt.Errorf("environment file %s exceeds %d bytes", path, maxFileSize)
	}
	return Load(content)
}

// Default returns a Source over the process environment. It is rebuilt on
// every call so later changes to the environment are seen.
func Default() Lookup {
	src, err := Load(nil)
	if err != nil {
		return Map(nil)
	}
	return src
}

// Get returns the value of key, or def when the key is absent or empty.
func (s *Source) Get(key, def string) string {
	if s == nil || s.k == nil {
		return def
	}
	v := s.k.String(strings.ToLower(key))
	if v == "" {
		return def
	}
	return v
}

// Float returns key parsed as a float, or def when absent or unparseable.
func (s *Source) Float(key string, def float64) float64 {
	return Float(s, key, def)
}

// Float reads key from l parsed as a float, or def when absent or
// unparseable.
func Float(l Lookup, key string, def float64) float64 {
	if l == nil {
		return def
	}
	raw := l.Get(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return def
	}
	return v
}

// Map is a fixed Lookup, mostly for tests.
type Map map[string]string

func (m Map) Get(key, def string) string {
	if v, ok := m[key]; ok && v != "" {
		return v
	}
	return def
}

// Chain returns a Lookup that consults each lookup in order and returns the
// first non-empty value.
func Chain(lookups ...Lookup) Lookup {
	return chain(lookups)
}

type chain []Lookup

func (c chain) Get(key, def string) string {
	for _, l := range c {
		if l == nil {
			continue
		}
		if v := l.Get(key, ""); v != "" {
			return v
		}
	}
	return def
}
