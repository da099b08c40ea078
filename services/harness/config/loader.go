// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/nlqbench/pkg/validation"
)

var (
	// ErrMissingConfig indicates the configuration file does not exist.
	ErrMissingConfig = errors.New("configuration file not found")

	// ErrInvalidConfig indicates the configuration failed validation.
	ErrInvalidConfig = errors.New("invalid configuration")
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// envPattern matches ${VAR} and ${VAR:-default}.
var envPattern = regexp.MustCompile(`\$\{[A-Za-z_][A-Za-z0-9_]*(?::-[^}]*)?\}`)

// expandEnv substitutes environment variables in raw YAML before
// parsing. An unset variable without a default keeps its literal text,
// which surfaces the gap in validation instead of silently blanking a
// field.
func expandEnv(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		inner := string(match[2 : len(match)-1])
		name, fallback, hasFallback := strings.Cut(inner, ":-")
		if value, ok := os.LookupEnv(name); ok {
			return []byte(value)
		}
		if hasFallback {
			return []byte(fallback)
		}
		return match
	})
}

// Load reads, expands, parses, and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrMissingConfig, path)
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse builds a Config from raw YAML. The file overlays DefaultConfig,
// so omitted fields keep their defaults.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(expandEnv(data), &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills per-entry defaults that the top-level overlay
// cannot reach, since unmarshalling replaces whole slices and maps.
func (c *Config) applyDefaults() {
	for i := range c.Endpoints {
		ep := &c.Endpoints[i]
		if ep.TimeoutMs == 0 {
			ep.TimeoutMs = 30000
		}
		if ep.TimingSource == "" {
			if ep.Kind == KindOpenAI {
				ep.TimingSource = "vendor"
			} else {
				ep.TimingSource = "client"
			}
		}
	}
	if c.Run.Database == "" && len(c.Databases) == 1 {
		for name := range c.Databases {
			c.Run.Database = name
		}
	}
}

// Validate checks tag constraints and the semantic rules the tags
// cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	seen := make(map[string]bool, len(c.Endpoints))
	for i := range c.Endpoints {
		ep := &c.Endpoints[i]
		// Endpoint names become store keys and report content.
		if err := validation.ValidateEndpointName(ep.Name); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		if seen[ep.Name] {
			return fmt.Errorf("%w: duplicate endpoint name %q", ErrInvalidConfig, ep.Name)
		}
		seen[ep.Name] = true
		if err := ep.validateKind(); err != nil {
			return err
		}
	}

	if _, ok := c.Databases[c.Run.Database]; !ok {
		return fmt.Errorf("%w: run.database %q is not a configured database", ErrInvalidConfig, c.Run.Database)
	}
	for name := range c.Rules.PerDatabase {
		if _, ok := c.Databases[name]; !ok {
			return fmt.Errorf("%w: rules.per_database %q is not a configured database", ErrInvalidConfig, name)
		}
	}

	if c.Report.Influx.Enabled {
		in := c.Report.Influx
		if in.URL == "" || in.Org == "" || in.Bucket == "" {
			return fmt.Errorf("%w: influx sink enabled without url, org, and bucket", ErrInvalidConfig)
		}
	}
	if c.Report.GCS.Enabled && c.Report.GCS.Bucket == "" {
		return fmt.Errorf("%w: gcs upload enabled without a bucket", ErrInvalidConfig)
	}

	if err := c.Consistency.Validate(); err != nil {
		return fmt.Errorf("%w: consistency: %v", ErrInvalidConfig, err)
	}
	return nil
}

// validateKind enforces the fields each adapter kind needs.
func (ep *EndpointConfig) validateKind() error {
	switch ep.Kind {
	case KindHTTP:
		if ep.BaseURL == "" {
			return fmt.Errorf("%w: endpoint %q: http kind requires base_url", ErrInvalidConfig, ep.Name)
		}
		if ep.Response.Query == "" {
			return fmt.Errorf("%w: endpoint %q: http kind requires response.query", ErrInvalidConfig, ep.Name)
		}
	case KindOpenAI:
		if ep.Model == "" {
			return fmt.Errorf("%w: endpoint %q: openai kind requires model", ErrInvalidConfig, ep.Name)
		}
		if ep.APIKeyEnv == "" {
			return fmt.Errorf("%w: endpoint %q: openai kind requires api_key_env", ErrInvalidConfig, ep.Name)
		}
	case KindOllama:
		if ep.BaseURL == "" || ep.Model == "" {
			return fmt.Errorf("%w: endpoint %q: ollama kind requires base_url and model", ErrInvalidConfig, ep.Name)
		}
	case KindMock:
		// Self-contained.
	}
	return nil
}

// SchemaText returns the schema description for prompts, preferring
// the inline schema over the file.
func (d *DatabaseConfig) SchemaText() (string, error) {
	if d.Schema != "" {
		return d.Schema, nil
	}
	if d.SchemaFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(d.SchemaFile)
	if err != nil {
		return "", fmt.Errorf("read schema file %s: %w", d.SchemaFile, err)
	}
	return string(data), nil
}
