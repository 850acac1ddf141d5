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
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/mpls/services/mpls/lsp"
)

// Sentinel errors for configuration loading.
var (
	// ErrUnsupportedFormat indicates a file extension other than
	// .yaml, .yml or .toml.
	ErrUnsupportedFormat = errors.New("unsupported config format")

	// ErrInvalidConfig indicates a configuration that failed validation.
	ErrInvalidConfig = errors.New("invalid config")
)

// configValidate is the validator instance for configuration structs.
var configValidate *validator.Validate

func init() {
	configValidate = validator.New()

	_ = configValidate.RegisterValidation("glob", validateGlob)
	_ = configValidate.RegisterValidation("fileext", validateFileExt)
	configValidate.RegisterStructValidation(validateTransport, LanguageServerConfig{})
}

// validateGlob accepts patterns path.Match can evaluate.
func validateGlob(fl validator.FieldLevel) bool {
	_, err := path.Match(fl.Field().String(), "")
	return err == nil
}

// validateFileExt accepts ".ext" with no path separator.
func validateFileExt(fl validator.FieldLevel) bool {
	ext := fl.Field().String()
	return len(ext) > 1 && strings.HasPrefix(ext, ".") && !strings.ContainsAny(ext, `/\`)
}

// validateTransport checks that the endpoint for the transport is set.
func validateTransport(sl validator.StructLevel) {
	s := sl.Current().Interface().(LanguageServerConfig)
	switch lsp.Transport(s.Transport) {
	case "", lsp.TransportStdio:
		if s.Command == "" {
			sl.ReportError(s.Command, "command", "Command", "required_for_stdio", "")
		}
	case lsp.TransportTCP:
		if s.Address == "" {
			sl.ReportError(s.Address, "address", "Address", "required_for_tcp", "")
		}
	case lsp.TransportWebSocket:
		if !strings.HasPrefix(s.URL, "ws://") && !strings.HasPrefix(s.URL, "wss://") {
			sl.ReportError(s.URL, "url", "URL", "websocket_url", "")
		}
	}
}

// Validate checks c against its struct tags and cross-field rules.
//
// Outputs:
//
//	error - Nil, or ErrInvalidConfig wrapping the validator report
func (c *Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	seen := make(map[string]struct{}, len(c.LSP.Servers))
	for _, s := range c.LSP.Servers {
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("%w: duplicate language server %q", ErrInvalidConfig, s.Name)
		}
		seen[s.Name] = struct{}{}
	}
	return nil
}

// Load reads and validates a configuration file.
//
// Description:
//
//	The file is decoded over DefaultConfig, so omitted keys keep their
//	defaults and a present list replaces the default list. Unknown keys
//	are rejected. An empty path returns the validated defaults.
//
// Inputs:
//
//	file - A .yaml, .yml or .toml file, or ""
//
// Outputs:
//
//	*Config - The loaded configuration
//	error - Read, decode, ErrUnsupportedFormat or ErrInvalidConfig
func Load(file string) (*Config, error) {
	cfg := DefaultConfig()
	if file == "" {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return &cfg, nil
	}

	switch strings.ToLower(filepath.Ext(file)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read the config file: %w", err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse %s: %w", file, err)
		}
	case ".toml":
		meta, err := toml.DecodeFile(file, &cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", file, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("failed to parse %s: unknown key %q", file, undecoded[0].String())
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, file)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	return &cfg, nil
}

// WriteDefault writes DefaultConfig as YAML to file, creating parent
// directories. An existing file is left untouched.
func WriteDefault(file string) error {
	if _, err := os.Stat(file); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(file, data, 0644)
}
