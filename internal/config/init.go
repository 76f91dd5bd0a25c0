package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
)

// Init writes the default configuration to path as YAML, or TOML when path ends
// in .toml. An existing file is only replaced when force is set.
func Init(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return ferrors.ConfigError("configuration file already exists").
			WithContext("path", path).
			UserAction().
			Build()
	}

	data, err := Marshal(path, Default())
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return ferrors.FileSystemError("create configuration directory").WithCause(err).WithContext("path", dir).Build()
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return ferrors.FileSystemError("write configuration file").WithCause(err).WithContext("path", path).Build()
	}
	return nil
}

// Marshal encodes cfg in the format implied by name.
func Marshal(name string, cfg *Config) ([]byte, error) {
	var buf bytes.Buffer
	if strings.EqualFold(filepath.Ext(name), ".toml") {
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryInternal, "encode TOML configuration").Build()
		}
		return buf.Bytes(), nil
	}
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryInternal, "encode YAML configuration").Build()
	}
	if err := enc.Close(); err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryInternal, "encode YAML configuration").Build()
	}
	return buf.Bytes(), nil
}
