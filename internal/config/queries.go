// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const (
	DescriptorField = "descriptor"
)

var (
	// ErrParsing reports failures that occur while decoding query files.
	ErrParsing = errors.New("error parsing")
	// ErrUnsupportedFormat reports a query file whose extension is not yaml, yml, or toml.
	ErrUnsupportedFormat = errors.New("unsupported query file format")
)

// QueryConfig describes a query to create on the watched source.
type QueryConfig struct {
	Descriptor string `json:"descriptor" yaml:"descriptor" toml:"descriptor"`
	Autoupdate *bool  `json:"autoupdate,omitempty" yaml:"autoupdate,omitempty" toml:"autoupdate,omitempty"`
}

// IsAutoupdate reports whether the query must be refreshed at every poll interval. Queries
// keep refreshing unless the file disables it explicitly.
func (c QueryConfig) IsAutoupdate() bool {
	return c.Autoupdate == nil || *c.Autoupdate
}

// tomlQueries is the top level table of a toml query file.
type tomlQueries struct {
	Queries []*QueryConfig `toml:"queries"`
}

// NewQueryConfigsFromPath parses the file or directory at path and returns the query
// configurations it contains. Directories are read in lexical order, ignoring the files
// with unsupported extensions.
func NewQueryConfigsFromPath(path string) ([]*QueryConfig, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if !info.IsDir() {
		return parseFile(path)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}

	configs := make([]*QueryConfig, 0)
	for _, entry := range entries {
		if entry.IsDir() || !isSupported(entry.Name()) {
			continue
		}

		fileConfigs, err := parseFile(filepath.Join(path, entry.Name()))
		if err != nil {
			return nil, err
		}
		configs = append(configs, fileConfigs...)
	}

	return configs, nil
}

func isSupported(name string) bool {
	return slices.Contains([]string{".yaml", ".yml", ".toml"}, strings.ToLower(filepath.Ext(name)))
}

func parseFile(path string) ([]*QueryConfig, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var configs []*QueryConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		configs, err = parseYAML(file)
	case ".toml":
		configs, err = parseTOML(file)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, path)
	}

	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrParsing, path, err)
	}
	return configs, nil
}

func parseYAML(reader io.Reader) ([]*QueryConfig, error) {
	decoder := yaml.NewDecoder(reader)
	decoder.KnownFields(true)

	configs := make([]*QueryConfig, 0)
	for {
		config := new(QueryConfig)
		err := decoder.Decode(&config)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}

		// Skip empty documents.
		if config == nil {
			continue
		}

		if err := config.validate(); err != nil {
			return nil, err
		}
		configs = append(configs, config)
	}

	return configs, nil
}

func parseTOML(reader io.Reader) ([]*QueryConfig, error) {
	decoder := toml.NewDecoder(reader)
	decoder.DisallowUnknownFields()

	var file tomlQueries
	if err := decoder.Decode(&file); err != nil {
		return nil, err
	}

	configs := make([]*QueryConfig, 0, len(file.Queries))
	for _, config := range file.Queries {
		if err := config.validate(); err != nil {
			return nil, err
		}
		configs = append(configs, config)
	}

	return configs, nil
}

func (c *QueryConfig) validate() error {
	if strings.TrimSpace(c.Descriptor) == "" {
		return fmt.Errorf("missing required fields: %s", DescriptorField)
	}
	return nil
}
