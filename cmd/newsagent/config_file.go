package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileConfig is an optional YAML overlay for flag defaults, letting a
// deployment pin its prompt/seeds/LLM settings in a file instead of a long
// command line. Adapted from internal/app/config_file.go's FileConfig: same
// nested-by-concern shape, trimmed to this binary's flags.
type fileConfig struct {
	Prompt string   `yaml:"prompt"`
	Seeds  []string `yaml:"seeds"`
	Output string   `yaml:"output"`

	Fast struct {
		Base  string `yaml:"base"`
		Model string `yaml:"model"`
		Key   string `yaml:"key"`
	} `yaml:"fast"`

	Smart struct {
		Model string `yaml:"model"`
		Key   string `yaml:"key"`
	} `yaml:"smart"`

	Max struct {
		Articles int `yaml:"articles"`
	} `yaml:"max"`

	Cache struct {
		Dir string `yaml:"dir"`
	} `yaml:"cache"`

	UserAgent string `yaml:"userAgent"`
	PDF       bool   `yaml:"pdf"`
	Verbose   bool   `yaml:"verbose"`
}

// loadFileConfig reads and parses path, returning an empty fileConfig (not
// an error) when path is empty, since the overlay is optional.
func loadFileConfig(path string) (fileConfig, error) {
	var fc fileConfig
	if path == "" {
		return fc, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("parse config file: %w", err)
	}
	return fc, nil
}
