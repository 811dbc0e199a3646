package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/rupor-github/gencfg"
)

//go:embed config.yaml.tmpl
var configTmpl []byte

type (
	SourceConfig struct {
		BaseURL   string        `yaml:"base_url" validate:"required,url"`
		UserAgent string        `yaml:"user_agent"`
		Timeout   time.Duration `yaml:"timeout" validate:"gte=0"`
	}

	CacheConfig struct {
		// Relative path is resolved against destination directory.
		Path string `yaml:"path" validate:"required"`
	}

	PDFConfig struct {
		Command string   `yaml:"command" validate:"required"`
		Args    []string `yaml:"args"`
	}

	DocumentConfig struct {
		BuildName    string    `yaml:"build_name" validate:"required"`
		TemplatePath string    `yaml:"template_path" validate:"omitempty,file"`
		OverridesDir string    `yaml:"overrides_dir" validate:"omitempty,dir"`
		AssetsDir    string    `yaml:"assets_dir" validate:"omitempty,dir"`
		Spaced       bool      `yaml:"spaced"`
		FrameRate    int       `yaml:"frame_rate" validate:"min=1"`
		LinkColor    string    `yaml:"link_color" validate:"required"`
		PDF          PDFConfig `yaml:"pdf"`
	}

	Config struct {
		Version   int            `yaml:"version" validate:"eq=1"`
		Source    SourceConfig   `yaml:"source"`
		Cache     CacheConfig    `yaml:"cache"`
		Document  DocumentConfig `yaml:"document"`
		Logging   LoggingConfig  `yaml:"logging"`
		Reporting ReporterConfig `yaml:"reporting"`
	}
)

// decode applies YAML document on top of current values. Only fields we
// defined are accepted.
func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("unable to decode: %w", err)
	}
	return nil
}

func (c *Config) check() error {
	if err := gencfg.Sanitize(c); err != nil {
		return err
	}
	return gencfg.Validate(c)
}

// LoadConfiguration builds program configuration. Defaults come from the
// embedded template, values from the optional file at path are layered on
// top of them, result is sanitized and validated once all layers are in.
func LoadConfiguration(path string, options ...func(*gencfg.ProcessingOptions)) (*Config, error) {
	defaults, err := Prepare(options...)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	cfg := &Config{}
	if err := cfg.decode(defaults); err != nil {
		return nil, fmt.Errorf("configuration template: %w", err)
	}

	source := "configuration template"
	if len(path) > 0 {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		source = fmt.Sprintf("configuration file %s", path)
		if err := cfg.decode(data); err != nil {
			return nil, fmt.Errorf("%s: %w", source, err)
		}
	}
	if err := cfg.check(); err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	return cfg, nil
}

// Prepare expands embedded configuration template, result is the default
// configuration in YAML.
func Prepare(options ...func(*gencfg.ProcessingOptions)) ([]byte, error) {
	return gencfg.Process(configTmpl, options...)
}

// Dump returns active configuration in YAML.
func Dump(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config to yaml: %w", err)
	}
	return data, nil
}
