// Package config is for app wide settings loaded from config.json, the
// environment (FLYAPP_*) and command line flags bound by the binaries.
package config

import (
	"errors"
	"os"
	"reflect"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	InputFasta string `mapstructure:"input_fasta"`
	OutputJSON string `mapstructure:"output_json"`
	OutputCSV  string `mapstructure:"output_csv"`
	OutputHTML string `mapstructure:"output_html"`
	LogFile    string `mapstructure:"log_file"`
	LogLevel   string `mapstructure:"log_level"`

	// classifier service
	ClassifierURL     string `mapstructure:"classifier_url"`
	ModelName         string `mapstructure:"model_name"`
	ClassifierTimeout int    `mapstructure:"classifier_timeout_seconds"`

	// digestion and prediction
	Enzyme    string `mapstructure:"enzyme"`
	MinLength int    `mapstructure:"min_length"`
	MaxLength int    `mapstructure:"max_length"`
	MaxLen    int    `mapstructure:"max_len"`
	BatchSize int    `mapstructure:"batch_size"`
	Workers   int    `mapstructure:"workers"`

	NcbiCachePath    string `mapstructure:"ncbi_cache_path"`
	NcbiApiKey       string `mapstructure:"ncbi_api_key"`
	NcbiCacheTTLSecs int64  `mapstructure:"ncbi_cache_ttl_seconds"`

	// web server
	Addr      string `mapstructure:"addr"`
	StoreKind string `mapstructure:"store"`
	StorePath string `mapstructure:"store_path"`
}

// Defaults are applied before the file and environment are read.
var Defaults = map[string]any{
	"log_level":                  "info",
	"classifier_url":             "http://localhost:8501",
	"model_name":                 "detectability",
	"classifier_timeout_seconds": 60,
	"enzyme":                     "trypsin",
	"min_length":                 6,
	"max_length":                 40,
	"max_len":                    40,
	"batch_size":                 32,
	"workers":                    4,
	"ncbi_cache_ttl_seconds":     int64(7 * 24 * 3600),
	"addr":                       ":8080",
	"store":                      "sqlite",
	"store_path":                 "analyses.db",
}

// New returns a viper instance with defaults and FLYAPP_ environment
// overrides registered. Binaries bind their flags onto it before Load.
func New() *viper.Viper {
	v := viper.New()
	for k, val := range Defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix("flyapp")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	// Unmarshal only consults the environment for keys viper already knows.
	for _, key := range Keys() {
		_ = v.BindEnv(key)
	}
	return v
}

// Keys lists every config key, in field order.
func Keys() []string {
	t := reflect.TypeOf(Config{})
	keys := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		if tag := t.Field(i).Tag.Get("mapstructure"); tag != "" {
			keys = append(keys, tag)
		}
	}
	return keys
}

// LoadConfig loads a JSON config from the given path. If path is empty, looks
// for ./config.json; a missing file is not an error and yields the defaults.
// In config-only mode, secrets must be provided as literal values in config.json.
func LoadConfig(path string) (*Config, error) {
	return Load(New(), path)
}

// Load reads path into v (when the file exists) and decodes the result.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	return &c, nil
}
