package config

import (
	"fmt"
	"path/filepath"
	"strings"

	internal "github.com/ZanzyTHEbar/dicomzip/dzip"
	"github.com/ZanzyTHEbar/dicomzip/dzip/scan"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Scan   ScanConfig   `mapstructure:"scan"`
	Vendor VendorConfig `mapstructure:"vendor"`
	Log    LogConfig    `mapstructure:"log"`
	Sort   SortConfig   `mapstructure:"sort"`
}

// ScanConfig stores the pipeline settings.
type ScanConfig struct {
	Workers          int      `mapstructure:"workers"` // 0 picks a CPU based default
	PreserveOrder    bool     `mapstructure:"preserveOrder"`
	InMemory         bool     `mapstructure:"inMemory"`
	Ignore           []string `mapstructure:"ignore"`
	MaxValueLength   uint32   `mapstructure:"maxValueLength"`
	MaxSequenceDepth int      `mapstructure:"maxSequenceDepth"`
}

// VendorConfig lists extra private tag catalogs merged over the builtin ones.
type VendorConfig struct {
	Catalogs []string `mapstructure:"catalogs"`
}

// LogConfig stores logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// SortConfig stores the sort command settings.
type SortConfig struct {
	OutDir string `mapstructure:"outDir"`
	Dedupe bool   `mapstructure:"dedupe"`
}

// LoadConfig reads configuration from file or environment variables.
// A missing file in the search paths is not an error; an explicit path is.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("..")
		v.AddConfigPath(filepath.Join("etc", internal.DefaultAppName))
		v.AddConfigPath(internal.DefaultConfigPath)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetDefault("scan.workers", 0)
	v.SetDefault("scan.preserveOrder", true)
	v.SetDefault("scan.inMemory", false)
	v.SetDefault("scan.ignore", internal.DefaultIgnorePatterns)
	v.SetDefault("scan.maxValueLength", internal.DefaultMaxValueLength)
	v.SetDefault("scan.maxSequenceDepth", internal.DefaultMaxSequenceDepth)
	v.SetDefault("vendor.catalogs", []string{})
	v.SetDefault("log.level", "info")
	v.SetDefault("sort.outDir", "sorted")
	v.SetDefault("sort.dedupe", false)

	// scan.workers -> DICOMZIP_SCAN_WORKERS
	v.SetEnvPrefix(internal.DefaultEnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	return &cfg, nil
}

// ScanOptions converts the scan and vendor sections into pipeline options
func (c *Config) ScanOptions() scan.Options {
	opts := scan.DefaultOptions()
	if c.Scan.Workers > 0 {
		opts.Workers = c.Scan.Workers
	}
	opts.PreserveOrder = c.Scan.PreserveOrder
	opts.InMemory = c.Scan.InMemory
	opts.IgnorePatterns = c.Scan.Ignore
	opts.VendorCatalogs = c.Vendor.Catalogs
	if c.Scan.MaxValueLength > 0 {
		opts.Parse.MaxValueLength = c.Scan.MaxValueLength
	}
	if c.Scan.MaxSequenceDepth > 0 {
		opts.Parse.MaxSequenceDepth = c.Scan.MaxSequenceDepth
	}
	return opts
}
