package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config mirrors the common scan flag names. Zero values mean "not set".
type Config struct {
	RulesDir           string `yaml:"rules_dir,omitempty"`
	MaxFileSize        *int64 `yaml:"max_file_size,omitempty"`
	ScanBudget         *int   `yaml:"scan_budget,omitempty"`
	MaxGap             *int   `yaml:"max_gap,omitempty"`
	BatchSize          *int   `yaml:"batch_size,omitempty"`
	Enhance            *bool  `yaml:"enhance,omitempty"`
	EnhanceConcurrency *int   `yaml:"enhance_concurrency,omitempty"`
	AIBaseURL          string `yaml:"ai_base_url,omitempty"`
	AIModel            string `yaml:"ai_model,omitempty"`
	AIAPIKeyEnv        string `yaml:"ai_api_key_env,omitempty"`
	DatabaseDSN        string `yaml:"database_dsn,omitempty"`
	Verbose            *bool  `yaml:"verbose,omitempty"`
}

// Load reads config from layered sources:
//  1. ~/.securethread/config.yaml (global)
//  2. ./.securethread/config.yaml (repo-local, takes precedence)
//
// Missing files are silently ignored. Returns zero Config if neither exists.
func Load() (Config, error) {
	home, _ := os.UserHomeDir()
	var globalPath, localPath string
	if home != "" {
		globalPath = filepath.Join(home, ".securethread", "config.yaml")
	}

	cwd, _ := os.Getwd()
	if cwd != "" {
		localPath = filepath.Join(cwd, ".securethread", "config.yaml")
	}

	var merged Config

	if globalPath != "" {
		global, err := loadFile(globalPath)
		if err != nil {
			return Config{}, fmt.Errorf("load global config %s: %w", globalPath, err)
		}
		merged = merge(merged, global)
	}

	if localPath != "" {
		local, err := loadFile(localPath)
		if err != nil {
			return Config{}, fmt.Errorf("load local config %s: %w", localPath, err)
		}
		merged = merge(merged, local)
	}

	return merged, nil
}

func loadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, nil
		}
		return Config{}, err
	}
	data = []byte(strings.TrimSpace(string(data)))
	if len(data) == 0 {
		return Config{}, nil
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// merge applies overrides from b onto a. Non-zero fields in b win.
func merge(a, b Config) Config {
	if b.RulesDir != "" {
		a.RulesDir = b.RulesDir
	}
	if b.MaxFileSize != nil {
		a.MaxFileSize = b.MaxFileSize
	}
	if b.ScanBudget != nil {
		a.ScanBudget = b.ScanBudget
	}
	if b.MaxGap != nil {
		a.MaxGap = b.MaxGap
	}
	if b.BatchSize != nil {
		a.BatchSize = b.BatchSize
	}
	if b.Enhance != nil {
		a.Enhance = b.Enhance
	}
	if b.EnhanceConcurrency != nil {
		a.EnhanceConcurrency = b.EnhanceConcurrency
	}
	if b.AIBaseURL != "" {
		a.AIBaseURL = b.AIBaseURL
	}
	if b.AIModel != "" {
		a.AIModel = b.AIModel
	}
	if b.AIAPIKeyEnv != "" {
		a.AIAPIKeyEnv = b.AIAPIKeyEnv
	}
	if b.DatabaseDSN != "" {
		a.DatabaseDSN = b.DatabaseDSN
	}
	if b.Verbose != nil {
		a.Verbose = b.Verbose
	}
	return a
}
