package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, VAULTGATE_CONFIG env, ./config.yaml, /etc/vaultgate/config.yaml)
//  3. .env file (VAULTGATE_ENV_FILE or ./.env); the process environment wins
//  4. Environment variable overrides
//  5. File reference resolution (_file suffix)
//  6. Validation
//
// A malformed value, such as a non-numeric rate limit, fails the load.
func Load(configPath string) (*Config, error) {
	environ, err := environment()
	if err != nil {
		return nil, err
	}

	// Start with defaults.
	cfg := Defaults()

	// Discover and load YAML config file.
	filePath := discoverConfigFile(configPath, environ)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	// Apply environment variable overrides.
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	// Resolve _file references.
	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	// Validate.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

func processEnv() map[string]string {
	m := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			m[k] = v
		}
	}
	return m
}

// environment returns the process environment layered over the .env
// file, if one exists. The process environment is not modified.
func environment() (map[string]string, error) {
	merged := processEnv()

	path := merged["VAULTGATE_ENV_FILE"]
	explicit := path != ""
	if !explicit {
		path = ".env"
	}

	dotenv, err := godotenv.Read(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return merged, nil
		}
		return nil, fmt.Errorf("loading env file %s: %w", path, err)
	}

	for k, v := range dotenv {
		if _, set := merged[k]; !set {
			merged[k] = v
		}
	}
	return merged, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. VAULTGATE_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/vaultgate/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string, environ map[string]string) string {
	// Explicit path takes priority.
	if configPath != "" {
		return configPath
	}

	if envPath := environ["VAULTGATE_CONFIG"]; envPath != "" {
		return envPath
	}

	candidates := []string{
		"config.yaml",
		"/etc/vaultgate/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// resolveFileReferences reads _file fields and populates the corresponding
// value fields when those are empty.
func resolveFileReferences(cfg *Config) error {
	// anonymous.api_key_file -> anonymous.api_key
	if cfg.Anonymous.APIKeyFile != "" && cfg.Anonymous.APIKey == "" {
		val, err := readSecretFile(cfg.Anonymous.APIKeyFile)
		if err != nil {
			return fmt.Errorf("anonymous.api_key_file: %w", err)
		}
		cfg.Anonymous.APIKey = val
	}
	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
