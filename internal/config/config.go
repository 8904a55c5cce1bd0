// =============================================================================
// Settlement Export - Configuration Module
// =============================================================================
//
// This module loads the main application configuration and the per-organization
// configurations (usa, canada, mexico, ...).
//
// CONFIGURATION FILES:
//   1. Main Config (config.yaml): directories, logging, external services
//   2. Organization Configs (organizations/*.yaml): locale schema mapping,
//      reconciliation columns, SKU mapping and document constants
//
// Built-in organization configs are embedded in the binary. A file in the
// organizations directory with the same `organization` key replaces the
// built-in one; a file with a new key adds a new organization without any
// code change.
//
// =============================================================================

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// MAIN CONFIGURATION STRUCTURE
// =============================================================================

// MainConfig holds the global application configuration.
type MainConfig struct {
	// =========================================================================
	// DIRECTORY SETTINGS
	// =========================================================================

	// InputDir is scanned for settlement reports by the process command.
	// Default: "./input"
	InputDir string `yaml:"input_dir"`

	// OutputDir receives the generated CSV documents and bundles.
	// Default: "./output"
	OutputDir string `yaml:"output_dir"`

	// InputArchiveDir receives reports after successful processing.
	// Default: "./input_archive"
	InputArchiveDir string `yaml:"input_archive_dir"`

	// UploadDir stores files received by the upload endpoint.
	// Default: "./uploads"
	UploadDir string `yaml:"upload_dir"`

	// OrganizationsDir holds organization YAML files overriding the built-ins.
	// Default: "./organizations"
	OrganizationsDir string `yaml:"organizations_dir"`

	// =========================================================================
	// LOGGING SETTINGS
	// =========================================================================

	// LogLevel controls verbosity: "debug", "info", "warn", "error".
	// Default: "info"
	LogLevel string `yaml:"log_level"`

	// =========================================================================
	// PROCESSING SETTINGS
	// =========================================================================

	// MaxConcurrency bounds how many reports the process command handles at once.
	// Default: 4
	MaxConcurrency int `yaml:"max_concurrency"`

	// ContinueOnError keeps processing other reports after one fails.
	// Default: true (see applyMainConfigDefaults)
	ContinueOnError *bool `yaml:"continue_on_error"`

	// ClearOutputDir empties the output directory before each process run.
	ClearOutputDir bool `yaml:"clear_output_dir"`

	// LocationWorkers is the width of the geocoding worker pool.
	// Default: 10
	LocationWorkers int `yaml:"location_workers"`

	// =========================================================================
	// EXTERNAL SERVICES
	// =========================================================================

	ExchangeRates ExchangeRateSettings `yaml:"exchange_rates"`
	Geocoder      GeocoderSettings     `yaml:"geocoder"`
	Server        ServerSettings       `yaml:"server"`
	Storage       StorageSettings      `yaml:"storage"`
}

// ExchangeRateSettings configures the daily rate source.
type ExchangeRateSettings struct {
	// BaseURL of the Alpha Vantage query endpoint.
	BaseURL string `yaml:"base_url"`

	// APIKeyEnv names the environment variable holding the API key.
	// Default: "ALPHAVANTAGE_API_KEY"
	APIKeyEnv string `yaml:"api_key_env"`

	// TargetCurrency is the reporting currency every rate converts into.
	// Default: "USD"
	TargetCurrency string `yaml:"target_currency"`

	// Timeout bounds each request. Default: 15s
	Timeout time.Duration `yaml:"timeout"`
}

// APIKey reads the key from the configured environment variable.
func (s ExchangeRateSettings) APIKey() string {
	return os.Getenv(s.APIKeyEnv)
}

// GeocoderSettings configures the geocoding fallback.
type GeocoderSettings struct {
	// BaseURL of the Nominatim search endpoint.
	BaseURL string `yaml:"base_url"`

	// UserAgent is required by the Nominatim usage policy.
	UserAgent string `yaml:"user_agent"`

	// Timeout bounds each request. Default: 10s
	Timeout time.Duration `yaml:"timeout"`

	// Disabled skips the network fallback entirely.
	Disabled bool `yaml:"disabled"`
}

// ServerSettings configures the upload endpoint.
type ServerSettings struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`

	// MaxUploadMB caps the multipart body size. Default: 32
	MaxUploadMB int64 `yaml:"max_upload_mb"`
}

// StorageSettings configures the optional bundle upload to a GCS bucket.
type StorageSettings struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
}

// =============================================================================
// CONFIGURATION LOADING FUNCTIONS
// =============================================================================

// LoadMainConfig loads the main configuration from a YAML file.
//
// PARAMETERS:
//   - configPath: The path to the main configuration file. A missing file
//     yields the defaults, so the tool runs without any configuration.
//
// RETURNS:
//   - A pointer to the MainConfig struct.
//   - An error if the file cannot be read or parsed.
func LoadMainConfig(configPath string) (*MainConfig, error) {
	var config MainConfig

	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case os.IsNotExist(err):
		// Defaults only.
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	ApplyMainConfigDefaults(&config)

	if err := validateMainConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// ApplyMainConfigDefaults sets default values for any unset option.
func ApplyMainConfigDefaults(config *MainConfig) {
	if config.InputDir == "" {
		config.InputDir = "./input"
	}
	if config.OutputDir == "" {
		config.OutputDir = "./output"
	}
	if config.InputArchiveDir == "" {
		config.InputArchiveDir = "./input_archive"
	}
	if config.UploadDir == "" {
		config.UploadDir = "./uploads"
	}
	if config.OrganizationsDir == "" {
		config.OrganizationsDir = "./organizations"
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 4
	}
	if config.ContinueOnError == nil {
		enabled := true
		config.ContinueOnError = &enabled
	}
	if config.LocationWorkers <= 0 {
		config.LocationWorkers = 10
	}

	if config.ExchangeRates.APIKeyEnv == "" {
		config.ExchangeRates.APIKeyEnv = "ALPHAVANTAGE_API_KEY"
	}
	if config.ExchangeRates.TargetCurrency == "" {
		config.ExchangeRates.TargetCurrency = "USD"
	}
	if config.ExchangeRates.Timeout <= 0 {
		config.ExchangeRates.Timeout = 15 * time.Second
	}

	if config.Geocoder.BaseURL == "" {
		config.Geocoder.BaseURL = "https://nominatim.openstreetmap.org/search"
	}
	if config.Geocoder.UserAgent == "" {
		config.Geocoder.UserAgent = "settlement-export/1.0"
	}
	if config.Geocoder.Timeout <= 0 {
		config.Geocoder.Timeout = 10 * time.Second
	}

	if config.Server.Addr == "" {
		config.Server.Addr = ":8080"
	}
	if config.Server.ReadTimeout <= 0 {
		config.Server.ReadTimeout = 30 * time.Second
	}
	if config.Server.WriteTimeout <= 0 {
		config.Server.WriteTimeout = 5 * time.Minute
	}
	if config.Server.IdleTimeout <= 0 {
		config.Server.IdleTimeout = 60 * time.Second
	}
	if config.Server.MaxUploadMB <= 0 {
		config.Server.MaxUploadMB = 32
	}
}

// validateMainConfig creates any missing working directory.
func validateMainConfig(config *MainConfig) error {
	dirs := []string{
		config.InputDir,
		config.OutputDir,
		config.InputArchiveDir,
		config.UploadDir,
	}

	for _, dir := range dirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", dir, err)
			}
		}
	}

	return nil
}

// LoadOrganizationConfigs returns the built-in organization configs merged with
// every YAML file found in organizationsDir.
//
// PARAMETERS:
//   - organizationsDir: Directory of organization YAML files. It may not exist.
//
// RETURNS:
//   - A map of organization configs keyed by lower-case organization name.
//   - An error if any file cannot be parsed or fails validation.
func LoadOrganizationConfigs(organizationsDir string) (map[string]*OrganizationConfig, error) {
	configs, err := DefaultOrganizationConfigs()
	if err != nil {
		return nil, err
	}

	files, err := filepath.Glob(filepath.Join(organizationsDir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to list organization files: %w", err)
	}
	ymlFiles, err := filepath.Glob(filepath.Join(organizationsDir, "*.yml"))
	if err != nil {
		return nil, fmt.Errorf("failed to list organization files: %w", err)
	}
	files = append(files, ymlFiles...)

	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", file, err)
		}
		org, err := ParseOrganizationConfig(data)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
		if org.SKUMappingFile != "" && !filepath.IsAbs(org.SKUMappingFile) {
			org.SKUMappingFile = filepath.Join(filepath.Dir(file), org.SKUMappingFile)
		}
		configs[org.Key()] = org
	}

	return configs, nil
}
