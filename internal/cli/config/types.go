// Package config loads the command-line settings of leaplineage.
//
// The project file (leaplineage.yaml) and the mapping files are owned by
// internal/config; this package only covers how the CLI itself behaves:
// where to find the project, how to print, and where maps are loaded from
// or saved to.
package config

import "github.com/leapstack-labs/leaplineage/internal/storage"

// Defaults for CLI settings.
const (
	DefaultOutput      = "auto"
	DefaultConcurrency = 8
	DefaultAddr        = "127.0.0.1:8765"
	EnvPrefix          = "LEAPLINEAGE_"
)

// Config holds all CLI configuration options.
type Config struct {
	ConfigDir   string        `koanf:"config_dir"`
	Output      string        `koanf:"output"`
	Verbose     bool          `koanf:"verbose"`
	Concurrency int           `koanf:"concurrency"`
	Load        []string      `koanf:"load"`
	Save        string        `koanf:"save"`
	Serve       ServeConfig   `koanf:"serve"`
	Storage     StorageConfig `koanf:"storage"`

	// File is the settings file that was read, if any.
	File string `koanf:"-"`
}

// ServeConfig holds settings for the HTTP API.
type ServeConfig struct {
	Addr  string `koanf:"addr"`
	Watch bool   `koanf:"watch"`
}

// StorageConfig holds default credentials for remote locators. Include
// entries of the project file may override them per source.
type StorageConfig struct {
	GCSCredentialsFile string `koanf:"gcs_credentials_file"`
	S3Region           string `koanf:"s3_region"`
	S3Endpoint         string `koanf:"s3_endpoint"`
	S3AccessKeyID      string `koanf:"s3_access_key_id"`
	S3SecretAccessKey  string `koanf:"s3_secret_access_key"`
	S3UsePathStyle     bool   `koanf:"s3_use_path_style"`
	AzureAccountName   string `koanf:"azure_account_name"`
	AzureAccountKey    string `koanf:"azure_account_key"`
	AzureServiceURL    string `koanf:"azure_service_url"`
}

// Options converts the storage settings for storage.New.
func (s StorageConfig) Options() storage.Options {
	return storage.Options{
		GCSCredentialsFile: s.GCSCredentialsFile,
		S3Region:           s.S3Region,
		S3Endpoint:         s.S3Endpoint,
		S3AccessKeyID:      s.S3AccessKeyID,
		S3SecretAccessKey:  s.S3SecretAccessKey,
		S3UsePathStyle:     s.S3UsePathStyle,
		AzureAccountName:   s.AzureAccountName,
		AzureAccountKey:    s.AzureAccountKey,
		AzureServiceURL:    s.AzureServiceURL,
	}
}
