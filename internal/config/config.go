// Copyright 2018 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads server and CLI settings from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every environment variable, e.g. VARIANTSTORE_PORT.
const Prefix = "VARIANTSTORE"

// Defaults mirrored by the struct tags below.
const (
	DefaultPort         = 80
	DefaultLogLevel     = "INFO"
	DefaultLogFormat    = "text"
	DefaultOutputFormat = "z"
	DefaultPageSize     = 100
)

// EnvConfig holds all environment-based configuration.
type EnvConfig struct {
	// Host is the address to bind to.
	// Env: VARIANTSTORE_HOST
	Host string `envconfig:"HOST"`

	// Port is the HTTP service port.
	// Env: VARIANTSTORE_PORT (default: 80)
	Port int `envconfig:"PORT" default:"80"`

	// LogLevel is one of DEBUG, INFO, WARN or ERROR.
	LogLevel string `envconfig:"LOG_LEVEL" default:"INFO"`

	// LogFormat is text or json.
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`

	// MetadataURL locates contig and sample metadata: a sqlite:/// or
	// postgres:// database URL, or a path to a VCF header or FASTA index.
	MetadataURL string `envconfig:"METADATA_URL"`

	// HeaderPath is the template VCF header printed before query output.
	HeaderPath string `envconfig:"HEADER_PATH"`

	// ReferencePath is an optional reference FASTA file.
	ReferencePath string `envconfig:"REFERENCE_PATH"`

	// OutputFormat is b, bu, z or empty for plain VCF.
	OutputFormat string `envconfig:"OUTPUT_FORMAT" default:"z"`

	// DefaultPageSize bounds range queries that do not ask for a page size.
	DefaultPageSize int `envconfig:"DEFAULT_PAGE_SIZE" default:"100"`

	// Secure serves HTTPS only and reads GCS with the application default
	// credentials.  Otherwise GCS is read anonymously.
	Secure    bool   `envconfig:"SECURE" default:"false"`
	HTTPSCert string `envconfig:"HTTPS_CERT"`
	HTTPSKey  string `envconfig:"HTTPS_KEY"`

	// GCSToken is an OAuth2 access token used for every GCS request.  It
	// takes precedence over Secure.
	GCSToken string `envconfig:"GCS_TOKEN"`

	// Buckets, if set, restricts workspaces to a comma-separated list of
	// buckets.
	Buckets string `envconfig:"BUCKETS"`

	// TrackUsage enables anonymous usage tracking.
	TrackUsage bool `envconfig:"TRACK_USAGE" default:"false"`

	// MinIO configures s3:// workspaces.
	MinIO MinIOEnv `envconfig:"MINIO"`
}

// MinIOEnv holds the settings of an S3-compatible endpoint.
type MinIOEnv struct {
	// Env: VARIANTSTORE_MINIO_ENDPOINT
	Endpoint  string `envconfig:"ENDPOINT"`
	AccessKey string `envconfig:"ACCESS_KEY"`
	SecretKey string `envconfig:"SECRET_KEY"`
	Secure    bool   `envconfig:"SECURE" default:"true"`
	Region    string `envconfig:"REGION"`
}

// BucketList returns the configured bucket restriction, or nil.
func (c EnvConfig) BucketList() []string {
	var buckets []string
	for _, bucket := range strings.Split(c.Buckets, ",") {
		if bucket = strings.TrimSpace(bucket); bucket != "" {
			buckets = append(buckets, bucket)
		}
	}
	return buckets
}

// Address returns the host:port the server listens on.
func (c EnvConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate reports settings that cannot work together.
func (c EnvConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Secure && (c.HTTPSCert == "" || c.HTTPSKey == "") {
		return errors.New("secure mode requires both an HTTPS certificate and key")
	}
	if c.DefaultPageSize < 0 {
		return fmt.Errorf("invalid default page size %d", c.DefaultPageSize)
	}
	return nil
}

// LoadFromEnv reads the configuration from VARIANTSTORE_* variables.
func LoadFromEnv() (EnvConfig, error) {
	var cfg EnvConfig
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return EnvConfig{}, err
	}
	return cfg, nil
}

// LoadDotEnv loads environment variables from a .env file.  If path is
// empty it loads ".env" from the current directory.  A missing file is not
// an error.  Variables already set in the environment win.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

// Load loads the optional .env file at envPath and then the environment.
func Load(envPath string) (EnvConfig, error) {
	if err := LoadDotEnv(envPath); err != nil {
		return EnvConfig{}, fmt.Errorf("loading %s: %v", envPath, err)
	}
	cfg, err := LoadFromEnv()
	if err != nil {
		return EnvConfig{}, fmt.Errorf("reading environment: %v", err)
	}
	return cfg, nil
}
