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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envVars = []string{
	"HOST", "PORT", "LOG_LEVEL", "LOG_FORMAT", "METADATA_URL", "HEADER_PATH",
	"REFERENCE_PATH", "OUTPUT_FORMAT", "DEFAULT_PAGE_SIZE", "SECURE",
	"HTTPS_CERT", "HTTPS_KEY", "GCS_TOKEN", "BUCKETS", "TRACK_USAGE", "MINIO_ENDPOINT",
	"MINIO_ACCESS_KEY", "MINIO_SECRET_KEY", "MINIO_SECURE", "MINIO_REGION",
}

// clearEnv unsets every variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range envVars {
		name = Prefix + "_" + name
		if value, ok := os.LookupEnv(name); ok {
			require.NoError(t, os.Unsetenv(name))
			t.Cleanup(func() { os.Setenv(name, value) })
		}
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "", cfg.Host)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, DefaultLogFormat, cfg.LogFormat)
	assert.Equal(t, DefaultOutputFormat, cfg.OutputFormat)
	assert.Equal(t, DefaultPageSize, cfg.DefaultPageSize)
	assert.False(t, cfg.Secure)
	assert.False(t, cfg.TrackUsage)
	assert.True(t, cfg.MinIO.Secure)
	assert.Nil(t, cfg.BucketList())
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("VARIANTSTORE_PORT", "8080")
	t.Setenv("VARIANTSTORE_METADATA_URL", "sqlite:///tmp/meta.db")
	t.Setenv("VARIANTSTORE_OUTPUT_FORMAT", "bu")
	t.Setenv("VARIANTSTORE_BUCKETS", "a, b,,c")
	t.Setenv("VARIANTSTORE_MINIO_ENDPOINT", "localhost:9000")
	t.Setenv("VARIANTSTORE_MINIO_SECURE", "false")
	t.Setenv("VARIANTSTORE_GCS_TOKEN", "token")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, ":8080", cfg.Address())
	assert.Equal(t, "sqlite:///tmp/meta.db", cfg.MetadataURL)
	assert.Equal(t, "bu", cfg.OutputFormat)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.BucketList())
	assert.Equal(t, "localhost:9000", cfg.MinIO.Endpoint)
	assert.False(t, cfg.MinIO.Secure)
	assert.Equal(t, "token", cfg.GCSToken)
}

func TestLoadFromEnv_Invalid(t *testing.T) {
	clearEnv(t)
	t.Setenv("VARIANTSTORE_PORT", "not-a-number")

	_, err := LoadFromEnv()
	assert.Error(t, err)
}

func TestLoad_DotEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("VARIANTSTORE_HEADER_PATH=/data/template.vcf\nVARIANTSTORE_PORT=9090\n"), 0644))
	t.Setenv("VARIANTSTORE_PORT", "7070")
	t.Cleanup(func() { os.Unsetenv("VARIANTSTORE_HEADER_PATH") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/template.vcf", cfg.HeaderPath)
	assert.Equal(t, 7070, cfg.Port, "environment should win over .env")
}

func TestLoadDotEnv_Missing(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name string
		cfg  EnvConfig
	}{
		{"port zero", EnvConfig{Port: 0}},
		{"port too large", EnvConfig{Port: 70000}},
		{"secure without cert", EnvConfig{Port: 443, Secure: true, HTTPSKey: "key"}},
		{"negative page size", EnvConfig{Port: 80, DefaultPageSize: -1}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, tc.cfg.Validate())
		})
	}
}
