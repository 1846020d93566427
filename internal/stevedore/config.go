// SPDX-FileCopyrightText: 2025 SAP SE
// SPDX-License-Identifier: Apache-2.0

package stevedore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/sapcc/go-bits/easypg"
	"github.com/sapcc/go-bits/logg"
	"github.com/sapcc/go-bits/must"
	"github.com/sapcc/go-bits/osext"
	"github.com/sapcc/go-bits/pluggable"
)

// Configuration contains all configuration values that are not specific to a
// certain driver.
type Configuration struct {
	// MaxBlobSizeBytes is the upper limit for a single blob. Uploads that grow
	// beyond this limit are rejected during PATCH or PUT.
	MaxBlobSizeBytes uint64
	// MaxManifestSizeBytes is the upper limit for a single manifest. Enforced
	// before the manifest payload is even parsed.
	MaxManifestSizeBytes uint64
	// UploadLifetime is how long an upload session may stay open. The deadline
	// is fixed when the session is created and does not move on PATCH.
	UploadLifetime time.Duration
}

const (
	defaultMaxBlobSizeBytes     = 5 << 30 // 5 GiB
	defaultMaxManifestSizeBytes = 1 << 20 // 1 MiB
	defaultUploadLifetime       = 24 * time.Hour
)

// ParseConfiguration obtains a Configuration instance from the corresponding
// environment variables. Aborts on error.
func ParseConfiguration() Configuration {
	return Configuration{
		MaxBlobSizeBytes:     getenvUint64("STEVEDORE_BLOB_SIZE_LIMIT_BYTES", defaultMaxBlobSizeBytes),
		MaxManifestSizeBytes: getenvUint64("STEVEDORE_MANIFEST_SIZE_LIMIT_BYTES", defaultMaxManifestSizeBytes),
		UploadLifetime:       getenvDuration("STEVEDORE_UPLOAD_LIFETIME", defaultUploadLifetime),
	}
}

func getenvUint64(key string, defaultValue uint64) uint64 {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultValue
	}
	val, err := strconv.ParseUint(valStr, 10, 64)
	if err != nil {
		logg.Fatal("malformed %s: %s", key, err.Error())
	}
	return val
}

func getenvDuration(key string, defaultValue time.Duration) time.Duration {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultValue
	}
	val, err := time.ParseDuration(valStr)
	if err != nil {
		logg.Fatal("malformed %s: %s", key, err.Error())
	}
	return val
}

// GetDatabaseURLFromEnvironment reads the STEVEDORE_DB_* environment variables.
func GetDatabaseURLFromEnvironment() (dbURL url.URL, dbName string) {
	dbName = osext.GetenvOrDefault("STEVEDORE_DB_NAME", "stevedore")
	return must.Return(easypg.URLFrom(easypg.URLParts{
		HostName:          osext.GetenvOrDefault("STEVEDORE_DB_HOSTNAME", "localhost"),
		Port:              osext.GetenvOrDefault("STEVEDORE_DB_PORT", "5432"),
		UserName:          osext.GetenvOrDefault("STEVEDORE_DB_USERNAME", "postgres"),
		Password:          os.Getenv("STEVEDORE_DB_PASSWORD"),
		ConnectionOptions: os.Getenv("STEVEDORE_DB_CONNECTION_OPTIONS"),
		DatabaseName:      dbName,
	})), dbName
}

// newDriver parses a config JSON as found in a STEVEDORE_DRIVER_* variable,
// initializes the respective driver, and unmarshals config parameters into it.
//
// This is the reusable part of the implementations for NewContentStore,
// NewAccessChecker and NewEventSink.
func newDriver[P pluggable.Plugin](driverType string, registry pluggable.Registry[P], configJSON string, init func(P) error) (P, error) {
	var zero P // for error returns

	var cfg struct {
		PluginTypeID string          `json:"type"`
		Params       json.RawMessage `json:"params"`
	}
	err := unmarshalJSONStrict([]byte(configJSON), &cfg)
	if err != nil {
		return zero, fmt.Errorf("cannot unmarshal %s config %q: %w", driverType, configJSON, err)
	}
	if len(cfg.Params) == 0 {
		// configJSON was just a type, e.g. `{"type":"filesystem"}`
		cfg.Params = json.RawMessage("{}")
	}
	logg.Debug("initializing %s %q", driverType, configJSON)

	driver, ok := registry.TryInstantiate(cfg.PluginTypeID).Unpack()
	if !ok {
		return zero, fmt.Errorf("no such %s: %q", driverType, cfg.PluginTypeID)
	}
	err = json.Unmarshal([]byte(cfg.Params), driver)
	if err != nil {
		return zero, fmt.Errorf("cannot unmarshal params for %s %q: %w", driverType, cfg.PluginTypeID, err)
	}
	err = init(driver)
	if err != nil {
		return zero, fmt.Errorf("could not initialize %s %q: %w", driverType, cfg.PluginTypeID, err)
	}
	return driver, nil
}

// Like yaml.UnmarshalStrict(), but for JSON.
func unmarshalJSONStrict(buf []byte, target any) error {
	dec := json.NewDecoder(bytes.NewReader(buf))
	dec.DisallowUnknownFields()
	return dec.Decode(target)
}
