package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/patientvault/internal/flagx"
	"github.com/dmitrijs2005/patientvault/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Duration fields
// use timex.Duration so they accept both "12h" style strings and integer
// nanoseconds. Pointer fields distinguish "absent" from a zero value.
type JsonConfig struct {
	EndpointAddrHTTP              string         `json:"endpoint_addr_http"`
	EndpointAddrGRPC              string         `json:"endpoint_addr_grpc"`
	DatabaseDSN                   string         `json:"database_dsn"`
	SecretKey                     string         `json:"secret_key"`
	SessionValidityDuration       timex.Duration `json:"session_validity_duration"`
	RememberTokenValidityDuration timex.Duration `json:"remember_token_validity_duration"`
	BlobBackend                   string         `json:"blob_backend"`
	BlobRoot                      string         `json:"blob_root"`
	S3RootUser                    string         `json:"s3_root_user"`
	S3RootPassword                string         `json:"s3_root_password"`
	S3Bucket                      string         `json:"s3_bucket"`
	S3Region                      string         `json:"s3_region"`
	S3BaseEndpoint                string         `json:"s3_base_endpoint"`
	IdentityDatasetPath           string         `json:"identity_dataset_path"`
	MaxUploadBytes                int64          `json:"max_upload_bytes"`
	MaxArchiveBytes               int64          `json:"max_archive_bytes"`
	LogFormat                     string         `json:"log_format"`
	DebugOTP                      *bool          `json:"debug_otp"`
	SecureCookies                 *bool          `json:"secure_cookies"`
}

// parseJson overlays values from the JSON file named by -c / -config onto
// config. Only fields present (non-zero) in the file are applied, so a partial
// file keeps the defaults for everything else. Without -c / -config nothing is
// loaded. Unreadable or invalid files cause a panic.
func parseJson(config *Config) {

	// try flags
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	if c.SessionValidityDuration.Duration != 0 {
		config.SessionValidityDuration = c.SessionValidityDuration.Duration
	}
	if c.RememberTokenValidityDuration.Duration != 0 {
		config.RememberTokenValidityDuration = c.RememberTokenValidityDuration.Duration
	}
	setString(&config.BlobBackend, c.BlobBackend)
	setString(&config.BlobRoot, c.BlobRoot)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.IdentityDatasetPath, c.IdentityDatasetPath)
	if c.MaxUploadBytes > 0 {
		config.MaxUploadBytes = c.MaxUploadBytes
	}
	if c.MaxArchiveBytes > 0 {
		config.MaxArchiveBytes = c.MaxArchiveBytes
	}
	setString(&config.LogFormat, c.LogFormat)
	if c.DebugOTP != nil {
		config.DebugOTP = *c.DebugOTP
	}
	if c.SecureCookies != nil {
		config.SecureCookies = *c.SecureCookies
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
