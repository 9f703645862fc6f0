package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/auditrack/internal/flagx"
	"github.com/dmitrijs2005/auditrack/internal/timex"
	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk shape of the configuration. Pointer fields tell
// "absent" apart from "zero" so only keys present in the file override
// earlier layers.
type FileConfig struct {
	EndpointAddrHTTP        *string         `json:"endpoint_addr_http" yaml:"endpoint_addr_http"`
	EndpointAddrGRPC        *string         `json:"endpoint_addr_grpc" yaml:"endpoint_addr_grpc"`
	DatabaseDSN             *string         `json:"database_dsn" yaml:"database_dsn"`
	SecretKey               *string         `json:"secret_key" yaml:"secret_key"`
	SessionValidityDuration *timex.Duration `json:"session_validity_duration" yaml:"session_validity_duration"`
	Timezone                *string         `json:"timezone" yaml:"timezone"`
	LogBackend              *string         `json:"log_backend" yaml:"log_backend"`
	LogLevel                *string         `json:"log_level" yaml:"log_level"`
	LoginRatePerMinute      *int            `json:"login_rate_per_minute" yaml:"login_rate_per_minute"`
	LoginBurst              *int            `json:"login_burst" yaml:"login_burst"`
	CORSAllowedOrigins      []string        `json:"cors_allowed_origins" yaml:"cors_allowed_origins"`
	ShutdownTimeout         *timex.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
	S3RootUser              *string         `json:"s3_root_user" yaml:"s3_root_user"`
	S3RootPassword          *string         `json:"s3_root_password" yaml:"s3_root_password"`
	S3Bucket                *string         `json:"s3_bucket" yaml:"s3_bucket"`
	S3Region                *string         `json:"s3_region" yaml:"s3_region"`
	S3BaseEndpoint          *string         `json:"s3_base_endpoint" yaml:"s3_base_endpoint"`
}

// parseFile overlays values from the file named by -c/-config in args.
// The format is picked by extension: .yaml/.yml use YAML, anything else JSON.
// An unreadable or malformed file panics, like a malformed flag does.
func parseFile(config *Config, args []string) {
	path := flagx.ConfigFileFlag(args)
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	fc := &FileConfig{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, fc)
	default:
		err = json.Unmarshal(data, fc)
	}
	if err != nil {
		panic(err)
	}

	fc.apply(config)
}

func (fc *FileConfig) apply(c *Config) {
	setString(&c.EndpointAddrHTTP, fc.EndpointAddrHTTP)
	setString(&c.EndpointAddrGRPC, fc.EndpointAddrGRPC)
	setString(&c.DatabaseDSN, fc.DatabaseDSN)
	setString(&c.SecretKey, fc.SecretKey)
	if fc.SessionValidityDuration != nil {
		c.SessionValidityDuration = fc.SessionValidityDuration.Duration
	}
	setString(&c.Timezone, fc.Timezone)
	setString(&c.LogBackend, fc.LogBackend)
	setString(&c.LogLevel, fc.LogLevel)
	if fc.LoginRatePerMinute != nil {
		c.LoginRatePerMinute = *fc.LoginRatePerMinute
	}
	if fc.LoginBurst != nil {
		c.LoginBurst = *fc.LoginBurst
	}
	if fc.CORSAllowedOrigins != nil {
		c.CORSAllowedOrigins = fc.CORSAllowedOrigins
	}
	if fc.ShutdownTimeout != nil {
		c.ShutdownTimeout = fc.ShutdownTimeout.Duration
	}
	setString(&c.S3RootUser, fc.S3RootUser)
	setString(&c.S3RootPassword, fc.S3RootPassword)
	setString(&c.S3Bucket, fc.S3Bucket)
	setString(&c.S3Region, fc.S3Region)
	setString(&c.S3BaseEndpoint, fc.S3BaseEndpoint)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
