package config

import (
	"encoding/json"
	"os"

	"github.com/qfolders/qfolders/internal/flagx"
	"github.com/qfolders/qfolders/internal/timex"
)

// JsonConfig mirrors Config for JSON decoding. Durations use timex.Duration
// so both "15m" and integer nanoseconds are accepted.
type JsonConfig struct {
	EndpointAddrHTTP             string         `json:"endpoint_addr_http"`
	DatabaseDSN                  string         `json:"database_dsn"`
	AuthBackend                  string         `json:"auth_backend"`
	AuthURL                      string         `json:"auth_url"`
	AuthAnonKey                  string         `json:"auth_anon_key"`
	AuthTimeout                  timex.Duration `json:"auth_timeout"`
	JWTSecret                    string         `json:"jwt_secret"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`
	SiteURL                      string         `json:"site_url"`
	BlobBackend                  string         `json:"blob_backend"`
	S3RootUser                   string         `json:"s3_root_user"`
	S3RootPassword               string         `json:"s3_root_password"`
	S3Bucket                     string         `json:"s3_bucket"`
	S3Region                     string         `json:"s3_region"`
	S3BaseEndpoint               string         `json:"s3_base_endpoint"`
	SessionBackend               string         `json:"session_backend"`
	SessionTTL                   timex.Duration `json:"session_ttl"`
	SessionCookieName            string         `json:"session_cookie_name"`
	SessionCookieSecure          *bool          `json:"session_cookie_secure"`
	RedisAddr                    string         `json:"redis_addr"`
	RedisPassword                string         `json:"redis_password"`
	RedisDB                      *int           `json:"redis_db"`
	AttachmentMaxBytes           int64          `json:"attachment_max_bytes"`
	LoginRateLimitPerMinute      int            `json:"login_rate_limit_per_minute"`
	AllowedOrigins               []string       `json:"allowed_origins"`
	LogLevel                     string         `json:"log_level"`
	LogPath                      string         `json:"log_path"`
}

// parseJson overlays values from the JSON file named by -c/-config.
// Keys missing from the file leave the current value untouched.
// An unreadable file or malformed JSON panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigFile()
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err = json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	overlay(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	overlay(&config.DatabaseDSN, c.DatabaseDSN)
	overlay(&config.AuthBackend, c.AuthBackend)
	overlay(&config.AuthURL, c.AuthURL)
	overlay(&config.AuthAnonKey, c.AuthAnonKey)
	overlay(&config.AuthTimeout, c.AuthTimeout.Duration)
	overlay(&config.JWTSecret, c.JWTSecret)
	overlay(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration.Duration)
	overlay(&config.RefreshTokenValidityDuration, c.RefreshTokenValidityDuration.Duration)
	overlay(&config.SiteURL, c.SiteURL)
	overlay(&config.BlobBackend, c.BlobBackend)
	overlay(&config.S3RootUser, c.S3RootUser)
	overlay(&config.S3RootPassword, c.S3RootPassword)
	overlay(&config.S3Bucket, c.S3Bucket)
	overlay(&config.S3Region, c.S3Region)
	overlay(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	overlay(&config.SessionBackend, c.SessionBackend)
	overlay(&config.SessionTTL, c.SessionTTL.Duration)
	overlay(&config.SessionCookieName, c.SessionCookieName)
	overlay(&config.RedisAddr, c.RedisAddr)
	overlay(&config.RedisPassword, c.RedisPassword)
	overlay(&config.AttachmentMaxBytes, c.AttachmentMaxBytes)
	overlay(&config.LoginRateLimitPerMinute, c.LoginRateLimitPerMinute)
	overlay(&config.LogLevel, c.LogLevel)
	overlay(&config.LogPath, c.LogPath)

	if c.SessionCookieSecure != nil {
		config.SessionCookieSecure = *c.SessionCookieSecure
	}
	if c.RedisDB != nil {
		config.RedisDB = *c.RedisDB
	}
	if len(c.AllowedOrigins) > 0 {
		config.AllowedOrigins = c.AllowedOrigins
	}
}

func overlay[T comparable](dst *T, v T) {
	var zero T
	if v != zero {
		*dst = v
	}
}

