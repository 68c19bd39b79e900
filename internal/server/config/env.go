package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// parseEnv overlays values from environment variables. A .env file in the
// working directory is loaded first when present; variables already set in
// the process environment win over it.
//
// Recognized variables:
//
//	HTTP_ADDR, DATABASE_DSN, AUTH_BACKEND, SUPABASE_URL, SUPABASE_ANON_KEY,
//	SUPABASE_JWT_SECRET, SITE_URL, BLOB_BACKEND, S3_ACCESS_KEY_ID,
//	S3_SECRET_ACCESS_KEY, S3_BUCKET, S3_REGION, S3_ENDPOINT,
//	SESSION_BACKEND, SESSION_TTL, SESSION_COOKIE_SECURE, REDIS_ADDR,
//	REDIS_PASSWORD, REDIS_DB, ALLOWED_ORIGINS, LOG_LEVEL, LOG_PATH
//
// Malformed numeric or duration values are ignored.
func parseEnv(config *Config) {
	_ = godotenv.Load()

	setString(&config.EndpointAddrHTTP, "HTTP_ADDR")
	setString(&config.DatabaseDSN, "DATABASE_DSN")
	setString(&config.AuthBackend, "AUTH_BACKEND")
	setString(&config.AuthURL, "SUPABASE_URL")
	setString(&config.AuthAnonKey, "SUPABASE_ANON_KEY")
	setString(&config.JWTSecret, "SUPABASE_JWT_SECRET")
	setString(&config.SiteURL, "SITE_URL")
	setString(&config.BlobBackend, "BLOB_BACKEND")
	setString(&config.S3RootUser, "S3_ACCESS_KEY_ID")
	setString(&config.S3RootPassword, "S3_SECRET_ACCESS_KEY")
	setString(&config.S3Bucket, "S3_BUCKET")
	setString(&config.S3Region, "S3_REGION")
	setString(&config.S3BaseEndpoint, "S3_ENDPOINT")
	setString(&config.SessionBackend, "SESSION_BACKEND")
	setString(&config.RedisAddr, "REDIS_ADDR")
	setString(&config.RedisPassword, "REDIS_PASSWORD")
	setString(&config.LogLevel, "LOG_LEVEL")
	setString(&config.LogPath, "LOG_PATH")

	if v, ok := os.LookupEnv("SESSION_TTL"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			config.SessionTTL = d
		}
	}
	if v, ok := os.LookupEnv("SESSION_COOKIE_SECURE"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			config.SessionCookieSecure = b
		}
	}
	if v, ok := os.LookupEnv("REDIS_DB"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			config.RedisDB = n
		}
	}
	if v, ok := os.LookupEnv("ALLOWED_ORIGINS"); ok && strings.TrimSpace(v) != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		config.AllowedOrigins = origins
	}
}

func setString(dst *string, name string) {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		*dst = v
	}
}
