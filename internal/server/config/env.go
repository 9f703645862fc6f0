package config

import (
	"strconv"
	"strings"
	"time"
)

const envPrefix = "AUDITRACK_"

// parseEnv overlays AUDITRACK_* variables. PORT (as set by most PaaS
// runtimes) is honored when AUDITRACK_HTTP_ADDR is not set. Values that do
// not parse are ignored.
func parseEnv(c *Config, lookup func(string) (string, bool)) {
	getenv := func(key string) (string, bool) {
		v, ok := lookup(envPrefix + key)
		if !ok || v == "" {
			return "", false
		}
		return v, true
	}
	str := func(key string, dst *string) {
		if v, ok := getenv(key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := getenv(key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := getenv(key); ok {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}

	if port, ok := lookup("PORT"); ok && port != "" {
		c.EndpointAddrHTTP = ":" + port
	}
	str("HTTP_ADDR", &c.EndpointAddrHTTP)
	str("GRPC_ADDR", &c.EndpointAddrGRPC)
	str("DATABASE_DSN", &c.DatabaseDSN)
	str("SECRET_KEY", &c.SecretKey)
	dur("SESSION_VALIDITY", &c.SessionValidityDuration)
	str("TIMEZONE", &c.Timezone)
	str("LOG_BACKEND", &c.LogBackend)
	str("LOG_LEVEL", &c.LogLevel)
	num("LOGIN_RATE_PER_MINUTE", &c.LoginRatePerMinute)
	num("LOGIN_BURST", &c.LoginBurst)
	if v, ok := getenv("CORS_ALLOWED_ORIGINS"); ok {
		c.CORSAllowedOrigins = splitList(v)
	}
	dur("SHUTDOWN_TIMEOUT", &c.ShutdownTimeout)
	str("S3_ROOT_USER", &c.S3RootUser)
	str("S3_ROOT_PASSWORD", &c.S3RootPassword)
	str("S3_BUCKET", &c.S3Bucket)
	str("S3_REGION", &c.S3Region)
	str("S3_BASE_ENDPOINT", &c.S3BaseEndpoint)
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
