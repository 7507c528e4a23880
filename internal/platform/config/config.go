package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures everything the gateway reads from the environment. Defaults
// are the development hostnames; production deployments must override the
// upstream URLs.
type Config struct {
	Addr string

	// BackendBaseURL is the KYC record service the case routes proxy to.
	BackendBaseURL string
	// RegistryBaseURL fronts both third-party registries (companies registry
	// and firm register) behind one host.
	RegistryBaseURL string

	// ProxyReadTimeout bounds list/get forwards only; writes are never timed
	// out by the proxy.
	ProxyReadTimeout time.Duration
	RegistryTimeout  time.Duration

	SearchCacheTTL time.Duration
	DetailCacheTTL time.Duration

	// RedisURL selects the Redis cache backend when set; empty means the
	// in-process cache.
	RedisURL string

	// KafkaBrokers enables the audit event publisher when non-empty.
	KafkaBrokers []string
	AuditTopic   string
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	return Config{
		Addr:             envOr("CASEGATE_ADDR", ":8080"),
		BackendBaseURL:   envOr("KYC_BACKEND_URL", "http://querydog.benjaminwootton.com:8090"),
		RegistryBaseURL:  envOr("THIRDPARTY_API_URL", "http://querydog.benjaminwootton.com:8091"),
		ProxyReadTimeout: envDuration("PROXY_READ_TIMEOUT", 10*time.Second),
		RegistryTimeout:  envDuration("REGISTRY_TIMEOUT", 30*time.Second),
		SearchCacheTTL:   envDuration("SEARCH_CACHE_TTL", 5*time.Minute),
		DetailCacheTTL:   envDuration("DETAIL_CACHE_TTL", 10*time.Minute),
		RedisURL:         os.Getenv("REDIS_URL"),
		KafkaBrokers:     envList("KAFKA_BROKERS"),
		AuditTopic:       envOr("AUDIT_TOPIC", "casegate.audit"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
