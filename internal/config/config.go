package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds the base server configuration.
type Config struct {
	Host         string
	Port         string
	SQLiteDBPath string
	JWTSecret    string
	// JWTAccessTokenExpirySec is the lifetime of tokens minted by the token command.
	JWTAccessTokenExpirySec int

	SSDPDiscoveryTimeoutMs int
	SSDPDiscoveryPasses    int
	SSDPPassIntervalMs     int
	SSDPSearchTargets      []string
	// StaticDescriptionURLs are fetched on every scan in addition to SSDP responses,
	// for receivers on networks where multicast does not reach.
	StaticDescriptionURLs []string
	DescriptionTimeoutMs  int
	DescriptionFetchLimit int

	// DiscoverySchedule is a cron spec for background rescans. Empty disables them.
	DiscoverySchedule string
	InboxTTLSeconds   int

	RecognizerConfigPath string
}

// Load reads configuration from environment variables with defaults.
func Load() (Config, error) {
	host := envString("HOST", "0.0.0.0")
	port := envString("PORT", "9100")
	sqlitePath := envString("SQLITE_DB_PATH", "./data/receiver-discovery.db")
	jwtSecret := envString("JWT_SECRET", "")
	jwtAccessExpiry := envInt("JWT_ACCESS_TOKEN_EXPIRY", 3600)
	ssdpTimeout := envInt("SSDP_DISCOVERY_TIMEOUT_MS", 5000)
	ssdpPasses := envInt("SSDP_DISCOVERY_PASSES", 3)
	ssdpPassInterval := envInt("SSDP_PASS_INTERVAL_MS", 2000)
	searchTargets := envCSV("SSDP_SEARCH_TARGETS")
	if len(searchTargets) == 0 {
		searchTargets = []string{"urn:schemas-upnp-org:device:MediaRenderer:1"}
	}
	staticURLs := envCSV("STATIC_DESCRIPTION_URLS")
	descriptionTimeout := envInt("DESCRIPTION_TIMEOUT_MS", 5000)
	fetchLimit := envInt("DESCRIPTION_FETCH_LIMIT", 8)
	schedule := envString("DISCOVERY_SCHEDULE", "@every 60s")
	if envBool("DISCOVERY_SCHEDULE_DISABLED", false) {
		schedule = ""
	}
	inboxTTL := envInt("INBOX_TTL_SECONDS", 86400)
	recognizerPath := envString("RECOGNIZER_CONFIG_PATH", "")

	if jwtSecret != "" && len(strings.TrimSpace(jwtSecret)) < 32 {
		return Config{}, fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if fetchLimit <= 0 {
		return Config{}, fmt.Errorf("DESCRIPTION_FETCH_LIMIT must be positive")
	}

	return Config{
		Host:                    host,
		Port:                    port,
		SQLiteDBPath:            sqlitePath,
		JWTSecret:               jwtSecret,
		JWTAccessTokenExpirySec: jwtAccessExpiry,
		SSDPDiscoveryTimeoutMs:  ssdpTimeout,
		SSDPDiscoveryPasses:     ssdpPasses,
		SSDPPassIntervalMs:      ssdpPassInterval,
		SSDPSearchTargets:       searchTargets,
		StaticDescriptionURLs:   staticURLs,
		DescriptionTimeoutMs:    descriptionTimeout,
		DescriptionFetchLimit:   fetchLimit,
		DiscoverySchedule:       schedule,
		InboxTTLSeconds:         inboxTTL,
		RecognizerConfigPath:    recognizerPath,
	}, nil
}

func envString(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func envInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return strings.EqualFold(val, "true")
}

func envCSV(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return []string{}
	}
	parts := strings.Split(val, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		result = append(result, trimmed)
	}
	return result
}
