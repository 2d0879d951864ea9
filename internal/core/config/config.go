// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/feathergis/queryfront/internal/geom"
)

type InvalidationCfg struct {
	Enabled bool
	Brokers []string
	Topic   string
	GroupID string
}

type Config struct {
	Addr     string
	LogLevel string

	UpstreamURL string

	RedisAddr     string
	ViewCacheSize int

	DefaultCRS     geom.CRSID
	GeometryColumn string
	CollectionCRS  map[string]geom.CRSID
	Collections    []string

	CacheEnabled    bool
	CacheTTLDefault time.Duration
	CacheTTLOvr     map[string]time.Duration
	CacheMaxBody    int
	CellRes         int

	BodyMaxBytes int64

	Invalidation InvalidationCfg
}

func FromEnv() Config {
	res := getint("CELL_RES", 7)
	if res < 0 {
		res = 0
	}
	if res > 15 {
		res = 15
	}

	return Config{
		Addr:     getenv("ADDR", ":8080"),
		LogLevel: getenv("LOG_LEVEL", "info"),

		UpstreamURL: getenv("UPSTREAM_URL", "http://localhost:8080/geoserver"),

		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		ViewCacheSize: getint("VIEW_CACHE_SIZE", 256),

		DefaultCRS:     geom.CRSID(getenv("DEFAULT_CRS", string(geom.WGS84))),
		GeometryColumn: getenv("GEOMETRY_COLUMN", "geom"),
		CollectionCRS:  parseCRSMap(getenv("COLLECTION_CRS", "")),
		Collections:    splitCSV(getenv("COLLECTIONS", "")),

		CacheEnabled:    getbool("CACHE_ENABLED", true),
		CacheTTLDefault: getduration("CACHE_TTL_DEFAULT", 60*time.Second),
		CacheTTLOvr:     parseDurationMap(getenv("CACHE_TTL_OVERRIDES", "")),
		CacheMaxBody:    getint("CACHE_MAX_BODY", 4<<20),
		CellRes:         res,

		BodyMaxBytes: int64(getint("BODY_MAX_BYTES", 1<<20)),

		Invalidation: InvalidationCfg{
			Enabled: getbool("INVALIDATION_ENABLED", false),
			Brokers: splitCSV(getenv("KAFKA_BROKERS", "localhost:9092")),
			Topic:   getenv("KAFKA_TOPIC", "feature-invalidation"),
			GroupID: getenv("KAFKA_GROUP_ID", "queryfront"),
		},
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parse "db/coll=5m,other/coll=30s" into a map
func parseDurationMap(s string) map[string]time.Duration {
	out := map[string]time.Duration{}
	for _, p := range strings.Split(strings.TrimSpace(s), ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 || strings.TrimSpace(kv[0]) == "" {
			continue
		}
		if d, err := time.ParseDuration(strings.TrimSpace(kv[1])); err == nil {
			out[strings.TrimSpace(kv[0])] = d
		}
	}
	return out
}

// parse "db/coll=EPSG:3857,..." into a map
func parseCRSMap(s string) map[string]geom.CRSID {
	out := map[string]geom.CRSID{}
	for _, p := range strings.Split(strings.TrimSpace(s), ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		k := strings.TrimSpace(kv[0])
		v := strings.ToUpper(strings.TrimSpace(kv[1]))
		if k == "" || v == "" {
			continue
		}
		out[k] = geom.CRSID(v)
	}
	return out
}

// TTLFor returns the cache TTL for one collection.
func (c Config) TTLFor(database, collection string) time.Duration {
	if d, ok := c.CacheTTLOvr[database+"/"+collection]; ok {
		return d
	}
	return c.CacheTTLDefault
}
