package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"

	"brokerhub/core/internal/types"
)

type Config struct {
	Server struct {
		Port        string
		LogLevel    string
		MetricsAddr string
		GRPCAddr    string
	}
	Site struct {
		Skin string
	}
	Storage struct {
		Driver string
		Path   string
	}
	Cache struct {
		Namespace       string
		MaxEntries      int
		SearchTTL       time.Duration
		CleanupSchedule string
	}
	Upstream struct {
		BaseURL string
		APIKey  string
		Timeout time.Duration
	}
	Events struct {
		JournalSize int
	}
	Stream struct {
		TokenSecret   string
		TokenTTLMin   int
		TokenSkewSecs int
		MintKey       string // empty leaves /stream-token open
		Debounce      time.Duration
	}
}

func Load() Config {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.metrics_addr", ":8082")
	v.SetDefault("server.grpc_addr", ":9090")

	v.SetDefault("site.skin", "brokerchooser")

	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.path", "./brokerhub.db")

	v.SetDefault("cache.max_entries", 500)
	v.SetDefault("cache.search_ttl_seconds", 300)
	v.SetDefault("cache.cleanup_schedule", "@every 5m")

	v.SetDefault("upstream.timeout_seconds", 10)

	v.SetDefault("events.journal_size", 200)

	v.SetDefault("stream.token_ttl_min", 60)
	v.SetDefault("stream.token_skew_secs", 30)
	v.SetDefault("stream.debounce_ms", 250)

	// Map envs
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.log_level", "LOG_LEVEL")
	v.BindEnv("server.metrics_addr", "METRICS_ADDR")
	v.BindEnv("server.grpc_addr", "GRPC_ADDR")

	v.BindEnv("site.skin", "SITE_SKIN")

	v.BindEnv("storage.driver", "STORAGE_DRIVER")
	v.BindEnv("storage.path", "STORAGE_PATH")

	v.BindEnv("cache.namespace", "CACHE_NAMESPACE")
	v.BindEnv("cache.max_entries", "CACHE_MAX_ENTRIES")
	v.BindEnv("cache.search_ttl_seconds", "SEARCH_TTL_SECONDS")
	v.BindEnv("cache.cleanup_schedule", "CACHE_CLEANUP_SCHEDULE")

	v.BindEnv("upstream.base_url", "UPSTREAM_BASE_URL")
	v.BindEnv("upstream.api_key", "UPSTREAM_API_KEY")
	v.BindEnv("upstream.timeout_seconds", "UPSTREAM_TIMEOUT_SECONDS")

	v.BindEnv("events.journal_size", "EVENTS_JOURNAL_SIZE")

	v.BindEnv("stream.token_secret", "STREAM_TOKEN_SECRET")
	v.BindEnv("stream.token_ttl_min", "STREAM_TOKEN_TTL_MIN")
	v.BindEnv("stream.token_skew_secs", "STREAM_TOKEN_SKEW_SECS")
	v.BindEnv("stream.mint_key", "STREAM_MINT_KEY")
	v.BindEnv("stream.debounce_ms", "SEARCH_DEBOUNCE_MS")

	var c Config
	c.Server.Port = toString(v.Get("server.port"))
	c.Server.LogLevel = v.GetString("server.log_level")
	c.Server.MetricsAddr = v.GetString("server.metrics_addr")
	c.Server.GRPCAddr = v.GetString("server.grpc_addr")

	c.Site.Skin = strings.ToLower(v.GetString("site.skin"))
	if !types.ValidSkin(c.Site.Skin) {
		log.Printf("config: unknown skin %q, using brokerchooser", c.Site.Skin)
		c.Site.Skin = "brokerchooser"
	}

	c.Storage.Driver = v.GetString("storage.driver")
	c.Storage.Path = v.GetString("storage.path")

	c.Cache.Namespace = v.GetString("cache.namespace")
	if c.Cache.Namespace == "" {
		c.Cache.Namespace = c.Site.Skin
	}
	c.Cache.MaxEntries = v.GetInt("cache.max_entries")
	c.Cache.SearchTTL = time.Duration(v.GetInt("cache.search_ttl_seconds")) * time.Second
	c.Cache.CleanupSchedule = v.GetString("cache.cleanup_schedule")

	c.Upstream.BaseURL = v.GetString("upstream.base_url")
	c.Upstream.APIKey = v.GetString("upstream.api_key")
	c.Upstream.Timeout = time.Duration(v.GetInt("upstream.timeout_seconds")) * time.Second

	c.Events.JournalSize = v.GetInt("events.journal_size")

	c.Stream.TokenSecret = v.GetString("stream.token_secret")
	c.Stream.TokenTTLMin = v.GetInt("stream.token_ttl_min")
	c.Stream.TokenSkewSecs = v.GetInt("stream.token_skew_secs")
	c.Stream.MintKey = v.GetString("stream.mint_key")
	c.Stream.Debounce = time.Duration(v.GetInt("stream.debounce_ms")) * time.Millisecond

	log.Printf("config loaded: port=%s skin=%s storage=%s namespace=%s", c.Server.Port, c.Site.Skin, c.Storage.Driver, c.Cache.Namespace)
	return c
}

func toString(v any) string { return fmt.Sprint(v) }
