package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone = "Europe/Moscow"

	configPathEnv     = "SALES_ANALYTICS_CONFIG"
	feedURLEnv        = "SALES_FEED_URL"
	lookupURLEnv      = "SALES_LOOKUP_URL"
	timezoneEnv       = "SALES_TIMEZONE"
	logLevelEnv       = "LOG_LEVEL"
	redisURLEnv       = "REDIS_URL"
	sqlitePathEnv     = "SQLITE_PATH"
	metricsListenEnv  = "METRICS_LISTEN"
	exportDirEnv      = "EXPORT_DIR"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Sources       SourcesConfig      `yaml:"sources"`
	Fetch         FetchConfig        `yaml:"fetch"`
	Retry         RetryConfig        `yaml:"retry"`
	Cache         CacheConfig        `yaml:"cache"`
	Business      BusinessConfig     `yaml:"business"`
	Storage       StorageConfig      `yaml:"storage"`
	Metrics       MetricsConfig      `yaml:"metrics"`
	Notifications NotificationConfig `yaml:"notifications"`
	Export        ExportConfig       `yaml:"export"`
	Filter        FilterConfig       `yaml:"filter"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
}

// LoggingConfig selects slog level and handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SourcesConfig lists the remote feeds and the product lookup.
type SourcesConfig struct {
	Feeds  []FeedConfig `yaml:"feeds"`
	Lookup LookupConfig `yaml:"lookup"`
}

// FeedConfig is one sales feed; Channel labels its rows when several feeds
// are combined (e.g. FBO and FBS).
type FeedConfig struct {
	Channel string `yaml:"channel"`
	URL     string `yaml:"url"`
}

// LookupConfig points to the SKU to product name table.
type LookupConfig struct {
	URL        string `yaml:"url"`
	SKUColumn  string `yaml:"skuColumn"`
	NameColumn string `yaml:"nameColumn"`
}

// FetchConfig bounds downloads.
type FetchConfig struct {
	ChunkSize           int           `yaml:"chunkSize"`
	OversizeThresholdMB int64         `yaml:"oversizeThresholdMb"`
	ConnectTimeout      time.Duration `yaml:"connectTimeout"`
	HeadTimeout         time.Duration `yaml:"headTimeout"`
	FeedTimeout         time.Duration `yaml:"feedTimeout"`
	LookupTimeout       time.Duration `yaml:"lookupTimeout"`
	Concurrent          bool          `yaml:"concurrent"`
}

// RetryConfig is the shared fetch retry policy.
type RetryConfig struct {
	Attempts int           `yaml:"attempts"`
	Delay    time.Duration `yaml:"delay"`
}

// CacheConfig selects the result cache backend.
type CacheConfig struct {
	Backend   string        `yaml:"backend"`
	RedisURL  string        `yaml:"redisUrl"`
	FeedTTL   time.Duration `yaml:"feedTtl"`
	LookupTTL time.Duration `yaml:"lookupTtl"`
}

// BusinessConfig defines the timezone used for naive timestamps and dates.
type BusinessConfig struct {
	Timezone string         `yaml:"timezone"`
	location *time.Location `yaml:"-"`
}

// Location resolves the business timezone string to a time.Location.
func (b BusinessConfig) Location() *time.Location {
	if b.location != nil {
		return b.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// StorageConfig enables the SQLite snapshot when SQLitePath is set.
type StorageConfig struct {
	SQLitePath string `yaml:"sqlitePath"`
}

// MetricsConfig enables the Prometheus listener when Listen is set.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// ExportConfig sets where report files are written; empty disables.
type ExportConfig struct {
	Dir          string   `yaml:"dir"`
	KeepTimezone bool     `yaml:"keepTimezone"`
	Breakdowns   []string `yaml:"breakdowns"`
}

// FilterConfig is the filter applied after every load.
type FilterConfig struct {
	IncludeCancelled bool     `yaml:"includeCancelled"`
	WarehouseTypes   []string `yaml:"warehouseTypes"`
	// LastDays limits the window to the newest N days; 0 shows everything.
	LastDays int `yaml:"lastDays"`
}

// SchedulerConfig defines how often the data is refreshed.
type SchedulerConfig struct {
	RefreshInterval time.Duration `yaml:"refreshInterval"`
}

// Load reads .env and YAML configuration (if present) and applies
// environment overrides.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("config: cannot read .env: %v", err)
	}

	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else if fileCfg, err := Parse(raw); err != nil {
			log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
		} else {
			cfg = fileCfg
		}
	}

	cfg.applyEnvOverrides()
	cfg.sanitize()
	cfg.bindTimezone()

	return cfg
}

// Parse decodes YAML over the defaults; keys absent from raw keep their
// default values. The result is not yet sanitized.
func Parse(raw []byte) (Config, error) {
	cfg := defaultConfig()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(feedURLEnv); v != "" {
		c.Sources.Feeds = nil
		for _, u := range strings.Split(v, ",") {
			if u = strings.TrimSpace(u); u != "" {
				c.Sources.Feeds = append(c.Sources.Feeds, FeedConfig{URL: u})
			}
		}
	}

	if v := os.Getenv(lookupURLEnv); v != "" {
		c.Sources.Lookup.URL = v
	}

	if v := os.Getenv(timezoneEnv); v != "" {
		c.Business.Timezone = v
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(redisURLEnv); v != "" {
		c.Cache.RedisURL = v
		c.Cache.Backend = "redis"
	}

	if v := os.Getenv(sqlitePathEnv); v != "" {
		c.Storage.SQLitePath = v
	}

	if v := os.Getenv(metricsListenEnv); v != "" {
		c.Metrics.Listen = v
	}

	if v := os.Getenv(exportDirEnv); v != "" {
		c.Export.Dir = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}

	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}
}

// sanitize replaces invalid values with defaults, logging each fallback.
func (c *Config) sanitize() {
	def := defaultConfig()

	if len(c.Sources.Feeds) == 0 {
		log.Printf("config: no feeds configured, using default feed")
		c.Sources.Feeds = def.Sources.Feeds
	}
	if c.Fetch.ChunkSize <= 0 {
		log.Printf("config: invalid fetch.chunkSize %d, reverting to %d", c.Fetch.ChunkSize, def.Fetch.ChunkSize)
		c.Fetch.ChunkSize = def.Fetch.ChunkSize
	}
	if c.Fetch.OversizeThresholdMB <= 0 {
		c.Fetch.OversizeThresholdMB = def.Fetch.OversizeThresholdMB
	}
	positive(&c.Fetch.ConnectTimeout, def.Fetch.ConnectTimeout, "fetch.connectTimeout")
	positive(&c.Fetch.HeadTimeout, def.Fetch.HeadTimeout, "fetch.headTimeout")
	positive(&c.Fetch.FeedTimeout, def.Fetch.FeedTimeout, "fetch.feedTimeout")
	positive(&c.Fetch.LookupTimeout, def.Fetch.LookupTimeout, "fetch.lookupTimeout")

	if c.Retry.Attempts <= 0 {
		log.Printf("config: invalid retry.attempts %d, reverting to %d", c.Retry.Attempts, def.Retry.Attempts)
		c.Retry.Attempts = def.Retry.Attempts
	}
	if c.Retry.Delay < 0 {
		c.Retry.Delay = def.Retry.Delay
	}

	switch c.Cache.Backend = strings.ToLower(strings.TrimSpace(c.Cache.Backend)); c.Cache.Backend {
	case "memory", "redis", "none":
	default:
		log.Printf("config: unknown cache.backend %q, reverting to memory", c.Cache.Backend)
		c.Cache.Backend = "memory"
	}
	if c.Cache.Backend == "redis" && c.Cache.RedisURL == "" {
		log.Printf("config: cache.backend redis without redisUrl, reverting to memory")
		c.Cache.Backend = "memory"
	}

	if c.Filter.LastDays < 0 {
		c.Filter.LastDays = 0
	}
	if c.Scheduler.RefreshInterval < 0 {
		c.Scheduler.RefreshInterval = 0
	}
}

func positive(d *time.Duration, fallback time.Duration, name string) {
	if *d <= 0 {
		log.Printf("config: invalid %s %s, reverting to %s", name, *d, fallback)
		*d = fallback
	}
}

func (c *Config) bindTimezone() {
	tz := c.Business.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Business.location = loc
}

// String renders non-secret settings for the startup log.
func (c Config) String() string {
	var b strings.Builder
	b.WriteString("feeds=" + strconv.Itoa(len(c.Sources.Feeds)))
	b.WriteString(" cache=" + c.Cache.Backend)
	b.WriteString(" timezone=" + c.Business.Location().String())
	b.WriteString(" concurrent=" + strconv.FormatBool(c.Fetch.Concurrent))
	b.WriteString(" refresh=" + c.Scheduler.RefreshInterval.String())
	return b.String()
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Sources: SourcesConfig{
			Feeds: []FeedConfig{
				{URL: "https://storage.yandexcloud.net/my-json-bucket-chat-wb/wb_dashboard/all_sales_data.json"},
			},
			Lookup: LookupConfig{
				URL:        "https://storage.yandexcloud.net/my-json-bucket-chat-wb/14_04_2025_07_26_%D0%9E%D0%B1%D1%89%D0%B8%D0%B5_%D1%85%D0%B0%D1%80%D0%B0%D0%BA%D1%82%D0%B5%D1%80%D0%B8%D1%81%D1%82%D0%B8%D0%BA%D0%B8_%D0%BE%D0%B4%D0%BD%D0%B8%D0%BC_%D1%84%D0%B0%D0%B9%D0%BB%D0%BE%D0%BC.xlsx",
				SKUColumn:  "Артикул продавца",
				NameColumn: "Наименование",
			},
		},
		Fetch: FetchConfig{
			ChunkSize:           1 << 20,
			OversizeThresholdMB: 500,
			ConnectTimeout:      30 * time.Second,
			HeadTimeout:         10 * time.Second,
			FeedTimeout:         600 * time.Second,
			LookupTimeout:       300 * time.Second,
		},
		Retry:    RetryConfig{Attempts: 3, Delay: 5 * time.Second},
		Cache:    CacheConfig{Backend: "memory", FeedTTL: time.Hour, LookupTTL: time.Hour},
		Business: BusinessConfig{Timezone: defaultTimezone, location: tz},
		Export:   ExportConfig{Breakdowns: []string{"category", "brand", "warehouse"}},
	}
}
