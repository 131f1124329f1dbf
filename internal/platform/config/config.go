package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	platformstrings "freewalk/pkg/platform/strings"
)

// Config is the full process configuration.
type Config struct {
	Server   Server
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Identity IdentityConfig
	Storage  StorageConfig
	Logging  LoggingConfig
	Matching Matching
	// RateLimit caps report submissions per user.
	RateLimit RateLimitConfig

	// WardsGeoJSON optionally seeds wards at startup.
	WardsGeoJSON string
	// BlockedEmailDomains extends the built-in disposable-domain list.
	BlockedEmailDomains []string
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// DatabaseConfig configures the Postgres pool. An empty URL selects in-memory stores.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig configures the idempotency cache. An empty URL keeps it in memory.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the outbox publisher. No brokers disables publishing.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	PollInterval time.Duration
	BatchSize    int
}

// IdentityConfig configures verification of identity provider access tokens.
type IdentityConfig struct {
	JWTSecret string
	Audience  string
	Issuer    string
}

// StorageConfig configures the evidence image bucket.
type StorageConfig struct {
	URL            string
	Key            string
	Bucket         string
	MaxUploadBytes int64
	Timeout        time.Duration
}

// RateLimitConfig is the per-user submission quota. A zero limit disables it.
type RateLimitConfig struct {
	ReportLimit  int
	ReportWindow time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Matching holds the thresholds and rewards of report resolution. It is
// validated once at startup and passed by value; nothing mutates it afterwards.
type Matching struct {
	NearbyRadiusMeters float64       `yaml:"nearby_radius_meters"`
	RecentWindow       time.Duration `yaml:"recent_window"`
	RewardNew          int64         `yaml:"reward_new"`
	RewardConfirmed    int64         `yaml:"reward_confirmed"`
	LockTimeout        time.Duration `yaml:"lock_timeout"`
	MaxAttempts        int           `yaml:"max_attempts"`
}

// DefaultMatching returns the stock thresholds: 5 m, 24 h, 50 and 10 points.
func DefaultMatching() Matching {
	return Matching{
		NearbyRadiusMeters: 5.0,
		RecentWindow:       24 * time.Hour,
		RewardNew:          50,
		RewardConfirmed:    10,
		LockTimeout:        2 * time.Second,
		MaxAttempts:        3,
	}
}

// maxRadiusMeters keeps lock cells meaningful; matching is a street-level concern.
const maxRadiusMeters = 1000

// Validate rejects thresholds the matcher cannot work with.
func (m Matching) Validate() error {
	var errs []error
	if !(m.NearbyRadiusMeters > 0) || m.NearbyRadiusMeters > maxRadiusMeters {
		errs = append(errs, fmt.Errorf("nearby radius must be in (0, %d] meters, got %v", maxRadiusMeters, m.NearbyRadiusMeters))
	}
	if m.RecentWindow <= 0 {
		errs = append(errs, fmt.Errorf("recent window must be positive, got %s", m.RecentWindow))
	}
	if m.RewardNew <= 0 || m.RewardConfirmed <= 0 {
		errs = append(errs, fmt.Errorf("rewards must be positive, got new=%d confirmed=%d", m.RewardNew, m.RewardConfirmed))
	}
	if m.LockTimeout <= 0 {
		errs = append(errs, fmt.Errorf("lock timeout must be positive, got %s", m.LockTimeout))
	}
	if m.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("max attempts must be at least 1, got %d", m.MaxAttempts))
	}
	return errors.Join(errs...)
}

// FromEnv builds the configuration from the environment so main stays lean.
// A .env file in the working directory is loaded first when present, and
// FREEWALK_CONFIG_FILE may point at a YAML file overriding the matching block.
func FromEnv() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	p := &envParser{}
	cfg := Config{
		Server: Server{
			Addr:            p.str("FREEWALK_ADDR", ":8080"),
			ShutdownTimeout: p.duration("SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    p.integer("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    p.integer("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: p.duration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     p.integer("REDIS_POOL_SIZE", 10),
			MinIdleConns: p.integer("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  p.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  p.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: p.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:      platformstrings.SplitList(os.Getenv("KAFKA_BROKERS"), ","),
			Topic:        p.str("KAFKA_TOPIC", "freewalk.reports"),
			PollInterval: p.duration("OUTBOX_POLL_INTERVAL", time.Second),
			BatchSize:    p.integer("OUTBOX_BATCH_SIZE", 100),
		},
		Identity: IdentityConfig{
			JWTSecret: os.Getenv("IDP_JWT_SECRET"),
			Audience:  p.str("IDP_AUDIENCE", "authenticated"),
			Issuer:    os.Getenv("IDP_ISSUER"),
		},
		Storage: StorageConfig{
			URL:            strings.TrimRight(os.Getenv("STORAGE_URL"), "/"),
			Key:            os.Getenv("STORAGE_KEY"),
			Bucket:         p.str("STORAGE_BUCKET", "evidence-images"),
			MaxUploadBytes: int64(p.integer("MAX_UPLOAD_SIZE_BYTES", 5*1024*1024)),
			Timeout:        p.duration("STORAGE_TIMEOUT", 15*time.Second),
		},
		Logging: LoggingConfig{
			Level:  p.str("LOG_LEVEL", "info"),
			Format: p.str("LOG_FORMAT", "text"),
		},
		Matching: Matching{
			NearbyRadiusMeters: p.float("NEARBY_RADIUS_METERS", 5.0),
			RecentWindow:       time.Duration(p.float("RECENT_WINDOW_HOURS", 24) * float64(time.Hour)),
			RewardNew:          int64(p.integer("REWARD_NEW", 50)),
			RewardConfirmed:    int64(p.integer("REWARD_CONFIRMED", 10)),
			LockTimeout:        p.duration("RESOLVE_LOCK_TIMEOUT", 2*time.Second),
			MaxAttempts:        p.integer("RESOLVE_MAX_ATTEMPTS", 3),
		},
		RateLimit: RateLimitConfig{
			ReportLimit:  p.integer("REPORT_RATE_LIMIT", 30),
			ReportWindow: p.duration("REPORT_RATE_WINDOW", time.Hour),
		},
		WardsGeoJSON:        os.Getenv("WARDS_GEOJSON"),
		BlockedEmailDomains: platformstrings.SplitList(os.Getenv("BLOCKED_EMAIL_DOMAINS"), ","),
	}
	if err := errors.Join(p.errs...); err != nil {
		return Config{}, err
	}

	if path := os.Getenv("FREEWALK_CONFIG_FILE"); path != "" {
		overlay, err := LoadMatching(path, cfg.Matching)
		if err != nil {
			return Config{}, err
		}
		cfg.Matching = overlay
	}

	if cfg.Identity.JWTSecret == "" {
		return Config{}, errors.New("IDP_JWT_SECRET is required")
	}
	if err := cfg.Matching.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid matching config: %w", err)
	}
	return cfg, nil
}

type fileOverlay struct {
	Matching Matching `yaml:"matching"`
}

// LoadMatching overlays the "matching" block of a YAML file onto base.
// Keys missing from the file keep their base values.
func LoadMatching(path string, base Matching) (Matching, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Matching{}, fmt.Errorf("read config file: %w", err)
	}
	overlay := fileOverlay{Matching: base}
	if err := yaml.Unmarshal(b, &overlay); err != nil {
		return Matching{}, fmt.Errorf("parse config file: %w", err)
	}
	return overlay.Matching, nil
}

// envParser collects parse errors so every bad variable is reported at once.
type envParser struct {
	errs []error
}

func (p *envParser) str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (p *envParser) integer(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (p *envParser) float(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return f
}

func (p *envParser) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}
