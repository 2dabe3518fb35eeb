package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config top-level struct
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Auth      AuthConfig      `yaml:"auth"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
	// CORSOrigins lists browser origins allowed to call the API. Empty disables CORS.
	CORSOrigins []string `yaml:"cors_origins"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

type RateLimitConfig struct {
	RPS   int `yaml:"rps"`
	Burst int `yaml:"burst"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

type LedgerConfig struct {
	// SyncMaterialize recomputes balances in-request after every committed
	// settlement instead of waiting for the recompute worker.
	SyncMaterialize bool          `yaml:"sync_materialize"`
	BalanceCacheTTL time.Duration `yaml:"balance_cache_ttl"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	PollBatch       int           `yaml:"poll_batch"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Path returns the config file path, LEDGER_CONFIG overriding def.
func Path(def string) string {
	if p := os.Getenv("LEDGER_CONFIG"); p != "" {
		return p
	}
	return def
}

// Load reads yaml file
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes yaml, applies defaults and environment overrides.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	// override DSN password from env if present
	if pw := os.Getenv("POSTGRES_PASSWORD"); pw != "" {
		cfg.Postgres.DSN = cfg.Postgres.DSN + " password=" + pw
	}
	if secret := os.Getenv("LEDGER_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "ledger-events"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "ledger-materializer"
	}
	if c.RateLimit.RPS == 0 {
		c.RateLimit.RPS = 20
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 40
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "apartment-ledger"
	}
	if c.Ledger.BalanceCacheTTL == 0 {
		c.Ledger.BalanceCacheTTL = 5 * time.Minute
	}
	if c.Ledger.PollInterval == 0 {
		c.Ledger.PollInterval = time.Second
	}
	if c.Ledger.PollBatch == 0 {
		c.Ledger.PollBatch = 100
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}
