package shared

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv      string        `env:"APP_ENV" envDefault:"prod"`
	HTTPAddr    string        `env:"HTTP_ADDR" envDefault:":8080"`
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"15s"`
	MetricsAddr string        `env:"METRICS_ADDR" envDefault:""`

	StoreDriver string `env:"STORE_DRIVER" envDefault:"mysql"`
	MySQLDSN    string `env:"MYSQL_DSN" envDefault:"root:root@tcp(localhost:3306)/reviews?parseTime=true&charset=utf8mb4&loc=UTC"`

	RedisAddr string        `env:"REDIS_ADDR" envDefault:""`
	RedisPass string        `env:"REDIS_PASSWORD"`
	RedisDB   int           `env:"REDIS_DB" envDefault:"0"`
	CacheTTL  time.Duration `env:"CACHE_TTL" envDefault:"15m"`

	StoreOpTimeout time.Duration `env:"STORE_OP_TIMEOUT" envDefault:"5s"`
	BulkBatchSize  int           `env:"BULK_BATCH_SIZE" envDefault:"100"`
	BulkPacing     time.Duration `env:"BULK_PACING" envDefault:"1s"`

	// Review policy. Each default is a deliberate choice; see DESIGN.md.
	ApproveOnCreate     bool `env:"REVIEW_APPROVE_ON_CREATE" envDefault:"false"`
	OnlyApprovedDefault bool `env:"REVIEW_ONLY_APPROVED_DEFAULT" envDefault:"true"`
	AllowSelfVote       bool `env:"REVIEW_ALLOW_SELF_VOTE" envDefault:"true"`
	MergeMaxAttempts    int  `env:"MERGE_MAX_ATTEMPTS" envDefault:"5"`

	FeedBase    string        `env:"FEED_BASE_URL"`
	FeedKey     string        `env:"FEED_API_KEY"`
	FeedRPS     int           `env:"FEED_RPS" envDefault:"5"`
	FeedTimeout time.Duration `env:"FEED_TIMEOUT" envDefault:"20s"`

	IngestWorkers int      `env:"INGEST_WORKERS" envDefault:"8"`
	IngestItemIDs []string `env:"INGEST_ITEM_IDS" envSeparator:","`
}

func Load() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	switch c.StoreDriver {
	case "mysql", "memory":
	default:
		return Config{}, fmt.Errorf("parse config: STORE_DRIVER must be mysql or memory, got %q", c.StoreDriver)
	}
	if c.MergeMaxAttempts <= 0 {
		return Config{}, fmt.Errorf("parse config: MERGE_MAX_ATTEMPTS must be positive")
	}
	if c.StoreDriver == "memory" && c.AppEnv != "dev" {
		log.Warn().Msg("STORE_DRIVER=memory outside dev: data is lost on restart")
	}
	return c, nil
}
