package queue

import "time"

// Config carries worker tuning, loaded from the environment.
type Config struct {
	PullInterval   time.Duration `env:"QUEUE_PULL_INTERVAL" envDefault:"1s"`
	Lease          time.Duration `env:"QUEUE_LEASE" envDefault:"5m"`
	MaxConcurrency int           `env:"QUEUE_MAX_CONCURRENCY" envDefault:"10"`
	KeyPrefix      string        `env:"QUEUE_KEY_PREFIX" envDefault:"stagehand:queue"`
	CompletedTTL   time.Duration `env:"QUEUE_COMPLETED_TTL" envDefault:"24h"`
}
