// Package config loads environment-backed configuration structs.
//
// Each component of the worker declares its own Config struct with `env`
// tags and calls Load once during startup. A .env file, when present, is
// read before the first parse so local development does not require
// exporting variables by hand. Parsed configs are cached per struct type,
// so repeated Load calls from different call sites are cheap and always
// observe the same values.
//
//	type WorkerConfig struct {
//	    PollInterval time.Duration `env:"QUEUE_POLL_INTERVAL" envDefault:"5s"`
//	    Concurrency  int           `env:"QUEUE_CONCURRENCY" envDefault:"10"`
//	}
//
//	var cfg WorkerConfig
//	config.MustLoad(&cfg)
package config
