// Package logger builds configured slog.Logger instances and provides the
// attribute constructors used across the worker so log field names stay
// consistent between the queue engine and the job handlers.
//
// New applies functional options to pick the output format (text for
// development, JSON for everything shipped), the minimum level, static
// attributes such as the service name, and optional context extractors
// that pull request- or job-scoped values out of context.Context at log
// time.
//
//	log := logger.New(logger.WithEnvironment(cfg.AppEnv, "stagehand-worker"))
//	logger.SetAsDefault(log)
//	log.Info("job completed", logger.JobID(id), logger.Duration(elapsed))
package logger
