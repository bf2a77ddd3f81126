// Package pg owns the PostgreSQL connection pool used by the view
// refresher, the notice store and the platform gateways. It wraps pgxpool
// construction with retry logic, exposes a readiness probe, and bridges
// the pool into goose so schema migrations run from the worker binary at
// startup.
package pg
