// Package views refreshes the platform's materialized views. The view
// set is closed, so view names never reach SQL through interpolation of
// caller input.
package views

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// View identifies a refreshable materialized view.
type View string

const (
	ViewArticleActivity View = "article_activity"
	ViewArticleCount    View = "article_count"
	ViewTagCount        View = "tag_count"
	ViewUserReader      View = "user_reader"
)

// ErrUnknownView is returned for views outside the known set.
var ErrUnknownView = errors.New("views: unknown materialized view")

// ErrDBNil is returned when a constructor receives a nil database.
var ErrDBNil = errors.New("views: db cannot be nil")

// relations maps views to their database relation names.
var relations = map[View]string{
	ViewArticleActivity: "article_activity_materialized",
	ViewArticleCount:    "article_count_materialized",
	ViewTagCount:        "tag_count_materialized",
	ViewUserReader:      "user_reader_materialized",
}

// All lists the known views in refresh-schedule order.
func All() []View {
	return []View{ViewArticleActivity, ViewArticleCount, ViewTagCount, ViewUserReader}
}

// Valid reports whether v is a known view.
func (v View) Valid() bool {
	_, ok := relations[v]
	return ok
}

// DB is the subset of pgxpool.Pool the refresher needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Refresher serializes refreshes per view: a refresh that is already
// running for a view blocks the next occurrence of the same view while
// different views proceed in parallel.
type Refresher struct {
	db  DB
	log *slog.Logger
	mus map[View]*sync.Mutex
}

// RefresherOption configures a Refresher.
type RefresherOption func(*Refresher)

// WithLogger sets the refresher logger.
func WithLogger(log *slog.Logger) RefresherOption {
	return func(r *Refresher) {
		if log != nil {
			r.log = log
		}
	}
}

// NewRefresher creates a refresher on the given database.
func NewRefresher(db DB, opts ...RefresherOption) (*Refresher, error) {
	if db == nil {
		return nil, ErrDBNil
	}
	r := &Refresher{
		db:  db,
		log: slog.Default(),
		mus: make(map[View]*sync.Mutex, len(relations)),
	}
	for v := range relations {
		r.mus[v] = &sync.Mutex{}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Refresh runs REFRESH MATERIALIZED VIEW CONCURRENTLY for the view.
func (r *Refresher) Refresh(ctx context.Context, view View) error {
	relation, ok := relations[view]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownView, view)
	}

	mu := r.mus[view]
	mu.Lock()
	defer mu.Unlock()

	start := time.Now()
	if _, err := r.db.Exec(ctx, "REFRESH MATERIALIZED VIEW CONCURRENTLY "+relation); err != nil {
		return fmt.Errorf("views: refresh %s: %w", relation, err)
	}

	r.log.InfoContext(ctx, "materialized view refreshed",
		slog.String("view", string(view)),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}
