package notices

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Storage persists notices.
type Storage interface {
	// Create stores a new notice, assigning its ID and CreatedAt.
	Create(ctx context.Context, notice *Notice) error

	// UnreadByUser returns the user's unread notices created since the
	// given moment, oldest first.
	UnreadByUser(ctx context.Context, userID uuid.UUID, since time.Time) ([]*Notice, error)
}

// MemoryStorage is an in-memory Storage for tests and local development.
type MemoryStorage struct {
	mu      sync.RWMutex
	notices []*Notice
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

// Create implements Storage.
func (s *MemoryStorage) Create(ctx context.Context, notice *Notice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if notice.ID == uuid.Nil {
		notice.ID = uuid.New()
	}
	if notice.CreatedAt.IsZero() {
		notice.CreatedAt = time.Now()
	}
	cp := *notice
	s.notices = append(s.notices, &cp)
	return nil
}

// UnreadByUser implements Storage.
func (s *MemoryStorage) UnreadByUser(ctx context.Context, userID uuid.UUID, since time.Time) ([]*Notice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Notice
	for _, n := range s.notices {
		if n.UserID == userID && !n.Read && !n.CreatedAt.Before(since) {
			cp := *n
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// All returns every stored notice, for test assertions.
func (s *MemoryStorage) All() []*Notice {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Notice, 0, len(s.notices))
	for _, n := range s.notices {
		cp := *n
		out = append(out, &cp)
	}
	return out
}
