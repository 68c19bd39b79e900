package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/qfolders/qfolders/internal/common"
	"github.com/qfolders/qfolders/internal/server/models"
)

type memoryEntry struct {
	session   models.Session
	expiresAt time.Time
}

// Memory keeps sessions in process memory. Suitable for a single instance.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry), now: time.Now}
}

func (m *Memory) Get(ctx context.Context, id string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.entries, id)
		return nil, common.ErrorNotFound
	}
	s := e.session
	return &s, nil
}

func (m *Memory) Save(ctx context.Context, id string, s *models.Session, ttl time.Duration) error {
	e := memoryEntry{session: *s}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[id] = e
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	delete(m.entries, id)
	m.mu.Unlock()
	return nil
}
