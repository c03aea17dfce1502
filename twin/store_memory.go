package twin

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// memoryRecord mirrors the sql row, capabilities in their stored form.
type memoryRecord struct {
	ownerID         string
	specURL         string
	capabilities    string
	eventMeshURL    string
	lastTelemetryAt *time.Time
	createdAt       time.Time
}

// MemoryStore is an in-memory implementation of the twin record store. It
// keeps unit tests lightweight and favors clarity over performance. Every
// operation takes the store lock, which gives the same atomic
// check-and-mutate semantics as the sql predicates of the postgres store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]memoryRecord
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]memoryRecord)}
}

func (s *MemoryStore) twin(id string, r memoryRecord) Twin {
	return Twin{
		ID:              id,
		OwnerID:         r.ownerID,
		SpecURL:         r.specURL,
		Capabilities:    splitCapabilities(r.capabilities),
		EventMeshURL:    r.eventMeshURL,
		LastTelemetryAt: r.lastTelemetryAt,
		CreatedAt:       r.createdAt,
	}
}

// Create stores a new twin. The id must be set.
func (s *MemoryStore) Create(_ context.Context, t Twin) (Twin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[t.ID]; ok {
		return Twin{}, fmt.Errorf("twin %s already exists", t.ID)
	}
	r := memoryRecord{
		ownerID:      t.OwnerID,
		specURL:      t.SpecURL,
		capabilities: joinCapabilities(t.Capabilities),
		eventMeshURL: t.EventMeshURL,
		createdAt:    time.Now().UTC(),
	}
	s.records[t.ID] = r
	return s.twin(t.ID, r), nil
}

// ListByOwner returns all twins of the given owner, oldest first.
func (s *MemoryStore) ListByOwner(_ context.Context, ownerID string) ([]Twin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	twins := []Twin{}
	for id, r := range s.records {
		if r.ownerID == ownerID {
			twins = append(twins, s.twin(id, r))
		}
	}
	sort.Slice(twins, func(i, j int) bool {
		if twins[i].CreatedAt.Equal(twins[j].CreatedAt) {
			return twins[i].ID < twins[j].ID
		}
		return twins[i].CreatedAt.Before(twins[j].CreatedAt)
	})
	return twins, nil
}

// GetByIDAndOwner returns the twin with the given id and owner.
func (s *MemoryStore) GetByIDAndOwner(_ context.Context, id, ownerID string) (Twin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok || r.ownerID != ownerID {
		return Twin{}, ErrNotFound
	}
	return s.twin(id, r), nil
}

// UpdateByIDAndOwner applies the update under the store lock. A nil update
// field keeps the stored value.
func (s *MemoryStore) UpdateByIDAndOwner(_ context.Context, id, ownerID string, update Update) (Twin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok || r.ownerID != ownerID {
		return Twin{}, ErrNotFound
	}
	if update.SpecURL != nil {
		r.specURL = *update.SpecURL
	}
	if update.Capabilities != nil {
		r.capabilities = joinCapabilities(*update.Capabilities)
	}
	s.records[id] = r
	return s.twin(id, r), nil
}

// DeleteByIDAndOwner removes the twin with the given id and owner.
func (s *MemoryStore) DeleteByIDAndOwner(_ context.Context, id, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok || r.ownerID != ownerID {
		return ErrNotFound
	}
	delete(s.records, id)
	return nil
}

// Touch stamps the twin's last telemetry time. An empty ownerID skips the
// owner scope for privileged service callers.
func (s *MemoryStore) Touch(_ context.Context, id, ownerID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok || (ownerID != "" && r.ownerID != ownerID) {
		return ErrNotFound
	}
	r.lastTelemetryAt = &at
	s.records[id] = r
	return nil
}
