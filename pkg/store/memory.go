package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory UserStore and SyncRecordStore used by
// tests and local development.
type MemoryStore struct {
	mu         sync.RWMutex
	users      map[int64]*User
	doNotEmail map[int64]bool
	records    map[int64]*SyncRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:      make(map[int64]*User),
		doNotEmail: make(map[int64]bool),
		records:    make(map[int64]*SyncRecord),
	}
}

// AddUser registers a user record.
func (s *MemoryStore) AddUser(u *User) {
	s.mu.Lock()
	s.users[u.ID] = u
	s.mu.Unlock()
}

func (s *MemoryStore) GetByID(ctx context.Context, id int64) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

func (s *MemoryStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) DoNotEmail(ctx context.Context, id int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doNotEmail[id], nil
}

func (s *MemoryStore) SetDoNotEmail(ctx context.Context, id int64, flag bool) error {
	s.mu.Lock()
	s.doNotEmail[id] = flag
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, userID int64) (*SyncRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[userID]
	if !ok {
		return nil, nil
	}
	copied := *rec
	return &copied, nil
}

func (s *MemoryStore) Put(ctx context.Context, userID int64, rec *SyncRecord) error {
	s.mu.Lock()
	copied := *rec
	s.records[userID] = &copied
	s.mu.Unlock()
	return nil
}

// ListUserIDs returns all user ids, for bulk resync runs.
func (s *MemoryStore) ListUserIDs(ctx context.Context) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int64, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
