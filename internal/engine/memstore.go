package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps documents in process memory. Lists are returned in
// insertion order.
type MemoryStore struct {
	mu     sync.RWMutex
	docs   map[string]map[string]Document
	order  map[string][]string
	items  map[string]Document
	closed bool
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:  make(map[string]map[string]Document),
		order: make(map[string][]string),
		items: make(map[string]Document),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Init(context.Context) error { return nil }

func (s *MemoryStore) List(_ context.Context, collection string, page Page) ([]Document, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, 0, ErrStoreClosed
	}
	page = page.normalize()
	ids := s.order[collection]
	total := len(ids)
	if page.Offset >= total {
		return []Document{}, total, nil
	}
	end := min(page.Offset+page.Limit, total)
	out := make([]Document, 0, end-page.Offset)
	for _, id := range ids[page.Offset:end] {
		out = append(out, copyDoc(s.docs[collection][id]))
	}
	return out, total, nil
}

func (s *MemoryStore) Get(_ context.Context, collection, id string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Document{}, ErrStoreClosed
	}
	d, ok := s.docs[collection][id]
	if !ok {
		return Document{}, fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
	}
	return copyDoc(d), nil
}

func (s *MemoryStore) Create(_ context.Context, collection string, data map[string]any) (Document, error) {
	norm, err := normalizeData(data)
	if err != nil {
		return Document{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Document{}, ErrStoreClosed
	}
	now := s.now()
	d := Document{ID: uuid.NewString(), Collection: collection, Data: norm, CreatedAt: now, UpdatedAt: now}
	if s.docs[collection] == nil {
		s.docs[collection] = make(map[string]Document)
	}
	s.docs[collection][d.ID] = d
	s.order[collection] = append(s.order[collection], d.ID)
	return copyDoc(d), nil
}

func (s *MemoryStore) Update(_ context.Context, collection, id string, data map[string]any) (Document, error) {
	norm, err := normalizeData(data)
	if err != nil {
		return Document{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Document{}, ErrStoreClosed
	}
	d, ok := s.docs[collection][id]
	if !ok {
		return Document{}, fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
	}
	d.Data = norm
	d.UpdatedAt = s.now()
	s.docs[collection][id] = d
	return copyDoc(d), nil
}

func (s *MemoryStore) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if _, ok := s.docs[collection][id]; !ok {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, collection, id)
	}
	delete(s.docs[collection], id)
	ids := s.order[collection]
	for i, v := range ids {
		if v == id {
			s.order[collection] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

func (s *MemoryStore) GetItem(_ context.Context, name string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Document{}, ErrStoreClosed
	}
	d, ok := s.items[name]
	if !ok {
		return Document{}, fmt.Errorf("%w: item %s", ErrNotFound, name)
	}
	return copyDoc(d), nil
}

func (s *MemoryStore) PutItem(_ context.Context, name string, data map[string]any) (Document, error) {
	norm, err := normalizeData(data)
	if err != nil {
		return Document{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Document{}, ErrStoreClosed
	}
	now := s.now()
	d, ok := s.items[name]
	if !ok {
		d = Document{ID: name, Collection: name, CreatedAt: now}
	}
	d.Data = norm
	d.UpdatedAt = now
	s.items[name] = d
	return copyDoc(d), nil
}

func (s *MemoryStore) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func copyDoc(d Document) Document {
	d.Data = cloneData(d.Data)
	return d
}
