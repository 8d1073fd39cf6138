package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore keeps collections in process memory. It is the default driver
// for local runs and the fake used by service tests.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]Record
	opts        options
	closed      bool
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]Record),
		opts:        applyOptions(opts),
	}
}

func (s *MemoryStore) Create(_ context.Context, collection string, fields map[string]any) (Record, error) {
	if err := validateName(collection); err != nil {
		return Record{}, err
	}
	data, err := normalizeFields(fields)
	if err != nil {
		return Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Record{}, ErrClosed
	}
	now := s.opts.now().UTC()
	rec := Record{ID: s.opts.newID(), Created: now, Updated: now, Revision: 1, Fields: data}
	coll, ok := s.collections[collection]
	if !ok {
		coll = make(map[string]Record)
		s.collections[collection] = coll
	}
	coll[rec.ID] = rec
	return rec.clone(), nil
}

func (s *MemoryStore) GetOne(_ context.Context, collection, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Record{}, ErrClosed
	}
	rec, ok := s.collections[collection][id]
	if !ok {
		return Record{}, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return rec.clone(), nil
}

func (s *MemoryStore) GetList(_ context.Context, collection string, page, perPage int, opts ListOptions) (ListResult, error) {
	if perPage < 1 {
		return ListResult{}, fmt.Errorf("%w: perPage must be >= 1", ErrInvalidInput)
	}
	if page < 1 {
		page = 1
	}
	all, err := s.query(collection, opts)
	if err != nil {
		return ListResult{}, err
	}
	res := ListResult{
		Page:       page,
		PerPage:    perPage,
		TotalItems: len(all),
		TotalPages: pageCount(len(all), perPage),
		Items:      []Record{},
	}
	start := (page - 1) * perPage
	if start < len(all) {
		end := min(start+perPage, len(all))
		res.Items = all[start:end]
	}
	return res, nil
}

func (s *MemoryStore) GetFullList(_ context.Context, collection string, opts ListOptions) ([]Record, error) {
	return s.query(collection, opts)
}

func (s *MemoryStore) GetFirstListItem(_ context.Context, collection string, opts ListOptions) (Record, error) {
	all, err := s.query(collection, opts)
	if err != nil {
		return Record{}, err
	}
	if len(all) == 0 {
		return Record{}, fmt.Errorf("%s: %w", collection, ErrNotFound)
	}
	return all[0], nil
}

func (s *MemoryStore) query(collection string, opts ListOptions) ([]Record, error) {
	filter, err := opts.Filter.normalized()
	if err != nil {
		return nil, err
	}
	if err := opts.Sort.validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, ErrClosed
	}
	out := make([]Record, 0, len(s.collections[collection]))
	for _, rec := range s.collections[collection] {
		if filter.match(rec) {
			out = append(out, rec.clone())
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return opts.Sort.less(out[i], out[j]) })
	return out, nil
}

func (s *MemoryStore) Update(_ context.Context, collection, id string, fields map[string]any, opts ...UpdateOption) (Record, error) {
	data, err := normalizeFields(fields)
	if err != nil {
		return Record{}, err
	}
	uo := applyUpdateOptions(opts)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Record{}, ErrClosed
	}
	rec, ok := s.collections[collection][id]
	if !ok {
		return Record{}, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	if uo.ifRevision != nil && *uo.ifRevision != rec.Revision {
		return Record{}, fmt.Errorf("%s/%s at revision %d, expected %d: %w",
			collection, id, rec.Revision, *uo.ifRevision, ErrConflict)
	}
	rec = rec.clone()
	for k, v := range data {
		rec.Fields[k] = v
	}
	rec.Revision++
	rec.Updated = s.opts.now().UTC()
	s.collections[collection][id] = rec
	return rec.clone(), nil
}

func (s *MemoryStore) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.collections[collection][id]; !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	delete(s.collections[collection], id)
	return nil
}

func (s *MemoryStore) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Close drops all data. Further calls fail with ErrClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.collections = nil
	return nil
}
