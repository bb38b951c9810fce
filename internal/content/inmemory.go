package content

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a simple in-process store for local/dev use and tests.
type InMemoryStore struct {
	mu      sync.RWMutex
	byDate  map[string]*Record
	byID    map[string]*Record
	now     func() time.Time
	creates int
	updates int
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byDate: make(map[string]*Record),
		byID:   make(map[string]*Record),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *InMemoryStore) GetByDate(_ context.Context, date time.Time) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byDate[Date(date).Format(DateLayout)]
	if !ok {
		return Record{}, ErrNotFound
	}
	return clone(r), nil
}

func (s *InMemoryStore) ListBetween(_ context.Context, from, to time.Time) ([]Record, error) {
	from, to = Date(from), Date(to)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, 0, len(s.byDate))
	for _, r := range s.byDate {
		if r.DateCreated.Before(from) || r.DateCreated.After(to) {
			continue
		}
		out = append(out, clone(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DateCreated.After(out[j].DateCreated) })
	return out, nil
}

func (s *InMemoryStore) Create(_ context.Context, draft Draft) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++

	date := Date(draft.Date)
	key := date.Format(DateLayout)
	now := s.now()
	if existing, ok := s.byDate[key]; ok {
		if !draft.Overwrite {
			return Record{}, ErrDuplicateDate
		}
		existing.Content = draft.Content
		existing.Category = draft.Category
		existing.AudioURL = nil
		existing.AudioDurationSeconds = nil
		existing.UpdatedAt = now
		return clone(existing), nil
	}

	r := &Record{
		ID:          uuid.NewString(),
		Content:     draft.Content,
		Category:    draft.Category,
		DateCreated: date,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.byDate[key] = r
	s.byID[r.ID] = r
	return clone(r), nil
}

func (s *InMemoryStore) UpdateAudio(_ context.Context, id, audioURL string, durationSeconds float64) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates++
	r, ok := s.byID[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	u := audioURL
	d := durationSeconds
	r.AudioURL = &u
	r.AudioDurationSeconds = &d
	r.UpdatedAt = s.now()
	return clone(r), nil
}

// Seed inserts a record as-is. Used to prepare fixtures.
func (s *InMemoryStore) Seed(r Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.DateCreated = Date(r.DateCreated)
	c := clone(&r)
	s.byDate[r.DateKey()] = &c
	s.byID[r.ID] = &c
}

// Calls reports how many Create and UpdateAudio calls the store has served.
func (s *InMemoryStore) Calls() (creates, updates int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creates, s.updates
}

func (s *InMemoryStore) Close() error { return nil }

func clone(r *Record) Record {
	c := *r
	if r.AudioURL != nil {
		u := *r.AudioURL
		c.AudioURL = &u
	}
	if r.AudioDurationSeconds != nil {
		d := *r.AudioDurationSeconds
		c.AudioDurationSeconds = &d
	}
	return c
}
