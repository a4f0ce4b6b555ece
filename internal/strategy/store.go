package strategy

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Persister saves a strategy after it was mutated.
type Persister interface {
	SaveStrategy(ctx context.Context, user string, s Strategy) error
}

type entry struct {
	mu       sync.Mutex
	strategy Strategy
}

// UserCache holds one user's strategies in declaration order.
type UserCache struct {
	User    string
	entries []*entry
}

func (u *UserCache) find(name string) *entry {
	for _, e := range u.entries {
		if e.strategy.Name == name {
			return e
		}
	}
	return nil
}

// Store owns all strategy state. Lookups share a map lock; mutation of one
// strategy holds only that strategy's lock.
type Store struct {
	mu    sync.RWMutex
	users map[string]*UserCache
	order []string

	persist Persister
	log     *zap.Logger
}

func NewStore(persist Persister, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{users: make(map[string]*UserCache), persist: persist, log: log}
}

// Put registers or replaces a strategy for user.
func (s *Store) Put(user string, st Strategy) {
	s.mu.Lock()
	cache, ok := s.users[user]
	if !ok {
		cache = &UserCache{User: user}
		s.users[user] = cache
		s.order = append(s.order, user)
	}
	e := cache.find(st.Name)
	if e == nil {
		cache.entries = append(cache.entries, &entry{strategy: st.clone()})
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	e.mu.Lock()
	e.strategy = st.clone()
	e.mu.Unlock()
}

func (s *Store) lookup(user, name string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cache, ok := s.users[user]
	if !ok {
		return nil, &NotFoundError{Kind: "user", User: user}
	}
	e := cache.find(name)
	if e == nil {
		return nil, &NotFoundError{Kind: "strategy", User: user, Name: name}
	}
	return e, nil
}

func (s *Store) Get(user, name string) (Strategy, error) {
	e, err := s.lookup(user, name)
	if err != nil {
		return Strategy{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.strategy.clone(), nil
}

// Update runs fn with exclusive access to one strategy. fn reports whether it
// changed the strategy; changed strategies are persisted before the lock is
// released so saves for one strategy never reorder.
func (s *Store) Update(ctx context.Context, user, name string, fn func(st *Strategy) bool) error {
	e, err := s.lookup(user, name)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !fn(&e.strategy) {
		return nil
	}
	if s.persist != nil {
		if err := s.persist.SaveStrategy(ctx, user, e.strategy.clone()); err != nil {
			s.log.Warn("strategy persist failed",
				zap.String("user", user),
				zap.String("strategy", name),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (s *Store) Users() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// Strategies returns copies of a user's strategies in declaration order.
func (s *Store) Strategies(user string) ([]Strategy, error) {
	s.mu.RLock()
	cache, ok := s.users[user]
	if !ok {
		s.mu.RUnlock()
		return nil, &NotFoundError{Kind: "user", User: user}
	}
	entries := append([]*entry(nil), cache.entries...)
	s.mu.RUnlock()
	out := make([]Strategy, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.strategy.clone())
		e.mu.Unlock()
	}
	return out, nil
}
