package childcfg

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps the configuration in process. Used by tests and local
// runs without a database.
type MemoryStore struct {
	v      Validator
	mu     sync.Mutex
	cfg    *Configuration
	hash   string
	nextID int64
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(v Validator) *MemoryStore {
	return &MemoryStore{v: v, nextID: 1}
}

func (s *MemoryStore) CreateUser(ctx context.Context, age int, pin, voiceID string) (*Configuration, error) {
	if voiceID == "" {
		voiceID = DefaultVoice
	}
	if err := s.v.create(age, pin, voiceID); err != nil {
		return nil, err
	}
	hash, err := hashPIN(pin)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg != nil {
		return nil, ErrUserExists
	}
	now := time.Now()
	s.cfg = &Configuration{ID: s.nextID, ChildAge: age, VoiceID: voiceID, CreatedAt: now, UpdatedAt: now}
	s.nextID++
	s.hash = hash
	c := *s.cfg
	return &c, nil
}

func (s *MemoryStore) FetchChildConfiguration(ctx context.Context) (*Configuration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg == nil {
		return nil, nil
	}
	c := *s.cfg
	return &c, nil
}

func (s *MemoryStore) AuthenticatePIN(ctx context.Context, pin string) (bool, error) {
	if !ValidPIN(pin) {
		return false, nil
	}
	s.mu.Lock()
	hash := s.hash
	s.mu.Unlock()
	if hash == "" {
		return false, nil
	}
	return checkPIN(hash, pin), nil
}

func (s *MemoryStore) UpdateConfiguration(ctx context.Context, pin string, u Update) (*Configuration, error) {
	if err := s.v.update(u); err != nil {
		return nil, err
	}
	ok, err := s.AuthenticatePIN(ctx, pin)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg == nil {
		return nil, ErrNoUser
	}
	if !ok {
		return nil, ErrBadPIN
	}
	if u.ChildAge != nil {
		s.cfg.ChildAge = *u.ChildAge
	}
	if u.VoiceID != nil {
		s.cfg.VoiceID = *u.VoiceID
	}
	s.cfg.UpdatedAt = time.Now()
	c := *s.cfg
	return &c, nil
}

func (s *MemoryStore) DeleteUser(ctx context.Context) error {
	s.mu.Lock()
	s.cfg = nil
	s.hash = ""
	s.mu.Unlock()
	return nil
}
