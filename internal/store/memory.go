package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/techno-hippies/versed/internal/domain"
)

// MemoryStore is an in-process CardStore. Reads and writes go through one
// RWMutex, so every read observes a consistent snapshot of a card.
type MemoryStore struct {
	lineCeiling uint16

	mu     sync.RWMutex
	cards  map[domain.CardKey]domain.Card
	audits []AuditRecord
}

var _ CardStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store enforcing the given line ceiling.
func NewMemoryStore(lineCeiling uint16) *MemoryStore {
	return &MemoryStore{
		lineCeiling: lineCeiling,
		cards:       make(map[domain.CardKey]domain.Card),
	}
}

// Get implements CardStore.
func (s *MemoryStore) Get(ctx context.Context, key domain.CardKey) (domain.Card, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Card{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	card, ok := s.cards[key]
	return card, ok, nil
}

// Put implements CardStore. The key and card are validated before commit;
// nothing is written on rejection.
func (s *MemoryStore) Put(ctx context.Context, key domain.CardKey, card domain.Card) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := key.Validate(s.lineCeiling); err != nil {
		return err
	}
	if err := card.Validate(); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.cards[key]; ok && staleOverwrite(prev, card) {
		return fmt.Errorf("%w: %s", domain.ErrStaleCard, key)
	}
	s.cards[key] = card
	return nil
}

// Section implements CardStore.
func (s *MemoryStore) Section(ctx context.Context, learner, item, section string) (map[uint16]domain.Card, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uint16]domain.Card)
	for key, card := range s.cards {
		if key.Learner == learner && key.Item == item && key.Section == section {
			out[key.Line] = card
		}
	}
	return out, nil
}

// AppendAudit implements CardStore.
func (s *MemoryStore) AppendAudit(ctx context.Context, rec AuditRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits = append(s.audits, rec)
	return nil
}

// Audits implements CardStore.
func (s *MemoryStore) Audits(ctx context.Context, learner, item, section string) ([]AuditRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []AuditRecord
	for _, rec := range s.audits {
		if rec.Learner == learner && rec.Item == item && rec.Section == section {
			out = append(out, rec)
		}
	}
	return out, nil
}
