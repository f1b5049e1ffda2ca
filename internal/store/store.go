// Package store owns the keyed collection of card records and their review
// audit trail. It holds no scheduling logic: callers run the scheduler and
// hand finished cards to Put.
package store

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/techno-hippies/versed/internal/domain"
)

// CardStore is the persistence contract of the engine. Implementations must
// re-validate card invariants on Put (defense in depth against callers that
// bypassed the scheduler) and return whole-card snapshots on reads: a read
// never mixes fields from two versions of the same card.
type CardStore interface {
	// Get returns the card for key, reporting whether it exists. A missing
	// card is not an error: it is implicitly New.
	Get(ctx context.Context, key domain.CardKey) (domain.Card, bool, error)

	// Put validates and commits the card under key. Every applied review
	// advances exactly one of reps or lapses, so an overwrite of an
	// existing row that decreases either counter or leaves their total
	// unchanged was computed from a stale read and is rejected with
	// domain.ErrStaleCard.
	Put(ctx context.Context, key domain.CardKey, card domain.Card) error

	// Section returns every stored card of one (learner, item, section),
	// keyed by line index.
	Section(ctx context.Context, learner, item, section string) (map[uint16]domain.Card, error)

	// AppendAudit records one applied review.
	AppendAudit(ctx context.Context, rec AuditRecord) error

	// Audits returns the audit records for one section, oldest first.
	Audits(ctx context.Context, learner, item, section string) ([]AuditRecord, error)
}

// AuditRecord is the permanent trace of one applied card update.
type AuditRecord struct {
	Learner   string        `json:"learner"`
	Item      string        `json:"item"`
	Section   string        `json:"section"`
	Line      uint16        `json:"line"`
	Rating    domain.Rating `json:"rating"`
	Score     int           `json:"score"`
	Due       time.Time     `json:"due"`
	State     domain.State  `json:"state"`
	AppliedAt time.Time     `json:"applied_at"`
}

// staleOverwrite reports whether writing next over prev would lose a review.
// Counters are monotonic per lineage and each applied review advances exactly
// one of them, so an overwrite that does not advance the total carries the
// result of a read taken before prev was committed.
func staleOverwrite(prev, next domain.Card) bool {
	if next.Reps < prev.Reps || next.Lapses < prev.Lapses {
		return true
	}
	return next.Reps+next.Lapses == prev.Reps+prev.Lapses
}

const keyMutexShards = 64

// KeyMutex serializes writers per card key while letting distinct keys
// proceed in parallel. Keys are striped over a fixed set of mutexes, so two
// distinct keys may occasionally share a lock; correctness only requires
// that equal keys always do.
type KeyMutex struct {
	shards [keyMutexShards]sync.Mutex
}

// Lock acquires the lock covering key and returns the matching unlock.
func (m *KeyMutex) Lock(key domain.CardKey) func() {
	h := fnv.New32a()
	h.Write([]byte(key.String())) // fnv's Write cannot fail
	mu := &m.shards[h.Sum32()%keyMutexShards]
	mu.Lock()
	return mu.Unlock
}
