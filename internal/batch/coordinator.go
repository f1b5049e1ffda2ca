// Package batch applies pre-scheduled card updates to the card store. The
// caller has already run the scheduler; this layer validates each tuple,
// serializes same-key writes, and emits one audit record per applied update.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/techno-hippies/versed/internal/domain"
	"github.com/techno-hippies/versed/internal/store"
)

// Limits bounds a batch call. They protect tail latency and memory and are
// configuration, not policy baked into the code.
type Limits struct {
	MaxBatch    int
	LineCeiling uint16
	ScoreMin    int
	ScoreMax    int
}

// Update is one (line, rating, score, new card) tuple. Card is the
// post-scheduler state to commit.
type Update struct {
	Line   uint16
	Rating domain.Rating
	Score  int
	Card   domain.Card
}

// Outcome reports the result of one tuple. Applied is the commit signal:
// callers retry only tuples with Applied false, and Err carries the sentinel
// error kind for those. A committed tuple always has Err nil.
type Outcome struct {
	Line    uint16
	Applied bool
	Err     error
	Due     time.Time
	State   domain.State
}

// Coordinator validates and applies batches of card updates.
//
// Atomicity is best-effort per tuple: a tuple that fails validation is
// reported in its Outcome and does not affect the others. Batch-level shape
// errors (bad identifiers, over-limit length) reject the whole call before
// any mutation. This choice is deliberate: the store serializes per key, not
// per batch, so cross-key rollback is not available to the engine.
type Coordinator struct {
	cards  store.CardStore
	locks  store.KeyMutex
	limits Limits
	clock  func() time.Time
	log    *slog.Logger

	// authorize is the pass-through trust hook. The engine does not compute
	// identity; a non-nil hook that returns an error surfaces as
	// ErrUnauthorized before any mutation.
	authorize func(learner string) error
}

// NewCoordinator wires a coordinator with the default clock and an allow-all
// trust hook.
func NewCoordinator(cards store.CardStore, limits Limits, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		cards:  cards,
		limits: limits,
		clock:  time.Now,
		log:    log,
	}
}

// SetAuthorizer installs the external trusted-writer check.
func (c *Coordinator) SetAuthorizer(fn func(learner string) error) {
	c.authorize = fn
}

// ApplyBatch validates and applies the updates for one section. Distinct
// lines apply concurrently; the per-key locks guard against same-key
// collisions from concurrent callers. The returned slice has one Outcome per
// update, in input order.
func (c *Coordinator) ApplyBatch(ctx context.Context, learner, item, section string, updates []Update) ([]Outcome, error) {
	if err := (domain.CardKey{Learner: learner, Item: item, Section: section}).Validate(c.limits.LineCeiling); err != nil {
		return nil, err
	}
	if len(updates) == 0 {
		return nil, fmt.Errorf("%w: empty batch", domain.ErrBatchLimit)
	}
	if len(updates) > c.limits.MaxBatch {
		return nil, fmt.Errorf("%w: %d > %d", domain.ErrBatchLimit, len(updates), c.limits.MaxBatch)
	}
	if c.authorize != nil {
		if err := c.authorize(learner); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
		}
	}

	outcomes := make([]Outcome, len(updates))
	g, gctx := errgroup.WithContext(ctx)
	for i, upd := range updates {
		g.Go(func() error {
			outcomes[i] = c.applyOne(gctx, learner, item, section, upd)
			return nil
		})
	}
	// Workers report per-tuple failures through outcomes, never as group
	// errors, so this only propagates context cancellation.
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// applyOne validates a single tuple and commits it. Nothing is written for
// an invalid tuple.
func (c *Coordinator) applyOne(ctx context.Context, learner, item, section string, upd Update) Outcome {
	out := Outcome{Line: upd.Line}

	key := domain.CardKey{Learner: learner, Item: item, Section: section, Line: upd.Line}
	if err := c.validateUpdate(key, upd); err != nil {
		out.Err = err
		return out
	}

	unlock := c.locks.Lock(key)
	defer unlock()

	if err := c.cards.Put(ctx, key, upd.Card); err != nil {
		out.Err = err
		return out
	}
	out.Applied = true
	out.Due = upd.Card.Due
	out.State = upd.Card.State

	rec := store.AuditRecord{
		Learner:   learner,
		Item:      item,
		Section:   section,
		Line:      upd.Line,
		Rating:    upd.Rating,
		Score:     upd.Score,
		Due:       upd.Card.Due,
		State:     upd.Card.State,
		AppliedAt: c.clock(),
	}
	if err := c.cards.AppendAudit(ctx, rec); err != nil {
		// The card update is committed; only its trace is missing. Surfacing
		// an error here would make a committed tuple look retryable, so the
		// failure is logged instead.
		c.log.Warn("audit append failed", "key", key, "error", err)
	}
	return out
}

func (c *Coordinator) validateUpdate(key domain.CardKey, upd Update) error {
	if err := key.Validate(c.limits.LineCeiling); err != nil {
		return err
	}
	if !upd.Rating.IsValid() {
		return fmt.Errorf("%w: %d", domain.ErrInvalidRating, int(upd.Rating))
	}
	if upd.Score < c.limits.ScoreMin || upd.Score > c.limits.ScoreMax {
		return fmt.Errorf("%w: %d outside [%d, %d]", domain.ErrInvalidScore, upd.Score, c.limits.ScoreMin, c.limits.ScoreMax)
	}
	if err := upd.Card.Validate(); err != nil {
		return err
	}
	return nil
}
