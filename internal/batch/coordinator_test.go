package batch

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techno-hippies/versed/internal/domain"
	"github.com/techno-hippies/versed/internal/store"
)

var applyTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testLimits() Limits {
	return Limits{MaxBatch: 50, LineCeiling: 255, ScoreMin: 0, ScoreMax: 100}
}

func testCoordinator(cards store.CardStore) *Coordinator {
	c := NewCoordinator(cards, testLimits(), slog.Default())
	c.clock = func() time.Time { return applyTime }
	return c
}

func update(line uint16, rating domain.Rating, score int) Update {
	return Update{
		Line:   line,
		Rating: rating,
		Score:  score,
		Card: domain.Card{
			Due:           applyTime.Add(24 * time.Hour),
			Stability:     3.13,
			Difficulty:    7.21,
			ScheduledDays: 1,
			Reps:          1,
			State:         domain.Learning,
			LastReview:    applyTime,
		},
	}
}

func TestApplyBatch(t *testing.T) {
	ctx := context.Background()
	cards := store.NewMemoryStore(255)
	coord := testCoordinator(cards)

	updates := []Update{
		update(0, domain.Good, 80),
		update(1, domain.Easy, 95),
		update(2, domain.Again, 10),
	}
	outcomes, err := coord.ApplyBatch(ctx, "lrn-1", "song-1", "verse-1", updates)
	require.NoError(t, err)
	require.Len(t, outcomes, 3)

	for i, out := range outcomes {
		assert.Equal(t, updates[i].Line, out.Line, "outcomes must keep input order")
		assert.True(t, out.Applied)
		assert.NoError(t, out.Err)
		assert.Equal(t, updates[i].Card.Due, out.Due)
		assert.Equal(t, domain.Learning, out.State)
	}

	for _, upd := range updates {
		key := domain.CardKey{Learner: "lrn-1", Item: "song-1", Section: "verse-1", Line: upd.Line}
		_, ok, err := cards.Get(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok, "line %d not committed", upd.Line)
	}

	audits, err := cards.Audits(ctx, "lrn-1", "song-1", "verse-1")
	require.NoError(t, err)
	assert.Len(t, audits, 3)
	for _, rec := range audits {
		assert.Equal(t, applyTime, rec.AppliedAt)
	}
}

func TestApplyBatchPartialFailure(t *testing.T) {
	ctx := context.Background()
	cards := store.NewMemoryStore(255)
	coord := testCoordinator(cards)

	bad := update(255, domain.Good, 80) // line index at the ceiling
	updates := []Update{
		update(0, domain.Good, 80),
		update(1, domain.Good, 80),
		bad,
		update(3, domain.Good, 80),
	}
	outcomes, err := coord.ApplyBatch(ctx, "lrn-1", "song-1", "verse-1", updates)
	require.NoError(t, err, "tuple failures must not fail the batch call")
	require.Len(t, outcomes, 4)

	assert.True(t, outcomes[0].Applied)
	assert.True(t, outcomes[1].Applied)
	assert.True(t, outcomes[3].Applied)

	assert.False(t, outcomes[2].Applied)
	assert.ErrorIs(t, outcomes[2].Err, domain.ErrInvalidLineIndex)

	// The invalid tuple wrote nothing, card or audit.
	key := domain.CardKey{Learner: "lrn-1", Item: "song-1", Section: "verse-1", Line: 255}
	_, ok, err := cards.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	audits, err := cards.Audits(ctx, "lrn-1", "song-1", "verse-1")
	require.NoError(t, err)
	assert.Len(t, audits, 3)
}

func TestApplyBatchTupleValidation(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*Update)
		want   error
	}{
		{"invalid rating", func(u *Update) { u.Rating = 4 }, domain.ErrInvalidRating},
		{"score above max", func(u *Update) { u.Score = 101 }, domain.ErrInvalidScore},
		{"score below min", func(u *Update) { u.Score = -1 }, domain.ErrInvalidScore},
		{"broken card", func(u *Update) { u.Card.Stability = -1 }, domain.ErrInvalidCard},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cards := store.NewMemoryStore(255)
			coord := testCoordinator(cards)
			upd := update(0, domain.Good, 80)
			tc.mutate(&upd)

			outcomes, err := coord.ApplyBatch(ctx, "lrn-1", "song-1", "verse-1", []Update{upd})
			require.NoError(t, err)
			require.Len(t, outcomes, 1)
			assert.False(t, outcomes[0].Applied)
			assert.ErrorIs(t, outcomes[0].Err, tc.want)
		})
	}
}

func TestApplyBatchShapeErrors(t *testing.T) {
	ctx := context.Background()
	coord := testCoordinator(store.NewMemoryStore(255))
	one := []Update{update(0, domain.Good, 80)}

	t.Run("bad learner", func(t *testing.T) {
		_, err := coord.ApplyBatch(ctx, "", "song-1", "verse-1", one)
		assert.ErrorIs(t, err, domain.ErrInvalidLearner)
	})

	t.Run("empty batch", func(t *testing.T) {
		_, err := coord.ApplyBatch(ctx, "lrn-1", "song-1", "verse-1", nil)
		assert.ErrorIs(t, err, domain.ErrBatchLimit)
	})

	t.Run("over limit", func(t *testing.T) {
		updates := make([]Update, testLimits().MaxBatch+1)
		for i := range updates {
			updates[i] = update(uint16(i), domain.Good, 80)
		}
		_, err := coord.ApplyBatch(ctx, "lrn-1", "song-1", "verse-1", updates)
		assert.ErrorIs(t, err, domain.ErrBatchLimit)
	})
}

func TestApplyBatchAuthorizer(t *testing.T) {
	ctx := context.Background()
	cards := store.NewMemoryStore(255)
	coord := testCoordinator(cards)
	coord.SetAuthorizer(func(learner string) error {
		if learner != "lrn-1" {
			return errors.New("unknown signer")
		}
		return nil
	})
	one := []Update{update(0, domain.Good, 80)}

	outcomes, err := coord.ApplyBatch(ctx, "lrn-1", "song-1", "verse-1", one)
	require.NoError(t, err)
	assert.True(t, outcomes[0].Applied)

	_, err = coord.ApplyBatch(ctx, "lrn-2", "song-1", "verse-1", one)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	// The rejected call mutated nothing.
	cardsSeen, err := cards.Section(ctx, "lrn-2", "song-1", "verse-1")
	require.NoError(t, err)
	assert.Empty(t, cardsSeen)
}

func TestApplyBatchLostUpdate(t *testing.T) {
	ctx := context.Background()
	cards := store.NewMemoryStore(255)
	coord := testCoordinator(cards)

	// Two clients review the same unreviewed line and both compute their
	// update from the reps=0 card. Only the first commit may win; the second
	// carries the same counters and must be rejected, not silently applied.
	first := update(0, domain.Good, 85)
	second := update(0, domain.Hard, 60)
	second.Card.Due = applyTime.Add(30 * time.Minute)
	second.Card.ScheduledDays = 0

	outcomes, err := coord.ApplyBatch(ctx, "lrn-1", "song-1", "verse-1", []Update{first})
	require.NoError(t, err)
	require.True(t, outcomes[0].Applied)

	outcomes, err = coord.ApplyBatch(ctx, "lrn-1", "song-1", "verse-1", []Update{second})
	require.NoError(t, err)
	assert.False(t, outcomes[0].Applied)
	assert.ErrorIs(t, outcomes[0].Err, domain.ErrStaleCard)

	key := domain.CardKey{Learner: "lrn-1", Item: "song-1", Section: "verse-1", Line: 0}
	got, ok, err := cards.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, first.Card.Due, got.Due, "the first commit must survive")
	assert.Equal(t, uint32(1), got.Reps)

	audits, err := cards.Audits(ctx, "lrn-1", "song-1", "verse-1")
	require.NoError(t, err)
	assert.Len(t, audits, 1, "a rejected tuple must not leave an audit row")
}

// failingAuditStore commits cards normally but cannot write audit rows.
type failingAuditStore struct {
	store.CardStore
	auditErr error
}

func (s *failingAuditStore) AppendAudit(ctx context.Context, rec store.AuditRecord) error {
	return s.auditErr
}

func TestApplyBatchAuditFailure(t *testing.T) {
	ctx := context.Background()
	cards := store.NewMemoryStore(255)
	coord := NewCoordinator(&failingAuditStore{
		CardStore: cards,
		auditErr:  errors.New("audit log unavailable"),
	}, testLimits(), slog.Default())
	coord.clock = func() time.Time { return applyTime }

	outcomes, err := coord.ApplyBatch(ctx, "lrn-1", "song-1", "verse-1", []Update{update(0, domain.Good, 80)})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Applied)
	assert.NoError(t, outcomes[0].Err, "a committed tuple must not look retryable")

	key := domain.CardKey{Learner: "lrn-1", Item: "song-1", Section: "verse-1", Line: 0}
	_, ok, err := cards.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok, "the card commit stands even when its audit row fails")
}

func TestApplyBatchStaleWrite(t *testing.T) {
	ctx := context.Background()
	cards := store.NewMemoryStore(255)
	coord := testCoordinator(cards)

	fresh := update(0, domain.Good, 80)
	fresh.Card.Reps = 3
	_, err := coord.ApplyBatch(ctx, "lrn-1", "song-1", "verse-1", []Update{fresh})
	require.NoError(t, err)

	stale := update(0, domain.Good, 80)
	stale.Card.Reps = 1
	outcomes, err := coord.ApplyBatch(ctx, "lrn-1", "song-1", "verse-1", []Update{stale})
	require.NoError(t, err)
	assert.False(t, outcomes[0].Applied)
	assert.ErrorIs(t, outcomes[0].Err, domain.ErrStaleCard)
}
