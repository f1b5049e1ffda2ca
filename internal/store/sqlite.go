package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/techno-hippies/versed/internal/domain"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

// SQLiteStore is a CardStore backed by a local sqlite database.
type SQLiteStore struct {
	conn        *sql.DB
	lineCeiling uint16
}

var _ CardStore = (*SQLiteStore)(nil)

// OpenSQLite opens (or creates) the database at dsn and ensures the schema
// is up to date.
func OpenSQLite(dsn string, lineCeiling uint16) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", domain.ErrStoreUnavailable, dsn, err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("%w: connect %s: %v", domain.ErrStoreUnavailable, dsn, err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("%w: apply schema: %v", domain.ErrStoreUnavailable, err)
	}
	return &SQLiteStore{conn: db, lineCeiling: lineCeiling}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

// Get implements CardStore.
func (s *SQLiteStore) Get(ctx context.Context, key domain.CardKey) (domain.Card, bool, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT due, stability, difficulty, elapsed_days, scheduled_days, reps, lapses, state, last_review
		FROM cards
		WHERE learner = ? AND item = ? AND section = ? AND line = ?
	`, key.Learner, key.Item, key.Section, key.Line)

	card, err := scanCard(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Card{}, false, nil
		}
		return domain.Card{}, false, fmt.Errorf("%w: get %s: %v", domain.ErrStoreUnavailable, key, err)
	}
	return card, true, nil
}

// Put implements CardStore. The row is upserted on the composite primary
// key; validation failures commit nothing.
func (s *SQLiteStore) Put(ctx context.Context, key domain.CardKey, card domain.Card) error {
	if err := key.Validate(s.lineCeiling); err != nil {
		return err
	}
	if err := card.Validate(); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: put %s: %v", domain.ErrStoreUnavailable, key, err)
	}
	defer tx.Rollback()

	// Stale-write guard: an overwrite must advance the review counters.
	var reps, lapses uint32
	err = tx.QueryRowContext(ctx, `
		SELECT reps, lapses FROM cards
		WHERE learner = ? AND item = ? AND section = ? AND line = ?
	`, key.Learner, key.Item, key.Section, key.Line).Scan(&reps, &lapses)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// First version of this card.
	case err != nil:
		return fmt.Errorf("%w: put %s: %v", domain.ErrStoreUnavailable, key, err)
	case staleOverwrite(domain.Card{Reps: reps, Lapses: lapses}, card):
		return fmt.Errorf("%w: %s", domain.ErrStaleCard, key)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cards (learner, item, section, line, due, stability, difficulty,
			elapsed_days, scheduled_days, reps, lapses, state, last_review)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (learner, item, section, line) DO UPDATE SET
			due = excluded.due,
			stability = excluded.stability,
			difficulty = excluded.difficulty,
			elapsed_days = excluded.elapsed_days,
			scheduled_days = excluded.scheduled_days,
			reps = excluded.reps,
			lapses = excluded.lapses,
			state = excluded.state,
			last_review = excluded.last_review
	`,
		key.Learner, key.Item, key.Section, key.Line,
		card.Due, card.Stability, card.Difficulty,
		card.ElapsedDays, card.ScheduledDays, card.Reps, card.Lapses,
		int(card.State), card.LastReview,
	)
	if err != nil {
		return fmt.Errorf("%w: put %s: %v", domain.ErrStoreUnavailable, key, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: put %s: %v", domain.ErrStoreUnavailable, key, err)
	}
	return nil
}

// Section implements CardStore.
func (s *SQLiteStore) Section(ctx context.Context, learner, item, section string) (map[uint16]domain.Card, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT line, due, stability, difficulty, elapsed_days, scheduled_days, reps, lapses, state, last_review
		FROM cards
		WHERE learner = ? AND item = ? AND section = ?
	`, learner, item, section)
	if err != nil {
		return nil, fmt.Errorf("%w: section %s/%s/%s: %v", domain.ErrStoreUnavailable, learner, item, section, err)
	}
	defer rows.Close()

	out := make(map[uint16]domain.Card)
	for rows.Next() {
		var (
			line  uint16
			card  domain.Card
			state int
		)
		if err := rows.Scan(
			&line, &card.Due, &card.Stability, &card.Difficulty,
			&card.ElapsedDays, &card.ScheduledDays, &card.Reps, &card.Lapses,
			&state, &card.LastReview,
		); err != nil {
			return nil, fmt.Errorf("%w: scan section row: %v", domain.ErrStoreUnavailable, err)
		}
		card.State = domain.State(state)
		out[line] = card
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: section rows: %v", domain.ErrStoreUnavailable, err)
	}
	return out, nil
}

// AppendAudit implements CardStore.
func (s *SQLiteStore) AppendAudit(ctx context.Context, rec AuditRecord) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO review_audit (learner, item, section, line, rating, score, due, state, applied_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.Learner, rec.Item, rec.Section, rec.Line,
		int(rec.Rating), rec.Score, rec.Due, int(rec.State), rec.AppliedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: append audit: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// Audits implements CardStore.
func (s *SQLiteStore) Audits(ctx context.Context, learner, item, section string) ([]AuditRecord, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT learner, item, section, line, rating, score, due, state, applied_at
		FROM review_audit
		WHERE learner = ? AND item = ? AND section = ?
		ORDER BY id
	`, learner, item, section)
	if err != nil {
		return nil, fmt.Errorf("%w: audits %s/%s/%s: %v", domain.ErrStoreUnavailable, learner, item, section, err)
	}
	defer rows.Close()

	var out []AuditRecord
	for rows.Next() {
		var (
			rec    AuditRecord
			rating int
			state  int
		)
		if err := rows.Scan(
			&rec.Learner, &rec.Item, &rec.Section, &rec.Line,
			&rating, &rec.Score, &rec.Due, &state, &rec.AppliedAt,
		); err != nil {
			return nil, fmt.Errorf("%w: scan audit row: %v", domain.ErrStoreUnavailable, err)
		}
		rec.Rating = domain.Rating(rating)
		rec.State = domain.State(state)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: audit rows: %v", domain.ErrStoreUnavailable, err)
	}
	return out, nil
}

func scanCard(row *sql.Row) (domain.Card, error) {
	var (
		card  domain.Card
		state int
	)
	err := row.Scan(
		&card.Due, &card.Stability, &card.Difficulty,
		&card.ElapsedDays, &card.ScheduledDays, &card.Reps, &card.Lapses,
		&state, &card.LastReview,
	)
	if err != nil {
		return domain.Card{}, err
	}
	card.State = domain.State(state)
	return card, nil
}
