// Package study answers read-only "what should this learner work on now"
// queries at line, section, and item granularity. The content hierarchy is
// never owned here: callers pass the shape (sections and line counts) on
// every query, so each scan is bounded by the supplied shape and the line
// ceiling.
package study

import (
	"context"
	"fmt"
	"time"

	"github.com/techno-hippies/versed/internal/domain"
	"github.com/techno-hippies/versed/internal/store"
)

// SectionShape describes one section of an item as supplied by the caller.
type SectionShape struct {
	Section   string `json:"section"`
	LineCount uint16 `json:"line_count"`
}

// Stats classifies every line of a section in one pass. Learning counts both
// Learning and Relearning cards; Due counts reviewed cards whose due time
// has arrived. Unreviewed lines count only as New.
type Stats struct {
	New      int `json:"new"`
	Learning int `json:"learning"`
	Due      int `json:"due"`
}

// Completion reports how much of an item has been studied at least once.
type Completion struct {
	Studied int `json:"studied"`
	Total   int `json:"total"`
	Percent int `json:"percent"` // integer 0-100
}

// Mastery reports item-level completion: a section counts as completed once
// every one of its lines has been studied.
type Mastery struct {
	FullyStudied      bool `json:"fully_studied"`
	SectionsCompleted int  `json:"sections_completed"`
	TotalSections     int  `json:"total_sections"`
}

// Aggregator runs due-set and completion queries over a card store. Each
// query reads one whole-section snapshot, so it never mixes two versions of
// the same card.
type Aggregator struct {
	cards       store.CardStore
	lineCeiling uint16
}

// NewAggregator creates an Aggregator over the given store.
func NewAggregator(cards store.CardStore, lineCeiling uint16) *Aggregator {
	return &Aggregator{cards: cards, lineCeiling: lineCeiling}
}

// DueLines returns every line in [0, lineCount) that is unreviewed (new
// lines are always eligible) or has come due by now, in line order.
func (a *Aggregator) DueLines(ctx context.Context, learner, item, section string, lineCount uint16, now time.Time) ([]uint16, error) {
	snapshot, err := a.section(ctx, learner, item, section, lineCount)
	if err != nil {
		return nil, err
	}
	var due []uint16
	for line := uint16(0); line < lineCount; line++ {
		card, ok := snapshot[line]
		if !ok || !card.Due.After(now) {
			due = append(due, line)
		}
	}
	return due, nil
}

// DueSections returns the indexes of the supplied sections that contain at
// least one due line.
func (a *Aggregator) DueSections(ctx context.Context, learner, item string, shapes []SectionShape, now time.Time) ([]int, error) {
	var due []int
	for i, shape := range shapes {
		lines, err := a.DueLines(ctx, learner, item, shape.Section, shape.LineCount, now)
		if err != nil {
			return nil, fmt.Errorf("section %q: %w", shape.Section, err)
		}
		if len(lines) > 0 {
			due = append(due, i)
		}
	}
	return due, nil
}

// StudyStats classifies every line of the section by state and due-ness.
func (a *Aggregator) StudyStats(ctx context.Context, learner, item, section string, lineCount uint16, now time.Time) (Stats, error) {
	snapshot, err := a.section(ctx, learner, item, section, lineCount)
	if err != nil {
		return Stats{}, err
	}
	var stats Stats
	for line := uint16(0); line < lineCount; line++ {
		card, ok := snapshot[line]
		if !ok {
			stats.New++
			continue
		}
		if card.State == domain.Learning || card.State == domain.Relearning {
			stats.Learning++
		}
		if !card.Due.After(now) {
			stats.Due++
		}
	}
	return stats, nil
}

// CompletionRate reports how many lines of the item have at least one
// successful review.
func (a *Aggregator) CompletionRate(ctx context.Context, learner, item string, shapes []SectionShape) (Completion, error) {
	var c Completion
	for _, shape := range shapes {
		snapshot, err := a.section(ctx, learner, item, shape.Section, shape.LineCount)
		if err != nil {
			return Completion{}, fmt.Errorf("section %q: %w", shape.Section, err)
		}
		c.Total += int(shape.LineCount)
		for line := uint16(0); line < shape.LineCount; line++ {
			if card, ok := snapshot[line]; ok && card.Reps > 0 {
				c.Studied++
			}
		}
	}
	if c.Total > 0 {
		c.Percent = c.Studied * 100 / c.Total
	}
	return c, nil
}

// IsMastered reports how many of the supplied sections are fully studied.
func (a *Aggregator) IsMastered(ctx context.Context, learner, item string, shapes []SectionShape) (Mastery, error) {
	m := Mastery{TotalSections: len(shapes)}
	for _, shape := range shapes {
		rate, err := a.CompletionRate(ctx, learner, item, []SectionShape{shape})
		if err != nil {
			return Mastery{}, err
		}
		if rate.Total > 0 && rate.Percent == 100 {
			m.SectionsCompleted++
		}
	}
	m.FullyStudied = len(shapes) > 0 && m.SectionsCompleted == m.TotalSections
	return m, nil
}

// section validates the query shape and fetches one whole-section snapshot.
func (a *Aggregator) section(ctx context.Context, learner, item, section string, lineCount uint16) (map[uint16]domain.Card, error) {
	if lineCount > a.lineCeiling {
		return nil, fmt.Errorf("%w: line count %d exceeds ceiling %d", domain.ErrInvalidLineIndex, lineCount, a.lineCeiling)
	}
	// Reuse the key validation for the identifier checks; line 0 is always
	// in range for a non-zero ceiling.
	if err := (domain.CardKey{Learner: learner, Item: item, Section: section}).Validate(a.lineCeiling); err != nil {
		return nil, err
	}
	return a.cards.Section(ctx, learner, item, section)
}
