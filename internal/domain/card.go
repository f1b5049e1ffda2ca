package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// CardKey identifies one card: a single line of one item's section, for one
// learner. Keys are the unit of write serialization in the card store.
type CardKey struct {
	Learner string
	Item    string
	Section string
	Line    uint16
}

// Validate checks the key's identifiers and that the line index is below the
// configured ceiling.
func (k CardKey) Validate(lineCeiling uint16) error {
	if strings.TrimSpace(k.Learner) == "" {
		return ErrInvalidLearner
	}
	if strings.TrimSpace(k.Item) == "" {
		return ErrInvalidItem
	}
	if strings.TrimSpace(k.Section) == "" {
		return ErrInvalidSection
	}
	if k.Line >= lineCeiling {
		return fmt.Errorf("%w: %d >= %d", ErrInvalidLineIndex, k.Line, lineCeiling)
	}
	return nil
}

func (k CardKey) String() string {
	return fmt.Sprintf("%s/%s/%s/%d", k.Learner, k.Item, k.Section, k.Line)
}

// Card is the scheduling state for one line. Stability and Difficulty live
// on a two-decimal fixed-point grid so that independent implementations
// produce identical schedules; Round2 places a value on the grid.
type Card struct {
	Due           time.Time `json:"due"`
	Stability     float64   `json:"stability"`
	Difficulty    float64   `json:"difficulty"`
	ElapsedDays   uint32    `json:"elapsed_days"`
	ScheduledDays uint32    `json:"scheduled_days"`
	Reps          uint32    `json:"reps"`
	Lapses        uint32    `json:"lapses"`
	State         State     `json:"state"`
	LastReview    time.Time `json:"last_review"`
}

// Round2 rounds v half away from zero to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Reviewed reports whether the card has been reviewed at least once.
func (c Card) Reviewed() bool {
	return c.State != New
}

// Validate enforces the card invariants:
//
//   - State is one of the four defined states.
//   - State == New exactly when Reps == 0 and Lapses == 0.
//   - Once reviewed: Stability > 0, Difficulty in [1, 10], Due >= LastReview,
//     and both Stability and Difficulty sit on the fixed-point grid.
func (c Card) Validate() error {
	if !c.State.IsValid() {
		return fmt.Errorf("%w: unknown state %d", ErrInvalidCard, int(c.State))
	}
	fresh := c.Reps == 0 && c.Lapses == 0
	if (c.State == New) != fresh {
		return fmt.Errorf("%w: state %s with reps=%d lapses=%d", ErrInvalidCard, c.State, c.Reps, c.Lapses)
	}
	if c.State == New {
		return nil
	}
	if c.Stability <= 0 {
		return fmt.Errorf("%w: stability %.2f must be positive", ErrInvalidCard, c.Stability)
	}
	if c.Difficulty < 1 || c.Difficulty > 10 {
		return fmt.Errorf("%w: difficulty %.2f outside [1, 10]", ErrInvalidCard, c.Difficulty)
	}
	if c.Stability != Round2(c.Stability) || c.Difficulty != Round2(c.Difficulty) {
		return fmt.Errorf("%w: stability/difficulty off the fixed-point grid", ErrInvalidCard)
	}
	if c.LastReview.IsZero() {
		return fmt.Errorf("%w: reviewed card without last_review", ErrInvalidCard)
	}
	if c.Due.Before(c.LastReview) {
		return fmt.Errorf("%w: due %s before last_review %s", ErrInvalidCard,
			c.Due.Format(time.RFC3339), c.LastReview.Format(time.RFC3339))
	}
	return nil
}
