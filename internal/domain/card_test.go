package domain

import (
	"errors"
	"testing"
	"time"
)

func TestCardKeyValidate(t *testing.T) {
	base := CardKey{Learner: "lrn-1", Item: "song-1", Section: "verse-1", Line: 0}

	t.Run("valid key", func(t *testing.T) {
		if err := base.Validate(255); err != nil {
			t.Fatalf("expected valid key, got %v", err)
		}
	})

	cases := []struct {
		name string
		key  CardKey
		want error
	}{
		{"empty learner", CardKey{Item: "i", Section: "s"}, ErrInvalidLearner},
		{"blank learner", CardKey{Learner: "  ", Item: "i", Section: "s"}, ErrInvalidLearner},
		{"empty item", CardKey{Learner: "l", Section: "s"}, ErrInvalidItem},
		{"empty section", CardKey{Learner: "l", Item: "i"}, ErrInvalidSection},
		{"line at ceiling", CardKey{Learner: "l", Item: "i", Section: "s", Line: 255}, ErrInvalidLineIndex},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.key.Validate(255)
			if !errors.Is(err, tc.want) {
				t.Errorf("Validate() = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestCardValidate(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	reviewed := Card{
		Due:        now.Add(24 * time.Hour),
		Stability:  3.13,
		Difficulty: 7.21,
		Reps:       1,
		State:      Learning,
		LastReview: now,
	}

	t.Run("valid reviewed card", func(t *testing.T) {
		if err := reviewed.Validate(); err != nil {
			t.Fatalf("expected valid card, got %v", err)
		}
	})

	t.Run("zero card is a valid New card", func(t *testing.T) {
		if err := (Card{}).Validate(); err != nil {
			t.Fatalf("expected valid New card, got %v", err)
		}
	})

	t.Run("New with reps is invalid", func(t *testing.T) {
		c := Card{State: New, Reps: 1}
		if err := c.Validate(); !errors.Is(err, ErrInvalidCard) {
			t.Errorf("Validate() = %v, want ErrInvalidCard", err)
		}
	})

	t.Run("reviewed with zero counters is invalid", func(t *testing.T) {
		c := reviewed
		c.Reps = 0
		if err := c.Validate(); !errors.Is(err, ErrInvalidCard) {
			t.Errorf("Validate() = %v, want ErrInvalidCard", err)
		}
	})

	t.Run("non-positive stability", func(t *testing.T) {
		c := reviewed
		c.Stability = 0
		if err := c.Validate(); !errors.Is(err, ErrInvalidCard) {
			t.Errorf("Validate() = %v, want ErrInvalidCard", err)
		}
	})

	t.Run("difficulty out of bounds", func(t *testing.T) {
		c := reviewed
		c.Difficulty = 10.5
		if err := c.Validate(); !errors.Is(err, ErrInvalidCard) {
			t.Errorf("Validate() = %v, want ErrInvalidCard", err)
		}
	})

	t.Run("off-grid stability", func(t *testing.T) {
		c := reviewed
		c.Stability = 3.131
		if err := c.Validate(); !errors.Is(err, ErrInvalidCard) {
			t.Errorf("Validate() = %v, want ErrInvalidCard", err)
		}
	})

	t.Run("due before last review", func(t *testing.T) {
		c := reviewed
		c.Due = now.Add(-time.Hour)
		if err := c.Validate(); !errors.Is(err, ErrInvalidCard) {
			t.Errorf("Validate() = %v, want ErrInvalidCard", err)
		}
	})

	t.Run("unknown state", func(t *testing.T) {
		c := reviewed
		c.State = State(7)
		if err := c.Validate(); !errors.Is(err, ErrInvalidCard) {
			t.Errorf("Validate() = %v, want ErrInvalidCard", err)
		}
	})
}

func TestRound2(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{3.14159, 3.14},
		{2.718, 2.72},
		{10.0, 10.0},
		{0.004, 0.0},
		{-1.239, -1.24},
	}
	for _, tc := range cases {
		if got := Round2(tc.in); got != tc.want {
			t.Errorf("Round2(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
