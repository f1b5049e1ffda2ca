// Package fsrs computes the next scheduling state of a card from its current
// state and a recall rating. It is pure: no I/O, no shared mutable state, and
// the same inputs always produce the same card.
package fsrs

import (
	"fmt"
	"math"
	"time"

	"github.com/techno-hippies/versed/internal/domain"
)

// Scheduler applies the recall model. Safe for concurrent use.
type Scheduler struct {
	p Params

	// Precomputed interval coefficient:
	// ScheduledDays = ivlCoeff * stability.
	ivlCoeff float64
}

// New creates a Scheduler after validating the parameters.
func New(p Params) (*Scheduler, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	coeff := p.Factor * (math.Pow(p.TargetRetention, -1.0/p.Decay) - 1)
	return &Scheduler{p: p, ivlCoeff: coeff}, nil
}

// ComputeNextState returns the card's state after reviewing it with the given
// rating at the given time. The input card is not mutated. An out-of-range
// rating is the only rejection; no mutation has happened when it is returned.
func (s *Scheduler) ComputeNextState(card domain.Card, rating domain.Rating, now time.Time) (domain.Card, error) {
	if !rating.IsValid() {
		return domain.Card{}, fmt.Errorf("%w: %d", domain.ErrInvalidRating, int(rating))
	}

	elapsed := 0.0
	if card.Reviewed() && !card.LastReview.IsZero() {
		elapsed = now.Sub(card.LastReview).Hours() / 24.0
		if elapsed < 0 {
			elapsed = 0
		}
	}

	c := card
	c.ElapsedDays = uint32(math.Floor(elapsed))

	switch card.State {
	case domain.New:
		s.firstReview(&c, rating, now)
	case domain.Learning, domain.Relearning:
		s.reviewLearning(&c, rating, now)
	case domain.Review:
		s.reviewSpaced(&c, rating, elapsed, now)
	default:
		return domain.Card{}, fmt.Errorf("%w: state %d", domain.ErrInvalidCard, int(card.State))
	}

	c.LastReview = now
	return c, nil
}

// ComputeNextStateNew is ComputeNextState for a card with no prior history.
func (s *Scheduler) ComputeNextStateNew(rating domain.Rating, now time.Time) (domain.Card, error) {
	return s.ComputeNextState(domain.Card{State: domain.New}, rating, now)
}

// Retrievability returns the modeled probability of recall at the given time.
// Zero for cards that have never been reviewed.
func (s *Scheduler) Retrievability(card domain.Card, now time.Time) float64 {
	if !card.Reviewed() || card.LastReview.IsZero() || card.Stability <= 0 {
		return 0
	}
	elapsed := now.Sub(card.LastReview).Hours() / 24.0
	if elapsed < 0 {
		elapsed = 0
	}
	return s.retrievability(elapsed, card.Stability)
}

// retrievability computes R(t, S) = (1 + t/(Factor*S))^(-Decay).
func (s *Scheduler) retrievability(elapsedDays, stability float64) float64 {
	return math.Pow(1+elapsedDays/(s.p.Factor*stability), -s.p.Decay)
}

// nextInterval inverts the retrievability curve for the target retention and
// clamps the result to [1, MaximumInterval] days.
func (s *Scheduler) nextInterval(stability float64) uint32 {
	days := math.Round(s.ivlCoeff * stability)
	if days < 1 {
		days = 1
	}
	if days > float64(s.p.MaximumInterval) {
		days = float64(s.p.MaximumInterval)
	}
	return uint32(days)
}

// firstReview initializes stability and difficulty from the per-rating base
// tables and moves the card into Learning. The first interval is short
// regardless of rating: recall has not yet been demonstrated over a realistic
// gap.
func (s *Scheduler) firstReview(c *domain.Card, rating domain.Rating, now time.Time) {
	c.Stability = roundS(s.p.InitStability[rating])
	c.Difficulty = roundD(s.initDifficulty(rating))
	c.State = domain.Learning
	c.Reps++

	step := s.p.LearningSteps[rating]
	c.ScheduledDays = wholeDays(step)
	c.Due = now.Add(step)
}

// reviewLearning handles Learning and Relearning. A rating of Good or better
// graduates the card to Review; Again and Hard keep it in the short-interval
// loop.
func (s *Scheduler) reviewLearning(c *domain.Card, rating domain.Rating, now time.Time) {
	c.Difficulty = roundD(s.nextDifficulty(c.Difficulty, rating))
	c.Reps++

	if rating >= domain.Good {
		// Graduate: the current stability becomes the spaced-scheduling
		// baseline. Easy earns its bonus on the way out.
		if rating == domain.Easy {
			c.Stability = roundS(c.Stability * s.p.EasyBonus)
		}
		c.State = domain.Review
		days := s.nextInterval(c.Stability)
		c.ScheduledDays = days
		c.Due = now.Add(time.Duration(days) * 24 * time.Hour)
		return
	}

	step := s.p.LearningSteps[rating]
	if c.State == domain.Relearning {
		step = s.p.RelearnStep
	}
	c.ScheduledDays = wholeDays(step)
	c.Due = now.Add(step)
}

// reviewSpaced handles the Review state: stability growth on recall, lapse
// handling on Again.
func (s *Scheduler) reviewSpaced(c *domain.Card, rating domain.Rating, elapsed float64, now time.Time) {
	r := s.retrievability(elapsed, c.Stability)

	if rating == domain.Again {
		c.Lapses++
		c.Stability = roundS(s.forgetStability(c.Difficulty, c.Stability, r))
		c.Difficulty = roundD(s.nextDifficulty(c.Difficulty, rating))
		c.State = domain.Relearning
		c.ScheduledDays = wholeDays(s.p.RelearnStep)
		c.Due = now.Add(s.p.RelearnStep)
		return
	}

	c.Reps++
	c.Stability = roundS(s.recallStability(c.Difficulty, c.Stability, r, rating))
	c.Difficulty = roundD(s.nextDifficulty(c.Difficulty, rating))
	days := s.nextInterval(c.Stability)
	c.ScheduledDays = days
	c.Due = now.Add(time.Duration(days) * 24 * time.Hour)
}

// initDifficulty computes D0(G) = base - slope*(G-3) for grade G = rating+1,
// clamped to [1, 10].
func (s *Scheduler) initDifficulty(rating domain.Rating) float64 {
	g := grade(rating)
	return clampD(s.p.InitDifficultyBase - s.p.InitDifficultySlope*(g-3))
}

// nextDifficulty drifts difficulty by the rating with linear damping toward
// the bounds, then reverts slightly toward the Easy-grade initial difficulty.
func (s *Scheduler) nextDifficulty(d float64, rating domain.Rating) float64 {
	g := grade(rating)
	delta := -s.p.DifficultyDelta * (g - 3)
	dPrime := d + delta*(10-d)/9
	target := s.p.InitDifficultyBase - s.p.InitDifficultySlope // D0(Easy), unclamped
	return clampD(s.p.MeanReversion*target + (1-s.p.MeanReversion)*dPrime)
}

// recallStability grows stability after a successful review. A review later
// than scheduled (lower retrievability) earns a larger gain, and the
// S^(-exp) term slows growth as stability gets large.
func (s *Scheduler) recallStability(d, stability, r float64, rating domain.Rating) float64 {
	hardPenalty := 1.0
	if rating == domain.Hard {
		hardPenalty = s.p.HardPenalty
	}
	easyBonus := 1.0
	if rating == domain.Easy {
		easyBonus = s.p.EasyBonus
	}
	return stability * (1 + math.Exp(s.p.RecallGrowth)*
		(11-d)*
		math.Pow(stability, -s.p.RecallStabilityExp)*
		(math.Exp((1-r)*s.p.RecallRetrievExp)-1)*
		hardPenalty*easyBonus)
}

// forgetStability collapses stability after a lapse. Harder cards lose more.
// The result is capped strictly below the pre-lapse value.
func (s *Scheduler) forgetStability(d, stability, r float64) float64 {
	long := s.p.ForgetFactor *
		math.Pow(d, -s.p.ForgetDifficultyExp) *
		(math.Pow(stability+1, s.p.ForgetStabilityExp) - 1) *
		math.Exp((1-r)*s.p.ForgetRetrievExp)
	short := stability / math.Exp(s.p.LapsePenalty)
	return math.Min(long, short)
}

func grade(r domain.Rating) float64 {
	return float64(r) + 1
}

// roundS places stability on the fixed-point grid, keeping it positive.
func roundS(s float64) float64 {
	return math.Max(domain.Round2(s), 0.01)
}

// roundD places difficulty on the fixed-point grid inside [1, 10].
func roundD(d float64) float64 {
	return domain.Round2(clampD(d))
}

func clampD(d float64) float64 {
	return math.Min(math.Max(d, 1), 10)
}

func wholeDays(d time.Duration) uint32 {
	return uint32(d.Hours() / 24)
}
