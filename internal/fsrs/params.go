package fsrs

import (
	"fmt"
	"time"

	"github.com/techno-hippies/versed/internal/domain"
)

// Params holds the tunable constants of the scheduler. Factor, Decay and
// TargetRetention determine review cadence system-wide and must come from
// configuration rather than being hard-coded at call sites.
type Params struct {
	// InitStability is the initial stability in days after a first review,
	// indexed by rating (Again..Easy).
	InitStability [4]float64

	InitDifficultyBase  float64 // intercept of the initial difficulty line
	InitDifficultySlope float64 // per-grade slope of initial difficulty
	DifficultyDelta     float64 // per-review difficulty shift magnitude
	MeanReversion       float64 // pull toward the Easy-grade initial difficulty

	RecallGrowth       float64 // growth exponent for successful reviews
	RecallStabilityExp float64 // saturates growth as stability grows
	RecallRetrievExp   float64 // weight of the retrievability evidence term

	ForgetFactor        float64 // scale of post-lapse stability
	ForgetDifficultyExp float64 // harder cards lose more stability on a lapse
	ForgetStabilityExp  float64 // sublinear dependence on pre-lapse stability
	ForgetRetrievExp    float64 // weight of retrievability at the lapse
	LapsePenalty        float64 // post-lapse stability never exceeds S/e^penalty

	HardPenalty float64 // stability growth multiplier on Hard
	EasyBonus   float64 // stability growth multiplier on Easy

	// Factor and Decay define retrievability
	// R(t, S) = (1 + t/(Factor*S))^(-Decay); the next interval inverts this
	// for TargetRetention.
	Factor          float64
	Decay           float64
	TargetRetention float64
	MaximumInterval uint32 // days

	// LearningSteps is the short interval after a review in New or Learning
	// state that does not graduate, indexed by rating. RelearnStep plays the
	// same role for Relearning.
	LearningSteps [4]time.Duration
	RelearnStep   time.Duration
}

// DefaultParams returns the FSRS-4.5 default weights with the retrievability
// curve anchored so that R(S, S) equals the target retention of 0.9.
func DefaultParams() Params {
	return Params{
		InitStability: [4]float64{0.41, 1.18, 3.13, 15.47},

		InitDifficultyBase:  7.21,
		InitDifficultySlope: 0.53,
		DifficultyDelta:     1.07,
		MeanReversion:       0.02,

		RecallGrowth:       1.62,
		RecallStabilityExp: 0.15,
		RecallRetrievExp:   1.08,

		ForgetFactor:        1.98,
		ForgetDifficultyExp: 0.1,
		ForgetStabilityExp:  0.3,
		ForgetRetrievExp:    2.2,
		LapsePenalty:        0.33,

		HardPenalty: 0.24,
		EasyBonus:   2.95,

		Factor:          81.0 / 19.0,
		Decay:           0.5,
		TargetRetention: 0.9,
		MaximumInterval: 36500,

		LearningSteps: [4]time.Duration{
			domain.Again: 10 * time.Minute,
			domain.Hard:  30 * time.Minute,
			domain.Good:  24 * time.Hour,
			domain.Easy:  3 * 24 * time.Hour,
		},
		RelearnStep: 10 * time.Minute,
	}
}

// Validate checks that the parameters describe a usable curve.
func (p Params) Validate() error {
	for r, s := range p.InitStability {
		if s <= 0 {
			return fmt.Errorf("fsrs: initial stability for %s must be positive, got %f", domain.Rating(r), s)
		}
	}
	if p.TargetRetention <= 0 || p.TargetRetention >= 1 {
		return fmt.Errorf("fsrs: target retention %f outside (0, 1)", p.TargetRetention)
	}
	if p.Factor <= 0 {
		return fmt.Errorf("fsrs: factor %f must be positive", p.Factor)
	}
	if p.Decay <= 0 {
		return fmt.Errorf("fsrs: decay %f must be positive", p.Decay)
	}
	if p.MaximumInterval < 1 {
		return fmt.Errorf("fsrs: maximum interval %d must be at least one day", p.MaximumInterval)
	}
	if p.LapsePenalty <= 0 {
		return fmt.Errorf("fsrs: lapse penalty %f must be positive", p.LapsePenalty)
	}
	return nil
}
