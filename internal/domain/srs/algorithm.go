package srs

import (
	"math"
	"time"

	"github.com/smibbs/sparep/internal/domain"
)

// Model holds the pure memory-model functions for one parameter set.
// It has no state besides its parameters and is safe for concurrent use.
type Model struct {
	params *Params
}

// NewModel creates a Model. A nil params uses the defaults.
func NewModel(params *Params) *Model {
	if params == nil {
		params = NewDefaultParams()
	}
	return &Model{params: params}
}

// Params returns the model parameters.
func (m *Model) Params() *Params {
	return m.params
}

// Retrievability returns the modeled recall probability after elapsedDays for
// a card with the given stability: R = (1 + F*t/S)^C.
//
// A non-positive stability yields 0 and a zero (or negative) elapsed time yields 1.
func (m *Model) Retrievability(elapsedDays, stability float64) float64 {
	if !(stability > 0) || math.IsInf(stability, 0) {
		return 0
	}
	if !(elapsedDays > 0) {
		return 1
	}
	if math.IsInf(elapsedDays, 1) {
		return 0
	}
	return math.Pow(1+Factor*elapsedDays/stability, Decay)
}

// InitialStability returns S0 for a first rating: w0 + w1*(rating - neutral),
// clamped to [Smin, Smax].
func (m *Model) InitialStability(rating domain.Rating) float64 {
	w := &m.params.Weights
	s := w[wInitStability] + w[wInitStabilitySlope]*(float64(rating)-domain.NeutralRating)
	return m.clampStability(s)
}

// InitialDifficulty returns D0 for a first rating: w2 - w3*(rating - neutral),
// clamped to [Dmin, Dmax]. Better first ratings give easier cards.
func (m *Model) InitialDifficulty(rating domain.Rating) float64 {
	w := &m.params.Weights
	d := w[wInitDifficulty] - w[wInitDifficultySlope]*(float64(rating)-domain.NeutralRating)
	return m.clampDifficulty(d)
}

// DefaultStability is the stability assigned to a never-seen card, S0(neutral).
func (m *Model) DefaultStability() float64 {
	return m.clampStability(m.params.Weights[wInitStability])
}

// DefaultDifficulty is the difficulty assigned to a never-seen card, D0(neutral).
func (m *Model) DefaultDifficulty() float64 {
	return m.clampDifficulty(m.params.Weights[wInitDifficulty])
}

// Interval inverts the forgetting curve: the number of days after which
// retrievability falls to desiredRetention, days = (S/F)*(R^(1/C) - 1).
//
// The result is rounded and clamped to [MinIntervalDays, MaxIntervalDays].
// An out-of-range retention falls back to the configured one.
func (m *Model) Interval(stability, desiredRetention float64) int {
	p := m.params
	if !(desiredRetention > 0 && desiredRetention < 1) {
		desiredRetention = p.DesiredRetention
	}
	if !(stability > 0) {
		return p.MinIntervalDays
	}
	if math.IsInf(stability, 1) {
		return p.MaxIntervalDays
	}

	days := math.Round(stability / Factor * (math.Pow(desiredRetention, 1/Decay) - 1))
	if days >= float64(p.MaxIntervalDays) {
		return p.MaxIntervalDays
	}
	return clampInt(int(days), p.MinIntervalDays, p.MaxIntervalDays)
}

// UpdateStability returns the stability after rating a card that was last seen
// elapsedDays ago, clamped to [Smin, Smax].
//
// Algorithm behavior:
//   - Again: the post-lapse stability w5*(Dscale-D)*S^w7*(1 + w6*(1-R)),
//     never more than the current stability
//   - Hard/Good/Easy: S*(1 + e^w8 * e^(-w9*D) * S^(-w10) * (e^((1-R)*w11) - 1) * m),
//     where m is w16 for Hard, 1 for Good and w17 for Easy
//   - Hard/Good/Easy reviewed the same day (elapsed < 1): S*e^(w18*(rating-neutral)),
//     and Good/Easy never shrink the stability
func (m *Model) UpdateStability(stability, difficulty float64, rating domain.Rating, elapsedDays float64) float64 {
	w := &m.params.Weights
	s := m.sanitizeStability(stability)
	d := m.sanitizeDifficulty(difficulty)
	if !(elapsedDays > 0) {
		elapsedDays = 0
	}
	r := m.Retrievability(elapsedDays, s)

	if rating == domain.RatingAgain {
		long := w[wForgetScale] *
			(m.params.maxDifficultyScale() - d) *
			math.Pow(s, w[wForgetStabilityExp]) *
			(1 + w[wForgetRecall]*(1-r))
		return m.clampStability(math.Min(long, s))
	}

	if elapsedDays < 1 {
		inc := math.Exp(w[wShortTerm] * (float64(rating) - domain.NeutralRating))
		if rating.IsSuccess() {
			inc = math.Max(inc, 1)
		}
		return m.clampStability(s * inc)
	}

	multiplier := 1.0
	switch rating {
	case domain.RatingHard:
		multiplier = w[wHardPenalty]
	case domain.RatingEasy:
		multiplier = w[wEasyBonus]
	}

	growth := math.Exp(w[wRecallScale]) *
		math.Exp(-w[wRecallDifficulty]*d) *
		math.Pow(s, -w[wRecallStabilityExp]) *
		(math.Exp((1-r)*w[wRecallRecall]) - 1) *
		multiplier
	return m.clampStability(s * (1 + growth))
}

// UpdateDifficulty returns D + w4*(neutral - rating), clamped to [Dmin, Dmax].
func (m *Model) UpdateDifficulty(difficulty float64, rating domain.Rating) float64 {
	d := m.sanitizeDifficulty(difficulty)
	return m.clampDifficulty(d + m.params.Weights[wDifficultyStep]*(domain.NeutralRating-float64(rating)))
}

// ReviewInput is the card state the model needs to schedule a rating.
type ReviewInput struct {
	Stability   float64
	Difficulty  float64
	Rating      domain.Rating
	ElapsedDays float64
	// FirstReview selects the initial stability/difficulty formulas instead of the update ones.
	FirstReview bool
}

// Schedule is the outcome of NextReview.
type Schedule struct {
	NextDueAt      time.Time
	IntervalDays   int
	Stability      float64
	Difficulty     float64
	Retrievability float64
}

// NextReview composes the model functions into the schedule for one rating.
func (m *Model) NextReview(in ReviewInput, now time.Time) Schedule {
	var s, d, r float64
	if in.FirstReview {
		s = m.InitialStability(in.Rating)
		d = m.InitialDifficulty(in.Rating)
		r = 1
	} else {
		r = m.Retrievability(in.ElapsedDays, m.sanitizeStability(in.Stability))
		s = m.UpdateStability(in.Stability, in.Difficulty, in.Rating, in.ElapsedDays)
		d = m.UpdateDifficulty(in.Difficulty, in.Rating)
	}

	days := m.Interval(s, m.params.DesiredRetention)
	return Schedule{
		NextDueAt:      now.AddDate(0, 0, days),
		IntervalDays:   days,
		Stability:      s,
		Difficulty:     d,
		Retrievability: r,
	}
}

// sanitizeStability maps non-finite or non-positive input to something the
// formulas can consume without producing NaN.
func (m *Model) sanitizeStability(s float64) float64 {
	if math.IsNaN(s) || s <= 0 {
		return m.DefaultStability()
	}
	return m.clampStability(s)
}

func (m *Model) sanitizeDifficulty(d float64) float64 {
	if math.IsNaN(d) {
		return m.DefaultDifficulty()
	}
	return m.clampDifficulty(d)
}

func (m *Model) clampStability(s float64) float64 {
	if math.IsNaN(s) {
		return m.params.MinStability()
	}
	return math.Min(math.Max(s, m.params.MinStability()), m.params.MaxStability())
}

func (m *Model) clampDifficulty(d float64) float64 {
	if math.IsNaN(d) {
		return m.DefaultDifficulty()
	}
	return math.Min(math.Max(d, m.params.MinDifficulty()), m.params.MaxDifficulty())
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
