package srs

import (
	"math"
)

// WeightCount is the number of model weights w0..w18.
const WeightCount = 19

// Indices of the weights with a fixed role.
const (
	wInitStability       = 0
	wInitStabilitySlope  = 1
	wInitDifficulty      = 2
	wInitDifficultySlope = 3
	wDifficultyStep      = 4
	wForgetScale         = 5
	wForgetRecall        = 6
	wForgetStabilityExp  = 7
	wRecallScale         = 8
	wRecallDifficulty    = 9
	wRecallStabilityExp  = 10
	wRecallRecall        = 11
	wMinStability        = 12
	wMaxStability        = 13
	wMinDifficulty       = 14
	wMaxDifficulty       = 15
	wHardPenalty         = 16
	wEasyBonus           = 17
	wShortTerm           = 18
)

// Fixed constants of the forgetting curve R = (1 + F*t/S)^C.
const (
	Factor = 19.0 / 81.0
	Decay  = -0.5
)

// DefaultWeights are used for any weight that is not configured or not finite.
var DefaultWeights = [WeightCount]float64{
	2.4, 1.6, // w0..w1   initial stability at neutral, slope
	5.0, 1.5, // w2..w3   initial difficulty at neutral, slope
	0.8,      // w4       difficulty step
	0.15, 2.0, 0.3, // w5..w7   post-lapse scale, (1-R) sensitivity, stability exponent
	2.0, 0.1, 0.2, 1.6, // w8..w11  recall scale, difficulty decay, stability exponent, (1-R) sensitivity
	0.1, 36500, // w12..w13 Smin, Smax
	1, 10, // w14..w15 Dmin, Dmax
	0.5, 1.8, // w16..w17 hard penalty, easy bonus
	0.4, // w18      same-day growth
}

// Defaults for the non-weight parameters.
const (
	DefaultDesiredRetention = 0.9
	DefaultMinIntervalDays  = 1
	DefaultMaxIntervalDays  = 36500
)

// Params defines all configurable parameters for the memory model.
// Build it with NewDefaultParams or NewParams so every field is sanitised.
type Params struct {
	Weights          [WeightCount]float64
	DesiredRetention float64
	MinIntervalDays  int
	MaxIntervalDays  int
}

// ParamsConfig allows overriding the default parameters when creating a new Params instance.
// Zero values mean "use the default".
type ParamsConfig struct {
	// Weights may hold fewer than WeightCount entries; missing, NaN and
	// infinite entries fall back to DefaultWeights.
	Weights []float64

	DesiredRetention float64
	MinIntervalDays  int
	MaxIntervalDays  int
}

// NewDefaultParams creates a new Params instance with default values.
func NewDefaultParams() *Params {
	return &Params{
		Weights:          DefaultWeights,
		DesiredRetention: DefaultDesiredRetention,
		MinIntervalDays:  DefaultMinIntervalDays,
		MaxIntervalDays:  DefaultMaxIntervalDays,
	}
}

// NewParams creates a new Params instance with custom configuration.
func NewParams(config ParamsConfig) *Params {
	params := NewDefaultParams()

	for i := 0; i < WeightCount && i < len(config.Weights); i++ {
		if isFinite(config.Weights[i]) {
			params.Weights[i] = config.Weights[i]
		}
	}

	if config.DesiredRetention > 0 && config.DesiredRetention < 1 {
		params.DesiredRetention = config.DesiredRetention
	}
	if config.MinIntervalDays > 0 {
		params.MinIntervalDays = config.MinIntervalDays
	}
	if config.MaxIntervalDays > 0 {
		params.MaxIntervalDays = config.MaxIntervalDays
	}

	params.sanitize()
	return params
}

// sanitize restores defaults for bounds that would make clamping meaningless.
func (p *Params) sanitize() {
	for i, w := range p.Weights {
		if !isFinite(w) {
			p.Weights[i] = DefaultWeights[i]
		}
	}

	w := &p.Weights
	if !(w[wMinStability] > 0) || w[wMaxStability] <= w[wMinStability] {
		w[wMinStability] = DefaultWeights[wMinStability]
		w[wMaxStability] = DefaultWeights[wMaxStability]
	}
	if !(w[wMinDifficulty] > 0) || w[wMaxDifficulty] <= w[wMinDifficulty] {
		w[wMinDifficulty] = DefaultWeights[wMinDifficulty]
		w[wMaxDifficulty] = DefaultWeights[wMaxDifficulty]
	}
	if !(w[wInitStability] > 0) {
		w[wInitStability] = DefaultWeights[wInitStability]
	}

	if !(p.DesiredRetention > 0 && p.DesiredRetention < 1) {
		p.DesiredRetention = DefaultDesiredRetention
	}
	if p.MinIntervalDays < 1 {
		p.MinIntervalDays = DefaultMinIntervalDays
	}
	if p.MaxIntervalDays < p.MinIntervalDays {
		p.MaxIntervalDays = DefaultMaxIntervalDays
		if p.MaxIntervalDays < p.MinIntervalDays {
			p.MaxIntervalDays = p.MinIntervalDays
		}
	}
}

// MinStability is Smin (w12).
func (p *Params) MinStability() float64 { return p.Weights[wMinStability] }

// MaxStability is Smax (w13).
func (p *Params) MaxStability() float64 { return p.Weights[wMaxStability] }

// MinDifficulty is Dmin (w14).
func (p *Params) MinDifficulty() float64 { return p.Weights[wMinDifficulty] }

// MaxDifficulty is Dmax (w15).
func (p *Params) MaxDifficulty() float64 { return p.Weights[wMaxDifficulty] }

// maxDifficultyScale is the ceiling used by the post-lapse formula so that a
// card at Dmax still keeps a positive stability.
func (p *Params) maxDifficultyScale() float64 { return p.MaxDifficulty() + 1 }

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
