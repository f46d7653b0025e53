// Package weight implements success weighting from spec §4.8: a
// recommendation weight blending success rate, recency, complexity,
// and project fit, plus an adaptive accept/reject threshold per
// pattern.
package weight

import (
	"math"
	"sync"

	"github.com/aml-core/agentmemory/internal/aml/learning/stats"
	"github.com/aml-core/agentmemory/internal/aml/types"
)

// Weight component multipliers, per spec §4.8.
const (
	successRateWeight = 0.4
	recencyWeight      = 0.3
	complexityWeight   = 0.1
	projectFitWeight   = 0.2
)

// Config holds the tunables governing recency and complexity decay.
type Config struct {
	HalfLifeDays   float64
	RecencyFloor   float64
	MaxAgeDays     float64
	PenaltyFactor  float64
	MinWeight      float64
	MaxWeight      float64
	AdjustmentRate float64
	WindowSize     int
}

// DefaultConfig matches the spec's stated defaults.
func DefaultConfig() Config {
	return Config{
		HalfLifeDays:   30,
		RecencyFloor:   0.1,
		MaxAgeDays:     180,
		PenaltyFactor:  0.15,
		MinWeight:      0.1,
		MaxWeight:      0.95,
		AdjustmentRate: 0.05,
		WindowSize:     20,
	}
}

// Strength buckets the total weight into a human-readable
// recommendation band.
type Strength string

const (
	StrengthVeryStrong Strength = "very-strong"
	StrengthStrong     Strength = "strong"
	StrengthModerate   Strength = "moderate"
	StrengthWeak       Strength = "weak"
	StrengthAvoid      Strength = "avoid"
)

func bucketize(w float64) Strength {
	switch {
	case w >= 0.85:
		return StrengthVeryStrong
	case w >= 0.7:
		return StrengthStrong
	case w >= 0.5:
		return StrengthModerate
	case w >= 0.3:
		return StrengthWeak
	default:
		return StrengthAvoid
	}
}

// Factors breaks the total weight down into its four components, for
// the caller-facing explanation.
type Factors struct {
	BaseSuccessRate float64
	Recency         float64
	Complexity      float64
	ProjectFit      float64
}

// Interval is a [Lower, Upper] confidence band around an observed rate.
type Interval struct {
	Lower float64
	Upper float64
}

// Recommendation is the full result of weighing a pattern in context.
type Recommendation struct {
	TotalWeight            float64
	Factors                Factors
	ConfidenceInterval     Interval
	RecommendationStrength Strength
}

// Recency returns exp(-ageDays*ln2/halfLifeDays), floored and capped
// per spec §4.8.
func Recency(ageDays float64, cfg Config) float64 {
	if ageDays > cfg.MaxAgeDays {
		ageDays = cfg.MaxAgeDays
	}
	if ageDays < 0 {
		ageDays = 0
	}
	r := math.Exp(-ageDays * math.Ln2 / cfg.HalfLifeDays)
	if r < cfg.RecencyFloor {
		return cfg.RecencyFloor
	}
	return r
}

// Complexity returns max(0.1, 1 - log(steps+1)/log(2)*penaltyFactor).
func Complexity(steps int, cfg Config) float64 {
	c := 1 - math.Log(float64(steps+1))/math.Log(2)*cfg.PenaltyFactor
	if c < 0.1 {
		return 0.1
	}
	return c
}

// Weigh computes a pattern's recommendation weight in the given
// project context.
func Weigh(successes, failures int, ageDays float64, steps int, requiredTags, projectTags types.ValueMap, cfg Config) Recommendation {
	total := successes + failures
	baseRate := 0.0
	if total > 0 {
		baseRate = float64(successes) / float64(total)
	}
	recency := Recency(ageDays, cfg)
	complexity := Complexity(steps, cfg)
	projectFit := requiredTags.OverlapRatio(projectTags)

	w := successRateWeight*baseRate + recencyWeight*recency + complexityWeight*complexity + projectFitWeight*projectFit
	w = stats.Clamp(w, 0, 1)

	_, lower, upper := stats.WilsonInterval(successes, total, 1.96)

	return Recommendation{
		TotalWeight: w,
		Factors: Factors{
			BaseSuccessRate: baseRate,
			Recency:         recency,
			Complexity:      complexity,
			ProjectFit:      projectFit,
		},
		ConfidenceInterval:     Interval{Lower: lower, Upper: upper},
		RecommendationStrength: bucketize(w),
	}
}

// ThresholdTracker maintains a moving accept/reject threshold per
// pattern, nudged toward the recent mean weight on every evaluation.
type ThresholdTracker struct {
	cfg  Config
	mu   sync.Mutex
	hist map[string][]float64
	thr  map[string]float64
}

// NewThresholdTracker builds a tracker seeded with no history; the
// first evaluation for a pattern starts its threshold at cfg.MinWeight.
func NewThresholdTracker(cfg Config) *ThresholdTracker {
	return &ThresholdTracker{
		cfg:  cfg,
		hist: make(map[string][]float64),
		thr:  make(map[string]float64),
	}
}

// Record appends the latest evaluation weight for a pattern, keeping
// only the last WindowSize entries.
func (t *ThresholdTracker) Record(patternID string, w float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := append(t.hist[patternID], w)
	if len(h) > t.cfg.WindowSize {
		h = h[len(h)-t.cfg.WindowSize:]
	}
	t.hist[patternID] = h
}

// AdjustThresholds moves the pattern's accept/reject threshold by
// AdjustmentRate toward the moving mean weight, clamped to
// [MinWeight, MaxWeight], and returns the new threshold.
func (t *ThresholdTracker) AdjustThresholds(patternID string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	mean := stats.Mean(t.hist[patternID])
	current, ok := t.thr[patternID]
	if !ok {
		current = t.cfg.MinWeight
	}
	current += (mean - current) * t.cfg.AdjustmentRate
	current = stats.Clamp(current, t.cfg.MinWeight, t.cfg.MaxWeight)
	t.thr[patternID] = current
	return current
}

// Threshold returns the pattern's current threshold without adjusting
// it, defaulting to MinWeight for a pattern with no history.
func (t *ThresholdTracker) Threshold(patternID string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if v, ok := t.thr[patternID]; ok {
		return v
	}
	return t.cfg.MinWeight
}
