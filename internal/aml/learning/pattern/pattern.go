// Package pattern implements the pattern recognition pipeline from
// spec §4.7: sequence extraction over an agent's action history,
// grouping into common subsequences, an ensemble similarity score,
// candidate scoring against prior patterns, and chi-square backed
// significance validation.
package pattern

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/aml-core/agentmemory/internal/aml/learning/stats"
	"github.com/aml-core/agentmemory/internal/aml/types"
)

// AgentAction is one observed step in an agent's history, the raw
// input to sequence extraction.
type AgentAction struct {
	Type      string
	Target    string
	Timestamp time.Time
	Outcome   string // "success", "failure", or "" if unknown
}

// NormalizedAction is an AgentAction reduced to the fields sequence
// extraction and similarity scoring operate on: lowercased type, the
// target's class rather than its literal value.
type NormalizedAction struct {
	Type        string
	TargetClass string
	Outcome     string
}

func normalize(a AgentAction) NormalizedAction {
	return NormalizedAction{
		Type:        strings.ToLower(a.Type),
		TargetClass: targetClass(a.Target),
		Outcome:     a.Outcome,
	}
}

// targetClass collapses a concrete target (a file path, an endpoint, a
// resource id) down to a coarse category so sequences generalize
// across specific instances. Unrecognized targets fall back to
// "generic".
func targetClass(target string) string {
	if target == "" {
		return "generic"
	}
	if i := strings.LastIndexByte(target, '.'); i >= 0 && i < len(target)-1 {
		return "ext:" + strings.ToLower(target[i+1:])
	}
	if strings.HasPrefix(target, "/") || strings.Contains(target, "://") {
		return "path"
	}
	return "generic"
}

func (n NormalizedAction) key() string {
	return n.Type + "|" + n.TargetClass + "|" + n.Outcome
}

// Sequence is a normalized, ordered run of actions extracted from one
// sliding window.
type Sequence []NormalizedAction

func (s Sequence) key() string {
	parts := make([]string, len(s))
	for i, a := range s {
		parts[i] = a.key()
	}
	return strings.Join(parts, ">")
}

func (s Sequence) typeString() []string {
	out := make([]string, len(s))
	for i, a := range s {
		out[i] = a.Type
	}
	return out
}

// Config holds the tunables from spec §4.7. They are set in code; the
// YAML file loaded by the config package does not carry them.
type Config struct {
	MinSequenceLength     int
	MaxSequenceLength     int
	TemporalWindow        time.Duration
	MinFrequency          int
	MinSimilarity         float64
	SignificanceThreshold float64
	MinSuccessRateFloor   float64
}

// DefaultConfig matches the spec's stated defaults.
func DefaultConfig() Config {
	return Config{
		MinSequenceLength:     2,
		MaxSequenceLength:     6,
		TemporalWindow:        5 * time.Minute,
		MinFrequency:          3,
		MinSimilarity:         0.7,
		SignificanceThreshold: 0.05,
		MinSuccessRateFloor:   0.5,
	}
}

// ExtractSequences slides a window of length in
// [MinSequenceLength, MaxSequenceLength] over actions, splitting the
// window whenever two adjacent actions are further apart than
// TemporalWindow.
func ExtractSequences(actions []AgentAction, cfg Config) []Sequence {
	if len(actions) == 0 {
		return nil
	}
	sorted := make([]AgentAction, len(actions))
	copy(sorted, actions)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	var runs [][]NormalizedAction
	run := []NormalizedAction{normalize(sorted[0])}
	for i := 1; i < len(sorted); i++ {
		gap := sorted[i].Timestamp.Sub(sorted[i-1].Timestamp)
		if gap < 0 {
			gap = -gap
		}
		if gap > cfg.TemporalWindow {
			runs = append(runs, run)
			run = nil
		}
		run = append(run, normalize(sorted[i]))
	}
	runs = append(runs, run)

	var out []Sequence
	for _, r := range runs {
		for l := cfg.MinSequenceLength; l <= cfg.MaxSequenceLength && l <= len(r); l++ {
			for start := 0; start+l <= len(r); start++ {
				window := make(Sequence, l)
				copy(window, r[start:start+l])
				out = append(out, window)
			}
		}
	}
	return out
}

// SequenceGroup is a common-subsequence bucket: sequences sharing the
// same normalized form, with an observed frequency.
type SequenceGroup struct {
	Sequence  Sequence
	Frequency int
}

// CommonSubsequences groups sequences by their normalized form and
// keeps only groups whose frequency is at least MinFrequency.
func CommonSubsequences(sequences []Sequence, cfg Config) []SequenceGroup {
	counts := make(map[string]int)
	reps := make(map[string]Sequence)
	for _, s := range sequences {
		k := s.key()
		counts[k]++
		if _, ok := reps[k]; !ok {
			reps[k] = s
		}
	}
	var groups []SequenceGroup
	for k, c := range counts {
		if c >= cfg.MinFrequency {
			groups = append(groups, SequenceGroup{Sequence: reps[k], Frequency: c})
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Frequency > groups[j].Frequency })
	return groups
}

// Similarity ensemble weights, per spec §4.7.
const (
	cosineWeight   = 0.4
	levenshtein    = 0.3
	semanticWeight = 0.3
)

// SimilarityScore computes the weighted ensemble similarity between
// two sequences: cosine over action-type counts, normalized
// Levenshtein over the type string, and a semantic fraction of
// aligned (type, outcome) matches.
func SimilarityScore(a, b Sequence) float64 {
	cos := stats.CosineSimilarity(typeCounts(a), typeCounts(b))

	ta, tb := a.typeString(), b.typeString()
	maxLen := len(ta)
	if len(tb) > maxLen {
		maxLen = len(tb)
	}
	lev := 1.0
	if maxLen > 0 {
		lev = 1 - float64(stats.LevenshteinDistance(ta, tb))/float64(maxLen)
	}

	sem := semanticSimilarity(a, b)

	return cosineWeight*cos + levenshtein*lev + semanticWeight*sem
}

func typeCounts(s Sequence) map[string]float64 {
	m := make(map[string]float64)
	for _, a := range s {
		m[a.Type]++
	}
	return m
}

func semanticSimilarity(a, b Sequence) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 0
	}
	matches := 0
	for i := 0; i < n; i++ {
		if a[i].Type == b[i].Type && a[i].Outcome == b[i].Outcome {
			matches++
		}
	}
	return float64(matches) / float64(n)
}

// IsMatch reports whether two sequences are similar enough to be
// treated as instances of the same pattern.
func IsMatch(a, b Sequence, cfg Config) bool {
	return SimilarityScore(a, b) >= cfg.MinSimilarity
}

// CandidateScore weights a candidate pattern's frequency, novelty
// relative to already-accepted patterns, and contextual fit into a
// single score in [0,1]. The 0.4/0.3/0.3 split mirrors the ensemble
// weighting used elsewhere in this module for consistency; the spec
// leaves the exact split to the implementation.
const (
	frequencyWeight = 0.4
	noveltyWeight   = 0.3
	contextWeight   = 0.3
)

// ScoreCandidate scores a candidate sequence against the pool of
// already-accepted patterns and the current context.
func ScoreCandidate(candidate Sequence, freq, maxFreq int, accepted []Sequence, candidateContext, callerContext types.ValueMap) float64 {
	if maxFreq < 1 {
		maxFreq = 1
	}
	freqFactor := math.Log(1+float64(freq)) / math.Log(1+float64(maxFreq))

	maxSim := 0.0
	for _, p := range accepted {
		if s := SimilarityScore(candidate, p); s > maxSim {
			maxSim = s
		}
	}
	novelty := 1 - maxSim

	contextFit := callerContext.OverlapRatio(candidateContext)

	score := frequencyWeight*freqFactor + noveltyWeight*novelty + contextWeight*contextFit
	return stats.Clamp(score, 0, 1)
}

// SignificanceResult is the outcome of validating a candidate pattern
// against a global success-rate baseline.
type SignificanceResult struct {
	Accepted    bool
	PValue      float64
	ObservedRate float64
}

// ValidateSignificance runs Pearson's chi-square test on the 2x2
// observed-vs-baseline success/failure table and applies the
// frequency and success-rate-floor gates from spec §4.7. Returns a
// non-nil *types.Error with kind InsufficientEvidence when any gate
// fails.
func ValidateSignificance(successCount, failureCount, baseSuccess, baseFailure, frequency int, cfg Config) (SignificanceResult, *types.Error) {
	total := successCount + failureCount
	observedRate := 0.0
	if total > 0 {
		observedRate = float64(successCount) / float64(total)
	}
	chi2 := stats.ChiSquare2x2(float64(successCount), float64(failureCount), float64(baseSuccess), float64(baseFailure))
	p := stats.ChiSquarePValue(chi2)

	result := SignificanceResult{PValue: p, ObservedRate: observedRate}

	if frequency < cfg.MinFrequency {
		return result, types.NewError(types.ErrInsufficientEvidence, "frequency %d below minimum %d", frequency, cfg.MinFrequency)
	}
	if observedRate < cfg.MinSuccessRateFloor {
		return result, types.NewError(types.ErrInsufficientEvidence, "observed success rate %.3f below floor %.3f", observedRate, cfg.MinSuccessRateFloor)
	}
	if p >= cfg.SignificanceThreshold {
		return result, types.NewError(types.ErrInsufficientEvidence, "p-value %.4f not below significance threshold %.4f", p, cfg.SignificanceThreshold)
	}
	result.Accepted = true
	return result, nil
}

// Confidence returns the Wilson score center for a success/failure
// count, used as evolution.confidenceScore after each observation.
func Confidence(successes, failures int) float64 {
	center, _, _ := stats.WilsonInterval(successes, successes+failures, 1.96)
	return center
}

// Describe renders a sequence group as a short human-readable label,
// used in audit metadata and operator-facing summaries.
func Describe(g SequenceGroup) string {
	steps := g.Sequence.typeString()
	return fmt.Sprintf("%s (x%d)", strings.Join(steps, "->"), g.Frequency)
}
