// Package crossagent implements cross-agent learning from spec §4.9:
// agent compatibility scoring, pattern adaptation across agent
// profiles, auto-sharing with cycle prevention, and weighted-vote
// conflict resolution. The voting and quorum logic follows the
// review-board consensus style used elsewhere in this codebase's
// lineage: count weighted votes, compare against a quorum, report a
// decision plus the minority opinion for auditability.
package crossagent

import (
	"fmt"
	"strings"
	"sync"

	"github.com/aml-core/agentmemory/internal/aml/types"
)

// Config holds the tunables from spec §4.9.
type Config struct {
	MinScore                 float64
	RequireDomainOverlap     bool
	MaxConfidencePenalty     float64
	AllowArchitecturalChanges bool
	AutoShare                bool
	ShareThreshold           float64
	MaxCrossPollinationDepth int
	QuorumPercent            float64
}

// DefaultConfig matches the spec's stated defaults.
func DefaultConfig() Config {
	return Config{
		MinScore:                 0.6,
		RequireDomainOverlap:     true,
		MaxConfidencePenalty:     0.3,
		AllowArchitecturalChanges: false,
		AutoShare:                true,
		ShareThreshold:           0.8,
		MaxCrossPollinationDepth: 3,
		QuorumPercent:            0.5,
	}
}

// Registry holds the known agent profiles used for compatibility
// checks and pattern adaptation.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]types.AgentProfile
}

// NewRegistry builds an empty agent registry.
func NewRegistry() *Registry {
	return &Registry{profiles: make(map[string]types.AgentProfile)}
}

// RegisterAgent stores (or replaces) an agent's profile.
func (r *Registry) RegisterAgent(profile types.AgentProfile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[profile.Name] = profile
}

// Profile returns the registered profile for an agent, if any.
func (r *Registry) Profile(name string) (types.AgentProfile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[name]
	return p, ok
}

// Compatibility is the result of checkCompatibility.
type Compatibility struct {
	Compatible bool
	Score      float64
	Overlaps   []string
}

func setRatio(a, b []string) (overlap []string, ratio float64) {
	union := make(map[string]bool)
	inA := make(map[string]bool)
	for _, v := range a {
		inA[v] = true
		union[v] = true
	}
	for _, v := range b {
		union[v] = true
	}
	var shared []string
	for _, v := range a {
		for _, w := range b {
			if v == w {
				shared = append(shared, v)
				break
			}
		}
	}
	if len(union) == 0 {
		return shared, 0
	}
	return shared, float64(len(shared)) / float64(len(union))
}

// CheckCompatibility scores how well a source agent's profile
// transfers to a destination agent's profile.
func CheckCompatibility(src, dst types.AgentProfile, cfg Config) Compatibility {
	capOverlap, capRatio := setRatio(src.Capabilities, dst.Capabilities)
	domOverlap, domRatio := setRatio(src.Domains, dst.Domains)
	_, focusRatio := setRatio(src.FocusAreas, dst.FocusAreas)

	score := 0.4*capRatio + 0.4*domRatio + 0.2*focusRatio

	overlaps := append(append([]string{}, capOverlap...), domOverlap...)

	compatible := score >= cfg.MinScore
	if compatible && cfg.RequireDomainOverlap && len(domOverlap) == 0 {
		compatible = false
	}

	return Compatibility{Compatible: compatible, Score: score, Overlaps: overlaps}
}

// AdaptedPattern is the result of adapting a pattern from one agent's
// vocabulary and capability level to another's.
type AdaptedPattern struct {
	Pattern           types.Pattern
	ConfidencePenalty float64
}

// AdaptPattern returns an adapted copy of a pattern for a destination
// agent, per spec §4.9. Refuses with AdaptationRefused when the
// adaptation would need to rewrite the approach's technique and
// architectural changes aren't allowed.
func AdaptPattern(p types.Pattern, src, dst types.AgentProfile, compat Compatibility, cfg Config, preserveCore bool) (AdaptedPattern, *types.Error) {
	adapted := p

	needsTechniqueChange := dst.Complexity < src.Complexity && !preserveCore
	if needsTechniqueChange && !cfg.AllowArchitecturalChanges {
		return AdaptedPattern{}, types.NewError(types.ErrAdaptationRefused,
			"adapting %q from %s to %s requires an architectural rewrite of the approach", p.ID, src.Name, dst.Name)
	}

	adapted.Pattern.Context = translateVocabulary(p.Pattern.Context, src, dst)
	adapted.Pattern.Approach.CodeTemplate = translateApproachText(p.Pattern.Approach.CodeTemplate, src, dst)

	if dst.Complexity < src.Complexity {
		adapted.Pattern.Approach.CodeTemplate = simplifyTemplate(adapted.Pattern.Approach.CodeTemplate)
	}

	penalty := cfg.MaxConfidencePenalty * (1 - compat.Score)
	adapted.Evolution.ConfidenceScore = clamp01(p.Evolution.ConfidenceScore - penalty)

	return AdaptedPattern{Pattern: adapted, ConfidencePenalty: penalty}, nil
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// translateVocabulary replaces each string value in a context map that
// equals a source capability (case-insensitively) with the destination
// capability at the same index. Capabilities are paired by index up to
// the shorter of the two lists; other values pass through unchanged.
func translateVocabulary(ctx types.ValueMap, src, dst types.AgentProfile) types.ValueMap {
	dict := vocabularyDict(src, dst)
	out := make(types.ValueMap, len(ctx))
	for k, v := range ctx {
		if v.Kind() == types.KindString {
			out[k] = types.String(translateToken(v.String(), dict))
			continue
		}
		out[k] = v
	}
	return out
}

func vocabularyDict(src, dst types.AgentProfile) map[string]string {
	dict := make(map[string]string)
	n := len(src.Capabilities)
	if len(dst.Capabilities) < n {
		n = len(dst.Capabilities)
	}
	for i := 0; i < n; i++ {
		dict[strings.ToLower(src.Capabilities[i])] = dst.Capabilities[i]
	}
	return dict
}

func translateToken(s string, dict map[string]string) string {
	if replacement, ok := dict[strings.ToLower(s)]; ok {
		return replacement
	}
	return s
}

func translateApproachText(text string, src, dst types.AgentProfile) string {
	dict := vocabularyDict(src, dst)
	for from, to := range dict {
		text = strings.ReplaceAll(text, from, to)
	}
	return text
}

// simplifyTemplate strips lines that look like optional sections
// (guarded by a leading "// optional" marker) when adapting a pattern
// down to a less complex destination agent.
func simplifyTemplate(template string) string {
	lines := strings.Split(template, "\n")
	var out []string
	skipping := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "// optional") {
			skipping = true
			continue
		}
		if skipping && trimmed == "" {
			skipping = false
			continue
		}
		if skipping {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// SharingRecord tracks one pattern-sharing hop for provenance and
// cycle prevention.
type SharingRecord struct {
	From             string
	To               string
	PatternID        string
	AdaptedPatternID string
	Depth            int
	// Adapted is the pattern AdaptPattern produced for To's vocabulary
	// and capability level — the caller (typically the facade) is
	// responsible for persisting it under To's namespace; Sharer only
	// tracks provenance.
	Adapted types.Pattern
	// ConfidencePenalty is the confidence score AdaptPattern subtracted
	// to account for the compatibility gap between From and To.
	ConfidencePenalty float64
}

// Sharer drives sharePattern, tracking provenance chains to enforce
// the maximum cross-pollination depth.
type Sharer struct {
	registry *Registry
	cfg      Config
	mu       sync.Mutex
	records  []SharingRecord
	depth    map[string]int // patternID -> depth already reached
}

// NewSharer builds a Sharer bound to an agent registry.
func NewSharer(registry *Registry, cfg Config) *Sharer {
	return &Sharer{registry: registry, cfg: cfg, depth: make(map[string]int)}
}

// SharePattern auto-shares a pattern to every compatible registered
// agent when its success rate clears the share threshold, recording a
// SharingRecord for each hop. Cycles are prevented by tracking each
// pattern's current provenance depth and refusing to share past
// MaxCrossPollinationDepth.
func (s *Sharer) SharePattern(agentName string, p types.Pattern) ([]SharingRecord, *types.Error) {
	if !s.cfg.AutoShare || p.Metrics.SuccessRate < s.cfg.ShareThreshold {
		return nil, nil
	}

	s.mu.Lock()
	currentDepth := s.depth[p.ID]
	s.mu.Unlock()
	if currentDepth >= s.cfg.MaxCrossPollinationDepth {
		return nil, types.NewError(types.ErrAdaptationRefused, "pattern %q already at maximum cross-pollination depth %d", p.ID, s.cfg.MaxCrossPollinationDepth)
	}

	srcProfile, ok := s.registry.Profile(agentName)
	if !ok {
		return nil, types.NewError(types.ErrNotFound, "agent %q is not registered", agentName)
	}

	var shared []SharingRecord
	s.registry.mu.RLock()
	candidates := make([]types.AgentProfile, 0, len(s.registry.profiles))
	for name, profile := range s.registry.profiles {
		if name == agentName {
			continue
		}
		candidates = append(candidates, profile)
	}
	s.registry.mu.RUnlock()

	for _, dst := range candidates {
		compat := CheckCompatibility(srcProfile, dst, s.cfg)
		if !compat.Compatible {
			continue
		}
		adapted, err := AdaptPattern(p, srcProfile, dst, compat, s.cfg, true)
		if err != nil {
			continue
		}
		adaptedID := fmt.Sprintf("%s-%s", p.ID, dst.Name)
		adapted.Pattern.ID = adaptedID
		adapted.Pattern.Agent = dst.Name

		rec := SharingRecord{
			From:              agentName,
			To:                dst.Name,
			PatternID:         p.ID,
			AdaptedPatternID:  adaptedID,
			Depth:             currentDepth + 1,
			Adapted:           adapted.Pattern,
			ConfidencePenalty: adapted.ConfidencePenalty,
		}
		s.mu.Lock()
		s.records = append(s.records, rec)
		s.depth[p.ID] = currentDepth + 1
		s.depth[adaptedID] = currentDepth + 1
		s.mu.Unlock()
		shared = append(shared, rec)
	}
	return shared, nil
}

// Records returns every sharing hop recorded so far, for audit.
func (s *Sharer) Records() []SharingRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SharingRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Vote is one participant's weighted input to a conflict resolution.
type Vote struct {
	VoterID      string
	Option       string
	SuccessRate  float64
	Confidence   float64
	UsageCount   int
	MaxUsage     int
	Expertise    float64
}

func (v Vote) weight() float64 {
	usageRatio := 0.0
	if v.MaxUsage > 0 {
		usageRatio = float64(v.UsageCount) / float64(v.MaxUsage)
	}
	return 0.4*v.SuccessRate + 0.2*v.Confidence + 0.1*usageRatio + 0.3*v.Expertise
}

// ConflictResolution is the outcome of resolveConflict.
type ConflictResolution struct {
	PatternID        string
	Winner           string
	WinningWeight    float64
	MinorityOpinions map[string]float64
	NoQuorum         bool
}

// ResolveConflict performs weighted voting over a pattern's proposed
// options, applying a quorum gate and a confidence tiebreaker.
func ResolveConflict(patternID string, votes []Vote, eligibleVoters int, cfg Config) (ConflictResolution, *types.Error) {
	totals := make(map[string]float64)
	bestConfidence := make(map[string]float64)
	var participatingWeight float64

	for _, v := range votes {
		w := v.weight()
		totals[v.Option] += w
		participatingWeight += w
		if v.Confidence > bestConfidence[v.Option] {
			bestConfidence[v.Option] = v.Confidence
		}
	}

	if eligibleVoters > 0 && participatingWeight < cfg.QuorumPercent*float64(eligibleVoters) {
		return ConflictResolution{PatternID: patternID, NoQuorum: true}, types.NewError(types.ErrNoQuorum,
			"participating weight %.3f below quorum %.3f", participatingWeight, cfg.QuorumPercent*float64(eligibleVoters))
	}

	var winner string
	var winWeight float64 = -1
	for option, w := range totals {
		switch {
		case w > winWeight:
			winner, winWeight = option, w
		case w == winWeight && bestConfidence[option] > bestConfidence[winner]:
			winner, winWeight = option, w
		}
	}

	minority := make(map[string]float64)
	for option, w := range totals {
		if option != winner {
			minority[option] = w
		}
	}

	return ConflictResolution{
		PatternID:        patternID,
		Winner:           winner,
		WinningWeight:    winWeight,
		MinorityOpinions: minority,
	}, nil
}
