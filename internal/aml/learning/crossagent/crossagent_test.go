package crossagent

import (
	"testing"

	"github.com/aml-core/agentmemory/internal/aml/types"
)

func sampleProfiles() (types.AgentProfile, types.AgentProfile) {
	src := types.AgentProfile{
		Name:         "agent-1",
		Capabilities: []string{"react", "typescript"},
		Domains:      []string{"frontend"},
		FocusAreas:   []string{"ui"},
		Complexity:   types.ComplexityAdvanced,
	}
	dst := types.AgentProfile{
		Name:         "agent-2",
		Capabilities: []string{"vue", "javascript"},
		Domains:      []string{"frontend"},
		FocusAreas:   []string{"ui"},
		Complexity:   types.ComplexityIntermediate,
	}
	return src, dst
}

func TestCheckCompatibilityDomainOverlapRequired(t *testing.T) {
	cfg := DefaultConfig()
	src, dst := sampleProfiles()
	c := CheckCompatibility(src, dst, cfg)
	if !c.Compatible {
		t.Fatalf("expected compatible profiles (shared frontend domain, shared ui focus), got %+v", c)
	}

	dst.Domains = []string{"backend"}
	c2 := CheckCompatibility(src, dst, cfg)
	if c2.Compatible {
		t.Fatal("expected incompatible profiles when domains no longer overlap and overlap is required")
	}
}

func TestAdaptPatternAppliesConfidencePenalty(t *testing.T) {
	cfg := DefaultConfig()
	src, dst := sampleProfiles()
	compat := CheckCompatibility(src, dst, cfg)
	p := types.Pattern{
		ID: "p1",
		Pattern: types.PatternBody{
			Context: types.ValueMap{"lib": types.String("react")},
			Approach: types.Approach{
				CodeTemplate: "react component",
			},
		},
		Evolution: types.Evolution{ConfidenceScore: 0.9},
	}
	adapted, err := AdaptPattern(p, src, dst, compat, cfg, true)
	if err != nil {
		t.Fatalf("unexpected refusal: %v", err)
	}
	if adapted.Pattern.Evolution.ConfidenceScore >= p.Evolution.ConfidenceScore {
		t.Fatalf("expected confidence to be reduced, before=%f after=%f", p.Evolution.ConfidenceScore, adapted.Pattern.Evolution.ConfidenceScore)
	}
}

func TestAdaptPatternRefusesArchitecturalChange(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowArchitecturalChanges = false
	src, dst := sampleProfiles()
	compat := CheckCompatibility(src, dst, cfg)
	p := types.Pattern{ID: "p1"}
	_, err := AdaptPattern(p, src, dst, compat, cfg, false)
	if err == nil || err.Kind != types.ErrAdaptationRefused {
		t.Fatalf("expected AdaptationRefused, got %v", err)
	}
}

func TestSharePatternRespectsDepthCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxCrossPollinationDepth = 1
	reg := NewRegistry()
	src, dst := sampleProfiles()
	reg.RegisterAgent(src)
	reg.RegisterAgent(dst)

	sharer := NewSharer(reg, cfg)
	p := types.Pattern{ID: "p1", Metrics: types.Metrics{SuccessRate: 0.9}}

	records, err := sharer.SharePattern("agent-1", p)
	if err != nil {
		t.Fatalf("unexpected error on first share: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one share record, got %d", len(records))
	}

	_, err = sharer.SharePattern("agent-1", p)
	if err == nil {
		t.Fatal("expected depth cap to refuse a second share")
	}
}

func TestResolveConflictQuorumAndWinner(t *testing.T) {
	cfg := DefaultConfig()
	votes := []Vote{
		{VoterID: "a", Option: "x", SuccessRate: 0.9, Confidence: 0.8, UsageCount: 5, MaxUsage: 10, Expertise: 0.7},
		{VoterID: "b", Option: "y", SuccessRate: 0.4, Confidence: 0.5, UsageCount: 2, MaxUsage: 10, Expertise: 0.3},
	}
	res, err := ResolveConflict("p1", votes, 2, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Winner != "x" {
		t.Fatalf("expected option x to win on higher weight, got %s", res.Winner)
	}
	if _, ok := res.MinorityOpinions["y"]; !ok {
		t.Fatal("expected minority opinion for option y to be recorded")
	}
}

func TestResolveConflictNoQuorum(t *testing.T) {
	cfg := DefaultConfig()
	votes := []Vote{
		{VoterID: "a", Option: "x", SuccessRate: 0.5, Confidence: 0.5, Expertise: 0.5},
	}
	_, err := ResolveConflict("p1", votes, 100, cfg)
	if err == nil || err.Kind != types.ErrNoQuorum {
		t.Fatalf("expected NoQuorum, got %v", err)
	}
}
