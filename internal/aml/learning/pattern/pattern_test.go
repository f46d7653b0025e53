package pattern

import (
	"testing"
	"time"

	"github.com/aml-core/agentmemory/internal/aml/types"
)

func actionsAt(start time.Time, spec ...[2]string) []AgentAction {
	out := make([]AgentAction, len(spec))
	for i, s := range spec {
		out[i] = AgentAction{
			Type:      s[0],
			Target:    "file.go",
			Timestamp: start.Add(time.Duration(i) * time.Second),
			Outcome:   s[1],
		}
	}
	return out
}

func TestExtractSequencesRespectsTemporalWindow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSequenceLength = 2
	cfg.MaxSequenceLength = 2
	cfg.TemporalWindow = time.Minute

	base := time.Now()
	actions := []AgentAction{
		{Type: "read", Timestamp: base, Outcome: "success"},
		{Type: "write", Timestamp: base.Add(time.Second), Outcome: "success"},
		{Type: "test", Timestamp: base.Add(time.Hour), Outcome: "success"},
	}
	seqs := ExtractSequences(actions, cfg)
	if len(seqs) != 1 {
		t.Fatalf("expected exactly one length-2 sequence across the temporal gap, got %d", len(seqs))
	}
	if seqs[0][0].Type != "read" || seqs[0][1].Type != "write" {
		t.Fatalf("unexpected sequence contents: %+v", seqs[0])
	}
}

func TestCommonSubsequencesFrequencyGate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinFrequency = 2
	a := Sequence{{Type: "read"}, {Type: "write"}}
	b := Sequence{{Type: "read"}, {Type: "write"}}
	c := Sequence{{Type: "delete"}, {Type: "commit"}}
	groups := CommonSubsequences([]Sequence{a, b, c}, cfg)
	if len(groups) != 1 {
		t.Fatalf("expected one group above the frequency gate, got %d", len(groups))
	}
	if groups[0].Frequency != 2 {
		t.Fatalf("expected frequency 2, got %d", groups[0].Frequency)
	}
}

func TestSimilarityScoreIdenticalIsOne(t *testing.T) {
	a := Sequence{{Type: "read", Outcome: "success"}, {Type: "write", Outcome: "success"}}
	if s := SimilarityScore(a, a); s < 0.99 {
		t.Fatalf("expected identical sequences to score near 1, got %f", s)
	}
}

func TestScoreCandidateBounds(t *testing.T) {
	cand := Sequence{{Type: "read"}, {Type: "write"}}
	accepted := []Sequence{{{Type: "delete"}, {Type: "commit"}}}
	score := ScoreCandidate(cand, 5, 10, accepted, types.ValueMap{"framework": types.String("react")}, types.ValueMap{"framework": types.String("react")})
	if score < 0 || score > 1 {
		t.Fatalf("expected score in [0,1], got %f", score)
	}
}

func TestValidateSignificanceRejectsLowFrequency(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinFrequency = 5
	_, err := ValidateSignificance(8, 2, 40, 60, 2, cfg)
	if err == nil || err.Kind != types.ErrInsufficientEvidence {
		t.Fatalf("expected InsufficientEvidence for low frequency, got %v", err)
	}
}

func TestValidateSignificanceAcceptsStrongSignal(t *testing.T) {
	cfg := DefaultConfig()
	result, err := ValidateSignificance(90, 10, 40, 60, 10, cfg)
	if err != nil {
		t.Fatalf("expected acceptance, got error: %v", err)
	}
	if !result.Accepted {
		t.Fatal("expected Accepted=true")
	}
	if result.ObservedRate != 0.9 {
		t.Fatalf("expected observed rate 0.9, got %f", result.ObservedRate)
	}
}

func TestConfidenceInRange(t *testing.T) {
	c := Confidence(8, 2)
	if c < 0 || c > 1 {
		t.Fatalf("expected confidence in [0,1], got %f", c)
	}
}
