package weight

import (
	"testing"

	"github.com/aml-core/agentmemory/internal/aml/types"
)

func TestRecencyMonotonicDecay(t *testing.T) {
	cfg := DefaultConfig()
	r0 := Recency(0, cfg)
	r30 := Recency(30, cfg)
	r365 := Recency(365, cfg)
	if !(r0 >= r30 && r30 >= r365) {
		t.Fatalf("expected recency to decay monotonically: r0=%f r30=%f r365=%f", r0, r30, r365)
	}
	if r365 != cfg.RecencyFloor {
		t.Fatalf("expected recency to floor out beyond MaxAgeDays, got %f", r365)
	}
}

func TestWeighBounds(t *testing.T) {
	cfg := DefaultConfig()
	req := types.ValueMap{"react": types.Bool(true)}
	proj := types.ValueMap{"react": types.Bool(true)}
	rec := Weigh(8, 2, 10, 3, req, proj, cfg)
	if rec.TotalWeight < 0 || rec.TotalWeight > 1 {
		t.Fatalf("expected weight in [0,1], got %f", rec.TotalWeight)
	}
	if rec.ConfidenceInterval.Lower > rec.ConfidenceInterval.Upper {
		t.Fatalf("expected lower <= upper, got %+v", rec.ConfidenceInterval)
	}
}

func TestBucketizeStrength(t *testing.T) {
	cases := []struct {
		w    float64
		want Strength
	}{
		{0.9, StrengthVeryStrong},
		{0.75, StrengthStrong},
		{0.55, StrengthModerate},
		{0.35, StrengthWeak},
		{0.1, StrengthAvoid},
	}
	for _, c := range cases {
		if got := bucketize(c.w); got != c.want {
			t.Errorf("bucketize(%f) = %s, want %s", c.w, got, c.want)
		}
	}
}

func TestAdjustThresholdsMovesTowardMean(t *testing.T) {
	cfg := DefaultConfig()
	tr := NewThresholdTracker(cfg)
	for i := 0; i < 10; i++ {
		tr.Record("p1", 0.8)
	}
	before := tr.Threshold("p1")
	after := tr.AdjustThresholds("p1")
	if after <= before {
		t.Fatalf("expected threshold to move up toward mean 0.8, before=%f after=%f", before, after)
	}
	if after > cfg.MaxWeight || after < cfg.MinWeight {
		t.Fatalf("expected threshold within bounds, got %f", after)
	}
}
