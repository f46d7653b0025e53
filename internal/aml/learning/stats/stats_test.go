package stats

import (
	"math"
	"testing"
)

func TestWilsonIntervalBounds(t *testing.T) {
	center, lower, upper := WilsonInterval(8, 10, 1.96)
	if lower > center || center > upper {
		t.Fatalf("expected lower <= center <= upper, got %f %f %f", lower, center, upper)
	}
	if lower < 0 || upper > 1 {
		t.Fatalf("interval out of [0,1]: %f %f", lower, upper)
	}
}

func TestWilsonIntervalEmpty(t *testing.T) {
	center, lower, upper := WilsonInterval(0, 0, 1.96)
	if center != 0 || lower != 0 || upper != 0 {
		t.Fatalf("expected zero interval for zero trials, got %f %f %f", center, lower, upper)
	}
}

func TestChiSquarePValueMonotonic(t *testing.T) {
	small := ChiSquarePValue(0.5)
	large := ChiSquarePValue(10)
	if large >= small {
		t.Fatalf("expected p-value to decrease as chi2 grows: small=%f large=%f", small, large)
	}
}

func TestLevenshteinDistance(t *testing.T) {
	if d := LevenshteinDistance([]string{"a", "b", "c"}, []string{"a", "b", "c"}); d != 0 {
		t.Fatalf("expected 0 for identical sequences, got %d", d)
	}
	if d := LevenshteinDistance([]string{"a", "b"}, []string{"a", "b", "c"}); d != 1 {
		t.Fatalf("expected 1 insertion, got %d", d)
	}
	if d := LevenshteinDistance(nil, []string{"a"}); d != 1 {
		t.Fatalf("expected 1 for empty-vs-one, got %d", d)
	}
}

func TestCosineSimilarity(t *testing.T) {
	a := map[string]float64{"read": 2, "write": 1}
	b := map[string]float64{"read": 2, "write": 1}
	if s := CosineSimilarity(a, b); math.Abs(s-1) > 1e-9 {
		t.Fatalf("expected identical vectors to score 1, got %f", s)
	}
	c := map[string]float64{"delete": 1}
	if s := CosineSimilarity(a, c); s != 0 {
		t.Fatalf("expected disjoint vectors to score 0, got %f", s)
	}
}

func TestOLSTrend(t *testing.T) {
	slope, _, r2 := OLS([]float64{1, 2, 3, 4, 5})
	if slope <= 0 {
		t.Fatalf("expected positive slope, got %f", slope)
	}
	if r2 < 0.99 {
		t.Fatalf("expected near-perfect fit, got %f", r2)
	}
}

func TestAutocorrelationPeriodic(t *testing.T) {
	series := make([]float64, 40)
	for i := range series {
		if i%4 < 2 {
			series[i] = 1
		} else {
			series[i] = -1
		}
	}
	r4 := Autocorrelation(series, 4)
	r1 := Autocorrelation(series, 1)
	if r4 <= r1 {
		t.Fatalf("expected lag-4 autocorrelation to dominate lag-1 for period-4 series: r4=%f r1=%f", r4, r1)
	}
}
