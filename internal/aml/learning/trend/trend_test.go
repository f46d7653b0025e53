package trend

import (
	"testing"
	"time"
)

func feed(t *Tracker, patternID string, values []float64) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, v := range values {
		t.AddPoint(patternID, base.Add(time.Duration(i)*time.Hour), v)
	}
}

func TestDetectAnomaliesFlagsDrop(t *testing.T) {
	cfg := DefaultConfig()
	tr := NewTracker(cfg)

	values := make([]float64, 0, 21)
	for i := 0; i < 20; i++ {
		values = append(values, 0.8)
	}
	values = append(values, 0.1)
	feed(tr, "p1", values)

	anomalies := tr.DetectAnomalies("p1", SensitivityMedium)
	if len(anomalies) != 1 {
		t.Fatalf("expected exactly one anomaly, got %d", len(anomalies))
	}
	got := anomalies[0]
	if got.Index != 20 {
		t.Fatalf("expected anomaly at index 20, got %d", got.Index)
	}
	if got.Type != AnomalyDrop {
		t.Fatalf("expected drop classification, got %s", got.Type)
	}
	if got.Severity != SeverityHigh && got.Severity != SeverityCritical {
		t.Fatalf("expected severity >= high, got %s", got.Severity)
	}
}

func TestDetectAnomaliesZeroVarianceNoChangeIsQuiet(t *testing.T) {
	cfg := DefaultConfig()
	tr := NewTracker(cfg)

	values := make([]float64, 21)
	for i := range values {
		values[i] = 0.8
	}
	feed(tr, "p1", values)

	if anomalies := tr.DetectAnomalies("p1", SensitivityMedium); len(anomalies) != 0 {
		t.Fatalf("expected no anomalies for an unchanging series, got %+v", anomalies)
	}
}

func TestTrendDirectionImproving(t *testing.T) {
	cfg := DefaultConfig()
	tr := NewTracker(cfg)
	values := make([]float64, 20)
	for i := range values {
		values[i] = 0.5 + float64(i)*0.02
	}
	feed(tr, "p1", values)

	result := tr.TrendDirection("p1")
	if result.Direction != DirectionImproving {
		t.Fatalf("expected improving trend, got %s (slope=%f)", result.Direction, result.Slope)
	}
}

func TestForecastCaching(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ForecastCacheTTL = time.Hour
	tr := NewTracker(cfg)
	feed(tr, "p1", []float64{1, 2, 3, 4, 5})

	f1 := tr.Forecast("p1", ForecastLinear)
	f2 := tr.Forecast("p1", ForecastLinear)
	if len(f1.Points) != len(f2.Points) || f1.Points[0].Value != f2.Points[0].Value {
		t.Fatal("expected cached forecast to match across calls")
	}

	tr.AddPoint("p1", time.Now(), 6)
	f3 := tr.Forecast("p1", ForecastLinear)
	if len(f3.Points) != cfg.ForecastHorizonSteps {
		t.Fatalf("expected %d forecast points, got %d", cfg.ForecastHorizonSteps, len(f3.Points))
	}
}

func TestChangePointsDetectsShift(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CUSUMSigmaMultiplier = 1.5
	tr := NewTracker(cfg)

	var values []float64
	for i := 0; i < 15; i++ {
		values = append(values, 0.2)
	}
	for i := 0; i < 15; i++ {
		values = append(values, 0.9)
	}
	feed(tr, "p1", values)

	points := tr.ChangePoints("p1")
	if len(points) == 0 {
		t.Fatal("expected at least one change point for the step shift")
	}
}

func TestRecommendLearningRateIncreasesOnDecline(t *testing.T) {
	cfg := DefaultConfig()
	tr := NewTracker(cfg)
	values := make([]float64, 20)
	for i := range values {
		values[i] = 1 - float64(i)*0.05
	}
	feed(tr, "p1", values)

	newAlpha := tr.RecommendLearningRate("p1", 0.1, 0)
	if newAlpha <= 0.1 {
		t.Fatalf("expected learning rate to increase on a declining trend, got %f", newAlpha)
	}
}
