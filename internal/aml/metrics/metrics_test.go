package metrics

import (
	"testing"
	"time"
)

func TestRecordWriteUpdatesRunningAverage(t *testing.T) {
	c := NewCollector(time.Hour)
	now := time.Now()
	c.RecordWrite("agent-1", "pattern", 1.0, 100, now)
	c.RecordWrite("agent-1", "pattern", 0.0, 0, now)

	snap, ok := c.Snapshot("agent-1", now)
	if !ok {
		t.Fatal("expected snapshot to exist")
	}
	if snap.Performance.AvgSuccessRate != 0.5 {
		t.Fatalf("expected running average 0.5, got %f", snap.Performance.AvgSuccessRate)
	}
	if snap.Performance.PatternsCreated != 2 {
		t.Fatalf("expected 2 patterns created, got %d", snap.Performance.PatternsCreated)
	}
}

func TestStaleAgentsThreshold(t *testing.T) {
	c := NewCollector(time.Minute)
	now := time.Now()
	c.RecordRead("agent-1", now.Add(-2*time.Minute))
	c.RecordRead("agent-2", now)

	stale := c.StaleAgents(now)
	if len(stale) != 1 || stale[0] != "agent-1" {
		t.Fatalf("expected only agent-1 to be stale, got %+v", stale)
	}
}

func TestHealthScoreRange(t *testing.T) {
	c := NewCollector(time.Hour)
	now := time.Now()
	c.RecordWrite("agent-1", "pattern", 0.9, 100, now)
	c.RecordCacheOutcome("agent-1", true)
	c.RecordCacheOutcome("agent-1", false)

	snap, _ := c.Snapshot("agent-1", now)
	if snap.HealthScore < 0 || snap.HealthScore > 1 {
		t.Fatalf("expected health score in [0,1], got %f", snap.HealthScore)
	}
}
