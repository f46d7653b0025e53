package facade

import (
	"os"
	"testing"
	"time"

	"github.com/aml-core/agentmemory/internal/aml/audit"
	"github.com/aml-core/agentmemory/internal/aml/cache"
	"github.com/aml-core/agentmemory/internal/aml/config"
	"github.com/aml-core/agentmemory/internal/aml/security"
	"github.com/aml-core/agentmemory/internal/aml/storage"
	"github.com/aml-core/agentmemory/internal/aml/types"
)

func newTestStore(t *testing.T) *MemoryStore {
	t.Helper()
	dir, err := os.MkdirTemp("", "aml-facade-*")
	if err != nil {
		t.Fatalf("mkdir temp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	eng, err := storage.New(storage.Options{Root: dir})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	caches := cache.NewManager(cache.ManagerOptions{TotalSize: 100, TTL: time.Hour})
	access := security.NewAccessControl()
	auditLog := audit.New(eng, audit.Options{})
	t.Cleanup(func() { auditLog.Close() })

	return New(eng, caches, access, auditLog, config.Default(), "proj-1")
}

func samplePattern(agent, id string) types.Pattern {
	return types.Pattern{
		ID:    id,
		Agent: agent,
		Pattern: types.PatternBody{
			Type:       "react-opt",
			Context:    types.ValueMap{"framework": types.String("React")},
			Approach:   types.Approach{Technique: "memo"},
			Conditions: types.Conditions{},
		},
		Metrics: types.Metrics{SuccessRate: 0.8, ExecutionCount: 1, AvgTimeSavedMs: 100},
		Evolution: types.Evolution{
			Created:         time.Now(),
			LastUsed:        time.Now(),
			ConfidenceScore: 0.5,
		},
	}
}

func TestAddAndGetPattern(t *testing.T) {
	store := newTestStore(t)
	principal := types.Principal{UserID: "u1", Role: types.RoleDeveloper, ProjectID: "proj-1", AgentName: "agent-1"}

	addRes := store.AddPattern(principal, samplePattern("agent-1", "p1"))
	if !addRes.Success {
		t.Fatalf("add pattern failed: %+v", addRes.Error)
	}

	getRes := store.GetPatterns(principal, types.PatternFilter{Agent: "agent-1"})
	if !getRes.Success {
		t.Fatalf("get patterns failed: %+v", getRes.Error)
	}
	patterns := getRes.Data.([]types.Pattern)
	if len(patterns) != 1 || patterns[0].ID != "p1" {
		t.Fatalf("expected one pattern p1, got %+v", patterns)
	}
}

func TestReadOnlyCannotWrite(t *testing.T) {
	store := newTestStore(t)
	ro := types.Principal{UserID: "u1", Role: types.RoleReadOnly, ProjectID: "proj-1", AgentName: "agent-1"}

	res := store.AddPattern(ro, samplePattern("agent-1", "p1"))
	if res.Success {
		t.Fatal("read-only principal should not be able to add a pattern")
	}
	if res.Error.Kind != types.ErrAccessDenied {
		t.Fatalf("expected ErrAccessDenied, got %s", res.Error.Kind)
	}
}

func TestDeletePatternRequiresOwnerOrAdmin(t *testing.T) {
	store := newTestStore(t)
	owner := types.Principal{UserID: "owner", Role: types.RoleDeveloper, ProjectID: "proj-1", AgentName: "agent-1"}
	other := types.Principal{UserID: "intruder", Role: types.RoleDeveloper, ProjectID: "proj-1", AgentName: "agent-1"}

	store.AddPattern(owner, samplePattern("agent-1", "p1"))

	// developer role can't even reach delete (requires admin per minRole)
	res := store.DeletePattern(other, "agent-1", "owner", "p1")
	if res.Success {
		t.Fatal("non-admin must not be able to delete")
	}

	admin := other
	admin.Role = types.RoleAdmin
	res = store.DeletePattern(admin, "agent-1", "owner", "p1")
	if !res.Success {
		t.Fatalf("admin should be able to delete: %+v", res.Error)
	}
}

func TestAddPatternDuplicateIDFails(t *testing.T) {
	store := newTestStore(t)
	principal := types.Principal{UserID: "u1", Role: types.RoleDeveloper, ProjectID: "proj-1", AgentName: "agent-1"}

	res := store.AddPattern(principal, samplePattern("agent-1", "p1"))
	if !res.Success {
		t.Fatalf("first add failed: %+v", res.Error)
	}

	res = store.AddPattern(principal, samplePattern("agent-1", "p1"))
	if res.Success {
		t.Fatal("re-adding the same pattern id should fail")
	}
	if res.Error.Kind != types.ErrAlreadyExists {
		t.Fatalf("expected ErrAlreadyExists, got %s", res.Error.Kind)
	}
}

func sampleSolution(agent, id string) types.Solution {
	return types.Solution{
		ID:      id,
		Agent:   agent,
		Type:    "refactor",
		Context: types.ValueMap{},
		Problem: types.Problem{Fingerprint: "fp-" + id},
		Fix:     types.Fix{Verification: "tests pass"},
		Metrics: types.Metrics{SuccessRate: 0.9, ExecutionCount: 1},
	}
}

func TestAddSolutionDuplicateIDFails(t *testing.T) {
	store := newTestStore(t)
	principal := types.Principal{UserID: "u1", Role: types.RoleDeveloper, ProjectID: "proj-1", AgentName: "agent-1"}

	res := store.AddSolution(principal, sampleSolution("agent-1", "s1"))
	if !res.Success {
		t.Fatalf("first add failed: %+v", res.Error)
	}

	res = store.AddSolution(principal, sampleSolution("agent-1", "s1"))
	if res.Success {
		t.Fatal("re-adding the same solution id should fail")
	}
	if res.Error.Kind != types.ErrAlreadyExists {
		t.Fatalf("expected ErrAlreadyExists, got %s", res.Error.Kind)
	}
}

func TestDecisionAppendOnly(t *testing.T) {
	store := newTestStore(t)
	principal := types.Principal{UserID: "u1", Role: types.RoleDeveloper, ProjectID: "proj-1", AgentName: "agent-1"}

	d := types.Decision{ID: "d1", Agent: "agent-1", Question: "cache or db?", ChosenOption: "cache"}
	res := store.AddDecision(principal, d)
	if !res.Success {
		t.Fatalf("add decision failed: %+v", res.Error)
	}

	res = store.AddDecision(principal, d)
	if res.Success {
		t.Fatal("re-adding the same decision id should fail")
	}
	if res.Error.Kind != types.ErrAlreadyExists {
		t.Fatalf("expected ErrAlreadyExists, got %s", res.Error.Kind)
	}
}

func TestCrossProjectIsolation(t *testing.T) {
	store := newTestStore(t)
	other := types.Principal{UserID: "u1", Role: types.RoleDeveloper, ProjectID: "other-project", AgentName: "agent-1"}

	res := store.GetPatterns(other, types.PatternFilter{Agent: "agent-1"})
	if res.Success {
		t.Fatal("principal from a different project must be denied")
	}
}

func TestClearMemoryIsAdminOnly(t *testing.T) {
	store := newTestStore(t)
	admin := types.Principal{UserID: "u1", Role: types.RoleAdmin, ProjectID: "proj-1", AgentName: "agent-1"}
	dev := types.Principal{UserID: "u1", Role: types.RoleDeveloper, ProjectID: "proj-1", AgentName: "agent-1"}

	store.AddPattern(admin, samplePattern("agent-1", "p1"))

	if res := store.ClearMemory(dev, "agent-1"); res.Success {
		t.Fatal("developer must not be able to clear memory")
	}

	res := store.ClearMemory(admin, "agent-1")
	if !res.Success {
		t.Fatalf("admin clear failed: %+v", res.Error)
	}

	getRes := store.GetPatterns(admin, types.PatternFilter{Agent: "agent-1"})
	patterns := getRes.Data.([]types.Pattern)
	if len(patterns) != 0 {
		t.Fatalf("expected no patterns after clear, got %d", len(patterns))
	}
}
