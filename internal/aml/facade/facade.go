// Package facade implements the Memory Store Facade from spec §4.5:
// the single entry point that enforces access control, consults the
// cache before storage, and records every operation to the audit log.
package facade

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aml-core/agentmemory/internal/aml/audit"
	"github.com/aml-core/agentmemory/internal/aml/cache"
	"github.com/aml-core/agentmemory/internal/aml/config"
	"github.com/aml-core/agentmemory/internal/aml/events"
	"github.com/aml-core/agentmemory/internal/aml/security"
	"github.com/aml-core/agentmemory/internal/aml/storage"
	"github.com/aml-core/agentmemory/internal/aml/types"
)

// Publisher is the subset of events.Client the facade needs to notify
// learning-module dispatchers of new writes, decoupling facade from a
// concrete NATS connection so tests can stub it.
type Publisher interface {
	PublishJSON(subject string, v interface{}) error
}

// MetricsSink is the subset of metrics.Collector the facade reports
// write/read activity to.
type MetricsSink interface {
	RecordWrite(agent, resourceType string, successRate, timeSavedMs float64, now time.Time)
	RecordRead(agent string, now time.Time)
}

// MemoryStore is the facade every caller (CLI, API, learning modules)
// goes through to read or write agent memory.
type MemoryStore struct {
	engine    *storage.Engine
	caches    *cache.Manager
	access    *security.AccessControl
	auditLog  *audit.Logger
	cfg       config.Config
	projectID string

	publisher Publisher
	metrics   MetricsSink
}

// WithInstrumentation attaches an optional events publisher and
// metrics sink; either argument may be nil. The facade dispatches
// write events to learning modules and read/write counts to metrics
// only once this has been called, matching the "instrumentation
// attaches after construction" wiring in cmd/amlserver.
func (m *MemoryStore) WithInstrumentation(pub Publisher, sink MetricsSink) *MemoryStore {
	m.publisher = pub
	m.metrics = sink
	return m
}

func (m *MemoryStore) publish(subject string, evt interface{}) {
	if m.publisher == nil {
		return
	}
	m.publisher.PublishJSON(subject, evt)
}

// New wires the facade's dependencies. The caller is responsible for
// constructing engine/caches/access/auditLog with config-derived
// options (see cmd/amlserver for the standard wiring).
func New(engine *storage.Engine, caches *cache.Manager, access *security.AccessControl, auditLog *audit.Logger, cfg config.Config, projectID string) *MemoryStore {
	return &MemoryStore{
		engine:    engine,
		caches:    caches,
		access:    access,
		auditLog:  auditLog,
		cfg:       cfg,
		projectID: projectID,
	}
}

func (m *MemoryStore) record(principal types.Principal, op, action, resourceID, resourceType string, success bool, errMsg string) {
	m.auditLog.Log(types.AuditEvent{
		ID:           uuid.NewString(),
		Timestamp:    time.Now(),
		Type:         op,
		Agent:        principal.AgentName,
		Action:       action,
		ResourceID:   resourceID,
		ResourceType: resourceType,
		Success:      success,
		Error:        errMsg,
		UserID:       principal.UserID,
	})
}

func patternKey(agent, id string) string { return fmt.Sprintf("%s/patterns/%s.json", agent, id) }
func solutionKey(agent, id string) string { return fmt.Sprintf("%s/solutions/%s.json", agent, id) }
func decisionKey(agent, id string) string { return fmt.Sprintf("%s/decisions/%s.json", agent, id) }

// AddPattern validates, assigns an ID/timestamp if absent, writes
// through storage, warms the cache, and audits the write.
func (m *MemoryStore) AddPattern(principal types.Principal, pattern types.Pattern) types.Result {
	res := &types.Resource{ProjectID: m.projectID, AgentName: pattern.Agent, OwnerID: principal.UserID, Kind: "pattern", ID: pattern.ID}
	if err := m.access.RequireAccess(principal, security.OpPatternWrite, res); err != nil {
		m.record(principal, "pattern_write", "create", pattern.ID, "pattern", false, err.Error())
		return types.Fail(err)
	}

	if pattern.ID == "" {
		pattern.ID = uuid.NewString()
	} else if m.engine.Exists(patternKey(pattern.Agent, pattern.ID)) {
		err := types.NewError(types.ErrAlreadyExists, "pattern %s already exists", pattern.ID)
		m.record(principal, "pattern_created", "create", pattern.ID, "pattern", false, err.Error())
		return types.Fail(err)
	}
	if pattern.Timestamp.IsZero() {
		pattern.Timestamp = time.Now()
	}
	if pattern.Evolution.Created.IsZero() {
		pattern.Evolution.Created = pattern.Timestamp
	}
	if pattern.Evolution.LastUsed.IsZero() {
		pattern.Evolution.LastUsed = pattern.Evolution.Created
	}

	if verr := pattern.Validate(); verr != nil {
		m.record(principal, "pattern_created", "create", pattern.ID, "pattern", false, verr.Error())
		return types.Fail(verr)
	}

	data, jerr := json.Marshal(pattern)
	if jerr != nil {
		err := types.NewError(types.ErrInternal, "encode pattern: %v", jerr)
		m.record(principal, "pattern_created", "create", pattern.ID, "pattern", false, err.Error())
		return types.Fail(err)
	}

	encCtx := security.DeriveAgentContext(pattern.Agent, m.projectID)
	if err := m.engine.Put(patternKey(pattern.Agent, pattern.ID), data, encCtx); err != nil {
		m.record(principal, "pattern_created", "create", pattern.ID, "pattern", false, err.Error())
		return types.Fail(err)
	}

	m.caches.Patterns.Set(patternKey(pattern.Agent, pattern.ID), pattern)
	m.record(principal, "pattern_created", "create", pattern.ID, "pattern", true, "")
	m.publish(events.SubjectPatternWritten, events.WriteEvent{
		Agent: pattern.Agent, ResourceID: pattern.ID, ResourceType: "pattern", Timestamp: pattern.Timestamp,
	})
	if m.metrics != nil {
		m.metrics.RecordWrite(pattern.Agent, "pattern", pattern.Metrics.SuccessRate, pattern.Metrics.AvgTimeSavedMs, time.Now())
	}
	return types.Ok(pattern)
}

// GetPatterns lists patterns for an agent matching filter, consulting
// the cache first and falling back to storage on a miss.
func (m *MemoryStore) GetPatterns(principal types.Principal, filter types.PatternFilter) types.Result {
	res := &types.Resource{ProjectID: m.projectID, AgentName: filter.Agent, Kind: "pattern"}
	if err := m.access.RequireAccess(principal, security.OpPatternRead, res); err != nil {
		m.record(principal, "pattern_read", "list", "", "pattern", false, err.Error())
		return types.Fail(err)
	}

	keys, lerr := m.engine.List(filter.Agent + "/patterns/")
	if lerr != nil {
		m.record(principal, "pattern_read", "list", "", "pattern", false, lerr.Error())
		return types.Fail(lerr)
	}

	encCtx := security.DeriveAgentContext(filter.Agent, m.projectID)
	out := make([]types.Pattern, 0, len(keys))
	for _, k := range keys {
		var p types.Pattern
		if cached, ok := m.caches.Patterns.Get(k); ok {
			p = cached.(types.Pattern)
		} else {
			data, gerr := m.engine.Get(k, encCtx)
			if gerr != nil {
				continue
			}
			if jerr := json.Unmarshal(data, &p); jerr != nil {
				continue
			}
			m.caches.Patterns.Set(k, p)
		}

		if filter.Type != "" && p.Pattern.Type != filter.Type {
			continue
		}
		if p.Metrics.SuccessRate < filter.MinSuccessRate {
			continue
		}
		if p.Evolution.ConfidenceScore < filter.MinConfidence {
			continue
		}
		out = append(out, p)
	}

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}

	m.record(principal, "pattern_read", "list", "", "pattern", true, "")
	if m.metrics != nil {
		m.metrics.RecordRead(filter.Agent, time.Now())
	}
	return types.Ok(out)
}

// UpdatePattern overwrites an existing pattern, requiring it to
// already exist.
func (m *MemoryStore) UpdatePattern(principal types.Principal, pattern types.Pattern) types.Result {
	res := &types.Resource{ProjectID: m.projectID, AgentName: pattern.Agent, OwnerID: principal.UserID, Kind: "pattern", ID: pattern.ID}
	if err := m.access.RequireAccess(principal, security.OpPatternWrite, res); err != nil {
		m.record(principal, "pattern_updated", "update", pattern.ID, "pattern", false, err.Error())
		return types.Fail(err)
	}

	key := patternKey(pattern.Agent, pattern.ID)
	if !m.engine.Exists(key) {
		err := types.NewError(types.ErrNotFound, "pattern %s not found", pattern.ID)
		m.record(principal, "pattern_updated", "update", pattern.ID, "pattern", false, err.Error())
		return types.Fail(err)
	}

	if verr := pattern.Validate(); verr != nil {
		m.record(principal, "pattern_updated", "update", pattern.ID, "pattern", false, verr.Error())
		return types.Fail(verr)
	}

	data, jerr := json.Marshal(pattern)
	if jerr != nil {
		err := types.NewError(types.ErrInternal, "encode pattern: %v", jerr)
		return types.Fail(err)
	}

	encCtx := security.DeriveAgentContext(pattern.Agent, m.projectID)
	if err := m.engine.Put(key, data, encCtx); err != nil {
		m.record(principal, "pattern_updated", "update", pattern.ID, "pattern", false, err.Error())
		return types.Fail(err)
	}

	m.caches.Patterns.Set(key, pattern)
	m.record(principal, "pattern_updated", "update", pattern.ID, "pattern", true, "")
	return types.Ok(pattern)
}

// DeletePattern removes a pattern, requiring ownership unless the
// caller is an admin (spec §4.3 rule 4).
func (m *MemoryStore) DeletePattern(principal types.Principal, agent, ownerID, id string) types.Result {
	res := &types.Resource{ProjectID: m.projectID, AgentName: agent, OwnerID: ownerID, Kind: "pattern", ID: id}
	if err := m.access.RequireAccess(principal, security.OpPatternDelete, res); err != nil {
		m.record(principal, "pattern_deleted", "delete", id, "pattern", false, err.Error())
		return types.Fail(err)
	}

	key := patternKey(agent, id)
	if err := m.engine.Delete(key); err != nil {
		m.record(principal, "pattern_deleted", "delete", id, "pattern", false, err.Error())
		return types.Fail(err)
	}

	m.caches.Patterns.Delete(key)
	m.record(principal, "pattern_deleted", "delete", id, "pattern", true, "")
	return types.Ok(nil)
}

// AddSolution, GetSolutions, DeleteSolution mirror the pattern
// operations for the solutions collection.
func (m *MemoryStore) AddSolution(principal types.Principal, solution types.Solution) types.Result {
	res := &types.Resource{ProjectID: m.projectID, AgentName: solution.Agent, OwnerID: principal.UserID, Kind: "solution", ID: solution.ID}
	if err := m.access.RequireAccess(principal, security.OpSolutionWrite, res); err != nil {
		m.record(principal, "solution_created", "create", solution.ID, "solution", false, err.Error())
		return types.Fail(err)
	}

	if solution.ID == "" {
		solution.ID = uuid.NewString()
	} else if m.engine.Exists(solutionKey(solution.Agent, solution.ID)) {
		err := types.NewError(types.ErrAlreadyExists, "solution %s already exists", solution.ID)
		m.record(principal, "solution_created", "create", solution.ID, "solution", false, err.Error())
		return types.Fail(err)
	}
	if solution.Timestamp.IsZero() {
		solution.Timestamp = time.Now()
	}
	if verr := solution.Validate(); verr != nil {
		m.record(principal, "solution_created", "create", solution.ID, "solution", false, verr.Error())
		return types.Fail(verr)
	}

	data, jerr := json.Marshal(solution)
	if jerr != nil {
		return types.Fail(types.NewError(types.ErrInternal, "encode solution: %v", jerr))
	}

	encCtx := security.DeriveAgentContext(solution.Agent, m.projectID)
	key := solutionKey(solution.Agent, solution.ID)
	if err := m.engine.Put(key, data, encCtx); err != nil {
		m.record(principal, "solution_created", "create", solution.ID, "solution", false, err.Error())
		return types.Fail(err)
	}

	m.caches.Solutions.Set(key, solution)
	m.record(principal, "solution_created", "create", solution.ID, "solution", true, "")
	m.publish(events.SubjectSolutionWritten, events.WriteEvent{
		Agent: solution.Agent, ResourceID: solution.ID, ResourceType: "solution", Timestamp: solution.Timestamp,
	})
	if m.metrics != nil {
		m.metrics.RecordWrite(solution.Agent, "solution", solution.Metrics.SuccessRate, solution.Metrics.AvgTimeSavedMs, time.Now())
	}
	return types.Ok(solution)
}

// UpdateSolution mirrors UpdatePattern for the solutions collection:
// the solution must already exist, ownership/role checks happen via
// OpSolutionWrite same as AddSolution.
func (m *MemoryStore) UpdateSolution(principal types.Principal, solution types.Solution) types.Result {
	res := &types.Resource{ProjectID: m.projectID, AgentName: solution.Agent, OwnerID: principal.UserID, Kind: "solution", ID: solution.ID}
	if err := m.access.RequireAccess(principal, security.OpSolutionWrite, res); err != nil {
		m.record(principal, "solution_updated", "update", solution.ID, "solution", false, err.Error())
		return types.Fail(err)
	}

	key := solutionKey(solution.Agent, solution.ID)
	if !m.engine.Exists(key) {
		err := types.NewError(types.ErrNotFound, "solution %s not found", solution.ID)
		m.record(principal, "solution_updated", "update", solution.ID, "solution", false, err.Error())
		return types.Fail(err)
	}

	if verr := solution.Validate(); verr != nil {
		m.record(principal, "solution_updated", "update", solution.ID, "solution", false, verr.Error())
		return types.Fail(verr)
	}

	data, jerr := json.Marshal(solution)
	if jerr != nil {
		return types.Fail(types.NewError(types.ErrInternal, "encode solution: %v", jerr))
	}

	encCtx := security.DeriveAgentContext(solution.Agent, m.projectID)
	if err := m.engine.Put(key, data, encCtx); err != nil {
		m.record(principal, "solution_updated", "update", solution.ID, "solution", false, err.Error())
		return types.Fail(err)
	}

	m.caches.Solutions.Set(key, solution)
	m.record(principal, "solution_updated", "update", solution.ID, "solution", true, "")
	return types.Ok(solution)
}

func (m *MemoryStore) GetSolutions(principal types.Principal, filter types.SolutionFilter) types.Result {
	res := &types.Resource{ProjectID: m.projectID, AgentName: filter.Agent, Kind: "solution"}
	if err := m.access.RequireAccess(principal, security.OpSolutionRead, res); err != nil {
		m.record(principal, "solution_read", "list", "", "solution", false, err.Error())
		return types.Fail(err)
	}

	keys, lerr := m.engine.List(filter.Agent + "/solutions/")
	if lerr != nil {
		m.record(principal, "solution_read", "list", "", "solution", false, lerr.Error())
		return types.Fail(lerr)
	}

	encCtx := security.DeriveAgentContext(filter.Agent, m.projectID)
	out := make([]types.Solution, 0, len(keys))
	for _, k := range keys {
		var s types.Solution
		if cached, ok := m.caches.Solutions.Get(k); ok {
			s = cached.(types.Solution)
		} else {
			data, gerr := m.engine.Get(k, encCtx)
			if gerr != nil {
				continue
			}
			if jerr := json.Unmarshal(data, &s); jerr != nil {
				continue
			}
			m.caches.Solutions.Set(k, s)
		}
		if filter.Fingerprint != "" && s.Problem.Fingerprint != filter.Fingerprint {
			continue
		}
		out = append(out, s)
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}

	m.record(principal, "solution_read", "list", "", "solution", true, "")
	if m.metrics != nil {
		m.metrics.RecordRead(filter.Agent, time.Now())
	}
	return types.Ok(out)
}

func (m *MemoryStore) DeleteSolution(principal types.Principal, agent, ownerID, id string) types.Result {
	res := &types.Resource{ProjectID: m.projectID, AgentName: agent, OwnerID: ownerID, Kind: "solution", ID: id}
	if err := m.access.RequireAccess(principal, security.OpSolutionDelete, res); err != nil {
		m.record(principal, "solution_deleted", "delete", id, "solution", false, err.Error())
		return types.Fail(err)
	}
	key := solutionKey(agent, id)
	if err := m.engine.Delete(key); err != nil {
		m.record(principal, "solution_deleted", "delete", id, "solution", false, err.Error())
		return types.Fail(err)
	}
	m.caches.Solutions.Delete(key)
	m.record(principal, "solution_deleted", "delete", id, "solution", true, "")
	return types.Ok(nil)
}

// AddDecision appends a decision. Decisions are append-only: an
// existing ID may only be superseded via SupersedesID, never
// overwritten in place.
func (m *MemoryStore) AddDecision(principal types.Principal, decision types.Decision) types.Result {
	res := &types.Resource{ProjectID: m.projectID, AgentName: decision.Agent, OwnerID: principal.UserID, Kind: "decision", ID: decision.ID}
	if err := m.access.RequireAccess(principal, security.OpDecisionWrite, res); err != nil {
		m.record(principal, "decision_created", "create", decision.ID, "decision", false, err.Error())
		return types.Fail(err)
	}

	if decision.ID == "" {
		decision.ID = uuid.NewString()
	}
	if decision.Timestamp.IsZero() {
		decision.Timestamp = time.Now()
	}

	key := decisionKey(decision.Agent, decision.ID)
	if m.engine.Exists(key) {
		err := types.NewError(types.ErrAlreadyExists, "decision %s already exists; use supersedesId to revise", decision.ID)
		m.record(principal, "decision_created", "create", decision.ID, "decision", false, err.Error())
		return types.Fail(err)
	}

	if verr := decision.Validate(); verr != nil {
		m.record(principal, "decision_created", "create", decision.ID, "decision", false, verr.Error())
		return types.Fail(verr)
	}

	data, jerr := json.Marshal(decision)
	if jerr != nil {
		return types.Fail(types.NewError(types.ErrInternal, "encode decision: %v", jerr))
	}

	encCtx := security.DeriveAgentContext(decision.Agent, m.projectID)
	if err := m.engine.Put(key, data, encCtx); err != nil {
		m.record(principal, "decision_created", "create", decision.ID, "decision", false, err.Error())
		return types.Fail(err)
	}

	m.caches.Decisions.Set(key, decision)
	m.record(principal, "decision_created", "create", decision.ID, "decision", true, "")
	m.publish(events.SubjectDecisionWritten, events.WriteEvent{
		Agent: decision.Agent, ResourceID: decision.ID, ResourceType: "decision", Timestamp: decision.Timestamp,
	})
	if m.metrics != nil {
		m.metrics.RecordWrite(decision.Agent, "decision", 0, 0, time.Now())
	}
	return types.Ok(decision)
}

func (m *MemoryStore) GetDecisions(principal types.Principal, filter types.DecisionFilter) types.Result {
	res := &types.Resource{ProjectID: m.projectID, AgentName: filter.Agent, Kind: "decision"}
	if err := m.access.RequireAccess(principal, security.OpDecisionRead, res); err != nil {
		m.record(principal, "decision_read", "list", "", "decision", false, err.Error())
		return types.Fail(err)
	}

	keys, lerr := m.engine.List(filter.Agent + "/decisions/")
	if lerr != nil {
		m.record(principal, "decision_read", "list", "", "decision", false, lerr.Error())
		return types.Fail(lerr)
	}

	encCtx := security.DeriveAgentContext(filter.Agent, m.projectID)
	out := make([]types.Decision, 0, len(keys))
	for _, k := range keys {
		var d types.Decision
		if cached, ok := m.caches.Decisions.Get(k); ok {
			d = cached.(types.Decision)
		} else {
			data, gerr := m.engine.Get(k, encCtx)
			if gerr != nil {
				continue
			}
			if jerr := json.Unmarshal(data, &d); jerr != nil {
				continue
			}
			m.caches.Decisions.Set(k, d)
		}
		out = append(out, d)
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}

	m.record(principal, "decision_read", "list", "", "decision", true, "")
	if m.metrics != nil {
		m.metrics.RecordRead(filter.Agent, time.Now())
	}
	return types.Ok(out)
}

// SetGlobalData and GetGlobalData operate on the shared global/
// partition, keyed under the project's own encryption context (no
// per-agent scoping applies there).
func (m *MemoryStore) SetGlobalData(principal types.Principal, key string, value []byte) types.Result {
	res := &types.Resource{ProjectID: m.projectID, Kind: "global", ID: key}
	if err := m.access.RequireAccess(principal, security.OpConfigWrite, res); err != nil {
		m.record(principal, "global_write", "set", key, "global", false, err.Error())
		return types.Fail(err)
	}
	encCtx := security.DeriveProjectContext(m.projectID)
	if err := m.engine.SetGlobal(key, value, encCtx); err != nil {
		m.record(principal, "global_write", "set", key, "global", false, err.Error())
		return types.Fail(err)
	}
	m.record(principal, "global_write", "set", key, "global", true, "")
	return types.Ok(nil)
}

func (m *MemoryStore) GetGlobalData(principal types.Principal, key string) types.Result {
	res := &types.Resource{ProjectID: m.projectID, Kind: "global", ID: key}
	if err := m.access.RequireAccess(principal, security.OpConfigRead, res); err != nil {
		m.record(principal, "global_read", "get", key, "global", false, err.Error())
		return types.Fail(err)
	}
	encCtx := security.DeriveProjectContext(m.projectID)
	data, err := m.engine.GetGlobal(key, encCtx)
	if err != nil {
		m.record(principal, "global_read", "get", key, "global", false, err.Error())
		return types.Fail(err)
	}
	m.record(principal, "global_read", "get", key, "global", true, "")
	return types.Ok(data)
}

// EnsureAgentDirectory pre-creates an agent's partition tree, used on
// first contact with a new agent.
func (m *MemoryStore) EnsureAgentDirectory(principal types.Principal, agent string) types.Result {
	res := &types.Resource{ProjectID: m.projectID, AgentName: agent, Kind: "agent"}
	if err := m.access.RequireAccess(principal, security.OpPatternWrite, res); err != nil {
		return types.Fail(err)
	}
	if err := m.engine.EnsureAgentDirectory(agent); err != nil {
		return types.Fail(err)
	}
	return types.Ok(nil)
}

// ExportMemory dumps an agent's full pattern/solution/decision set as
// one JSON document, for backup staging or cross-agent sharing.
func (m *MemoryStore) ExportMemory(principal types.Principal, agent string) types.Result {
	res := &types.Resource{ProjectID: m.projectID, AgentName: agent, Kind: "agent"}
	if err := m.access.RequireAccess(principal, security.OpMemoryExport, res); err != nil {
		m.record(principal, "memory_export", "export", agent, "agent", false, err.Error())
		return types.Fail(err)
	}

	patterns := m.GetPatterns(principal, types.PatternFilter{Agent: agent})
	solutions := m.GetSolutions(principal, types.SolutionFilter{Agent: agent})
	decisions := m.GetDecisions(principal, types.DecisionFilter{Agent: agent})

	if !patterns.Success || !solutions.Success || !decisions.Success {
		err := types.NewError(types.ErrInternal, "export failed to gather one or more collections")
		m.record(principal, "memory_export", "export", agent, "agent", false, err.Error())
		return types.Fail(err)
	}

	export := map[string]interface{}{
		"agent":     agent,
		"patterns":  patterns.Data,
		"solutions": solutions.Data,
		"decisions": decisions.Data,
	}
	m.record(principal, "memory_export", "export", agent, "agent", true, "")
	return types.Ok(export)
}

// RecordUsageFeedback reports the observed outcome of an agent acting
// on a previously retrieved pattern, publishing it for the
// reinforcement-learning dispatcher to fold into reward shaping (spec
// §4.9's usage-feedback loop).
func (m *MemoryStore) RecordUsageFeedback(principal types.Principal, agent, patternID string, success bool, timeSavedMs float64) types.Result {
	res := &types.Resource{ProjectID: m.projectID, AgentName: agent, Kind: "pattern", ID: patternID}
	if err := m.access.RequireAccess(principal, security.OpPatternWrite, res); err != nil {
		m.record(principal, "usage_feedback", "feedback", patternID, "pattern", false, err.Error())
		return types.Fail(err)
	}

	now := time.Now()
	m.publish(events.SubjectUsageFeedback, events.UsageFeedbackEvent{
		Agent: agent, PatternID: patternID, Success: success, TimeSavedMs: timeSavedMs, Timestamp: now,
	})
	m.record(principal, "usage_feedback", "feedback", patternID, "pattern", true, "")
	return types.Ok(nil)
}

// ClearMemory deletes every pattern, solution, and decision for an
// agent. This is an admin-only destructive operation (spec §4.3).
func (m *MemoryStore) ClearMemory(principal types.Principal, agent string) types.Result {
	res := &types.Resource{ProjectID: m.projectID, AgentName: agent, Kind: "agent"}
	if err := m.access.RequireAccess(principal, security.OpMemoryClear, res); err != nil {
		m.record(principal, "memory_cleared", "clear", agent, "agent", false, err.Error())
		return types.Fail(err)
	}

	removed := 0
	for _, sub := range []string{"patterns", "solutions", "decisions"} {
		keys, lerr := m.engine.List(agent + "/" + sub + "/")
		if lerr != nil {
			m.record(principal, "memory_cleared", "clear", agent, "agent", false, lerr.Error())
			return types.Fail(lerr)
		}
		for _, k := range keys {
			if err := m.engine.Delete(k); err != nil {
				m.record(principal, "memory_cleared", "clear", agent, "agent", false, err.Error())
				return types.Fail(err)
			}
			m.caches.Patterns.Delete(k)
			m.caches.Solutions.Delete(k)
			m.caches.Decisions.Delete(k)
			removed++
		}
	}

	m.record(principal, "memory_cleared", "clear", agent, "agent", true, "")
	return types.Ok(map[string]int{"removed": removed})
}
