package types

import "time"

// Approach captures the reusable technique inside a Pattern or Solution.
type Approach struct {
	Technique    string `json:"technique"`
	CodeTemplate string `json:"codeTemplate"`
	Rationale    string `json:"rationale"`
}

// Conditions records when a pattern does and doesn't apply.
type Conditions struct {
	WhenApplicable    []string `json:"whenApplicable"`
	WhenNotApplicable []string `json:"whenNotApplicable"`
}

// Metrics tracks observed outcomes for a Pattern/Solution.
type Metrics struct {
	SuccessRate           float64 `json:"successRate"`
	ExecutionCount        int     `json:"executionCount"`
	AvgTimeSavedMs        float64 `json:"avgTimeSavedMs"`
	ErrorPreventionCount  int     `json:"errorPreventionCount"`
}

// SuccessCount/FailureCount derive from SuccessRate and ExecutionCount,
// rounding toward the nearest consistent integer pair so the invariant
// ExecutionCount = SuccessCount + FailureCount holds.
func (m Metrics) SuccessCount() int {
	return int(m.SuccessRate*float64(m.ExecutionCount) + 0.5)
}

func (m Metrics) FailureCount() int {
	return m.ExecutionCount - m.SuccessCount()
}

// Evolution tracks a Pattern/Solution's lifecycle.
type Evolution struct {
	Created         time.Time `json:"created"`
	LastUsed        time.Time `json:"lastUsed"`
	Refinements     int       `json:"refinements"`
	ConfidenceScore float64   `json:"confidenceScore"`
}

// PatternBody is the `pattern` sub-object of a Pattern entity.
type PatternBody struct {
	Type       string   `json:"type"`
	Context    ValueMap `json:"context"`
	Approach   Approach `json:"approach"`
	Conditions Conditions `json:"conditions"`
}

// Pattern is a reusable technique extracted from repeated agent actions.
type Pattern struct {
	ID        string      `json:"id"`
	Agent     string      `json:"agent"`
	Timestamp time.Time   `json:"timestamp"`
	Pattern   PatternBody `json:"pattern"`
	Metrics   Metrics     `json:"metrics"`
	Evolution Evolution   `json:"evolution"`
}

// Validate enforces the structural and numeric invariants from spec §3.
func (p *Pattern) Validate() *Error {
	if p.ID == "" {
		return NewError(ErrValidation, "pattern id is required")
	}
	if p.Agent == "" {
		return NewError(ErrValidation, "pattern agent is required")
	}
	if p.Pattern.Type == "" {
		return NewError(ErrValidation, "pattern.type is required")
	}
	if p.Metrics.SuccessRate < 0 || p.Metrics.SuccessRate > 1 {
		return NewError(ErrValidation, "metrics.successRate must be in [0,1]")
	}
	if p.Metrics.ExecutionCount < 0 {
		return NewError(ErrValidation, "metrics.executionCount must be >= 0")
	}
	if p.Metrics.AvgTimeSavedMs < 0 {
		return NewError(ErrValidation, "metrics.avgTimeSavedMs must be >= 0")
	}
	if p.Evolution.ConfidenceScore < 0 || p.Evolution.ConfidenceScore > 1 {
		return NewError(ErrValidation, "evolution.confidenceScore must be in [0,1]")
	}
	if p.Evolution.LastUsed.Before(p.Evolution.Created) {
		return NewError(ErrValidation, "evolution.lastUsed must be >= evolution.created")
	}
	for _, v := range p.Pattern.Context {
		if err := v.Validate(); err != nil {
			return NewError(ErrValidation, "pattern.context: %v", err)
		}
	}
	return nil
}

// Problem describes the reproducible fingerprint a Solution addresses.
type Problem struct {
	Fingerprint string   `json:"fingerprint"`
	Symptoms    []string `json:"symptoms"`
}

// Fix is the concrete remedy applied by a Solution.
type Fix struct {
	Diff         string `json:"diff,omitempty"`
	Steps        []string `json:"steps,omitempty"`
	Verification string `json:"verification"`
}

// Solution is a concrete fix keyed by a problem fingerprint.
type Solution struct {
	ID        string    `json:"id"`
	Agent     string    `json:"agent"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Context   ValueMap  `json:"context"`
	Approach  Approach  `json:"approach"`
	Problem   Problem   `json:"problem"`
	Fix       Fix       `json:"fix"`
	Metrics   Metrics   `json:"metrics"`
	Evolution Evolution `json:"evolution"`
}

func (s *Solution) Validate() *Error {
	if s.ID == "" {
		return NewError(ErrValidation, "solution id is required")
	}
	if s.Agent == "" {
		return NewError(ErrValidation, "solution agent is required")
	}
	if s.Problem.Fingerprint == "" {
		return NewError(ErrValidation, "problem.fingerprint is required")
	}
	if s.Metrics.SuccessRate < 0 || s.Metrics.SuccessRate > 1 {
		return NewError(ErrValidation, "metrics.successRate must be in [0,1]")
	}
	return nil
}

// Decision is a durable, append-only architectural choice.
type Decision struct {
	ID             string    `json:"id"`
	Agent          string    `json:"agent"`
	Timestamp      time.Time `json:"timestamp"`
	Question       string    `json:"question"`
	ChosenOption   string    `json:"chosenOption"`
	Alternatives   []string  `json:"alternatives"`
	Rationale      string    `json:"rationale"`
	Consequences   []string  `json:"consequences"`
	References     []string  `json:"references"`
	SupersedesID   string    `json:"supersedesId,omitempty"`
}

func (d *Decision) Validate() *Error {
	if d.ID == "" {
		return NewError(ErrValidation, "decision id is required")
	}
	if d.Agent == "" {
		return NewError(ErrValidation, "decision agent is required")
	}
	if d.Question == "" {
		return NewError(ErrValidation, "decision question is required")
	}
	if d.ChosenOption == "" {
		return NewError(ErrValidation, "decision chosenOption is required")
	}
	return nil
}

// Complexity is the three-tier capability rating used by cross-agent
// learning's simplification logic.
type Complexity int

const (
	ComplexityBasic Complexity = iota
	ComplexityIntermediate
	ComplexityAdvanced
)

func ParseComplexity(s string) Complexity {
	switch s {
	case "advanced":
		return ComplexityAdvanced
	case "intermediate":
		return ComplexityIntermediate
	default:
		return ComplexityBasic
	}
}

// AgentProfile describes an agent for cross-agent learning.
type AgentProfile struct {
	Name         string     `json:"name"`
	Capabilities []string   `json:"capabilities"`
	Domains      []string   `json:"domains"`
	FocusAreas   []string   `json:"focusAreas"`
	Complexity   Complexity `json:"complexity"`
	LearningRate float64    `json:"learningRate"`
}

// TimeSeriesPoint is one observation in a per-pattern time series.
type TimeSeriesPoint struct {
	PatternID string    `json:"patternId"`
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	Metadata  ValueMap  `json:"metadata,omitempty"`
}

// AuditEvent is one append-only audit log entry.
type AuditEvent struct {
	ID            string   `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Type          string   `json:"type"`
	Agent         string   `json:"agent"`
	Action        string   `json:"action"`
	ResourceID    string   `json:"resourceId,omitempty"`
	ResourceType  string   `json:"resourceType,omitempty"`
	Success       bool     `json:"success"`
	Error         string   `json:"error,omitempty"`
	Metadata      ValueMap `json:"metadata,omitempty"`
	SensitiveData bool     `json:"sensitiveData,omitempty"`
	UserID        string   `json:"userId,omitempty"`
}

// BackupType distinguishes full from incremental archives.
type BackupType string

const (
	BackupFull        BackupType = "full"
	BackupIncremental BackupType = "incremental"
)

// BackupFileEntry records one archived file's checksum for validation.
type BackupFileEntry struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
}

// BackupDescriptor is the manifest written alongside each archive.
type BackupDescriptor struct {
	BackupID        string            `json:"backupId"`
	Timestamp       time.Time         `json:"timestamp"`
	Type            BackupType        `json:"type"`
	BaseBackupID    string            `json:"baseBackupId,omitempty"`
	Size            int64             `json:"size"`
	ArchiveChecksum string            `json:"archiveChecksum"`
	Files           []BackupFileEntry `json:"files"`
	AgentsIncluded  []string          `json:"agentsIncluded"`
}

func (b BackupDescriptor) FileCount() int { return len(b.Files) }
