// Package config defines the AML configuration schema: defaults,
// validation, and per-agent overrides, loaded from YAML the same way
// the teacher's CLI config layer loads its own settings.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ValidationError is one structured config problem, per spec §6.
type ValidationError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// BackupSchedule enumerates the allowed backup cadences.
type BackupSchedule string

const (
	ScheduleHourly BackupSchedule = "hourly"
	ScheduleDaily  BackupSchedule = "daily"
	ScheduleWeekly BackupSchedule = "weekly"
)

// StorageConfig configures the filesystem storage engine.
type StorageConfig struct {
	Backend        string         `yaml:"backend"`
	Path           string         `yaml:"path"`
	Encryption     bool           `yaml:"encryption"`
	Compression    bool           `yaml:"compression"`
	MaxSizeGB      float64        `yaml:"maxSizeGb"`
	BackupEnabled  bool           `yaml:"backupEnabled"`
	BackupPath     string         `yaml:"backupPath"`
	BackupSchedule BackupSchedule `yaml:"backupSchedule"`
}

// LearningConfig configures the closed-form learning algorithms.
type LearningConfig struct {
	MinConfidence      float64 `yaml:"minConfidence"`
	PromotionThreshold int     `yaml:"promotionThreshold"`
	LearningRate       float64 `yaml:"learningRate"`
	DiscountFactor     float64 `yaml:"discountFactor"`
	ExplorationRate    float64 `yaml:"explorationRate"`
}

// PruningConfig configures the entity-pruning sweep.
type PruningConfig struct {
	Enabled       bool    `yaml:"enabled"`
	Schedule      string  `yaml:"schedule"`
	MaxAgeDays    int     `yaml:"maxAgeDays"`
	MinConfidence float64 `yaml:"minConfidence"`
	MinUsageRate  float64 `yaml:"minUsageRate"`
	AggressiveMode bool   `yaml:"aggressiveMode"`
}

// Telemetry controls how much cross-agent sharing metadata leaves the process.
type Telemetry string

const (
	TelemetryNone      Telemetry = "none"
	TelemetryAnonymous Telemetry = "anonymous"
	TelemetryFull      Telemetry = "full"
)

// SharingConfig configures cross-agent/cross-project pattern sharing.
type SharingConfig struct {
	CrossAgent   bool      `yaml:"crossAgent"`
	CrossProject bool      `yaml:"crossProject"`
	Telemetry    Telemetry `yaml:"telemetry"`
	SyncEnabled  bool      `yaml:"syncEnabled"`
}

// PerformanceConfig configures the cache layer and per-call deadlines.
type PerformanceConfig struct {
	CacheEnabled     bool `yaml:"cacheEnabled"`
	CacheMaxSizeMB   int  `yaml:"cacheMaxSizeMb"`
	CacheTTLSeconds  int  `yaml:"cacheTtlSeconds"`
	QueryTimeoutMs   int  `yaml:"queryTimeoutMs"`
	WriteTimeoutMs   int  `yaml:"writeTimeoutMs"`
	IndexingEnabled  bool `yaml:"indexingEnabled"`
}

// AgentOverride is a partial configuration applied on top of the
// defaults for one named agent.
type AgentOverride struct {
	Storage          *StorageConfig     `yaml:"storage,omitempty"`
	Learning         *LearningConfig    `yaml:"learning,omitempty"`
	Pruning          *PruningConfig     `yaml:"pruning,omitempty"`
	Sharing          *SharingConfig     `yaml:"sharing,omitempty"`
	Performance      *PerformanceConfig `yaml:"performance,omitempty"`
	MemoryLimitMB    int                `yaml:"memoryLimitMb,omitempty"`
	FocusAreas       []string           `yaml:"focusAreas,omitempty"`
	MaxPatternCount  int                `yaml:"maxPatternCount,omitempty"`
	MaxSolutionCount int                `yaml:"maxSolutionCount,omitempty"`
	MaxDecisionCount int                `yaml:"maxDecisionCount,omitempty"`
}

// Config is the full AML configuration tree.
type Config struct {
	Storage        StorageConfig            `yaml:"storage"`
	Learning       LearningConfig           `yaml:"learning"`
	Pruning        PruningConfig            `yaml:"pruning"`
	Sharing        SharingConfig            `yaml:"sharing"`
	Performance    PerformanceConfig        `yaml:"performance"`
	AgentOverrides map[string]AgentOverride `yaml:"agentOverrides"`
}

// Default returns the configuration with every spec-mandated default
// applied (spec §6, defaults in parentheses).
func Default() Config {
	return Config{
		Storage: StorageConfig{
			Backend:        "filesystem",
			Path:           "./memory",
			Encryption:     true,
			Compression:    true,
			MaxSizeGB:      1,
			BackupEnabled:  true,
			BackupPath:     "./memory/backups",
			BackupSchedule: ScheduleDaily,
		},
		Learning: LearningConfig{
			MinConfidence:      0.3,
			PromotionThreshold: 3,
			LearningRate:       0.1,
			DiscountFactor:     0.9,
			ExplorationRate:    0.2,
		},
		Pruning: PruningConfig{
			Enabled:       true,
			Schedule:      "daily",
			MaxAgeDays:    90,
			MinConfidence: 0.2,
			MinUsageRate:  0.1,
		},
		Sharing: SharingConfig{
			CrossAgent:   true,
			CrossProject: false,
			Telemetry:    TelemetryNone,
			SyncEnabled:  false,
		},
		Performance: PerformanceConfig{
			CacheEnabled:    true,
			CacheMaxSizeMB:  100,
			CacheTTLSeconds: 3600,
			QueryTimeoutMs:  50,
			WriteTimeoutMs:  100,
			IndexingEnabled: true,
		},
		AgentOverrides: map[string]AgentOverride{},
	}
}

// Load reads YAML from path, merges it deterministically onto Default(),
// validates the result, and returns the merged config or the
// validation errors.
func Load(path string) (Config, []ValidationError) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, []ValidationError{{Path: "file", Message: err.Error()}}
	}

	var overlay Config
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return cfg, []ValidationError{{Path: "yaml", Message: err.Error()}}
	}

	merge(&cfg, overlay)

	if errs := Validate(cfg); len(errs) > 0 {
		return cfg, errs
	}
	return cfg, nil
}

// merge replaces whole sections of base with overlay's: Storage when
// Backend is set, Learning when any of its fields is set, Pruning when
// MaxAgeDays is set, Sharing when Telemetry is set, and Performance when
// CacheMaxSizeMB is set. A section whose marker field is unset keeps
// base's values; inside a replaced section, fields the overlay leaves
// unset take their zero values, not the defaults. Agent overrides are
// copied per agent.
func merge(base *Config, overlay Config) {
	if overlay.Storage.Backend != "" {
		base.Storage = overlay.Storage
	}
	if overlay.Learning != (LearningConfig{}) {
		base.Learning = overlay.Learning
	}
	if overlay.Pruning.MaxAgeDays != 0 {
		base.Pruning = overlay.Pruning
	}
	if overlay.Sharing.Telemetry != "" {
		base.Sharing = overlay.Sharing
	}
	if overlay.Performance.CacheMaxSizeMB != 0 {
		base.Performance = overlay.Performance
	}
	for agent, ov := range overlay.AgentOverrides {
		base.AgentOverrides[agent] = ov
	}
}

// Validate checks the merged config against the schema's structural
// rules, returning every violation rather than failing fast.
func Validate(c Config) []ValidationError {
	var errs []ValidationError

	if c.Storage.Backend != "filesystem" {
		errs = append(errs, ValidationError{"storage.backend", "only \"filesystem\" is supported"})
	}
	if c.Storage.Path == "" {
		errs = append(errs, ValidationError{"storage.path", "must not be empty"})
	}
	if c.Storage.MaxSizeGB <= 0 {
		errs = append(errs, ValidationError{"storage.maxSizeGb", "must be > 0"})
	}
	switch c.Storage.BackupSchedule {
	case ScheduleHourly, ScheduleDaily, ScheduleWeekly:
	default:
		errs = append(errs, ValidationError{"storage.backupSchedule", "must be one of hourly, daily, weekly"})
	}

	if c.Learning.MinConfidence < 0 || c.Learning.MinConfidence > 1 {
		errs = append(errs, ValidationError{"learning.minConfidence", "must be in [0,1]"})
	}
	if c.Learning.LearningRate <= 0 || c.Learning.LearningRate > 1 {
		errs = append(errs, ValidationError{"learning.learningRate", "must be in (0,1]"})
	}
	if c.Learning.DiscountFactor < 0 || c.Learning.DiscountFactor >= 1 {
		errs = append(errs, ValidationError{"learning.discountFactor", "must be in [0,1)"})
	}
	if c.Learning.ExplorationRate < 0 || c.Learning.ExplorationRate > 1 {
		errs = append(errs, ValidationError{"learning.explorationRate", "must be in [0,1]"})
	}

	if c.Pruning.MaxAgeDays < 0 {
		errs = append(errs, ValidationError{"pruning.maxAgeDays", "must be >= 0"})
	}

	switch c.Sharing.Telemetry {
	case TelemetryNone, TelemetryAnonymous, TelemetryFull:
	default:
		errs = append(errs, ValidationError{"sharing.telemetry", "must be one of none, anonymous, full"})
	}

	if c.Performance.CacheMaxSizeMB < 0 {
		errs = append(errs, ValidationError{"performance.cacheMaxSizeMb", "must be >= 0"})
	}
	if c.Performance.QueryTimeoutMs <= 0 {
		errs = append(errs, ValidationError{"performance.queryTimeoutMs", "must be > 0"})
	}
	if c.Performance.WriteTimeoutMs <= 0 {
		errs = append(errs, ValidationError{"performance.writeTimeoutMs", "must be > 0"})
	}

	return errs
}

// ForAgent returns the effective config for a named agent, applying
// its override (if any) on top of the base config.
func (c Config) ForAgent(agent string) Config {
	ov, ok := c.AgentOverrides[agent]
	if !ok {
		return c
	}
	effective := c
	if ov.Storage != nil {
		effective.Storage = *ov.Storage
	}
	if ov.Learning != nil {
		effective.Learning = *ov.Learning
	}
	if ov.Pruning != nil {
		effective.Pruning = *ov.Pruning
	}
	if ov.Sharing != nil {
		effective.Sharing = *ov.Sharing
	}
	if ov.Performance != nil {
		effective.Performance = *ov.Performance
	}
	return effective
}

// MaxPatternCount returns the agent's pattern-count ceiling, defaulting
// to 500 per spec §6.
func (c Config) MaxPatternCount(agent string) int {
	if ov, ok := c.AgentOverrides[agent]; ok && ov.MaxPatternCount > 0 {
		return ov.MaxPatternCount
	}
	return 500
}

func (c Config) MaxSolutionCount(agent string) int {
	if ov, ok := c.AgentOverrides[agent]; ok && ov.MaxSolutionCount > 0 {
		return ov.MaxSolutionCount
	}
	return 300
}

func (c Config) MaxDecisionCount(agent string) int {
	if ov, ok := c.AgentOverrides[agent]; ok && ov.MaxDecisionCount > 0 {
		return ov.MaxDecisionCount
	}
	return 200
}
