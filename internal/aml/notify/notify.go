// Package notify alerts an operator when the learning/backup
// subsystems detect something that needs attention: a critical trend
// anomaly or a corrupt backup. It is adapted from the teacher's
// internal/notifications package (toast.go, banner.go) — the same
// Windows-guarded toast notifier plus an in-memory banner state a
// status surface can poll — generalized from "supervisor needs input"
// alerts to AML's own alert vocabulary.
package notify

import (
	"fmt"
	"log"
	"runtime"
	"sync"
	"time"

	"github.com/go-toast/toast"
)

// Severity mirrors the trend package's anomaly severity without
// importing it, so notify has no dependency on the learning modules —
// callers translate their own severity into this one.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Kind enumerates the events notify knows how to surface.
type Kind string

const (
	KindAnomaly           Kind = "anomaly"
	KindBackupCorruption  Kind = "backup_corruption"
	KindRestoreConflict   Kind = "restore_conflict"
)

// Alert is the most recent notification, retained for the operator
// status surface (api.Status) to poll without a push channel.
type Alert struct {
	Kind      Kind      `json:"kind"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Config configures the Notifier, matching the teacher's
// notifications.Config shape (app identity, dashboard URL, per-channel
// enable flags, logger).
type Config struct {
	AppID        string
	DashboardURL string
	EnableToast  bool
	MinSeverity  Severity
	Logger       *log.Logger
}

func (c Config) withDefaults() Config {
	if c.AppID == "" {
		c.AppID = "AML"
	}
	if c.DashboardURL == "" {
		c.DashboardURL = "http://localhost:8090"
	}
	if c.MinSeverity == "" {
		c.MinSeverity = SeverityHigh
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	return c
}

var severityRank = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// Notifier raises desktop toasts for severe events and retains the
// latest alert for the operator HTTP surface.
type Notifier struct {
	cfg Config
	mu  sync.RWMutex
	last *Alert
}

// New builds a Notifier. Toasts are only delivered on Windows: on other
// platforms, an alert that reaches MinSeverity while EnableToast is set
// makes the Notify call return an error. The alert is still recorded
// for the status surface either way.
func New(cfg Config) *Notifier {
	return &Notifier{cfg: cfg.withDefaults()}
}

func (n *Notifier) raise(kind Kind, severity Severity, message string) error {
	n.mu.Lock()
	n.last = &Alert{Kind: kind, Severity: severity, Message: message, Timestamp: time.Now()}
	n.mu.Unlock()

	if severityRank[severity] < severityRank[n.cfg.MinSeverity] {
		return nil
	}

	if !n.cfg.EnableToast {
		n.cfg.Logger.Printf("[AML-ALERT] %s (%s): %s", kind, severity, message)
		return nil
	}

	if err := n.showToast(kind, severity, message); err != nil {
		n.cfg.Logger.Printf("[AML-ALERT] toast delivery failed for %s: %v", kind, err)
		return fmt.Errorf("toast: %w", err)
	}
	n.cfg.Logger.Printf("[AML-ALERT] toast sent for %s (%s)", kind, severity)
	return nil
}

func (n *Notifier) showToast(kind Kind, severity Severity, message string) error {
	if runtime.GOOS != "windows" {
		return fmt.Errorf("toast notifications only supported on Windows")
	}
	notification := toast.Notification{
		AppID:   n.cfg.AppID,
		Title:   fmt.Sprintf("AML: %s", kind),
		Message: message,
		Audio:   toast.IM,
		Actions: []toast.Action{
			{Type: "protocol", Label: "Open Dashboard", Arguments: n.cfg.DashboardURL},
		},
	}
	return notification.Push()
}

// NotifyAnomaly alerts on a trend anomaly detected for patternID,
// dispatched by the trend tracker's caller once it classifies
// severity per spec §4.11.
func (n *Notifier) NotifyAnomaly(patternID string, severity Severity, description string) error {
	return n.raise(KindAnomaly, severity, fmt.Sprintf("pattern %s: %s", patternID, description))
}

// NotifyBackupCorruption alerts when ValidateBackup reports a checksum
// mismatch for backupID.
func (n *Notifier) NotifyBackupCorruption(backupID, reason string) error {
	return n.raise(KindBackupCorruption, SeverityCritical, fmt.Sprintf("backup %s failed validation: %s", backupID, reason))
}

// NotifyRestoreConflict alerts when Restore refuses because the live
// tree has unsaved changes and no pre-restore backup was requested.
func (n *Notifier) NotifyRestoreConflict(backupID string) error {
	return n.raise(KindRestoreConflict, SeverityHigh, fmt.Sprintf("restore of %s refused: unsaved changes in live tree", backupID))
}

// LastAlert returns the most recently raised alert, if any.
func (n *Notifier) LastAlert() (Alert, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.last == nil {
		return Alert{}, false
	}
	return *n.last, true
}

// ClearAlert discards the retained alert, mirroring the teacher's
// BannerNotifier.ClearAlert.
func (n *Notifier) ClearAlert() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.last = nil
}
