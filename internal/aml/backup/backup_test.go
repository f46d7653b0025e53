package backup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aml-core/agentmemory/internal/aml/types"
)

func setupSource(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "aml-backup-src-*")
	if err != nil {
		t.Fatalf("mkdir temp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	if err := os.MkdirAll(filepath.Join(dir, "agent-1", "patterns"), 0o755); err != nil {
		t.Fatalf("mkdir patterns: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "agent-1", "patterns", "p1.json"), []byte(`{"id":"p1"}`), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	return dir
}

func TestFullBackupRoundTrip(t *testing.T) {
	src := setupSource(t)
	backupDir, err := os.MkdirTemp("", "aml-backup-dst-*")
	if err != nil {
		t.Fatalf("mkdir temp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(backupDir) })

	m := New(src, backupDir)
	desc, err := m.CreateFullBackup("b1")
	if err != nil {
		t.Fatalf("create full backup: %v", err)
	}
	if desc.FileCount() != 1 {
		t.Fatalf("expected one file in backup, got %d", desc.FileCount())
	}
	if len(desc.AgentsIncluded) != 1 || desc.AgentsIncluded[0] != "agent-1" {
		t.Fatalf("expected agent-1 included, got %+v", desc.AgentsIncluded)
	}

	if err := m.ValidateBackup("b1"); err != nil {
		t.Fatalf("validate backup: %v", err)
	}

	destRoot, err := os.MkdirTemp("", "aml-backup-restore-*")
	if err != nil {
		t.Fatalf("mkdir temp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(destRoot) })

	if err := m.Restore("b1", destRoot, RestoreOptions{}); err != nil {
		t.Fatalf("restore: %v", err)
	}
	restored, err := os.ReadFile(filepath.Join(destRoot, "agent-1", "patterns", "p1.json"))
	if err != nil {
		t.Fatalf("read restored file: %v", err)
	}
	if string(restored) != `{"id":"p1"}` {
		t.Fatalf("unexpected restored content: %s", restored)
	}
}

func TestRestoreToPointInTimeDropsFilesAddedAfterTheTargetBackup(t *testing.T) {
	src := setupSource(t)
	backupDir, err := os.MkdirTemp("", "aml-backup-dst-*")
	if err != nil {
		t.Fatalf("mkdir temp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(backupDir) })

	m := New(src, backupDir)
	if _, err := m.CreateFullBackup("b1"); err != nil {
		t.Fatalf("create full backup: %v", err)
	}
	t1 := time.Now()
	time.Sleep(5 * time.Millisecond)

	// p2 is added to the source tree after B1, and never backed up.
	if err := os.WriteFile(filepath.Join(src, "agent-1", "patterns", "p2.json"), []byte(`{"id":"p2"}`), 0o644); err != nil {
		t.Fatalf("write p2: %v", err)
	}

	// destRoot stands in for the live memory tree: it already has both
	// p1 and p2 on disk, mirroring state that has diverged from B1.
	destRoot, err := os.MkdirTemp("", "aml-backup-restore-*")
	if err != nil {
		t.Fatalf("mkdir temp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(destRoot) })
	if err := os.MkdirAll(filepath.Join(destRoot, "agent-1", "patterns"), 0o755); err != nil {
		t.Fatalf("mkdir patterns: %v", err)
	}
	if err := os.WriteFile(filepath.Join(destRoot, "agent-1", "patterns", "p1.json"), []byte(`{"id":"p1"}`), 0o644); err != nil {
		t.Fatalf("seed p1: %v", err)
	}
	if err := os.WriteFile(filepath.Join(destRoot, "agent-1", "patterns", "p2.json"), []byte(`{"id":"p2"}`), 0o644); err != nil {
		t.Fatalf("seed p2: %v", err)
	}

	if err := m.RestoreToPointInTime(t1, destRoot, RestoreOptions{CreateBackupBeforeRestore: true}); err != nil {
		t.Fatalf("restore to point in time: %v", err)
	}

	if _, err := os.Stat(filepath.Join(destRoot, "agent-1", "patterns", "p1.json")); err != nil {
		t.Fatalf("expected p1 to survive restore: %v", err)
	}
	if _, err := os.Stat(filepath.Join(destRoot, "agent-1", "patterns", "p2.json")); !os.IsNotExist(err) {
		t.Fatalf("expected p2 to be removed by restore, stat err: %v", err)
	}
}

func TestRestoreRefusesConflictWithoutPreRestoreBackup(t *testing.T) {
	src := setupSource(t)
	backupDir, err := os.MkdirTemp("", "aml-backup-dst-*")
	if err != nil {
		t.Fatalf("mkdir temp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(backupDir) })

	m := New(src, backupDir)
	if _, err := m.CreateFullBackup("b1"); err != nil {
		t.Fatalf("create full backup: %v", err)
	}

	destRoot, err := os.MkdirTemp("", "aml-backup-restore-*")
	if err != nil {
		t.Fatalf("mkdir temp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(destRoot) })
	if err := os.MkdirAll(filepath.Join(destRoot, "agent-1", "patterns"), 0o755); err != nil {
		t.Fatalf("mkdir patterns: %v", err)
	}
	if err := os.WriteFile(filepath.Join(destRoot, "agent-1", "patterns", "stray.json"), []byte(`{}`), 0o644); err != nil {
		t.Fatalf("seed stray file: %v", err)
	}

	err = m.Restore("b1", destRoot, RestoreOptions{})
	if err == nil {
		t.Fatal("expected restore onto a non-empty destination to be refused")
	}
	if amlErr := types.AsError(err); amlErr == nil || amlErr.Kind != types.ErrRestoreConflict {
		t.Fatalf("expected ErrRestoreConflict, got %v", err)
	}
}

func TestValidateBackupDetectsCorruption(t *testing.T) {
	src := setupSource(t)
	backupDir, err := os.MkdirTemp("", "aml-backup-dst-*")
	if err != nil {
		t.Fatalf("mkdir temp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(backupDir) })

	m := New(src, backupDir)
	if _, err := m.CreateFullBackup("b1"); err != nil {
		t.Fatalf("create full backup: %v", err)
	}

	archivePath := filepath.Join(backupDir, "b1.tar.gz")
	if err := os.WriteFile(archivePath, []byte("corrupted"), 0o644); err != nil {
		t.Fatalf("corrupt archive: %v", err)
	}

	if err := m.ValidateBackup("b1"); err == nil {
		t.Fatal("expected validation to fail on corrupted archive")
	}
}

func TestKeepLastNBackups(t *testing.T) {
	src := setupSource(t)
	backupDir, err := os.MkdirTemp("", "aml-backup-dst-*")
	if err != nil {
		t.Fatalf("mkdir temp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(backupDir) })

	m := New(src, backupDir)
	for _, id := range []string{"b1", "b2", "b3"} {
		if _, err := m.CreateFullBackup(id); err != nil {
			t.Fatalf("create backup %s: %v", id, err)
		}
		time.Sleep(time.Millisecond)
	}

	removed, err := m.KeepLastNBackups(1)
	if err != nil {
		t.Fatalf("keep last n: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}

	all, err := m.ListBackups()
	if err != nil {
		t.Fatalf("list backups: %v", err)
	}
	if len(all) != 1 || all[0].BackupID != "b3" {
		t.Fatalf("expected only b3 to remain, got %+v", all)
	}
}
