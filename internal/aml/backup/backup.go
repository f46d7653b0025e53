// Package backup implements the full/incremental backup manager from
// spec §4.6: tar archives of an agent's (or the whole project's)
// storage tree, SHA-256 manifests, and restore/validate operations.
package backup

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/aml-core/agentmemory/internal/aml/storage"
	"github.com/aml-core/agentmemory/internal/aml/types"
)

// Manager creates and restores backups of a storage root. It talks to
// the filesystem directly rather than through storage.Engine, since a
// backup must capture the raw on-disk records (including their
// encryption/compression envelope) verbatim.
type Manager struct {
	sourceRoot string
	backupRoot string
}

func New(sourceRoot, backupRoot string) *Manager {
	return &Manager{sourceRoot: sourceRoot, backupRoot: backupRoot}
}

// CreateFullBackup archives every file under sourceRoot into a single
// gzip-compressed tar, alongside a JSON manifest with per-file and
// archive checksums.
func (m *Manager) CreateFullBackup(id string) (*types.BackupDescriptor, error) {
	return m.createBackup(id, types.BackupFull, "", nil)
}

// CreateIncrementalBackup archives only files modified after
// base's backup descriptor was written.
func (m *Manager) CreateIncrementalBackup(id string, base *types.BackupDescriptor) (*types.BackupDescriptor, error) {
	if base == nil {
		return nil, fmt.Errorf("incremental backup requires a base descriptor")
	}
	cutoff := base.Timestamp
	return m.createBackup(id, types.BackupIncremental, base.BackupID, &cutoff)
}

func (m *Manager) createBackup(id string, kind types.BackupType, baseID string, since *time.Time) (*types.BackupDescriptor, error) {
	if err := os.MkdirAll(m.backupRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create backup root: %w", err)
	}

	archivePath := filepath.Join(m.backupRoot, id+".tar.gz")
	archiveFile, err := os.Create(archivePath)
	if err != nil {
		return nil, fmt.Errorf("create archive: %w", err)
	}
	defer archiveFile.Close()

	gz := gzip.NewWriter(archiveFile)
	tw := tar.NewWriter(gz)

	var files []types.BackupFileEntry
	agentSet := make(map[string]bool)

	err = filepath.Walk(m.sourceRoot, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if info.IsDir() {
			return nil
		}
		if since != nil && !info.ModTime().After(*since) {
			return nil
		}

		rel, relErr := filepath.Rel(m.sourceRoot, path)
		if relErr != nil {
			return relErr
		}

		data, rerr := os.ReadFile(path)
		if rerr != nil {
			return fmt.Errorf("read %s: %w", rel, rerr)
		}

		hdr := &tar.Header{
			Name: filepath.ToSlash(rel),
			Mode: int64(info.Mode().Perm()),
			Size: int64(len(data)),
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("write tar header for %s: %w", rel, err)
		}
		if _, err := tw.Write(data); err != nil {
			return fmt.Errorf("write tar body for %s: %w", rel, err)
		}

		sum := storage.Checksum(data)
		files = append(files, types.BackupFileEntry{Path: filepath.ToSlash(rel), SHA256: sum, Size: int64(len(data))})

		if agent := topLevelDir(rel); agent != "" && agent != "global" {
			agentSet[agent] = true
		}
		return nil
	})
	if err != nil {
		tw.Close()
		gz.Close()
		return nil, fmt.Errorf("walk source tree: %w", err)
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close tar writer: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("close gzip writer: %w", err)
	}

	info, err := os.Stat(archivePath)
	if err != nil {
		return nil, fmt.Errorf("stat archive: %w", err)
	}

	archiveData, err := os.ReadFile(archivePath)
	if err != nil {
		return nil, fmt.Errorf("read archive for checksum: %w", err)
	}

	agents := make([]string, 0, len(agentSet))
	for a := range agentSet {
		agents = append(agents, a)
	}
	sort.Strings(agents)

	desc := &types.BackupDescriptor{
		BackupID:        id,
		Timestamp:       time.Now(),
		Type:            kind,
		BaseBackupID:    baseID,
		Size:            info.Size(),
		ArchiveChecksum: storage.Checksum(archiveData),
		Files:           files,
		AgentsIncluded:  agents,
	}

	manifestData, merr := json.MarshalIndent(desc, "", "  ")
	if merr != nil {
		return nil, fmt.Errorf("encode manifest: %w", merr)
	}
	manifestPath := filepath.Join(m.backupRoot, id+".manifest.json")
	if err := os.WriteFile(manifestPath, manifestData, 0o644); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}

	return desc, nil
}

// ValidateBackup recomputes checksums for every archived file and the
// archive itself, reporting the first mismatch found.
func (m *Manager) ValidateBackup(id string) error {
	desc, err := m.loadManifest(id)
	if err != nil {
		return err
	}

	archivePath := filepath.Join(m.backupRoot, id+".tar.gz")
	archiveData, err := os.ReadFile(archivePath)
	if err != nil {
		return fmt.Errorf("read archive: %w", err)
	}
	if storage.Checksum(archiveData) != desc.ArchiveChecksum {
		return fmt.Errorf("archive checksum mismatch for backup %s", id)
	}

	entries, err := readTarEntries(archiveData)
	if err != nil {
		return fmt.Errorf("read tar entries: %w", err)
	}
	for _, f := range desc.Files {
		data, ok := entries[f.Path]
		if !ok {
			return fmt.Errorf("backup %s: manifest references missing file %s", id, f.Path)
		}
		if storage.Checksum(data) != f.SHA256 {
			return fmt.Errorf("backup %s: checksum mismatch for %s", id, f.Path)
		}
	}
	return nil
}

// RestoreOptions configures a Restore or RestoreToPointInTime call.
type RestoreOptions struct {
	// CreateBackupBeforeRestore snapshots the source tree into a fresh
	// full backup before the live tree is replaced. If destRoot already
	// holds files and this is false, the restore is refused with
	// types.ErrRestoreConflict rather than discarding live state.
	CreateBackupBeforeRestore bool
}

// Restore extracts the backup's archive into a staging directory, then
// atomically swaps it in for destRoot. Extracting to staging (rather
// than writing entries over the live tree) means files present at
// destRoot but absent from the backup do not survive the restore.
func (m *Manager) Restore(id string, destRoot string, opts RestoreOptions) error {
	if err := m.ValidateBackup(id); err != nil {
		return fmt.Errorf("refusing to restore invalid backup: %w", err)
	}

	archivePath := filepath.Join(m.backupRoot, id+".tar.gz")
	archiveData, err := os.ReadFile(archivePath)
	if err != nil {
		return fmt.Errorf("read archive: %w", err)
	}

	entries, err := readTarEntries(archiveData)
	if err != nil {
		return fmt.Errorf("read tar entries: %w", err)
	}

	return m.swapIn(entries, destRoot, opts)
}

// RestoreToPointInTime restores the newest backup whose timestamp is
// not after target, together with the chain of backups it was taken
// against: BaseBackupID links are followed back to the full backup and
// the chain is applied oldest first. The chain is merged into a single
// entry set in memory and applied as one atomic swap, rather than by
// re-running Restore per backup and risking a partially-restored tree
// becoming the "live state" the next step in the chain conflicts
// against. Incremental backups record no deletions, so a file held by
// an older backup in the chain is restored even if it was deleted
// before a newer one was taken.
func (m *Manager) RestoreToPointInTime(target time.Time, destRoot string, opts RestoreOptions) error {
	all, err := m.ListBackups()
	if err != nil {
		return err
	}

	var selected *types.BackupDescriptor
	byID := make(map[string]*types.BackupDescriptor, len(all))
	for _, d := range all {
		byID[d.BackupID] = d
		if !d.Timestamp.After(target) && (selected == nil || d.Timestamp.After(selected.Timestamp)) {
			selected = d
		}
	}
	if selected == nil {
		return fmt.Errorf("no backup found at or before %s", target)
	}
	var chain []*types.BackupDescriptor
	for d := selected; d != nil && len(chain) <= len(all); d = byID[d.BaseBackupID] {
		chain = append(chain, d)
	}
	sort.Slice(chain, func(i, j int) bool { return chain[i].Timestamp.Before(chain[j].Timestamp) })

	merged := make(map[string][]byte)
	for _, d := range chain {
		if err := m.ValidateBackup(d.BackupID); err != nil {
			return fmt.Errorf("refusing to restore invalid backup %s: %w", d.BackupID, err)
		}
		archivePath := filepath.Join(m.backupRoot, d.BackupID+".tar.gz")
		archiveData, err := os.ReadFile(archivePath)
		if err != nil {
			return fmt.Errorf("read archive %s: %w", d.BackupID, err)
		}
		entries, err := readTarEntries(archiveData)
		if err != nil {
			return fmt.Errorf("read tar entries for %s: %w", d.BackupID, err)
		}
		for path, data := range entries {
			merged[path] = data
		}
	}

	return m.swapIn(merged, destRoot, opts)
}

// swapIn extracts entries into a fresh staging directory beside
// destRoot and renames it into place, refusing the operation with
// types.ErrRestoreConflict when destRoot already holds files and the
// caller didn't ask for a pre-restore snapshot.
func (m *Manager) swapIn(entries map[string][]byte, destRoot string, opts RestoreOptions) error {
	hasLiveState, err := dirHasFiles(destRoot)
	if err != nil {
		return fmt.Errorf("inspect destination: %w", err)
	}
	if hasLiveState {
		if opts.CreateBackupBeforeRestore {
			preID := fmt.Sprintf("pre-restore-%d", time.Now().UnixNano())
			if _, err := m.CreateFullBackup(preID); err != nil {
				return fmt.Errorf("snapshot live tree before restore: %w", err)
			}
		} else {
			return types.NewError(types.ErrRestoreConflict, "destination %s holds live state; restore refused without createBackupBeforeRestore", destRoot)
		}
	}

	parent := filepath.Dir(destRoot)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("create destination parent: %w", err)
	}
	staging, err := os.MkdirTemp(parent, ".aml-restore-*")
	if err != nil {
		return fmt.Errorf("create staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	for rel, data := range entries {
		dest := filepath.Join(staging, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return fmt.Errorf("create directory for %s: %w", rel, err)
		}
		if err := os.WriteFile(dest, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", rel, err)
		}
	}

	oldPath := destRoot + ".aml-restore-old"
	os.RemoveAll(oldPath)

	if _, err := os.Stat(destRoot); err == nil {
		if err := os.Rename(destRoot, oldPath); err != nil {
			return fmt.Errorf("move aside existing tree: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat destination: %w", err)
	}

	if err := os.Rename(staging, destRoot); err != nil {
		if _, statErr := os.Stat(oldPath); statErr == nil {
			os.Rename(oldPath, destRoot)
		}
		return fmt.Errorf("swap staging directory into place: %w", err)
	}

	os.RemoveAll(oldPath)
	return nil
}

// dirHasFiles reports whether root exists and contains at least one
// regular file, used to decide whether a restore would clobber live
// state.
func dirHasFiles(root string) (bool, error) {
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if !info.IsDir() {
		return true, nil
	}

	found := false
	walkErr := filepath.Walk(root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path != root && !fi.IsDir() {
			found = true
			return filepath.SkipAll
		}
		return nil
	})
	if walkErr != nil {
		return false, walkErr
	}
	return found, nil
}

// ListBackups returns every backup manifest under backupRoot, oldest
// first.
func (m *Manager) ListBackups() ([]*types.BackupDescriptor, error) {
	entries, err := os.ReadDir(m.backupRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read backup root: %w", err)
	}

	const suffix = ".manifest.json"
	var descs []*types.BackupDescriptor
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || len(name) <= len(suffix) || name[len(name)-len(suffix):] != suffix {
			continue
		}
		id := name[:len(name)-len(suffix)]
		desc, derr := m.loadManifest(id)
		if derr != nil {
			continue
		}
		descs = append(descs, desc)
	}
	sort.Slice(descs, func(i, j int) bool { return descs[i].Timestamp.Before(descs[j].Timestamp) })
	return descs, nil
}

// DeleteBackup removes a backup's archive and manifest.
func (m *Manager) DeleteBackup(id string) error {
	archivePath := filepath.Join(m.backupRoot, id+".tar.gz")
	manifestPath := filepath.Join(m.backupRoot, id+".manifest.json")
	if err := os.Remove(archivePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove archive: %w", err)
	}
	if err := os.Remove(manifestPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove manifest: %w", err)
	}
	return nil
}

// DeleteBackupsOlderThan removes every backup whose timestamp precedes
// cutoff, returning how many were removed.
func (m *Manager) DeleteBackupsOlderThan(cutoff time.Time) (int, error) {
	all, err := m.ListBackups()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, d := range all {
		if d.Timestamp.Before(cutoff) {
			if err := m.DeleteBackup(d.BackupID); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

// KeepLastNBackups deletes every backup beyond the N most recent,
// oldest first.
func (m *Manager) KeepLastNBackups(n int) (int, error) {
	all, err := m.ListBackups()
	if err != nil {
		return 0, err
	}
	if len(all) <= n {
		return 0, nil
	}
	toRemove := all[:len(all)-n]
	for _, d := range toRemove {
		if err := m.DeleteBackup(d.BackupID); err != nil {
			return 0, err
		}
	}
	return len(toRemove), nil
}

// Summary renders a human-readable one-liner for a backup descriptor,
// used by the operator status API.
func Summary(d *types.BackupDescriptor) string {
	return fmt.Sprintf("%s (%s, %s, %d files, %s)", d.BackupID, d.Type, d.Timestamp.Format(time.RFC3339), d.FileCount(), humanize.Bytes(uint64(d.Size)))
}

func (m *Manager) loadManifest(id string) (*types.BackupDescriptor, error) {
	data, err := os.ReadFile(filepath.Join(m.backupRoot, id+".manifest.json"))
	if err != nil {
		return nil, types.NewError(types.ErrBackupNotFound, "backup %s: %v", id, err)
	}
	var desc types.BackupDescriptor
	if err := json.Unmarshal(data, &desc); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", id, err)
	}
	return &desc, nil
}

func readTarEntries(archiveData []byte) (map[string][]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(archiveData))
	if err != nil {
		return nil, err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	entries := make(map[string][]byte)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, err
		}
		entries[hdr.Name] = data
	}
	return entries, nil
}

func topLevelDir(rel string) string {
	rel = filepath.ToSlash(rel)
	for i := 0; i < len(rel); i++ {
		if rel[i] == '/' {
			return rel[:i]
		}
	}
	return ""
}
