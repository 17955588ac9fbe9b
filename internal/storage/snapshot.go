package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// maxAutoSnapshots bounds how many automatic snapshots are retained.
const maxAutoSnapshots = 5

const autoSnapshotPrefix = "auto-"

// ErrSnapshotExists is returned when a snapshot label is already taken.
var ErrSnapshotExists = errors.New("snapshot already exists")

// SnapshotInfo describes a database snapshot on disk.
type SnapshotInfo struct {
	CreatedAt time.Time
	Label     string
	Path      string
	Size      int64
	IsAuto    bool
}

func (s *SQLiteStorage) snapshotDir() string {
	return filepath.Join(filepath.Dir(s.dbPath), "snapshots")
}

// Snapshot copies the database to snapshots/<label>.db next to the database file.
func (s *SQLiteStorage) Snapshot(ctx context.Context, label string) (*SnapshotInfo, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if label == "" {
		label = "snapshot-" + time.Now().Format("2006-01-02-150405")
	}
	if strings.ContainsAny(label, `/\'";`) || strings.Contains(label, "..") {
		return nil, fmt.Errorf("invalid snapshot label %q", label)
	}

	dir := s.snapshotDir()
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	dest, err := filepath.Abs(filepath.Join(dir, label+".db"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve snapshot path: %w", err)
	}
	if strings.ContainsAny(dest, `'";`) {
		return nil, fmt.Errorf("invalid snapshot path %q", dest)
	}
	if _, err := os.Stat(dest); err == nil {
		return nil, ErrSnapshotExists
	}

	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return nil, fmt.Errorf("failed to checkpoint WAL: %w", mapError(err))
	}
	// #nosec G201 - dest is validated above
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", dest)); err != nil {
		return nil, fmt.Errorf("failed to snapshot database: %w", mapError(err))
	}

	info, err := os.Stat(dest)
	if err != nil {
		return nil, fmt.Errorf("failed to stat snapshot: %w", err)
	}
	return &SnapshotInfo{
		Label:     label,
		Path:      dest,
		Size:      info.Size(),
		CreatedAt: info.ModTime(),
		IsAuto:    strings.HasPrefix(label, autoSnapshotPrefix),
	}, nil
}

// AutoSnapshot takes a snapshot before a destructive operation and prunes old
// automatic snapshots.
func (s *SQLiteStorage) AutoSnapshot(ctx context.Context, operation string) (*SnapshotInfo, error) {
	label := fmt.Sprintf("%s%s-%s", autoSnapshotPrefix, operation, time.Now().Format("2006-01-02-150405.000000000"))
	info, err := s.Snapshot(ctx, label)
	if err != nil {
		return nil, fmt.Errorf("failed to create automatic snapshot: %w", err)
	}

	if err := s.pruneAutoSnapshots(); err != nil {
		slog.Warn("failed to prune automatic snapshots", "error", err)
	}
	return info, nil
}

// ListSnapshots returns the snapshots on disk, newest first.
func (s *SQLiteStorage) ListSnapshots() ([]SnapshotInfo, error) {
	entries, err := os.ReadDir(s.snapshotDir())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot directory: %w", err)
	}

	var snapshots []SnapshotInfo
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".db" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		label := strings.TrimSuffix(entry.Name(), ".db")
		snapshots = append(snapshots, SnapshotInfo{
			Label:     label,
			Path:      filepath.Join(s.snapshotDir(), entry.Name()),
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
			IsAuto:    strings.HasPrefix(label, autoSnapshotPrefix),
		})
	}

	sort.Slice(snapshots, func(i, j int) bool {
		if snapshots[i].CreatedAt.Equal(snapshots[j].CreatedAt) {
			return snapshots[i].Label > snapshots[j].Label
		}
		return snapshots[i].CreatedAt.After(snapshots[j].CreatedAt)
	})
	return snapshots, nil
}

func (s *SQLiteStorage) pruneAutoSnapshots() error {
	snapshots, err := s.ListSnapshots()
	if err != nil {
		return err
	}

	kept := 0
	for _, snap := range snapshots {
		if !snap.IsAuto {
			continue
		}
		kept++
		if kept <= maxAutoSnapshots {
			continue
		}
		if err := os.Remove(snap.Path); err != nil {
			slog.Debug("failed to remove old snapshot", "error", err, "snapshot", snap.Label)
		}
	}
	return nil
}
