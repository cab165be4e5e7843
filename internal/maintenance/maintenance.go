// Package maintenance runs background upkeep for panmix: a daily copy of
// the preferences file with age-based pruning.
package maintenance

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

	"github.com/jonboulle/clockwork"
)

const (
	backupPrefix = "device_preferences-"
	backupSuffix = ".json"

	// DefaultMaxAge is how long backups are kept.
	DefaultMaxAge = 30 * 24 * time.Hour
	// backupHour is the local hour the daily backup runs at.
	backupHour = 2
)

// Service copies the preferences file into a backup directory once a day.
type Service struct {
	source    string
	backupDir string
	maxAge    time.Duration
	clock     clockwork.Clock
}

// New creates a Service backing up source into backupDir. A nil clock
// uses the real clock.
func New(source, backupDir string, clock clockwork.Clock) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		source:    source,
		backupDir: backupDir,
		maxAge:    DefaultMaxAge,
		clock:     clock,
	}
}

// Start runs the daily backup until ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	for {
		timer := s.clock.NewTimer(nextRun(s.clock.Now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.Chan():
			path, err := s.RunBackupNow()
			switch {
			case errors.Is(err, os.ErrNotExist):
				slog.Debug("maintenance: nothing to back up yet", "source", s.source)
			case err != nil:
				slog.Error("maintenance: backup failed", "err", err)
			default:
				slog.Info("maintenance: backup created", "file", path)
			}
		}
	}
}

// nextRun returns the delay from now until the next backupHour.
func nextRun(now time.Time) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), backupHour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next.Sub(now)
}

// RunBackupNow copies the preferences file to a dated backup, replacing any
// backup from the same day, and prunes old ones.
func (s *Service) RunBackupNow() (string, error) {
	data, err := os.ReadFile(s.source)
	if err != nil {
		return "", fmt.Errorf("read preferences: %w", err)
	}
	if err := os.MkdirAll(s.backupDir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}

	date := s.clock.Now().Format("2006-01-02")
	dest := filepath.Join(s.backupDir, backupPrefix+date+backupSuffix)
	tmp := dest + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write backup: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return "", fmt.Errorf("rename backup: %w", err)
	}

	s.prune()
	return dest, nil
}

// ListBackups returns the backup files, oldest first.
func (s *Service) ListBackups() ([]string, error) {
	entries, err := os.ReadDir(s.backupDir)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if isBackup(e) {
			files = append(files, filepath.Join(s.backupDir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// prune deletes backups whose modification time is older than maxAge.
func (s *Service) prune() {
	entries, err := os.ReadDir(s.backupDir)
	if err != nil {
		return
	}

	cutoff := s.clock.Now().Add(-s.maxAge)
	for _, e := range entries {
		if !isBackup(e) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			path := filepath.Join(s.backupDir, e.Name())
			if err := os.Remove(path); err != nil {
				slog.Warn("maintenance: failed to prune old backup", "file", path, "err", err)
			} else {
				slog.Info("maintenance: pruned old backup", "file", path)
			}
		}
	}
}

func isBackup(e os.DirEntry) bool {
	return !e.IsDir() && strings.HasPrefix(e.Name(), backupPrefix) && strings.HasSuffix(e.Name(), backupSuffix)
}
