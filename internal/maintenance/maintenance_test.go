package maintenance

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func writeSource(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "device_preferences.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestNextRun(t *testing.T) {
	loc := time.UTC
	tests := []struct {
		now  time.Time
		want time.Duration
	}{
		{time.Date(2024, 5, 1, 1, 0, 0, 0, loc), time.Hour},
		{time.Date(2024, 5, 1, 2, 0, 0, 0, loc), 24 * time.Hour},
		{time.Date(2024, 5, 1, 23, 30, 0, 0, loc), 2*time.Hour + 30*time.Minute},
	}
	for _, tt := range tests {
		if got := nextRun(tt.now); got != tt.want {
			t.Errorf("nextRun(%v) = %v, want %v", tt.now, got, tt.want)
		}
	}
}

func TestRunBackupNow_CopiesAndLists(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, `{"a":{"volume":40}}`)
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 12, 0, 0, 0, time.Local))
	s := New(src, filepath.Join(dir, "backups"), clock)

	path, err := s.RunBackupNow()
	if err != nil {
		t.Fatalf("RunBackupNow: %v", err)
	}
	if filepath.Base(path) != "device_preferences-2024-05-01.json" {
		t.Errorf("backup name = %q", filepath.Base(path))
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != `{"a":{"volume":40}}` {
		t.Errorf("backup content = %q (%v)", data, err)
	}

	// A second run on the same day replaces the file.
	writeSource(t, dir, `{"a":{"volume":50}}`)
	if _, err := s.RunBackupNow(); err != nil {
		t.Fatal(err)
	}
	files, err := s.ListBackups()
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 {
		t.Fatalf("ListBackups = %v, want one file", files)
	}
	data, _ = os.ReadFile(files[0])
	if string(data) != `{"a":{"volume":50}}` {
		t.Errorf("backup not replaced: %q", data)
	}
}

func TestRunBackupNow_MissingSource(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, "missing.json"), filepath.Join(dir, "backups"), nil)
	if _, err := s.RunBackupNow(); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want ErrNotExist", err)
	}
	files, err := s.ListBackups()
	if err != nil || len(files) != 0 {
		t.Errorf("ListBackups = %v, %v; want empty", files, err)
	}
}

func TestPrune_RemovesOldBackupsOnly(t *testing.T) {
	dir := t.TempDir()
	backups := filepath.Join(dir, "backups")
	if err := os.MkdirAll(backups, 0o755); err != nil {
		t.Fatal(err)
	}
	now := time.Now()
	old := filepath.Join(backups, "device_preferences-2000-01-01.json")
	other := filepath.Join(backups, "notes.txt")
	for _, p := range []string{old, other} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
		stale := now.Add(-DefaultMaxAge - time.Hour)
		if err := os.Chtimes(p, stale, stale); err != nil {
			t.Fatal(err)
		}
	}

	s := New(writeSource(t, dir, `{}`), backups, clockwork.NewFakeClockAt(now))
	fresh, err := s.RunBackupNow()
	if err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(old); !errors.Is(err, os.ErrNotExist) {
		t.Error("old backup not pruned")
	}
	if _, err := os.Stat(other); err != nil {
		t.Error("unrelated file was pruned")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("fresh backup was pruned")
	}
}

func TestStart_BacksUpAtScheduledHour(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, `{}`)
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 1, 0, 0, 0, time.Local))
	s := New(src, filepath.Join(dir, "backups"), clock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Hour + time.Second)

	deadline := time.After(2 * time.Second)
	for {
		files, _ := s.ListBackups()
		if len(files) == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("scheduled backup not written")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
