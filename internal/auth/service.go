// Package auth guards the HTTP API with optional access keys read from
// api_keys.json in the config directory. With no keys configured every
// request is allowed.
package auth

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// KeysFileName is the access-key file inside the config directory.
const KeysFileName = "api_keys.json"

// Key is one named access key.
type Key struct {
	Name string `json:"name"`
	Key  string `json:"key"`
}

type keysFile struct {
	Keys []Key `json:"keys"`
}

// Service holds the current access keys and reloads them when the file
// changes.
type Service struct {
	mu      sync.RWMutex
	path    string
	keys    []Key
	watcher *fsnotify.Watcher
}

// NewService loads api_keys.json from configDir and watches it. A missing
// file means open mode; a malformed one is an error.
func NewService(configDir string) (*Service, error) {
	s := &Service{path: filepath.Join(configDir, KeysFileName)}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	if configDir == "" {
		return s, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("auth: could not create fsnotify watcher", "err", err)
		return s, nil
	}
	if err := watcher.Add(configDir); err != nil {
		slog.Warn("auth: could not watch config dir", "err", err)
		watcher.Close()
		return s, nil
	}
	s.watcher = watcher
	go s.watchLoop()
	return s, nil
}

// Reload re-reads the key file. Keys with an empty value are ignored.
func (s *Service) Reload() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.set(nil)
		return nil
	}
	if err != nil {
		return err
	}

	var f keysFile
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	keys := make([]Key, 0, len(f.Keys))
	for _, k := range f.Keys {
		if k.Key == "" {
			slog.Warn("auth: ignoring empty access key", "name", k.Name)
			continue
		}
		keys = append(keys, k)
	}
	s.set(keys)
	slog.Debug("auth: reloaded access keys", "count", len(keys))
	return nil
}

func (s *Service) set(keys []Key) {
	s.mu.Lock()
	s.keys = keys
	s.mu.Unlock()
}

// IsOpenMode reports whether no access keys are configured.
func (s *Service) IsOpenMode() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys) == 0
}

// VerifyKey reports whether key matches a configured access key. The empty
// key never matches.
func (s *Service) VerifyKey(key string) bool {
	if key == "" {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, k := range s.keys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(k.Key)) == 1 {
			return true
		}
	}
	return false
}

// Close stops the file watcher.
func (s *Service) Close() {
	if s.watcher != nil {
		s.watcher.Close()
	}
}

func (s *Service) watchLoop() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Name != s.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) {
				if err := s.Reload(); err != nil {
					slog.Warn("auth: failed to reload access keys", "err", err)
				}
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("auth: watcher error", "err", err)
		}
	}
}
