// Package prefs holds the user preference toggles consumed by the restore
// engine. The preferences file is written by the external settings UI; this
// package loads it, serves reads, and reloads on file change.
package prefs

import (
	"fmt"
	"os"
	"sync"

	"github.com/bytedance/sonic"
)

// Preferences are the boolean toggles gating restoration behavior. Field
// names mirror the settings UI keys.
type Preferences struct {
	RememberSticky      bool `json:"rememberSticky"`
	RememberAlwaysOnTop bool `json:"rememberAlwaysOnTop"`
	RememberShaded      bool `json:"rememberShaded"`
	RememberFullscreen  bool `json:"rememberFullscreen"`
	RestoreMinimized    bool `json:"restoreMinimized"`
	TrackDialogs        bool `json:"trackDialogs"`
	TrackAllWorkspaces  bool `json:"trackAllWorkspaces"`
	AutoRestore         bool `json:"autoRestore"`
	ClampToScreen       bool `json:"clampToScreen"`
	RestoreWorkspace    bool `json:"restoreWorkspace"`
	ShowProgressWindow  bool `json:"showProgressWindow"`

	// Blacklist holds window-class patterns excluded from tracking.
	Blacklist []string `json:"blacklist,omitempty"`
}

// Defaults returns the preference defaults shipped with the settings UI.
func Defaults() Preferences {
	return Preferences{
		RememberSticky:      true,
		RememberAlwaysOnTop: true,
		RememberShaded:      false,
		RememberFullscreen:  true,
		RestoreMinimized:    false,
		TrackDialogs:        false,
		TrackAllWorkspaces:  true,
		AutoRestore:         true,
		ClampToScreen:       true,
		RestoreWorkspace:    true,
		ShowProgressWindow:  true,
	}
}

// Store serves preference reads and swaps in reloaded values atomically.
type Store struct {
	mu   sync.RWMutex
	cur  Preferences
	path string
}

// NewStore creates a preference store seeded with defaults.
func NewStore(path string) *Store {
	return &Store{cur: Defaults(), path: path}
}

// Load reads the preferences file, overlaying defaults. A missing file is
// not an error; defaults stand.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read preferences: %w", err)
	}

	next := Defaults()
	if err := sonic.Unmarshal(data, &next); err != nil {
		return fmt.Errorf("failed to parse preferences: %w", err)
	}

	s.mu.Lock()
	s.cur = next
	s.mu.Unlock()
	return nil
}

// Current returns a copy of the active preferences.
func (s *Store) Current() Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Set replaces the active preferences. Used by tests and the status API.
func (s *Store) Set(p Preferences) {
	s.mu.Lock()
	s.cur = p
	s.mu.Unlock()
}

// Accessors satisfying the collaborator interfaces of other packages.

func (s *Store) TrackDialogs() bool       { return s.Current().TrackDialogs }
func (s *Store) TrackAllWorkspaces() bool { return s.Current().TrackAllWorkspaces }
func (s *Store) Blacklist() []string      { return s.Current().Blacklist }
