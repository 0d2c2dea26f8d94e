// Package store is the persistent home of remembered windows: a versioned
// document holding the monitor table and the per-class application table.
//
// The document is mutated synchronously within one engine tick and written
// back asynchronously: every mutation schedules a debounced save, and the
// "restore in progress" and "shutting down" latches suppress all writes
// while either is set. File I/O mechanics live behind the Backend interface.
package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/thechief/rememberd/internal/infrastructure/logging"
	"github.com/thechief/rememberd/internal/infrastructure/monitoring"
	"github.com/thechief/rememberd/internal/shared/types"
)

// Backend abstracts the blob read/write the store sits on.
type Backend interface {
	Read() ([]byte, error)
	Write(data []byte) error
}

// Document is the persisted layout. Apps is keyed by window class.
type Document struct {
	Version  int                          `json:"version"`
	Monitors map[string]types.MonitorInfo `json:"monitors"`
	Apps     map[string]*types.AppRecord  `json:"apps"`
}

func emptyDocument() *Document {
	return &Document{
		Version:  types.SchemaVersion,
		Monitors: make(map[string]types.MonitorInfo),
		Apps:     make(map[string]*types.AppRecord),
	}
}

// Store owns the in-memory document and its persistence.
type Store struct {
	mu  sync.Mutex
	doc *Document

	backend  Backend
	debounce time.Duration
	timer    *time.Timer
	dirty    bool

	restoreInProgress bool
	shuttingDown      bool

	onAutoSave []func()

	log     *logging.Logger
	metrics *monitoring.Metrics
}

// New creates a store over the given backend. Call Load before first use.
func New(backend Backend, debounce time.Duration, log *logging.Logger, metrics *monitoring.Metrics) *Store {
	return &Store{
		doc:      emptyDocument(),
		backend:  backend,
		debounce: debounce,
		log:      log.Named("store"),
		metrics:  metrics,
	}
}

// Load reads and migrates the persisted document. An absent or empty blob
// yields a fresh document.
func (s *Store) Load() error {
	data, err := s.backend.Read()
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}
	if len(data) == 0 {
		s.mu.Lock()
		s.doc = emptyDocument()
		s.mu.Unlock()
		return nil
	}

	var doc Document
	if err := sonic.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse state: %w", err)
	}

	migrated, err := Migrate(&doc)
	if err != nil {
		return fmt.Errorf("failed to migrate state: %w", err)
	}

	s.mu.Lock()
	s.doc = migrated
	// Assigned is runtime state; nothing is bound right after load.
	for _, app := range s.doc.Apps {
		for _, inst := range app.Instances {
			inst.Assigned = false
		}
	}
	s.mu.Unlock()

	s.log.Info("state loaded",
		zap.Int("apps", len(migrated.Apps)),
		zap.Int("monitors", len(migrated.Monitors)))
	return nil
}

// GetApp returns the record for a class, or nil.
func (s *Store) GetApp(class string) *types.AppRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Apps[class]
}

// SetApp inserts or replaces a class record and schedules a debounced save.
func (s *Store) SetApp(app *types.AppRecord) {
	s.mu.Lock()
	s.doc.Apps[app.Class] = app
	s.mu.Unlock()
	s.scheduleSave()
}

// RemoveApp drops a class record entirely.
func (s *Store) RemoveApp(class string) {
	s.mu.Lock()
	delete(s.doc.Apps, class)
	s.mu.Unlock()
	s.scheduleSave()
}

// AllApps returns the class records in a stable snapshot slice. Callers
// mutating records must call Touch to persist.
func (s *Store) AllApps() []*types.AppRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*types.AppRecord, 0, len(s.doc.Apps))
	for _, app := range s.doc.Apps {
		out = append(out, app)
	}
	return out
}

// SetMonitor records a monitor's identity in the monitor table.
func (s *Store) SetMonitor(mon types.MonitorInfo) {
	s.mu.Lock()
	s.doc.Monitors[mon.ID] = mon
	s.mu.Unlock()
	s.scheduleSave()
}

// Monitors returns the persisted monitor table snapshot.
func (s *Store) Monitors() map[string]types.MonitorInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]types.MonitorInfo, len(s.doc.Monitors))
	for k, v := range s.doc.Monitors {
		out[k] = v
	}
	return out
}

// Touch marks the document dirty after in-place record mutation and
// schedules a save.
func (s *Store) Touch() {
	s.scheduleSave()
}

// SetRestoreInProgress toggles the restore latch. While set, saves are
// suppressed so a half-restored session never overwrites good state.
func (s *Store) SetRestoreInProgress(on bool) {
	s.mu.Lock()
	s.restoreInProgress = on
	dirty := s.dirty
	s.mu.Unlock()
	if !on && dirty {
		s.scheduleSave()
	}
}

// SetShuttingDown sets the shutdown latch. Once set, no further saves
// happen; callers flush explicitly beforehand.
func (s *Store) SetShuttingDown() {
	s.mu.Lock()
	s.shuttingDown = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
}

// OnAutoSave registers a callback invoked after every successful
// debounced save.
func (s *Store) OnAutoSave(fn func()) {
	s.mu.Lock()
	s.onAutoSave = append(s.onAutoSave, fn)
	s.mu.Unlock()
}

// Flush writes immediately, bypassing the debounce but still honoring the
// latches.
func (s *Store) Flush() error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	return s.save()
}

func (s *Store) scheduleSave() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dirty = true
	if s.restoreInProgress || s.shuttingDown {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, func() {
		if err := s.save(); err != nil {
			s.log.Error("auto-save failed", zap.Error(err))
			return
		}
		s.mu.Lock()
		callbacks := append([]func(){}, s.onAutoSave...)
		s.mu.Unlock()
		for _, fn := range callbacks {
			fn()
		}
	})
}

func (s *Store) save() error {
	s.mu.Lock()
	if s.restoreInProgress || s.shuttingDown {
		s.mu.Unlock()
		return nil
	}
	data, err := sonic.MarshalIndent(s.doc, "", "  ")
	s.dirty = false
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	// Transient write failures (full disk flushes, slow mounts) retry
	// briefly before giving up.
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)
	err = backoff.Retry(func() error {
		return s.backend.Write(data)
	}, policy)
	if err != nil {
		if s.metrics != nil {
			s.metrics.StoreSaveErrors.Inc()
		}
		return fmt.Errorf("failed to write state: %w", err)
	}

	if s.metrics != nil {
		s.metrics.StoreSaves.Inc()
	}
	return nil
}
