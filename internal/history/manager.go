package history

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FinalAd references the generated advertisement image of an entry.
type FinalAd struct {
	URL string `json:"url"`
}

// Entry is one completed ad generation. Immutable after creation except for
// VideoPrompt, which may be filled in once the prompt is generated.
type Entry struct {
	ID               string    `json:"id"`
	Timestamp        time.Time `json:"timestamp"`
	FinalAd          FinalAd   `json:"finalAd"`
	SceneDescription string    `json:"sceneDescription"`
	VideoPrompt      string    `json:"videoPrompt"`
}

// NewEntry is the caller-supplied part of an entry; id and timestamp are
// assigned on append.
type NewEntry struct {
	FinalAdURL       string
	SceneDescription string
}

type Options struct {
	Store  Store
	NewID  func() string
	Now    func() time.Time
	Logger *slog.Logger
}

// Manager owns the history log: an ordered, newest-first sequence of
// entries cached in memory and mirrored to the store on every change. The
// in-memory log is the source of truth for the session; a failed durable
// write is logged, never fatal.
type Manager struct {
	store  Store
	newID  func() string
	now    func() time.Time
	logger *slog.Logger

	mu      sync.Mutex
	entries []Entry
}

func NewManager(opts Options) *Manager {
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Manager{
		store:  opts.Store,
		newID:  newID,
		now:    now,
		logger: logger,
	}
}

// Load reads the full log from the store, replacing the in-memory cache.
// A missing store yields an empty log. Corrupt contents also yield an empty
// log and the corrupt blob is deleted so future loads do not fail again.
func (m *Manager) Load() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := m.store.Get()
	if errors.Is(err, ErrNotFound) {
		m.entries = nil
		return nil
	}
	if err != nil {
		m.logger.Error("history load failed", "err", err)
		m.entries = nil
		return nil
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		m.logger.Warn("discarding corrupt history log", "err", err)
		if err := m.store.Delete(); err != nil {
			m.logger.Error("purge corrupt history failed", "err", err)
		}
		m.entries = nil
		return nil
	}

	m.entries = entries
	return m.snapshotLocked()
}

// Entries returns the in-memory log, newest first.
func (m *Manager) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Get looks up one entry by id.
func (m *Manager) Get(id string) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// Append assigns a fresh id and timestamp, prepends the entry and writes
// the whole log back to the store.
func (m *Manager) Append(data NewEntry) Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := Entry{
		ID:               m.newID(),
		Timestamp:        m.now().UTC(),
		FinalAd:          FinalAd{URL: data.FinalAdURL},
		SceneDescription: data.SceneDescription,
		VideoPrompt:      "",
	}
	m.entries = append([]Entry{entry}, m.entries...)
	m.persistLocked()
	return entry
}

// Update fills in the video prompt of the matching entry, leaving ordering
// and every other field untouched. No-op if the id is unknown.
func (m *Manager) Update(id string, videoPrompt string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.entries {
		if m.entries[i].ID == id {
			m.entries[i].VideoPrompt = videoPrompt
			m.persistLocked()
			return
		}
	}
}

// Clear deletes every entry from memory and from the store. Irreversible;
// the confirmation gate is the caller's responsibility.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = nil
	if err := m.store.Delete(); err != nil {
		m.logger.Error("history clear failed", "err", err)
	}
}

func (m *Manager) persistLocked() {
	data, err := json.Marshal(m.entries)
	if err != nil {
		m.logger.Error("history marshal failed", "err", err)
		return
	}
	if err := m.store.Set(data); err != nil {
		m.logger.Error("history write failed", "err", err)
	}
}

func (m *Manager) snapshotLocked() []Entry {
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}
