package api

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MJE43/lingo-ladders/internal/logging"
	"github.com/MJE43/lingo-ladders/internal/session"
	"github.com/MJE43/lingo-ladders/internal/store"
	"github.com/MJE43/lingo-ladders/internal/tasks"
)

// Manager owns the live sessions. Each session is guarded by its own mutex;
// every mutation is persisted as a snapshot before the lock is released.
type Manager struct {
	store     *store.Store
	logger    *logging.Logger
	weights   tasks.Weights
	flushSize int

	bankMu sync.RWMutex
	bank   []tasks.TaskRecord

	mu   sync.Mutex
	live map[string]*entry
}

type entry struct {
	mu  sync.Mutex
	s   *session.Session
	rec *store.MoveRecorder
}

// NewManager creates a Manager over st. bank is the task pool shared by all
// sessions.
func NewManager(st *store.Store, bank []tasks.TaskRecord, weights tasks.Weights, flushSize int, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Manager{
		store:     st,
		logger:    logger.WithComponent("manager"),
		weights:   weights,
		flushSize: flushSize,
		bank:      slices.Clone(bank),
		live:      map[string]*entry{},
	}
}

// Bank returns the current task pool.
func (m *Manager) Bank() []tasks.TaskRecord {
	m.bankMu.RLock()
	defer m.bankMu.RUnlock()
	return slices.Clone(m.bank)
}

// SetBank replaces the task pool for new and live sessions.
func (m *Manager) SetBank(bank []tasks.TaskRecord) {
	m.bankMu.Lock()
	m.bank = slices.Clone(bank)
	m.bankMu.Unlock()

	m.mu.Lock()
	entries := make([]*entry, 0, len(m.live))
	for _, e := range m.live {
		entries = append(entries, e)
	}
	m.mu.Unlock()

	for _, e := range entries {
		e.mu.Lock()
		e.s.SetTasks(bank)
		e.mu.Unlock()
	}
}

// Create starts a session and stores it.
func (m *Manager) Create(name string, opts session.Options) (string, SessionView, error) {
	opts.Tasks = m.Bank()
	opts.Weights = m.weights
	s, err := session.New(opts)
	if err != nil {
		return "", SessionView{}, err
	}
	id, err := m.store.CreateSession(name, s.Snapshot())
	if err != nil {
		return "", SessionView{}, err
	}

	e := &entry{s: s}
	m.attach(id, e)
	m.mu.Lock()
	m.live[id] = e
	m.mu.Unlock()

	m.logger.Info("session created", "session_id", id, "seed", opts.Seed, "board_size", s.State().BoardSize)
	return id, viewOf(id, s), nil
}

func (m *Manager) attach(id string, e *entry) {
	e.rec = store.NewMoveRecorder(m.store, id, m.flushSize, m.logger.WithSession(id).Slog())
	e.s.SetRecorder(e.rec)
}

// get returns the live entry for id, restoring it from the store if needed.
func (m *Manager) get(id string) (*entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.live[id]; ok {
		return e, nil
	}

	snap, dropped, err := m.store.LoadSnapshot(id)
	if err != nil {
		return nil, err
	}
	if len(dropped) > 0 {
		m.logger.Warn("snapshot fields reset to defaults", "session_id", id, "fields", dropped)
	}
	s, err := session.Restore(snap, m.Bank(), m.weights)
	if err != nil {
		return nil, fmt.Errorf("api: restore session %s: %w", id, err)
	}
	e := &entry{s: s}
	m.attach(id, e)
	m.live[id] = e
	return e, nil
}

// View runs fn with the session locked, without persisting.
func (m *Manager) View(id string, fn func(*session.Session) error) error {
	e, err := m.get(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.s)
}

// Update runs fn with the session locked and saves the snapshot if fn
// succeeds.
func (m *Manager) Update(id string, fn func(*session.Session) error) error {
	return m.update(id, fn, false)
}

// UpdateAndReset is Update for changes that restart the game; the move log
// is cleared along with it.
func (m *Manager) UpdateAndReset(id string, fn func(*session.Session) error) error {
	return m.update(id, fn, true)
}

// Reset restarts the game and clears its move log.
func (m *Manager) Reset(id string) (SessionView, error) {
	var view SessionView
	err := m.UpdateAndReset(id, func(s *session.Session) error {
		s.Reset()
		view = viewOf(id, s)
		return nil
	})
	return view, err
}

func (m *Manager) update(id string, fn func(*session.Session) error, clearLog bool) error {
	e, err := m.get(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := fn(e.s); err != nil {
		return err
	}
	if clearLog {
		e.rec.Discard()
		m.store.Wait()
		if err := m.store.ClearMoves(id); err != nil {
			return err
		}
	}
	return m.store.SaveSnapshot(id, e.s.Snapshot())
}

// Moves returns a page of the move log, flushing buffered moves first.
func (m *Manager) Moves(id string, page, perPage int) (*store.MovesPage, error) {
	e, err := m.get(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.rec.Flush()
	e.mu.Unlock()
	m.store.Wait()
	return m.store.GetMoves(id, page, perPage)
}

// Delete drops a session from memory and the store.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	e, ok := m.live[id]
	delete(m.live, id)
	m.mu.Unlock()

	if ok {
		e.mu.Lock()
		e.rec.Discard()
		e.mu.Unlock()
		m.store.Wait()
	}
	if err := m.store.DeleteSession(id); err != nil {
		return err
	}
	m.logger.Info("session deleted", "session_id", id)
	return nil
}

// Flush hands buffered moves of every live session to the store.
func (m *Manager) Flush() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.live {
		e.rec.Flush()
	}
}

// Close flushes all move logs and waits for the writes.
func (m *Manager) Close() {
	m.Flush()
	m.store.Wait()
}

// Live reports how many sessions are held in memory.
func (m *Manager) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

// IsNotFound reports whether err means the session does not exist.
func IsNotFound(err error) bool { return errors.Is(err, store.ErrNotFound) }
