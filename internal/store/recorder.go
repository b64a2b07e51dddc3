package store

import (
	"log/slog"
	"sync"

	"github.com/MJE43/lingo-ladders/internal/session"
)

// MoveRecorder buffers applied moves and flushes them to the store in
// batches. It satisfies session.Recorder.
type MoveRecorder struct {
	store     *Store
	sessionID string
	logger    *slog.Logger
	mu        sync.Mutex
	buffer    []session.MoveResult
	flushSize int
}

// NewMoveRecorder creates a recorder for the given session. flushSize
// controls how many moves are buffered before a batch insert.
func NewMoveRecorder(store *Store, sessionID string, flushSize int, logger *slog.Logger) *MoveRecorder {
	if flushSize <= 0 {
		flushSize = 20
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MoveRecorder{
		store:     store,
		sessionID: sessionID,
		logger:    logger,
		buffer:    make([]session.MoveResult, 0, flushSize),
		flushSize: flushSize,
	}
}

// RecordMove adds a move to the buffer and flushes if the buffer is full.
func (r *MoveRecorder) RecordMove(m session.MoveResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buffer = append(r.buffer, m)
	if len(r.buffer) >= r.flushSize || m.Won {
		r.flushLocked()
	}
}

// Flush hands any buffered moves to a background write.
func (r *MoveRecorder) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushLocked()
}

// Discard drops buffered moves that have not been written yet.
func (r *MoveRecorder) Discard() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buffer = r.buffer[:0]
}

func (r *MoveRecorder) flushLocked() {
	if len(r.buffer) == 0 {
		return
	}
	moves := make([]session.MoveResult, len(r.buffer))
	copy(moves, r.buffer)
	r.buffer = r.buffer[:0]

	// Written in the background so the game loop never waits on disk.
	// Store.Close waits for these.
	r.store.flushes.Add(1)
	go func() {
		defer r.store.flushes.Done()
		if err := r.store.InsertMovesBatch(r.sessionID, moves); err != nil {
			r.logger.Error("flush moves failed", "session_id", r.sessionID, "count", len(moves), "error", err)
		}
	}()
}

// Wait blocks until every background flush issued so far has finished.
func (s *Store) Wait() { s.flushes.Wait() }
