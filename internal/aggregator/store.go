package aggregator

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrTurnNotFound indicates the requested turn id is not in the store.
var ErrTurnNotFound = errors.New("turn not found")

// Turn is an immutable snapshot of one prompt submission and the answers collected so far.
type Turn struct {
	ID        string            `json:"id"`
	Prompt    string            `json:"prompt"`
	Responses map[string]string `json:"responses"`
	CreatedAt time.Time         `json:"created_at"`
	SettledAt time.Time         `json:"settled_at,omitzero"`
	Pending   bool              `json:"pending"`
	Version   uint64            `json:"version"`
}

// Settled reports whether every model has answered.
func (t Turn) Settled() bool {
	return !t.Pending
}

// clone detaches t from the store's response map.
func (t Turn) clone() Turn {
	t.Responses = maps.Clone(t.Responses)
	return t
}

type entry struct {
	turn Turn
	// changed is closed and replaced whenever turn advances to a new version.
	changed chan struct{}
}

// Store keeps the append-only turn history for the process. Every mutation swaps in a
// fresh response map, and readers get their own copy, so a snapshot never aliases
// store state.
type Store struct {
	mu    sync.RWMutex
	turns map[string]*entry
	order []string
	now   func() time.Time
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		turns: make(map[string]*entry),
		now:   time.Now,
	}
}

// Create registers a new pending turn with an empty response mapping.
func (s *Store) Create(prompt string) (Turn, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Turn{}, fmt.Errorf("generate turn id: %w", err)
	}

	turn := Turn{
		ID:        id.String(),
		Prompt:    prompt,
		Responses: map[string]string{},
		CreatedAt: s.now(),
		Pending:   true,
		Version:   1,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.turns[turn.ID] = &entry{turn: turn, changed: make(chan struct{})}
	s.order = append(s.order, turn.ID)
	return turn.clone(), nil
}

// SetResponse records modelID's answer. The first write per model wins; later writes
// report false and leave the turn untouched.
func (s *Store) SetResponse(turnID, modelID, text string) (bool, error) {
	if strings.TrimSpace(modelID) == "" {
		return false, errors.New("model id must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.turns[turnID]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrTurnNotFound, turnID)
	}
	if _, exists := e.turn.Responses[modelID]; exists || !e.turn.Pending {
		return false, nil
	}

	responses := maps.Clone(e.turn.Responses)
	responses[modelID] = text

	next := e.turn
	next.Responses = responses
	s.advance(e, next)
	return true, nil
}

// Settle clears the pending flag. It reports false when the turn was already settled.
func (s *Store) Settle(turnID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.turns[turnID]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrTurnNotFound, turnID)
	}
	if !e.turn.Pending {
		return false, nil
	}

	next := e.turn
	next.Pending = false
	next.SettledAt = s.now()
	s.advance(e, next)
	return true, nil
}

// advance must be called with s.mu held.
func (s *Store) advance(e *entry, next Turn) {
	next.Version = e.turn.Version + 1
	e.turn = next
	close(e.changed)
	e.changed = make(chan struct{})
}

// Get returns the latest snapshot of a turn.
func (s *Store) Get(turnID string) (Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.turns[turnID]
	if !ok {
		return Turn{}, fmt.Errorf("%w: %s", ErrTurnNotFound, turnID)
	}
	return e.turn.clone(), nil
}

// List returns snapshots of every turn in creation order.
func (s *Store) List() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Turn, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.turns[id].turn.clone())
	}
	return out
}

func (s *Store) current(turnID string) (Turn, <-chan struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.turns[turnID]
	if !ok {
		return Turn{}, nil, fmt.Errorf("%w: %s", ErrTurnNotFound, turnID)
	}
	return e.turn.clone(), e.changed, nil
}

// Watch streams snapshots of a turn: the current one, then each newer version. Versions
// produced while the receiver is busy are coalesced into the latest, but the settled
// snapshot is always delivered last before the channel closes. The channel also closes
// when ctx ends.
func (s *Store) Watch(ctx context.Context, turnID string) (<-chan Turn, error) {
	turn, changed, err := s.current(turnID)
	if err != nil {
		return nil, err
	}

	out := make(chan Turn, 1)
	go func() {
		defer close(out)
		for {
			select {
			case out <- turn:
			case <-ctx.Done():
				return
			}
			if turn.Settled() {
				return
			}

			select {
			case <-changed:
			case <-ctx.Done():
				return
			}

			turn, changed, err = s.current(turnID)
			if err != nil {
				return
			}
		}
	}()
	return out, nil
}
