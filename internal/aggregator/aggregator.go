package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"thanos-chat/internal/catalog"
	"thanos-chat/internal/gateway"
	"thanos-chat/internal/models"
)

// ErrEmptyPrompt is returned by Submit for blank prompts. It is the gateway's sentinel,
// so errors.Is matches across layers.
var ErrEmptyPrompt = gateway.ErrEmptyPrompt

// Sender delivers one prompt to one model and always yields text, placeholders included.
type Sender interface {
	SendMessage(ctx context.Context, prompt, modelID string) string
}

// Aggregator fans each prompt out to every configured model and records the answers
// per turn as they settle.
type Aggregator struct {
	sender  Sender
	catalog *catalog.Catalog
	store   *Store
	logger  *slog.Logger
	// base outlives any single caller; in-flight calls are not cancelled when a caller goes away.
	base context.Context
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithStore shares an existing turn store.
func WithStore(store *Store) Option {
	return func(a *Aggregator) {
		a.store = store
	}
}

// WithLogger sets the logger used for per-model diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

// WithBaseContext sets the context every upstream call runs under. It defaults to
// context.Background().
func WithBaseContext(ctx context.Context) Option {
	return func(a *Aggregator) {
		a.base = ctx
	}
}

// New constructs an aggregator targeting descriptors in the given order. Model ids must
// be non-empty and unique, otherwise a turn could settle with fewer entries than models.
func New(sender Sender, descriptors []models.Descriptor, opts ...Option) (*Aggregator, error) {
	if sender == nil {
		return nil, errors.New("sender must not be nil")
	}
	cat, err := catalog.New(descriptors)
	if err != nil {
		return nil, fmt.Errorf("aggregator models: %w", err)
	}

	a := &Aggregator{
		sender:  sender,
		catalog: cat,
		logger:  slog.Default(),
		base:    context.Background(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.store == nil {
		a.store = NewStore()
	}
	return a, nil
}

// Store exposes the turn history.
func (a *Aggregator) Store() *Store {
	return a.store
}

// Models returns the descriptors every turn is sent to.
func (a *Aggregator) Models() []models.Descriptor {
	return a.catalog.All()
}

// ModelCount is the number of entries every settled turn holds.
func (a *Aggregator) ModelCount() int {
	return a.catalog.Len()
}

// Submit creates a pending turn and dispatches the prompt to every model concurrently.
// It returns immediately; the turn settles once all calls have produced an answer.
func (a *Aggregator) Submit(prompt string) (*Handle, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrEmptyPrompt
	}

	turn, err := a.store.Create(prompt)
	if err != nil {
		return nil, err
	}

	h := &Handle{id: turn.ID, store: a.store, done: make(chan struct{})}
	a.logger.Debug("turn submitted", "turn", turn.ID, "models", a.catalog.Len())

	var eg errgroup.Group
	for _, d := range a.catalog.All() {
		descriptor := d
		eg.Go(func() error {
			text := a.invokeSafe(turn.ID, prompt, descriptor)
			if _, err := a.store.SetResponse(turn.ID, descriptor.ID, text); err != nil {
				a.logger.Error("record response", "turn", turn.ID, "model", descriptor.ID, "err", err)
			}
			return nil
		})
	}

	go func() {
		defer close(h.done)
		_ = eg.Wait()
		if _, err := a.store.Settle(turn.ID); err != nil {
			a.logger.Error("settle turn", "turn", turn.ID, "err", err)
			return
		}
		a.logger.Debug("turn settled", "turn", turn.ID)
	}()

	return h, nil
}

// Ask submits prompt and waits for the turn to settle.
func (a *Aggregator) Ask(ctx context.Context, prompt string) (Turn, error) {
	h, err := a.Submit(prompt)
	if err != nil {
		return Turn{}, err
	}
	return h.Wait(ctx)
}

func (a *Aggregator) invokeSafe(turnID, prompt string, d models.Descriptor) (text string) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("model call panic", "turn", turnID, "model", d.ID, "panic", r)
			text = gateway.ErrorPlaceholder
		}
	}()

	start := time.Now()
	text = a.sender.SendMessage(a.base, prompt, d.ID)
	a.logger.Debug("model answered", "turn", turnID, "model", d.ID, "elapsed", time.Since(start).Truncate(time.Millisecond))
	return text
}

// Handle tracks one submitted turn.
type Handle struct {
	id    string
	store *Store
	done  chan struct{}
}

// ID returns the turn id.
func (h *Handle) ID() string {
	return h.id
}

// Snapshot returns the turn as it stands now.
func (h *Handle) Snapshot() Turn {
	turn, err := h.store.Get(h.id)
	if err != nil {
		// The store never deletes turns, so a handle's turn is always present.
		panic(fmt.Sprintf("aggregator: turn %s vanished from store", h.id))
	}
	return turn
}

// Done is closed once the turn has settled.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the turn settles or ctx ends. Cancelling ctx does not stop the turn.
func (h *Handle) Wait(ctx context.Context) (Turn, error) {
	select {
	case <-h.done:
		return h.Snapshot(), nil
	case <-ctx.Done():
		return Turn{}, ctx.Err()
	}
}
