package catalog

import (
	"errors"
	"fmt"
	"strings"

	"thanos-chat/internal/models"
)

// ErrUnknownModel indicates the requested model is not configured.
var ErrUnknownModel = errors.New("unknown model")

// ErrDuplicateModel indicates an attempt to configure the same model twice.
var ErrDuplicateModel = errors.New("model already registered")

// ErrEmptyCatalog is returned when no models are configured.
var ErrEmptyCatalog = errors.New("at least one model must be configured")

// Catalog is the fixed, ordered set of model descriptors served by the process.
// It is built once at startup and never mutated afterwards, so lookups need no locking.
type Catalog struct {
	ordered []models.Descriptor
	byID    map[string]int
}

// New constructs a catalog preserving the order of the provided descriptors.
func New(descriptors []models.Descriptor) (*Catalog, error) {
	if len(descriptors) == 0 {
		return nil, ErrEmptyCatalog
	}

	c := &Catalog{
		ordered: make([]models.Descriptor, 0, len(descriptors)),
		byID:    make(map[string]int, len(descriptors)),
	}

	for _, d := range descriptors {
		id := strings.TrimSpace(d.ID)
		if id == "" {
			return nil, errors.New("model id must not be empty")
		}
		if _, exists := c.byID[id]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateModel, id)
		}

		d.ID = id
		d.Strengths = append([]string(nil), d.Strengths...)
		c.byID[id] = len(c.ordered)
		c.ordered = append(c.ordered, d)
	}

	return c, nil
}

// Lookup returns the descriptor for a given model ID.
func (c *Catalog) Lookup(modelID string) (models.Descriptor, error) {
	idx, ok := c.byID[modelID]
	if !ok {
		return models.Descriptor{}, fmt.Errorf("%w: %s", ErrUnknownModel, modelID)
	}
	return c.ordered[idx], nil
}

// All returns a copy of every descriptor in configured order.
func (c *Catalog) All() []models.Descriptor {
	result := make([]models.Descriptor, len(c.ordered))
	for i, d := range c.ordered {
		d.Strengths = append([]string(nil), d.Strengths...)
		result[i] = d
	}
	return result
}

// IDs returns the model IDs in configured order.
func (c *Catalog) IDs() []string {
	ids := make([]string, len(c.ordered))
	for i, d := range c.ordered {
		ids[i] = d.ID
	}
	return ids
}

// Len returns the number of configured models.
func (c *Catalog) Len() int {
	return len(c.ordered)
}
