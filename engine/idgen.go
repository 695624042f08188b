package engine

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDSource produces suggestion identifiers unique within a response.
// It is injected so tests can assert deterministic IDs.
type IDSource interface {
	NextID() string
}

// UUIDSource generates "suggestion-" prefixed random identifiers.
type UUIDSource struct{}

func (UUIDSource) NextID() string {
	return "suggestion-" + uuid.NewString()[:8]
}

// CounterSource generates sequential identifiers for reproducible tests.
type CounterSource struct {
	n atomic.Uint64
}

func (c *CounterSource) NextID() string {
	return fmt.Sprintf("suggestion-%d", c.n.Add(1))
}
