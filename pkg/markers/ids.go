package markers

import (
	"sync/atomic"

	"github.com/aretw0/abyss/pkg/domain"
)

// IDSource issues marker ids. Implementations must return strictly
// increasing values and never repeat one.
type IDSource interface {
	Next() domain.MarkerID
}

// Counter is a monotonic IDSource starting at 1.
type Counter struct {
	last atomic.Uint64
}

// NewCounter returns a counter whose first id is start+1.
func NewCounter(start uint64) *Counter {
	c := &Counter{}
	c.last.Store(start)
	return c
}

// Next returns the next id.
func (c *Counter) Next() domain.MarkerID {
	return domain.MarkerID(c.last.Add(1))
}
