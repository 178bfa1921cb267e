// Package metrics tracks duration and counters of named operations for one call tree.
//
// A Collector is created per unit of work (one chunk task, one CLI run, one request)
// and travels in the context. Nothing is shared between concurrent workers.
package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/google/logger"
)

// Operation is the record kept for one named operation.
type Operation struct {
	Name      string           `json:"name"`
	StartedAt time.Time        `json:"started_at"`
	EndedAt   time.Time        `json:"ended_at,omitempty"`
	Duration  time.Duration    `json:"duration"`
	Completed bool             `json:"completed"`
	Error     string           `json:"error,omitempty"`
	Counters  map[string]int64 `json:"counters,omitempty"`
}

type Collector struct {
	mu       sync.Mutex
	ops      map[string]*Operation
	exporter *Exporter
	now      func() time.Time
}

// NewCollector returns an empty collector. exporter may be nil.
func NewCollector(exporter *Exporter) *Collector {
	return &Collector{
		ops:      make(map[string]*Operation),
		exporter: exporter,
		now:      time.Now,
	}
}

// Start begins (or restarts) tracking of op.
func (c *Collector) Start(op string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ops[op] = &Operation{Name: op, StartedAt: c.now(), Counters: make(map[string]int64)}
}

// End closes op and returns a copy of its record. Unknown ops yield the zero Operation.
func (c *Collector) End(op string, err error) Operation {
	if c == nil {
		return Operation{}
	}
	c.mu.Lock()
	rec, ok := c.ops[op]
	if !ok {
		c.mu.Unlock()
		logger.Warningf("[METRICS] No metrics found for operation: %s", op)
		return Operation{}
	}
	rec.EndedAt = c.now()
	rec.Duration = rec.EndedAt.Sub(rec.StartedAt)
	rec.Completed = err == nil
	if err != nil {
		rec.Error = err.Error()
	}
	out := rec.copy()
	c.mu.Unlock()

	if err != nil {
		logger.Errorf("[METRICS] Operation %s failed after %.2fs: %v", op, out.Duration.Seconds(), err)
	} else {
		logger.Infof("[METRICS] Operation %s completed in %.2fs (counters %v)", op, out.Duration.Seconds(), out.Counters)
	}
	c.exporter.observe(out)
	return out
}

// Increment adds n to counter of op. Unknown ops are ignored.
func (c *Collector) Increment(op, counter string, n int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	rec, ok := c.ops[op]
	if ok {
		rec.Counters[counter] += n
	}
	c.mu.Unlock()
	if !ok {
		logger.Warningf("[METRICS] No metrics found for operation: %s", op)
		return
	}
	c.exporter.add(op, counter, n)
}

// Get returns a copy of op's record, or the zero Operation.
func (c *Collector) Get(op string) Operation {
	if c == nil {
		return Operation{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.ops[op]
	if !ok {
		return Operation{}
	}
	return rec.copy()
}

func (o *Operation) copy() Operation {
	out := *o
	out.Counters = make(map[string]int64, len(o.Counters))
	for k, v := range o.Counters {
		out.Counters[k] = v
	}
	return out
}

type collectorKey struct{}

// WithCollector scopes c to ctx and everything derived from it.
func WithCollector(ctx context.Context, c *Collector) context.Context {
	return context.WithValue(ctx, collectorKey{}, c)
}

// FromContext returns the collector carried by ctx, or nil (a valid no-op collector).
func FromContext(ctx context.Context) *Collector {
	c, _ := ctx.Value(collectorKey{}).(*Collector)
	return c
}
