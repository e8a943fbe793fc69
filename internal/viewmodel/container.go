// Package viewmodel provides the state container behind every screen model:
// an immutable state snapshot updated by reducers and a stream of one-shot effects.
package viewmodel

import (
	"sync"

	"github.com/R3E-Network/social_layer/pkg/logger"
	"github.com/R3E-Network/social_layer/pkg/metrics"
)

const defaultEffectBuffer = 16

// Config configures a Container.
type Config struct {
	// Name labels metrics and log lines.
	Name string
	// EffectBuffer is the effect channel capacity. Defaults to 16.
	EffectBuffer int
	Metrics      *metrics.Metrics
	Logger       *logger.Logger
}

// Container holds a state of type S and emits effects of type E.
//
// Reducers passed to Update must return a new value and must not mutate
// slices or maps reachable from the previous state, since snapshots handed
// out by State and Watch share them.
type Container[S any, E any] struct {
	mu       sync.Mutex
	state    S
	effects  chan E
	watchers map[int]chan S
	nextID   int
	closed   bool

	name    string
	metrics *metrics.Metrics
	log     *logger.Logger
}

// New creates a container holding initial.
func New[S any, E any](initial S, cfg Config) *Container[S, E] {
	if cfg.EffectBuffer <= 0 {
		cfg.EffectBuffer = defaultEffectBuffer
	}
	if cfg.Name == "" {
		cfg.Name = "viewmodel"
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}
	return &Container[S, E]{
		state:    initial,
		effects:  make(chan E, cfg.EffectBuffer),
		watchers: make(map[int]chan S),
		name:     cfg.Name,
		metrics:  cfg.Metrics,
		log:      log,
	}
}

// State returns the current snapshot.
func (c *Container[S, E]) State() S {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Update applies reduce under the lock, publishes the result to watchers and returns it.
func (c *Container[S, E]) Update(reduce func(S) S) S {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return c.state
	}
	c.state = reduce(c.state)
	for _, w := range c.watchers {
		offerLatest(w, c.state)
	}
	return c.state
}

// Emit sends a one-shot effect without blocking. It reports false when the
// effect was dropped because the buffer is full or the container is closed.
func (c *Container[S, E]) Emit(effect E) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.effects <- effect:
		return true
	default:
		c.metrics.RecordEffectDropped(c.name)
		c.log.WithField("viewmodel", c.name).Warn("effect dropped, buffer full")
		return false
	}
}

// Effects returns the effect stream. It is closed by Close.
func (c *Container[S, E]) Effects() <-chan E {
	return c.effects
}

// Watch returns a channel that always holds the most recent snapshot, starting
// with the current one, and a function that stops watching.
func (c *Container[S, E]) Watch() (<-chan S, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan S, 1)
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	ch <- c.state
	id := c.nextID
	c.nextID++
	c.watchers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if w, ok := c.watchers[id]; ok {
				delete(c.watchers, id)
				close(w)
			}
		})
	}
}

// Close stops the container: effects and watcher channels are closed and
// later updates and effects are ignored.
func (c *Container[S, E]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.effects)
	for id, w := range c.watchers {
		close(w)
		delete(c.watchers, id)
	}
}

// Closed reports whether Close was called.
func (c *Container[S, E]) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// offerLatest replaces any pending snapshot in w with s.
func offerLatest[S any](w chan S, s S) {
	select {
	case <-w:
	default:
	}
	select {
	case w <- s:
	default:
	}
}
