package window

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hypeedev/gest/internal/domain/model"
	"github.com/hypeedev/gest/pkg/logger"
	"github.com/hypeedev/gest/pkg/metrics"
)

const defaultCacheSize = 64

// Snapshot is the immutable view a gesture sequence is matched against.
// Gestures is never modified after the snapshot is taken.
type Snapshot struct {
	Generation uint64
	Window     model.Window
	Options    model.Options
	Gestures   []*model.Gesture
}

// Resolver tracks the focused window and the active configuration and keeps
// the eligible gesture set current. Update and Reload may be called from any
// goroutine; readers only observe their effect at the next Snapshot.
type Resolver struct {
	mu         sync.RWMutex
	set        *Set
	generation uint64
	window     model.Window
	eligible   []*model.Gesture

	cacheSize int
	cache     *lru.Cache[model.Window, []*model.Gesture]
	logger    logger.Logger
}

// Option applies a configuration option to the Resolver.
type Option func(*Resolver)

// WithLogger sets the resolver logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithCacheSize sets how many windows keep a memoized eligible set.
func WithCacheSize(size int) Option {
	return func(r *Resolver) {
		if size > 0 {
			r.cacheSize = size
		}
	}
}

// NewResolver creates a resolver for set with an empty window context.
func NewResolver(set *Set, opts ...Option) (*Resolver, error) {
	if set == nil {
		return nil, ErrNilSet
	}
	r := &Resolver{
		set:        set,
		generation: 1,
		cacheSize:  defaultCacheSize,
		logger:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	cache, err := lru.New[model.Window, []*model.Gesture](r.cacheSize)
	if err != nil {
		return nil, err
	}
	r.cache = cache
	r.eligible = r.resolve(r.window)
	metrics.UpdateConfigGeneration(r.generation)
	return r, nil
}

// Update records the newly focused window.
func (r *Resolver) Update(ctx context.Context, w model.Window) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if w == r.window {
		return
	}
	r.window = w
	r.eligible = r.resolve(w)
	metrics.RecordWindowChange()
	r.logger.Debug(ctx, "active window changed",
		logger.String("class", w.Class),
		logger.String("title", w.Title),
		logger.Int("eligible", len(r.eligible)),
	)
}

// Reload swaps in a new configuration. Sequences already in progress keep
// the snapshot they started with.
func (r *Resolver) Reload(ctx context.Context, set *Set) error {
	if set == nil {
		return ErrNilSet
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.set = set
	r.generation++
	r.cache.Purge()
	r.eligible = r.resolve(r.window)
	metrics.UpdateConfigGeneration(r.generation)
	r.logger.Info(ctx, "gesture configuration reloaded",
		logger.Int("gestures", set.Count()),
		logger.Any("generation", r.generation),
	)
	return nil
}

// Eligible returns the gestures eligible for the current window.
func (r *Resolver) Eligible() []*model.Gesture {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.eligible
}

// Snapshot returns the current generation, window, options and eligible set.
func (r *Resolver) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Snapshot{
		Generation: r.generation,
		Window:     r.window,
		Options:    r.set.Options,
		Gestures:   r.eligible,
	}
}

// Active returns the focused window; zero when unknown.
func (r *Resolver) Active() model.Window {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.window
}

// Options returns the recognition options of the active configuration.
func (r *Resolver) Options() model.Options {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.set.Options
}

// resolve must be called with mu held for writing.
func (r *Resolver) resolve(w model.Window) []*model.Gesture {
	if g, ok := r.cache.Get(w); ok {
		return g
	}
	g := r.set.Eligible(w)
	r.cache.Add(w, g)
	return g
}
