package desk

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/repaart/support-desk/internal/domain"
	"github.com/repaart/support-desk/internal/feed"
	"github.com/repaart/support-desk/internal/observability"
	apperrors "github.com/repaart/support-desk/pkg/util/errorutil"
)

// Registry tracks the open desks of every admin.
type Registry struct {
	backend Backend
	feed    feed.Feed
	opts    Options
	idle    time.Duration
	metrics *observability.Metrics
	logger  *zap.Logger

	mu    sync.Mutex
	desks map[string]*Desk
}

// RegistryDependencies bundles collaborators for the registry.
type RegistryDependencies struct {
	Backend     Backend
	Feed        feed.Feed
	Metrics     *observability.Metrics
	Logger      *zap.Logger
	Thresholds  domain.SLAThresholds
	IdleTimeout time.Duration
	Clock       func() time.Time
}

// NewRegistry constructs an empty registry.
func NewRegistry(deps RegistryDependencies) *Registry {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idle := deps.IdleTimeout
	if idle <= 0 {
		idle = 30 * time.Minute
	}
	return &Registry{
		backend: deps.Backend,
		feed:    deps.Feed,
		opts:    Options{Thresholds: deps.Thresholds, Clock: clock, Logger: logger},
		idle:    idle,
		metrics: deps.Metrics,
		logger:  logger,
		desks:   make(map[string]*Desk),
	}
}

// Open starts a desk owned by admin.
func (r *Registry) Open(ctx context.Context, admin *domain.Admin) *Desk {
	d := Open(ctx, r.backend, r.feed, admin, r.opts)
	r.mu.Lock()
	r.desks[d.ID()] = d
	count := len(r.desks)
	r.mu.Unlock()
	r.metrics.SetOpenDesks(count)
	r.logger.Info("desk opened", zap.String("desk_id", d.ID()), zap.String("admin", admin.ActorLabel()))
	return d
}

// Get returns the desk with id when admin owns it.
func (r *Registry) Get(id string, admin *domain.Admin) (*Desk, error) {
	r.mu.Lock()
	d, ok := r.desks[id]
	r.mu.Unlock()
	if !ok {
		return nil, apperrors.NewNotFound("desk", map[string]any{"id": id})
	}
	if d.Admin().ID() != admin.ID() {
		return nil, apperrors.NewForbidden("desk belongs to another admin")
	}
	return d, nil
}

// Close closes and forgets the desk with id.
func (r *Registry) Close(id string, admin *domain.Admin) error {
	d, err := r.Get(id, admin)
	if err != nil {
		return err
	}
	r.remove(d)
	return nil
}

// Reap closes desks idle for longer than the idle timeout and returns how
// many were closed. Desks with an attached stream are never reaped.
func (r *Registry) Reap(now time.Time) int {
	r.mu.Lock()
	var stale []*Desk
	for _, d := range r.desks {
		if d.Idle(now, r.idle) {
			stale = append(stale, d)
		}
	}
	r.mu.Unlock()

	for _, d := range stale {
		r.remove(d)
	}
	if len(stale) > 0 {
		r.logger.Info("idle desks reaped", zap.Int("count", len(stale)))
	}
	return len(stale)
}

// Len is the number of open desks.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.desks)
}

// CloseAll closes every desk.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	desks := make([]*Desk, 0, len(r.desks))
	for _, d := range r.desks {
		desks = append(desks, d)
	}
	r.mu.Unlock()
	for _, d := range desks {
		r.remove(d)
	}
}

func (r *Registry) remove(d *Desk) {
	r.mu.Lock()
	delete(r.desks, d.ID())
	count := len(r.desks)
	r.mu.Unlock()
	d.Close()
	r.metrics.SetOpenDesks(count)
}
