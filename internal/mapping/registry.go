package mapping

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"farm_mapper/internal/editor"
	"farm_mapper/internal/farmform"
	"farm_mapper/internal/metrics"
	"farm_mapper/internal/models"
	"farm_mapper/internal/render"
	"farm_mapper/internal/store"
)

// ErrNoSession is returned when the owner has not opened a mapping session.
var ErrNoSession = errors.New("no mapping session is open")

// ChangeFunc is told about every farm saved or deleted.
type ChangeFunc func(ownerID, farmID uuid.UUID, op string)

// Config wires a registry. Store and Renderer are required.
type Config struct {
	Store    store.FarmRecordStore
	Renderer *render.Renderer
	Editor   editor.Options
	OnChange ChangeFunc
}

// Registry holds at most one session per owner.
type Registry struct {
	store      store.FarmRecordStore
	forms      *farmform.Controller
	renderer   *render.Renderer
	editorOpts editor.Options
	onChange   ChangeFunc
	now        func() time.Time

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
}

func NewRegistry(cfg Config) *Registry {
	return &Registry{
		store:      cfg.Store,
		forms:      farmform.NewController(cfg.Store),
		renderer:   cfg.Renderer,
		editorOpts: cfg.Editor,
		onChange:   cfg.OnChange,
		now:        time.Now,
		sessions:   make(map[uuid.UUID]*Session),
	}
}

// Open returns the owner's session, creating it when needed.
func (r *Registry) Open(owner uuid.UUID) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[owner]; ok {
		return s
	}
	s := newSession(owner, r)
	r.sessions[owner] = s
	metrics.ActiveSessions.Inc()
	logrus.WithField("owner_id", owner).Debug("mapping: session opened")
	return s
}

func (r *Registry) Get(owner uuid.UUID) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[owner]
	if !ok {
		return nil, ErrNoSession
	}
	return s, nil
}

// Close tears the session down. Unsaved geometry is discarded.
func (r *Registry) Close(owner uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[owner]; !ok {
		return false
	}
	delete(r.sessions, owner)
	metrics.ActiveSessions.Dec()
	logrus.WithField("owner_id", owner).Debug("mapping: session closed")
	return true
}

// Sweep closes sessions idle for longer than maxIdle and returns how many it closed.
func (r *Registry) Sweep(maxIdle time.Duration) int {
	cutoff := r.now().Add(-maxIdle)
	r.mu.Lock()
	defer r.mu.Unlock()
	closed := 0
	for owner, s := range r.sessions {
		if s.idleSince().Before(cutoff) {
			delete(r.sessions, owner)
			metrics.ActiveSessions.Dec()
			closed++
		}
	}
	if closed > 0 {
		logrus.WithField("closed", closed).Info("mapping: expired idle sessions")
	}
	return closed
}

// RunSweeper calls Sweep every interval until ctx is done.
func (r *Registry) RunSweeper(ctx context.Context, interval, maxIdle time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.Sweep(maxIdle)
		}
	}
}

// FarmDeleted clears the owner's session of a farm removed elsewhere.
func (r *Registry) FarmDeleted(owner, farmID uuid.UUID) {
	if s, err := r.Get(owner); err == nil {
		s.forget(farmID)
	}
	r.Notify(owner, farmID, "delete")
}

// Plan lists the owner's farms and renders them with selected highlighted.
func (r *Registry) Plan(ctx context.Context, owner, selected uuid.UUID) ([]models.Farm, render.Plan, error) {
	return r.plan(ctx, owner, selected)
}

func (r *Registry) plan(ctx context.Context, owner, selected uuid.UUID) ([]models.Farm, render.Plan, error) {
	farms, err := r.store.List(ctx, owner)
	if err != nil {
		return nil, render.Plan{}, err
	}
	plan, err := r.renderer.Plan(farms, selected)
	if err != nil {
		return nil, render.Plan{}, err
	}
	return farms, plan, nil
}

// Forms exposes the form controller for callers that save without a session.
func (r *Registry) Forms() *farmform.Controller { return r.forms }

// Notify reports a farm change made outside a session save.
func (r *Registry) Notify(owner, farmID uuid.UUID, op string) {
	if r.onChange != nil {
		r.onChange(owner, farmID, op)
	}
}
