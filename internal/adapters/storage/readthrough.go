package storage

import (
	"context"
	"log/slog"
	"time"

	"github.com/weftworks/weft/internal/domain"
	"github.com/weftworks/weft/internal/ports"
	"github.com/weftworks/weft/internal/xjson"
)

// ReadThrough puts the shared cache in front of a store's point reads.
// Writes go to the store first and invalidate on success; cache failures
// never surface, the store stays the source of truth. The shared level is
// borrowed, Close touches only the inner store.
type ReadThrough struct {
	inner  ports.Store
	shared ports.SharedCache
	ttl    time.Duration
	logger *slog.Logger
}

func NewReadThrough(inner ports.Store, shared ports.SharedCache, ttl time.Duration, logger *slog.Logger) *ReadThrough {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReadThrough{
		inner:  inner,
		shared: shared,
		ttl:    ttl,
		logger: logger.With("component", "read-through"),
	}
}

func (r *ReadThrough) SaveWorkflow(ctx context.Context, workflow *domain.Workflow) error {
	if err := r.inner.SaveWorkflow(ctx, workflow); err != nil {
		return err
	}
	r.invalidate(ctx, domain.StoreWorkflowKey(workflow.ID))
	return nil
}

func (r *ReadThrough) GetWorkflow(ctx context.Context, id string) (*domain.Workflow, error) {
	key := domain.StoreWorkflowKey(id)
	var workflow domain.Workflow
	if r.lookup(ctx, key, &workflow) {
		return &workflow, nil
	}

	fresh, err := r.inner.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	r.populate(ctx, key, fresh)
	return fresh, nil
}

func (r *ReadThrough) DeleteWorkflow(ctx context.Context, id string) error {
	err := r.inner.DeleteWorkflow(ctx, id)
	r.invalidate(ctx, domain.StoreWorkflowKey(id))
	return err
}

func (r *ReadThrough) ListWorkflows(ctx context.Context, opts ports.ListOptions) ([]*domain.Workflow, error) {
	return r.inner.ListWorkflows(ctx, opts)
}

func (r *ReadThrough) SaveExecution(ctx context.Context, run *domain.Run) error {
	if err := r.inner.SaveExecution(ctx, run); err != nil {
		return err
	}
	r.invalidate(ctx, domain.StoreRunKey(run.ID))
	return nil
}

func (r *ReadThrough) GetExecution(ctx context.Context, id string) (*domain.Run, error) {
	key := domain.StoreRunKey(id)
	var run domain.Run
	if r.lookup(ctx, key, &run) {
		return &run, nil
	}

	fresh, err := r.inner.GetExecution(ctx, id)
	if err != nil {
		return nil, err
	}
	r.populate(ctx, key, fresh)
	return fresh, nil
}

func (r *ReadThrough) ListExecutions(ctx context.Context, workflowID string, opts ports.ListOptions) ([]*domain.Run, error) {
	return r.inner.ListExecutions(ctx, workflowID, opts)
}

func (r *ReadThrough) HealthCheck(ctx context.Context) ports.HealthStatus {
	return r.inner.HealthCheck(ctx)
}

func (r *ReadThrough) Close() error {
	return r.inner.Close()
}

// lookup reports whether key decoded into out; anything short of a clean
// hit is a miss.
func (r *ReadThrough) lookup(ctx context.Context, key string, out interface{}) bool {
	payload, _, found, err := r.shared.Get(ctx, key)
	if err != nil {
		r.logger.Warn("cache read failed, going to store", "key", key, "error", err)
		return false
	}
	if !found {
		return false
	}
	if err := xjson.Unmarshal(payload, out); err != nil {
		r.logger.Warn("corrupt cache entry, going to store", "key", key, "error", err)
		return false
	}
	return true
}

func (r *ReadThrough) populate(ctx context.Context, key string, value interface{}) {
	payload, err := xjson.Marshal(value)
	if err != nil {
		return
	}
	if err := r.shared.Set(ctx, key, payload, r.ttl, nil); err != nil {
		r.logger.Warn("cache populate failed", "key", key, "error", err)
	}
}

func (r *ReadThrough) invalidate(ctx context.Context, key string) {
	if err := r.shared.Delete(ctx, key); err != nil {
		r.logger.Warn("cache invalidate failed", "key", key, "error", err)
	}
}

var _ ports.Store = (*ReadThrough)(nil)
