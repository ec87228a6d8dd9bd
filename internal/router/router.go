// Package router picks a usable backend model from an ordered preference list.
package router

import (
	"context"
	"errors"
	"log/slog"

	"PerspectiveLens/internal/domain"
	"PerspectiveLens/internal/ratelimit"
)

// Selection is the outcome of SelectBestAvailable.
type Selection struct {
	Model         string                `json:"model"`
	WasFallback   bool                  `json:"wasFallback"`
	BlockedModels []domain.BlockedModel `json:"blockedModels"`
}

// ModelStatus is one row of GetStatusForAll.
type ModelStatus struct {
	Model         string                 `json:"model"`
	Available     bool                   `json:"available"`
	TimeRemaining int                    `json:"timeRemaining"`
	Block         *domain.RateLimitBlock `json:"block,omitempty"`
}

// Router routes requests across models in strict preference order.
type Router struct {
	models []string
	store  *ratelimit.Store
	logger *slog.Logger
}

// New builds a router; the preference list must not be empty.
func New(models []string, store *ratelimit.Store, logger *slog.Logger) (*Router, error) {
	if len(models) == 0 {
		return nil, errors.New("router: model preference list is empty")
	}
	if store == nil {
		return nil, errors.New("router: rate limit store is nil")
	}
	return &Router{
		models: append([]string(nil), models...),
		store:  store,
		logger: logger,
	}, nil
}

// Models returns a copy of the preference list.
func (r *Router) Models() []string {
	return append([]string(nil), r.models...)
}

// SelectBestAvailable returns the first unblocked model, or an
// AllModelsRateLimitedError carrying the shortest remaining wait.
func (r *Router) SelectBestAvailable(ctx context.Context) (Selection, error) {
	var blocked []domain.BlockedModel
	for _, model := range r.models {
		block, err := r.store.GetBlock(ctx, model)
		if err != nil {
			return Selection{}, err
		}
		if block == nil {
			if len(blocked) > 0 {
				r.debug("falling back to lower preference model", "model", model, "skipped", len(blocked))
			}
			return Selection{
				Model:         model,
				WasFallback:   len(blocked) > 0,
				BlockedModels: blocked,
			}, nil
		}
		blocked = append(blocked, domain.BlockedModel{Model: model, TimeRemaining: r.store.Remaining(*block)})
	}

	wait := blocked[0].TimeRemaining
	for _, b := range blocked[1:] {
		if b.TimeRemaining < wait {
			wait = b.TimeRemaining
		}
	}
	r.warn("all models rate limited", "models", len(blocked), "wait_s", wait)
	return Selection{}, &domain.AllModelsRateLimitedError{WaitSeconds: wait, Models: blocked}
}

// HandleRateLimitError records a block for model from a raw 429 body.
func (r *Router) HandleRateLimitError(ctx context.Context, model string, payload []byte) (domain.RateLimitBlock, error) {
	hit := ratelimit.ParseHit(payload)
	return r.store.RecordHit(ctx, model, hit)
}

// GetStatusForAll reports availability for every preference-list entry without
// touching stored state.
func (r *Router) GetStatusForAll(ctx context.Context) ([]ModelStatus, error) {
	statuses := make([]ModelStatus, 0, len(r.models))
	for _, model := range r.models {
		block, err := r.store.Peek(ctx, model)
		if err != nil {
			return nil, err
		}
		status := ModelStatus{Model: model, Available: block == nil}
		if block != nil {
			status.TimeRemaining = r.store.Remaining(*block)
			status.Block = block
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// GetNextAvailable scans strictly after current for an available model.
// ok is false when current is not in the list or nothing after it is usable.
func (r *Router) GetNextAvailable(ctx context.Context, current string) (string, bool, error) {
	pos := -1
	for i, model := range r.models {
		if model == current {
			pos = i
			break
		}
	}
	if pos < 0 {
		return "", false, nil
	}

	for _, model := range r.models[pos+1:] {
		available, err := r.store.IsAvailable(ctx, model)
		if err != nil {
			return "", false, err
		}
		if available {
			return model, true, nil
		}
	}
	return "", false, nil
}

// Clear lifts the block on a single model.
func (r *Router) Clear(ctx context.Context, model string) error {
	return r.store.Clear(ctx, model)
}

// ClearAll lifts every block.
func (r *Router) ClearAll(ctx context.Context) error {
	return r.store.ClearAll(ctx)
}

func (r *Router) debug(msg string, args ...interface{}) {
	if r.logger != nil {
		r.logger.Debug(msg, args...)
	}
}

func (r *Router) warn(msg string, args ...interface{}) {
	if r.logger != nil {
		r.logger.Warn(msg, args...)
	}
}
