package dashboard

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"github.com/trackmyacademy/dashboard/core"
)

type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusLoaded  Status = "loaded"
	StatusFailed  Status = "failed"
)

// State is the untyped, renderable snapshot of a Resource.
type State struct {
	Status Status      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
	Error  string      `json:"error,omitempty"`

	err error
}

// Err returns the error of a failed State.
func (s State) Err() error { return s.err }

// Resource is one independently loaded collection of a dashboard.
// A failed load discards the data of a previous successful load.
type Resource[T any] struct {
	fetch func(ctx context.Context) (T, error)

	mu      sync.RWMutex
	loading bool
	loaded  bool
	data    T
	err     error
}

func NewResource[T any](fetch func(ctx context.Context) (T, error)) *Resource[T] {
	return &Resource[T]{fetch: fetch}
}

// Load fetches the resource. The loading flag is cleared whatever the outcome, panics included.
func (r *Resource[T]) Load(ctx context.Context) (err error) {
	r.mu.Lock()
	r.loading = true
	r.mu.Unlock()

	var data T
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.Errorf("loading resource: %v", rec)
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		r.loading = false
		if err != nil {
			var zero T
			r.data, r.loaded, r.err = zero, false, err
			return
		}
		r.data, r.loaded, r.err = data, true, nil
	}()

	data, err = r.fetch(ctx)
	return err
}

func (r *Resource[T]) Loading() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loading
}

// Data returns the loaded data, and false if the resource is not loaded.
func (r *Resource[T]) Data() (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.data, r.loaded
}

func (r *Resource[T]) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}

func (r *Resource[T]) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()

	switch {
	case r.loading:
		return State{Status: StatusLoading}
	case r.err != nil:
		return State{Status: StatusFailed, Error: ErrorMessage(r.err), err: r.err}
	case r.loaded:
		return State{Status: StatusLoaded, Data: r.data}
	default:
		return State{Status: StatusIdle}
	}
}

// ErrorMessage returns the message shown to users for a failed load.
// Backend rejections are shown verbatim; transport details are never shown.
func ErrorMessage(err error) string {
	switch cause := errors.Cause(err).(type) {
	case *core.TransportError:
		return fmt.Sprintf("%s is unavailable, please retry", cause.Service)
	case *core.RejectionError:
		return cause.Message
	}
	switch errors.Cause(err) {
	case core.ErrUnauthorized:
		return core.ErrUnauthorized.Error()
	case core.ErrForbidden:
		return core.ErrForbidden.Error()
	case core.ErrNotFound:
		return core.ErrNotFound.Error()
	default:
		return "could not load, please retry"
	}
}
