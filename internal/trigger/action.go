package trigger

import (
	"context"
	"errors"
)

// Action is the side effect run at each event, e.g. playing the adhan.
type Action interface {
	Fire(ctx context.Context) error
}

// ActionFunc adapts a function to Action.
type ActionFunc func(ctx context.Context) error

func (f ActionFunc) Fire(ctx context.Context) error { return f(ctx) }

// Chain runs every action in order. A failing action does not stop the
// rest; their errors are joined. Nil actions are skipped.
func Chain(actions ...Action) Action {
	return ActionFunc(func(ctx context.Context) error {
		var errs []error
		for _, a := range actions {
			if a == nil {
				continue
			}
			if err := a.Fire(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}
