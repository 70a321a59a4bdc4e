// Package publisher delivers a finished job's result. Publishers run once per
// job, before the workspace (and with it the artifact) is released.
package publisher

import (
	"context"

	"slidecast/internal/models"
	"slidecast/internal/pkg/errors"
)

// Publisher delivers a render result.
type Publisher interface {
	Publish(ctx context.Context, res models.RenderResult) error
}

// Func adapts a function to Publisher.
type Func func(ctx context.Context, res models.RenderResult) error

func (f Func) Publish(ctx context.Context, res models.RenderResult) error { return f(ctx, res) }

// Multi publishes to every publisher in order and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, res models.RenderResult) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, res); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
