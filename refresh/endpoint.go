package refresh

import (
	"context"
	"time"
)

// Endpoint renews the session credential and reports how long the renewed
// credential remains valid. Any error means the session cannot continue.
type Endpoint interface {
	Refresh(ctx context.Context) (time.Duration, error)
}

// EndpointFunc adapts a function to Endpoint.
type EndpointFunc func(ctx context.Context) (time.Duration, error)

func (f EndpointFunc) Refresh(ctx context.Context) (time.Duration, error) {
	return f(ctx)
}
