package broker

import (
	"context"
	"errors"
	"time"
)

// Client is the external venue collaborator the live adapter delegates
// to. Implementations own connectivity, authentication, and any retry
// policy of their own.
type Client interface {
	SubmitOrder(ctx context.Context, o Order) (Fill, error)
	OpenPositions(ctx context.Context) ([]PositionInfo, error)
}

// Live routes orders to an external venue client with a bounded
// submit latency. A submit that outlives the timeout is treated as
// rejected with ReasonTimeout, never as an indeterminate state that
// could be retried in place and double-submit.
type Live struct {
	client  Client
	timeout time.Duration
}

// DefaultSubmitTimeout bounds a live order submit when the caller does
// not configure one.
const DefaultSubmitTimeout = 10 * time.Second

func NewLive(client Client, timeout time.Duration) *Live {
	if timeout <= 0 {
		timeout = DefaultSubmitTimeout
	}
	return &Live{client: client, timeout: timeout}
}

func (l *Live) Submit(ctx context.Context, o Order) (Fill, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	fill, err := l.client.SubmitOrder(ctx, o)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Fill{}, &RejectionError{OrderID: o.ID, Reason: ReasonTimeout, Err: err}
		}
		if _, ok := AsRejection(err); ok {
			return Fill{}, err
		}
		return Fill{}, &RejectionError{OrderID: o.ID, Reason: ReasonBrokerError, Err: err}
	}
	return fill, nil
}

func (l *Live) OpenPositions(ctx context.Context) ([]PositionInfo, error) {
	return l.client.OpenPositions(ctx)
}
