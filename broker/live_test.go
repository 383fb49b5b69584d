package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	fill  Fill
	err   error
	delay time.Duration

	submits int
}

func (c *fakeClient) SubmitOrder(ctx context.Context, o Order) (Fill, error) {
	c.submits++
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return Fill{}, ctx.Err()
		}
	}
	if c.err != nil {
		return Fill{}, c.err
	}
	return c.fill, nil
}

func (c *fakeClient) OpenPositions(ctx context.Context) ([]PositionInfo, error) {
	return nil, nil
}

func TestLiveSubmitFills(t *testing.T) {
	t.Parallel()

	want := Fill{OrderID: "o1", Symbol: "SBER", Side: Buy, Quantity: 10, Price: 100}
	l := NewLive(&fakeClient{fill: want}, time.Second)

	got, err := l.Submit(context.Background(), Order{ID: "o1", Symbol: "SBER", Side: Buy, Quantity: 10})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLiveSubmitTimeoutBecomesRejection(t *testing.T) {
	t.Parallel()

	c := &fakeClient{delay: 200 * time.Millisecond}
	l := NewLive(c, 10*time.Millisecond)

	_, err := l.Submit(context.Background(), Order{ID: "o2", Symbol: "SBER", Side: Buy, Quantity: 1})
	rej, ok := AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, ReasonTimeout, rej.Reason)
	// One submit only: the adapter never retries in place.
	assert.Equal(t, 1, c.submits)
}

func TestLiveSubmitWrapsClientFailure(t *testing.T) {
	t.Parallel()

	l := NewLive(&fakeClient{err: errors.New("connection refused")}, time.Second)

	_, err := l.Submit(context.Background(), Order{ID: "o3", Symbol: "SBER", Side: Sell, Quantity: 5})
	rej, ok := AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, ReasonBrokerError, rej.Reason)
}

func TestLiveSubmitPassesThroughClientRejection(t *testing.T) {
	t.Parallel()

	clientRej := &RejectionError{OrderID: "o4", Reason: ReasonInsufficientFunds}
	l := NewLive(&fakeClient{err: clientRej}, time.Second)

	_, err := l.Submit(context.Background(), Order{ID: "o4", Symbol: "SBER", Side: Buy, Quantity: 5})
	rej, ok := AsRejection(err)
	require.True(t, ok)
	assert.Equal(t, ReasonInsufficientFunds, rej.Reason)
}
