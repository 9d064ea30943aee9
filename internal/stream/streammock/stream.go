package streammock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/slok/restorewatch/internal/api"
	"github.com/slok/restorewatch/internal/stream"
)

// MockSubscriber is a mock of stream.Subscriber.
type MockSubscriber struct {
	mock.Mock
}

func (_m *MockSubscriber) Subscribe(ctx context.Context, operationID string) (stream.Subscription, error) {
	ret := _m.Called(ctx, operationID)

	var r0 stream.Subscription
	if v := ret.Get(0); v != nil {
		r0 = v.(stream.Subscription)
	}

	return r0, ret.Error(1)
}

// FakeSubscription replays a fixed list of messages. When the messages are exhausted it
// returns Err, or blocks until closed when Err is nil.
type FakeSubscription struct {
	Messages []api.Message
	Errors   []error
	Err      error

	closed chan struct{}
	pos    int
}

func NewFakeSubscription(msgs []api.Message, end error) *FakeSubscription {
	return &FakeSubscription{Messages: msgs, Err: end, closed: make(chan struct{})}
}

func (f *FakeSubscription) Next() (api.Message, error) {
	if f.pos < len(f.Messages) {
		i := f.pos
		f.pos++
		var err error
		if i < len(f.Errors) {
			err = f.Errors[i]
		}
		if err != nil {
			return api.Message{}, err
		}
		return f.Messages[i], nil
	}

	if f.Err != nil {
		return api.Message{}, f.Err
	}
	<-f.closed
	return api.Message{}, context.Canceled
}

func (f *FakeSubscription) Close() error {
	select {
	case <-f.closed:
	default:
		close(f.closed)
	}
	return nil
}

// Closed returns true when the subscription was closed.
func (f *FakeSubscription) Closed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}
