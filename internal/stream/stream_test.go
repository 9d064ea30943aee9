package stream_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/slok/restorewatch/internal/api"
	"github.com/slok/restorewatch/internal/model"
	"github.com/slok/restorewatch/internal/progress"
	"github.com/slok/restorewatch/internal/stream"
	"github.com/slok/restorewatch/internal/stream/streammock"
)

func progressMsg(stage model.Stage, p int, msg, errText string) api.Message {
	return api.Message{Kind: api.MessageProgress, Event: model.ProgressEvent{
		OperationID: "op1",
		Stage:       stage,
		Progress:    p,
		Message:     msg,
		Error:       errText,
		Timestamp:   time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC),
	}}
}

func TestWatcherWatch(t *testing.T) {
	tests := map[string]struct {
		sub          func() (*streammock.FakeSubscription, error)
		expErr       func(t *testing.T, err error)
		expTerminal  bool
		expFailed    bool
		expError     string
		expHistory   int
		expCallbacks int
	}{
		"A completed stage should finish the watch.": {
			sub: func() (*streammock.FakeSubscription, error) {
				return streammock.NewFakeSubscription([]api.Message{
					progressMsg(model.StageUploaded, 0, "uploaded", ""),
					progressMsg(model.StageExtracting, 40, "extracting", ""),
					progressMsg(model.StageExtracting, 40, "extracting", ""),
					progressMsg(model.StageRestoreCompleted, 100, "done", ""),
				}, nil), nil
			},
			expTerminal:  true,
			expHistory:   3,
			expCallbacks: 1,
		},
		"Full progress on a processing stage should complete.": {
			sub: func() (*streammock.FakeSubscription, error) {
				return streammock.NewFakeSubscription([]api.Message{
					progressMsg(model.StageFinalizing, 100, "finalizing", ""),
				}, nil), nil
			},
			expTerminal:  true,
			expHistory:   1,
			expCallbacks: 1,
		},
		"A completion signal should finish the watch.": {
			sub: func() (*streammock.FakeSubscription, error) {
				return streammock.NewFakeSubscription([]api.Message{
					progressMsg(model.StageUploaded, 0, "uploaded", ""),
					{Kind: api.MessageCompleted, Details: map[string]string{"tables": "3"}},
				}, nil), nil
			},
			expTerminal:  true,
			expHistory:   1,
			expCallbacks: 1,
		},
		"A failed stage should fail the operation.": {
			sub: func() (*streammock.FakeSubscription, error) {
				return streammock.NewFakeSubscription([]api.Message{
					progressMsg(model.StageRestoreFailed, 60, "restore failed", "disk full"),
				}, nil), nil
			},
			expTerminal:  true,
			expFailed:    true,
			expError:     "disk full",
			expHistory:   1,
			expCallbacks: 1,
		},
		"An error signal should fail the operation.": {
			sub: func() (*streammock.FakeSubscription, error) {
				return streammock.NewFakeSubscription([]api.Message{
					{Kind: api.MessageError, Error: "checksum mismatch"},
				}, nil), nil
			},
			expTerminal:  true,
			expFailed:    true,
			expError:     "checksum mismatch",
			expCallbacks: 1,
		},
		"A not found error signal should be ambiguous.": {
			sub: func() (*streammock.FakeSubscription, error) {
				return streammock.NewFakeSubscription([]api.Message{
					{Kind: api.MessageError, Error: "Operation not found"},
				}, nil), nil
			},
			expErr: func(t *testing.T, err error) {
				var nf *model.StreamNotFoundError
				assert.ErrorAs(t, err, &nf)
			},
		},
		"A not found subscription should be ambiguous.": {
			sub: func() (*streammock.FakeSubscription, error) {
				return nil, fmt.Errorf("subscribe: %w", model.ErrNotFound)
			},
			expErr: func(t *testing.T, err error) {
				var nf *model.StreamNotFoundError
				assert.ErrorAs(t, err, &nf)
			},
		},
		"A disconnect before terminal should be a transport error.": {
			sub: func() (*streammock.FakeSubscription, error) {
				return streammock.NewFakeSubscription([]api.Message{
					progressMsg(model.StageUploaded, 0, "uploaded", ""),
				}, io.EOF), nil
			},
			expErr: func(t *testing.T, err error) {
				var te *model.StreamTransportError
				assert.ErrorAs(t, err, &te)
				assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
			},
			expHistory: 1,
		},
		"Invalid messages should be ignored.": {
			sub: func() (*streammock.FakeSubscription, error) {
				s := streammock.NewFakeSubscription([]api.Message{
					{},
					progressMsg(model.StageRestoreCompleted, 100, "done", ""),
				}, nil)
				s.Errors = []error{fmt.Errorf("bad envelope: %w", model.ErrNotValid)}
				return s, nil
			},
			expTerminal:  true,
			expHistory:   1,
			expCallbacks: 1,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			fs, subErr := test.sub()
			ms := &streammock.MockSubscriber{}
			if subErr != nil {
				ms.On("Subscribe", mock.Anything, "op1").Once().Return(nil, subErr)
			} else {
				ms.On("Subscribe", mock.Anything, "op1").Once().Return(fs, nil)
			}

			callbacks := 0
			tracker := progress.NewTracker(progress.TrackerConfig{
				OnTerminal: func(model.ClientView) { callbacks++ },
			})

			w, err := stream.NewWatcher(stream.WatcherConfig{Subscriber: ms})
			require.NoError(err)

			err = w.Watch(context.TODO(), "op1", tracker)
			if test.expErr != nil {
				require.Error(err)
				test.expErr(t, err)
				assert.True(model.IsRecoverable(err))
			} else {
				require.NoError(err)
			}

			v := tracker.View()
			assert.Equal(test.expTerminal, v.Terminal)
			assert.Equal(test.expFailed, v.Failed)
			assert.Equal(test.expError, v.Error)
			assert.Len(v.History, test.expHistory)
			assert.Equal(test.expCallbacks, callbacks)
			if fs != nil {
				assert.True(fs.Closed())
			}
			ms.AssertExpectations(t)
		})
	}
}

func TestWatcherCancel(t *testing.T) {
	fs := streammock.NewFakeSubscription(nil, nil)
	ms := &streammock.MockSubscriber{}
	ms.On("Subscribe", mock.Anything, "op1").Once().Return(fs, nil)

	w, err := stream.NewWatcher(stream.WatcherConfig{Subscriber: ms})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err = w.Watch(ctx, "op1", progress.NewTracker(progress.TrackerConfig{}))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.True(t, fs.Closed())
}
