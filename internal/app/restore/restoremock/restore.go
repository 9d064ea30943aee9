package restoremock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/slok/restorewatch/internal/progress"
	"github.com/slok/restorewatch/internal/upload"
)

// MockUploader is a mock of restore.Uploader.
type MockUploader struct {
	mock.Mock
}

func (_m *MockUploader) Submit(ctx context.Context, r upload.Request) (string, error) {
	ret := _m.Called(ctx, r)
	return ret.String(0), ret.Error(1)
}

// MockWatcher is a mock of restore.Watcher.
type MockWatcher struct {
	mock.Mock
}

func (_m *MockWatcher) Watch(ctx context.Context, operationID string, tracker *progress.Tracker) error {
	ret := _m.Called(ctx, operationID, tracker)
	return ret.Error(0)
}

// MockReconciler is a mock of restore.Reconciler.
type MockReconciler struct {
	mock.Mock
}

func (_m *MockReconciler) Reconcile(ctx context.Context, operationID string, tracker *progress.Tracker) (bool, error) {
	ret := _m.Called(ctx, operationID, tracker)
	return ret.Bool(0), ret.Error(1)
}

// MockKeyProvider is a mock of restore.KeyProvider.
type MockKeyProvider struct {
	mock.Mock
}

func (_m *MockKeyProvider) Key(ctx context.Context, filename string) (string, error) {
	ret := _m.Called(ctx, filename)

	if rf, ok := ret.Get(0).(func(context.Context, string) (string, error)); ok {
		return rf(ctx, filename)
	}

	return ret.String(0), ret.Error(1)
}

// MockCanceler is a mock of restore.Canceler.
type MockCanceler struct {
	mock.Mock
}

func (_m *MockCanceler) Cancel(ctx context.Context, operationID string) error {
	ret := _m.Called(ctx, operationID)
	return ret.Error(0)
}
