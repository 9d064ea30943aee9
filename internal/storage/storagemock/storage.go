package storagemock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/slok/restorewatch/internal/model"
)

// MockRepository is a mock of storage.Repository.
type MockRepository struct {
	mock.Mock
}

func (_m *MockRepository) CreateOperation(ctx context.Context, op model.Operation) error {
	ret := _m.Called(ctx, op)
	return ret.Error(0)
}

func (_m *MockRepository) GetOperation(ctx context.Context, id string) (*model.Operation, error) {
	ret := _m.Called(ctx, id)

	var r0 *model.Operation
	if v := ret.Get(0); v != nil {
		r0 = v.(*model.Operation)
	}

	return r0, ret.Error(1)
}

func (_m *MockRepository) ListOperations(ctx context.Context) ([]model.OperationSummary, error) {
	ret := _m.Called(ctx)

	var r0 []model.OperationSummary
	if v := ret.Get(0); v != nil {
		r0 = v.([]model.OperationSummary)
	}

	return r0, ret.Error(1)
}

func (_m *MockRepository) UpdateOperation(ctx context.Context, op model.Operation) error {
	ret := _m.Called(ctx, op)
	return ret.Error(0)
}

func (_m *MockRepository) AppendEvent(ctx context.Context, ev model.ProgressEvent) (*model.ProgressEvent, error) {
	ret := _m.Called(ctx, ev)

	if rf, ok := ret.Get(0).(func(context.Context, model.ProgressEvent) (*model.ProgressEvent, error)); ok {
		return rf(ctx, ev)
	}

	var r0 *model.ProgressEvent
	if v := ret.Get(0); v != nil {
		r0 = v.(*model.ProgressEvent)
	}

	return r0, ret.Error(1)
}

func (_m *MockRepository) ListEvents(ctx context.Context, operationID string, afterSeq int) ([]model.ProgressEvent, error) {
	ret := _m.Called(ctx, operationID, afterSeq)

	var r0 []model.ProgressEvent
	if v := ret.Get(0); v != nil {
		r0 = v.([]model.ProgressEvent)
	}

	return r0, ret.Error(1)
}
