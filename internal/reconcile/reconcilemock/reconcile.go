package reconcilemock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/slok/restorewatch/internal/model"
)

// MockHistoryGetter is a mock of reconcile.HistoryGetter.
type MockHistoryGetter struct {
	mock.Mock
}

func (_m *MockHistoryGetter) History(ctx context.Context, operationID string) ([]model.ProgressEvent, error) {
	ret := _m.Called(ctx, operationID)

	var r0 []model.ProgressEvent
	if v := ret.Get(0); v != nil {
		r0 = v.([]model.ProgressEvent)
	}

	return r0, ret.Error(1)
}
