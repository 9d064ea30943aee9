package credentialmock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/slok/restorewatch/internal/model"
)

// MockProvider is a mock of credential.Provider.
type MockProvider struct {
	mock.Mock
}

func (_m *MockProvider) Credential(ctx context.Context) (model.Credential, error) {
	ret := _m.Called(ctx)

	if rf, ok := ret.Get(0).(func(context.Context) (model.Credential, error)); ok {
		return rf(ctx)
	}

	return ret.Get(0).(model.Credential), ret.Error(1)
}
