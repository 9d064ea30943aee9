package uploadmock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/slok/restorewatch/internal/api"
	"github.com/slok/restorewatch/internal/model"
)

// MockInitiator is a mock of upload.Initiator.
type MockInitiator struct {
	mock.Mock
}

func (_m *MockInitiator) Initiate(ctx context.Context, cred model.Credential, r api.InitiateRequest) (string, error) {
	ret := _m.Called(ctx, cred, r)
	return ret.String(0), ret.Error(1)
}
