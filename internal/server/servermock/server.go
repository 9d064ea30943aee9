package servermock

import (
	"github.com/stretchr/testify/mock"

	"github.com/slok/restorewatch/internal/runner"
)

// MockJobRunner is a mock of server.JobRunner.
type MockJobRunner struct {
	mock.Mock
}

func (_m *MockJobRunner) Submit(job runner.Job) error {
	ret := _m.Called(job)
	return ret.Error(0)
}

func (_m *MockJobRunner) Cancel(operationID string) bool {
	ret := _m.Called(operationID)
	return ret.Bool(0)
}
