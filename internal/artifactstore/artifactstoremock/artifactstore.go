package artifactstoremock

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"
)

// MockStore is a mock of artifactstore.Store.
type MockStore struct {
	mock.Mock
}

func (_m *MockStore) Put(ctx context.Context, operationID, filename string, r io.Reader) (string, error) {
	ret := _m.Called(ctx, operationID, filename, r)
	return ret.String(0), ret.Error(1)
}

func (_m *MockStore) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	ret := _m.Called(ctx, ref)

	var r0 io.ReadCloser
	if v := ret.Get(0); v != nil {
		r0 = v.(io.ReadCloser)
	}

	return r0, ret.Error(1)
}

func (_m *MockStore) Delete(ctx context.Context, ref string) error {
	ret := _m.Called(ctx, ref)
	return ret.Error(0)
}
