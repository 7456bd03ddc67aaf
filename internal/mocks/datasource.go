package mocks

import (
	"context"

	axiom "github.com/chromium/axiom-sub003"
	"github.com/stretchr/testify/mock"
)

// MockDataSource implements axiom.DataSource for testing across packages
type MockDataSource struct {
	mock.Mock
}

func (m *MockDataSource) Load(ctx context.Context) (any, error) {
	args := m.Called(ctx)

	// Handle function return types (for complex tests)
	if fn, ok := args.Get(0).(func(context.Context) any); ok {
		return fn(ctx), args.Error(1)
	}
	return args.Get(0), args.Error(1)
}

func (m *MockDataSource) Store(ctx context.Context, value any) error {
	args := m.Called(ctx, value)
	return args.Error(0)
}

func (m *MockDataSource) Meta(ctx context.Context) (*axiom.SourceMeta, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*axiom.SourceMeta), args.Error(1)
}

var _ axiom.DataSource = (*MockDataSource)(nil)

// MockSourceProvider implements adapters.SourceProvider for testing
type MockSourceProvider struct {
	mock.Mock
}

func (m *MockSourceProvider) NewSource(raw []byte) (axiom.DataSource, error) {
	args := m.Called(raw)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(axiom.DataSource), args.Error(1)
}
