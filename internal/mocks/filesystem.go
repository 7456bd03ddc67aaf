package mocks

import (
	"context"

	axiom "github.com/chromium/axiom-sub003"
	"github.com/chromium/axiom-sub003/fspath"
	"github.com/stretchr/testify/mock"
)

// MockFileSystem implements axiom.FileSystem for routing tests. Paths are
// matched by their normalized spec so expectations can be written as strings:
//
//	m.On("Stat", mock.Anything, "/a").Return(axiom.Stat{}, nil)
type MockFileSystem struct {
	mock.Mock
	FSName string
}

func (m *MockFileSystem) Name() string {
	if m.FSName == "" {
		return "mock"
	}
	return m.FSName
}

func (m *MockFileSystem) Resolve(ctx context.Context, p fspath.Path) axiom.ResolveResult {
	args := m.Called(ctx, p.Spec())
	return args.Get(0).(axiom.ResolveResult)
}

func (m *MockFileSystem) Stat(ctx context.Context, p fspath.Path) (axiom.Stat, error) {
	args := m.Called(ctx, p.Spec())
	return args.Get(0).(axiom.Stat), args.Error(1)
}

func (m *MockFileSystem) List(ctx context.Context, p fspath.Path) (map[string]axiom.Stat, error) {
	args := m.Called(ctx, p.Spec())
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]axiom.Stat), args.Error(1)
}

func (m *MockFileSystem) Mkdir(ctx context.Context, p fspath.Path) error {
	return m.Called(ctx, p.Spec()).Error(0)
}

func (m *MockFileSystem) Unlink(ctx context.Context, p fspath.Path) error {
	return m.Called(ctx, p.Spec()).Error(0)
}

func (m *MockFileSystem) CreateOpenContext(ctx context.Context, p fspath.Path) (axiom.OpenContext, error) {
	args := m.Called(ctx, p.Spec())
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(axiom.OpenContext), args.Error(1)
}

func (m *MockFileSystem) CreateExecuteContext(
	ctx context.Context, p fspath.Path, arg any, opts ...axiom.ExecOption,
) (axiom.ExecuteContext, error) {
	args := m.Called(ctx, p.Spec(), arg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(axiom.ExecuteContext), args.Error(1)
}

var _ axiom.FileSystem = (*MockFileSystem)(nil)
