package filesystem

import (
	"context"
	"errors"
	"testing"
	"time"

	axiom "github.com/chromium/axiom-sub003"
	"github.com/chromium/axiom-sub003/fserr"
	"github.com/chromium/axiom-sub003/internal/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestData_SourceFailover(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	primary := &mocks.MockDataSource{}
	primary.On("Load", mock.Anything).Return(nil, errors.New("primary unreachable"))
	secondary := &mocks.MockDataSource{}
	secondary.On("Load", mock.Anything).Return("from secondary", nil)
	secondary.On("Meta", mock.Anything).Return(nil, nil)

	d := NewSourceData(DefaultDataMode, time.Minute, primary, secondary)
	v, err := d.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "from secondary", v)

	// Cached for the TTL.
	v, err = d.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "from secondary", v)
	primary.AssertNumberOfCalls(t, "Load", 1)
	secondary.AssertNumberOfCalls(t, "Load", 1)

	d.ClearCache()
	_, err = d.Load(ctx)
	require.NoError(t, err)
	secondary.AssertNumberOfCalls(t, "Load", 2)
}

func TestData_AllSourcesFail(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	a := &mocks.MockDataSource{}
	a.On("Load", mock.Anything).Return(nil, errors.New("a down"))
	b := &mocks.MockDataSource{}
	b.On("Load", mock.Anything).Return(nil, errors.New("b down"))

	d := NewSourceData(DefaultDataMode, time.Minute, a, b)
	_, err := d.Load(ctx)
	require.Error(t, err)
	assert.Equal(t, fserr.Runtime, fserr.KindOf(err))
	assert.Contains(t, err.Error(), "a down")
	assert.Contains(t, err.Error(), "b down")
}

func TestData_MetaTTLOverridesDefault(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	noCache := time.Duration(0)
	src := &mocks.MockDataSource{}
	src.On("Load", mock.Anything).Return("fresh", nil)
	src.On("Meta", mock.Anything).Return(&axiom.SourceMeta{TTL: &noCache}, nil)

	d := NewSourceData(DefaultDataMode, time.Hour, src)
	for range 3 {
		_, err := d.Load(ctx)
		require.NoError(t, err)
	}
	src.AssertNumberOfCalls(t, "Load", 3)
}

func TestData_StoreGoesThroughPrimary(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	src := &mocks.MockDataSource{}
	src.On("Load", mock.Anything).Return("abc", nil)
	src.On("Meta", mock.Anything).Return(nil, nil)
	src.On("Store", mock.Anything, "abcdef").Return(nil)

	d := NewSourceData(DefaultDataMode, time.Minute, src)
	require.NoError(t, d.Store(ctx, "def", true))
	src.AssertExpectations(t)

	v, err := d.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abcdef", v)
	assert.Equal(t, int64(6), d.Size(ctx))
}

func TestData_NoSourcesAndAppend(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	d := NewData([]any{1})
	require.NoError(t, d.Store(ctx, 2, true))
	v, err := d.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []any{1, 2}, v)

	n := NewData(42)
	err = n.Store(ctx, 1, true)
	assert.Equal(t, fserr.TypeMismatch, fserr.KindOf(err))

	empty := NewSourceData(DefaultDataMode, 0)
	v, err = empty.Load(ctx)
	require.NoError(t, err, "data without sources serves its in-memory value")
	assert.Nil(t, v)
}
