package fspath

import (
	"testing"

	"github.com/chromium/axiom-sub003/fserr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		spec     string
		root     string
		elements []string
		norm     string
	}{
		{"", "", nil, "/"},
		{"/", "", nil, "/"},
		{"/a/b", "", []string{"a", "b"}, "/a/b"},
		{"a//b/", "", []string{"a", "b"}, "/a/b"},
		{"/a/./b/../c", "", []string{"a", "c"}, "/a/c"},
		{"/../..", "", nil, "/"},
		{"jsfs:/exe/echo", "jsfs", []string{"exe", "echo"}, "jsfs:/exe/echo"},
		{"drive:", "drive", nil, "drive:/"},
		{"/a:b", "", []string{"a:b"}, "/a:b"},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			p := Parse(tt.spec)
			require.True(t, p.IsValid())
			assert.Equal(t, tt.spec, p.OriginalSpec())
			assert.Equal(t, tt.root, p.Root())
			assert.Equal(t, tt.elements, p.Elements())
			assert.Equal(t, tt.norm, p.Spec())
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	t.Parallel()

	for _, spec := range []string{":/a", "/a\x00b"} {
		p := Parse(spec)
		assert.False(t, p.IsValid(), spec)
		assert.Nil(t, p.Elements(), spec)
		assert.Equal(t, "", p.Spec())
	}
}

func TestMustParse_PanicsWithInvalid(t *testing.T) {
	t.Parallel()

	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(error)
		require.True(t, ok)
		assert.Equal(t, fserr.Invalid, fserr.KindOf(err))
	}()
	MustParse(":/nope")
}

func TestParse_NormalizationIdempotent(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"", "/", "a", "/a/b/", "x:/y/../z", "./a/./b", "a:b/c", "/a:b/c:d", "//..//q"} {
		first := Parse(s)
		second := Parse(first.Spec())
		assert.Equal(t, first.Elements(), second.Elements(), s)
		assert.Equal(t, first.Root(), second.Root(), s)
	}
}

func TestAbsolute(t *testing.T) {
	t.Parallel()

	base := Parse("/a/b")
	assert.Equal(t, "/a/b/c", Absolute(base, "c").Spec())
	assert.Equal(t, "/c", Absolute(base, "/c").Spec())
	assert.Equal(t, "/a", Absolute(base, "..").Spec())
	assert.Equal(t, "/a/b", Absolute(base, "").Spec())

	rooted := Parse("drive:/docs")
	assert.Equal(t, "drive:/docs/x", Absolute(rooted, "x").Spec())
	assert.Equal(t, "drive:/x", Absolute(rooted, "/x").Spec())
	assert.Equal(t, "other:/y", Absolute(rooted, "other:/y").Spec())
}

func TestParentAndBaseName(t *testing.T) {
	t.Parallel()

	p := Parse("/a/b/c")
	parent, ok := p.Parent()
	require.True(t, ok)
	assert.Equal(t, "/a/b", parent.Spec())
	assert.Equal(t, "c", p.BaseName())
	assert.Equal(t, "/a/b/c", p.Spec(), "derivations must not mutate the receiver")

	root := Parse("/")
	_, ok = root.Parent()
	assert.False(t, ok)
	assert.Equal(t, "", root.BaseName())
	assert.True(t, root.IsRoot())
}

func TestJoinRelPrefix(t *testing.T) {
	t.Parallel()

	p := Parse("m:/a").Join("b", "c/d")
	assert.Equal(t, "m:/a/b/c/d", p.Spec())
	assert.Equal(t, "/c/d", p.Rel(2).Spec())
	assert.Equal(t, "/", p.Rel(10).Spec())
	assert.True(t, p.HasPrefix(Parse("m:/a/b")))
	assert.False(t, p.HasPrefix(Parse("/a/b")))
	assert.Equal(t, "n:/a/b/c/d", p.WithRoot("n").Spec())
	assert.True(t, FromElements("m", "a", "b", "c", "d").Equal(p))
}
