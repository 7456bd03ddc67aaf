package commands

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	axiom "github.com/chromium/axiom-sub003"
	"github.com/chromium/axiom-sub003/config"
	"github.com/chromium/axiom-sub003/filesystem"
	"github.com/chromium/axiom-sub003/fserr"
	"github.com/chromium/axiom-sub003/fspath"
	"github.com/chromium/axiom-sub003/internal/util"
	"github.com/chromium/axiom-sub003/manager"
	"github.com/chromium/axiom-sub003/stream"
)

func path(s string) fspath.Path {
	return fspath.MustParse(s)
}

// createTestNamespace mounts an in-memory root with the commands installed
// under /exe and a few entries under /home.
func createTestNamespace(t *testing.T) (*manager.Manager, *filesystem.FileSystem) {
	t.Helper()
	ctx := context.Background()

	fs := filesystem.NewFS(config.DefaultRoot, nil)
	require.NoError(t, Install(ctx, fs, path(config.DefaultExeDir)))
	require.NoError(t, fs.MkdirAll(ctx, path("/home/logs")))
	require.NoError(t, fs.Link(ctx, path("/home/a.txt"), filesystem.NewData("alpha")))
	require.NoError(t, fs.Link(ctx, path("/home/b.txt"), filesystem.NewData("beta")))
	require.NoError(t, fs.Link(ctx, path("/home/logs/1.log"), filesystem.NewData("one")))

	m := manager.New(nil, nil)
	require.NoError(t, m.Mount(config.DefaultRoot, fs))
	return m, fs
}

type result struct {
	value  any
	err    error
	stdout string
	stderr string
}

func run(t *testing.T, m *manager.Manager, name string, arg any) result {
	t.Helper()
	stdout, stderr := stream.NewCollector(), stream.NewCollector()
	env, err := axiom.NewEnv(map[string]any{axiom.EnvPwd: "/home"})
	require.NoError(t, err)

	v, err := m.Exec(context.Background(), path(config.DefaultExeDir).Join(name), arg,
		axiom.WithStdio(axiom.Stdio{Stdout: stdout.Writable, Stderr: stderr.Writable}),
		axiom.WithEnv(env))
	return result{value: v, err: err, stdout: stdout.String(), stderr: stderr.String()}
}

func TestInstall(t *testing.T) {
	t.Parallel()

	_, fs := createTestNamespace(t)
	list, err := fs.List(context.Background(), path(config.DefaultExeDir))
	require.NoError(t, err)
	require.Len(t, list, len(Builtins()))
	for _, c := range Builtins() {
		st, ok := list[c.Name]
		require.True(t, ok, c.Name)
		assert.True(t, st.Mode.Has(axiom.ModeExecutable), c.Name)
	}

	_, ok := Get("ls")
	assert.True(t, ok)
	_, ok = Get("sudo")
	assert.False(t, ok)
}

func TestEchoAndPwd(t *testing.T) {
	t.Parallel()

	m, _ := createTestNamespace(t)

	r := run(t, m, "echo", []string{"hello", "world"})
	require.NoError(t, r.err)
	assert.Equal(t, "hello world\n", r.stdout)

	r = run(t, m, "echo", axiom.Arg{axiom.Positional: []string{"x"}, "n": true})
	require.NoError(t, r.err)
	assert.Equal(t, "x", r.stdout)

	r = run(t, m, "pwd", nil)
	require.NoError(t, r.err)
	assert.Equal(t, "/home\n", r.stdout)
}

func TestLs(t *testing.T) {
	t.Parallel()

	m, _ := createTestNamespace(t)

	r := run(t, m, "ls", nil)
	require.NoError(t, r.err)
	assert.Equal(t, "a.txt\nb.txt\nlogs\n", r.stdout)
	assert.Equal(t, []string{"a.txt", "b.txt", "logs"}, r.value)

	r = run(t, m, "ls", []string{"a.txt"})
	require.NoError(t, r.err)
	assert.Equal(t, "a.txt\n", r.stdout)

	r = run(t, m, "ls", axiom.Arg{axiom.Positional: []string{"logs"}, "l": true})
	require.NoError(t, r.err)
	assert.Contains(t, r.stdout, "-rw-s")
	assert.Contains(t, r.stdout, "1.log\n")

	r = run(t, m, "ls", []string{"ghost"})
	assert.Equal(t, fserr.NotFound, fserr.KindOf(r.err))
	assert.Contains(t, r.stderr, "ls: /home/ghost: NotFound")
}

func TestCat(t *testing.T) {
	t.Parallel()

	m, _ := createTestNamespace(t)

	r := run(t, m, "cat", []string{"a.txt", "/home/b.txt"})
	require.NoError(t, r.err)
	assert.Equal(t, "alphabeta", r.stdout)

	// A failing operand does not stop the others.
	r = run(t, m, "cat", []string{"ghost", "a.txt"})
	assert.Equal(t, fserr.NotFound, fserr.KindOf(r.err))
	assert.Equal(t, "alpha", r.stdout)
	assert.Contains(t, r.stderr, "cat: /home/ghost:")
}

func TestCat_Glob(t *testing.T) {
	t.Parallel()

	m, _ := createTestNamespace(t)

	r := run(t, m, "cat", []string{"*.txt"})
	require.NoError(t, r.err)
	assert.Equal(t, "alphabeta", r.stdout)

	r = run(t, m, "cat", []string{"**/*.log"})
	require.NoError(t, r.err)
	assert.Equal(t, "one", r.stdout)
}

func TestCat_Stdin(t *testing.T) {
	t.Parallel()

	fs := filesystem.NewFS(config.DefaultRoot, nil)
	require.NoError(t, Install(context.Background(), fs, path("/bin")))

	stdout := stream.NewCollector()
	_, err := axiom.Exec(context.Background(), fs, path("/bin/cat"), nil, axiom.WithStdio(axiom.Stdio{
		Stdin:  stream.FromValues("a", "b"),
		Stdout: stdout.Writable,
	}))
	require.NoError(t, err)
	assert.Equal(t, "ab", stdout.String())
}

func TestRelativeOperandsFollowPwd(t *testing.T) {
	t.Parallel()

	m, _ := createTestNamespace(t)
	exec := func(name string, arg any) (string, error) {
		stdout := stream.NewCollector()
		_, err := m.Exec(context.Background(), path(config.DefaultExeDir).Join(name), arg,
			axiom.WithStdio(axiom.Stdio{Stdout: stdout.Writable}),
			axiom.WithEnv(axiom.Env{"$PWD": "/home/logs"}))
		return stdout.String(), err
	}

	out, err := exec("cat", []string{"1.log", "../a.txt"})
	require.NoError(t, err)
	assert.Equal(t, "onealpha", out)

	out, err = exec("pwd", nil)
	require.NoError(t, err)
	assert.Equal(t, "/home/logs\n", out)
}

func TestMkdirAndRm(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m, fs := createTestNamespace(t)

	r := run(t, m, "mkdir", []string{"x/y"})
	assert.Equal(t, fserr.NotFound, fserr.KindOf(r.err))

	r = run(t, m, "mkdir", axiom.Arg{axiom.Positional: []string{"x/y"}, "p": true})
	require.NoError(t, r.err)
	st, err := fs.Stat(ctx, path("/home/x/y"))
	require.NoError(t, err)
	assert.True(t, st.Mode.Has(axiom.ModeDirectory))

	r = run(t, m, "rm", []string{"x"})
	assert.Equal(t, fserr.Invalid, fserr.KindOf(r.err))

	r = run(t, m, "rm", axiom.Arg{axiom.Positional: []string{"x", "a.txt"}, "r": true})
	require.NoError(t, r.err)
	_, err = fs.Stat(ctx, path("/home/x"))
	assert.Equal(t, fserr.NotFound, fserr.KindOf(err))
	_, err = fs.Stat(ctx, path("/home/a.txt"))
	assert.Equal(t, fserr.NotFound, fserr.KindOf(err))

	r = run(t, m, "mkdir", nil)
	assert.Equal(t, fserr.Missing, fserr.KindOf(r.err))
}

func TestStat(t *testing.T) {
	t.Parallel()

	m, _ := createTestNamespace(t)

	r := run(t, m, "stat", []string{"a.txt"})
	require.NoError(t, r.err)
	st, ok := r.value.(axiom.Stat)
	require.True(t, ok)
	assert.EqualValues(t, 5, st.Size)
	assert.Contains(t, r.stdout, "/home/a.txt")

	r = run(t, m, "stat", []string{"a.txt", "logs"})
	require.NoError(t, r.err)
	assert.Nil(t, r.value)
	assert.Contains(t, r.stdout, "/home/logs")

	r = run(t, m, "stat", axiom.Arg{"bogus": true})
	assert.Equal(t, fserr.TypeMismatch, fserr.KindOf(r.err))
}

func TestParseArgv(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		words []string
		want  axiom.Arg
	}{
		{"empty", nil, axiom.Arg{}},
		{"positional", []string{"a", "b"}, axiom.Arg{axiom.Positional: []string{"a", "b"}}},
		{"short flags", []string{"-lr", "x"}, axiom.Arg{"l": true, "r": true, axiom.Positional: []string{"x"}}},
		{"long", []string{"--all", "--name=v"}, axiom.Arg{"all": true, "name": "v"}},
		{"terminator", []string{"-p", "--", "-x"}, axiom.Arg{"p": true, axiom.Positional: []string{"-x"}}},
		{"dash", []string{"-"}, axiom.Arg{axiom.Positional: []string{"-"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ParseArgv(tt.words))
		})
	}
}

func TestMain(m *testing.M) {
	util.InitializeLogger(util.ErrorLevel)
	m.Run()
}
