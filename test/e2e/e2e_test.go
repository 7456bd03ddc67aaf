package e2e

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var axiomBin string

func TestMain(m *testing.M) {
	// Build the binary once for all tests
	tmpBinDir, err := os.MkdirTemp("", "axiom-bin")
	if err != nil {
		panic(err)
	}
	axiomBin = filepath.Join(tmpBinDir, "axiom")

	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		panic("cannot determine current file path")
	}
	projRoot := filepath.Join(filepath.Dir(thisFile), "..", "..")

	cmd := exec.Command("go", "build", "-o", axiomBin, "./cmd/axiom")
	cmd.Dir = projRoot
	if out, err := cmd.CombinedOutput(); err != nil {
		panic(string(out))
	}

	code := m.Run()
	_ = os.RemoveAll(tmpBinDir)
	os.Exit(code)
}

// TestFileSpec defines what the mock origin serves for one URL path
type TestFileSpec struct {
	path        string
	content     []byte
	contentType string
	errorCode   int // 0 = success, 404, 500, etc.
}

// TestFileBuilder provides a fluent API for creating test files
type TestFileBuilder struct {
	spec TestFileSpec
}

func NewTestFile(path string) *TestFileBuilder {
	return &TestFileBuilder{spec: TestFileSpec{path: path, contentType: "text/plain"}}
}

func (b *TestFileBuilder) WithTextContent(content string) *TestFileBuilder {
	b.spec.content = []byte(content)
	b.spec.contentType = "text/plain"
	return b
}

// WithBinaryContent generates binary content of the specified size
func (b *TestFileBuilder) WithBinaryContent(size int) *TestFileBuilder {
	b.spec.content = make([]byte, size)
	for i := range b.spec.content {
		b.spec.content[i] = byte(i % 256)
	}
	b.spec.contentType = "application/octet-stream"
	return b
}

// WithError makes the file return an HTTP error status
func (b *TestFileBuilder) WithError(statusCode int) *TestFileBuilder {
	b.spec.errorCode = statusCode
	return b
}

func (b *TestFileBuilder) Build() *TestFileSpec {
	return &b.spec
}

// startOrigin serves files over HTTP for the lifetime of the test
func startOrigin(t *testing.T, files ...*TestFileSpec) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	for _, file := range files {
		mux.HandleFunc(file.path, func(w http.ResponseWriter, r *http.Request) {
			if file.errorCode != 0 {
				http.Error(w, fmt.Sprintf("Mock error %d", file.errorCode), file.errorCode)
				return
			}
			w.Header().Set("Content-Type", file.contentType)
			w.Header().Set("Content-Length", strconv.Itoa(len(file.content)))
			w.WriteHeader(http.StatusOK)
			if r.Method != http.MethodHead {
				_, _ = w.Write(file.content)
			}
		})
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// writeFile writes content into the test's temp dir and returns its path
func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

type runResult struct {
	stdout string
	stderr string
	code   int
}

// runAxiom runs the binary with args and optional stdin
func runAxiom(t *testing.T, stdin string, args ...string) runResult {
	t.Helper()
	cmd := exec.Command(axiomBin, append([]string{"-v", "1"}, args...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout, cmd.Stderr = &stdout, &stderr
	cmd.Stdin = strings.NewReader(stdin)

	err := cmd.Run()
	res := runResult{stdout: stdout.String(), stderr: stderr.String()}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.code = exitErr.ExitCode()
	} else {
		require.NoError(t, err)
	}
	return res
}

func seedFor(origin *httptest.Server, paths ...string) string {
	entries := make([]string, 0, len(paths))
	for _, p := range paths {
		entries = append(entries, fmt.Sprintf(
			`{"type": "data", "path": "/web%s", "mode": "r", "sources": [{"type": "http", "url": "%s%s"}]}`,
			p, origin.URL, p))
	}
	return "[" + strings.Join(entries, ",\n") + "]"
}

func TestE2ERunCat(t *testing.T) {
	t.Parallel()

	origin := startOrigin(t, NewTestFile("/hello.txt").WithTextContent("Hello, axiom!").Build())
	seed := writeFile(t, "seed.json", seedFor(origin, "/hello.txt"))

	res := runAxiom(t, "", "-n", seed, "run", "cat", "/web/hello.txt")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "Hello, axiom!", res.stdout)
}

func TestE2EMultipleFiles(t *testing.T) {
	t.Parallel()

	origin := startOrigin(t,
		NewTestFile("/a.txt").WithTextContent("first").Build(),
		NewTestFile("/b.bin").WithBinaryContent(300).Build(),
	)
	seed := writeFile(t, "seed.json", seedFor(origin, "/a.txt", "/b.bin"))

	res := runAxiom(t, "", "-n", seed, "run", "ls", "/web")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "a.txt\nb.bin\n", res.stdout)

	res = runAxiom(t, "", "-n", seed, "run", "cat", "/web/b.bin")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Len(t, res.stdout, 300)
}

func TestE2EHTTPErrors(t *testing.T) {
	t.Parallel()

	origin := startOrigin(t,
		NewTestFile("/ok.txt").WithTextContent("fine").Build(),
		NewTestFile("/gone.txt").WithError(http.StatusNotFound).Build(),
	)
	seed := writeFile(t, "seed.json", seedFor(origin, "/gone.txt", "/ok.txt"))

	// The failing operand is reported and the next one still printed.
	res := runAxiom(t, "", "-n", seed, "run", "cat", "/web/gone.txt", "/web/ok.txt")
	assert.Equal(t, 1, res.code)
	assert.Equal(t, "fine", res.stdout)
	assert.Contains(t, res.stderr, "cat: /web/gone.txt: NotFound")
}

func TestE2EStdin(t *testing.T) {
	t.Parallel()

	res := runAxiom(t, "piped through", "run", "cat")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "piped through", res.stdout)
}

func TestE2EConfigMount(t *testing.T) {
	t.Parallel()

	hostDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(hostDir, "notes.txt"), []byte("on the host"), 0o644))
	cfg := writeFile(t, "axiom.yaml", fmt.Sprintf(`
home_dir: /users/me
mounts:
  - type: billy
    name: host
    path: /mnt/host
    options:
      root: %q
`, hostDir))

	res := runAxiom(t, "", "-c", cfg, "run", "cat", "/mnt/host/notes.txt")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "on the host", res.stdout)

	res = runAxiom(t, "", "-c", cfg, "run", "pwd")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Equal(t, "/users/me\n", res.stdout)

	res = runAxiom(t, "", "-c", cfg, "run", "nope")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "NotFound")
}
