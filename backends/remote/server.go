package remote

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	axiom "github.com/chromium/axiom-sub003"
	"github.com/chromium/axiom-sub003/fserr"
	"github.com/chromium/axiom-sub003/fspath"
	"github.com/chromium/axiom-sub003/internal/metrics"
	"github.com/chromium/axiom-sub003/internal/util"
	"github.com/chromium/axiom-sub003/stream"
)

// Endpoint is the websocket path served by Server.Handler.
const Endpoint = "/fs"

// Server serves one file system, usually the manager's namespace, to remote
// clients.
type Server struct {
	fs       axiom.FileSystem
	metrics  *metrics.Metrics
	origins  map[string]bool
	upgrader websocket.Upgrader
}

// NewServer serves fsys. m may be nil.
//
// The endpoint is unauthenticated: any peer that connects may read, write
// and execute. Browser peers can be restricted with AllowOrigins.
func NewServer(fsys axiom.FileSystem, m *metrics.Metrics) *Server {
	s := &Server{fs: fsys, metrics: m}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	return s
}

// AllowOrigins limits browser connections to the given origins. Requests
// without an Origin header (other nodes, CLIs) are always accepted.
func (s *Server) AllowOrigins(origins ...string) *Server {
	if len(origins) == 0 {
		s.origins = nil
		return s
	}
	s.origins = make(map[string]bool, len(origins))
	for _, o := range origins {
		s.origins[strings.TrimSuffix(o, "/")] = true
	}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || s.origins == nil {
		return true
	}
	if !s.origins[origin] {
		util.GetLogger("Remote.Serve").Warn().Str("origin", origin).Msg("Rejected origin")
		return false
	}
	return true
}

// Handler routes the websocket endpoint and, when metrics are enabled,
// /metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(Endpoint, s)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}
	return mux
}

// ServeHTTP upgrades the connection and serves requests until the client
// disconnects. Each request runs in its own goroutine.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := util.GetLogger("Remote.Serve")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer func() { _ = conn.Close() }()

	session := uuid.NewString()
	logger = logger.With().Str("session", session).Str("peer", r.RemoteAddr).Logger()
	logger.Info().Msg("Session opened")
	s.metrics.SessionOpened()
	defer s.metrics.SessionClosed()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var (
		writeMu sync.Mutex
		wg      sync.WaitGroup
	)
	for {
		var req Request
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Info().Msg("Session closed")
			} else {
				logger.Debug().Err(err).Msg("Session ended")
			}
			break
		}
		s.metrics.Message("in")

		wg.Go(func() {
			resp := s.handle(ctx, &req)
			writeMu.Lock()
			defer writeMu.Unlock()
			if err := conn.WriteJSON(resp); err != nil {
				logger.Debug().Err(err).Str("id", req.ID).Msg("Failed to send response")
				return
			}
			s.metrics.Message("out")
		})
	}
	cancel()
	wg.Wait()
}

func (s *Server) handle(ctx context.Context, req *Request) *Response {
	logger := util.GetLogger("Remote.Handle")

	resp := &Response{ID: req.ID}
	p := fspath.Parse(req.Path)
	if !p.IsValid() {
		resp.Error = toWireError(fserr.Newf(fserr.Invalid, "invalid path %q", req.Path))
		return resp
	}

	var err error
	switch req.Op {
	case OpResolve:
		res := s.fs.Resolve(ctx, p)
		reply := &ResolveReply{Prefix: res.Prefix, Suffix: res.Suffix, Found: res.Entry != nil}
		if res.Entry != nil {
			reply.Mode = res.Entry.Mode()
			reply.MTime = res.Entry.MTime().UnixMilli()
		}
		resp.Resolve = reply
	case OpStat:
		var st axiom.Stat
		if st, err = s.fs.Stat(ctx, p); err == nil {
			resp.Stat = &st
		}
	case OpList:
		resp.List, err = s.fs.List(ctx, p)
	case OpMkdir:
		err = s.fs.Mkdir(ctx, p)
	case OpUnlink:
		err = s.fs.Unlink(ctx, p)
	case OpUnlinkRecursive:
		err = axiom.RemoveAll(ctx, s.fs, p)
	case OpRead:
		var v any
		if v, err = axiom.ReadValue(ctx, s.fs, p); err == nil {
			resp.Value, err = encodeValue(v)
		}
	case OpWrite:
		var v any
		if v, err = decodeValue(req.Value); err == nil {
			err = axiom.WriteValue(ctx, s.fs, p, v, req.Append)
		}
	case OpExec:
		err = s.exec(ctx, p, req, resp)
	default:
		err = fserr.Newf(fserr.NotImplemented, "unknown operation %q", req.Op)
	}

	if err != nil {
		logger.Debug().Err(err).Str("op", string(req.Op)).Str("path", p.Spec()).Msg("Request failed")
		resp.Error = toWireError(err)
	}
	return resp
}

// exec runs the executable with captured output. The command's stdin is
// empty.
func (s *Server) exec(ctx context.Context, p fspath.Path, req *Request, resp *Response) error {
	env, err := axiom.NewEnv(req.Env)
	if err != nil {
		return err
	}
	stdout, stderr := stream.NewCollector(), stream.NewCollector()
	v, execErr := axiom.Exec(ctx, s.fs, p, req.Arg,
		axiom.WithStdio(axiom.Stdio{Stdout: stdout.Writable, Stderr: stderr.Writable}),
		axiom.WithEnv(env),
	)

	for _, c := range []*stream.Collector{stdout, stderr} {
		closed := make(chan struct{})
		c.OnClose(func(error) { close(closed) })
		c.End()
		select {
		case <-c.Done():
		case <-closed:
		case <-ctx.Done():
			return fserr.Wrap(ctx.Err(), fserr.Runtime, "collecting output")
		}
	}
	if resp.Stdout, err = encodeValues(stdout.Values()); err != nil {
		return err
	}
	if resp.Stderr, err = encodeValues(stderr.Values()); err != nil {
		return err
	}
	if execErr != nil {
		return execErr
	}
	resp.Value, err = encodeValue(v)
	return err
}

func encodeValues(values []any) ([]Value, error) {
	out := make([]Value, 0, len(values))
	for _, v := range values {
		ev, err := encodeValue(v)
		if err != nil {
			return nil, err
		}
		out = append(out, *ev)
	}
	return out, nil
}
