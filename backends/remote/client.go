package remote

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v4"

	axiom "github.com/chromium/axiom-sub003"
	"github.com/chromium/axiom-sub003/fserr"
	"github.com/chromium/axiom-sub003/fspath"
	"github.com/chromium/axiom-sub003/internal/util"
)

// Client is a backend whose entries live on another node. Paths are
// forwarded under the client's remote root; an empty root addresses the
// node's default root.
type Client struct {
	name string
	root string
	conn *websocket.Conn

	writeMu sync.Mutex
	pending *xsync.Map[string, chan *Response]

	done    chan struct{}
	doneErr error

	closeOnce sync.Once
	closeErr  error
	logger    util.Logger
}

var (
	_ axiom.FileSystem       = (*Client)(nil)
	_ axiom.RecursiveRemover = (*Client)(nil)
)

// ValidateURL checks that rawURL names a websocket endpoint.
func ValidateURL(rawURL string) (*url.URL, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, fserr.New(fserr.Missing, "remote URL is required")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fserr.Wrapf(err, fserr.Invalid, "invalid remote URL %q", rawURL)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fserr.Newf(fserr.Incompatible, "remote URL scheme must be ws or wss, got %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fserr.Newf(fserr.Invalid, "remote URL %q has no host", rawURL)
	}
	return u, nil
}

// Dial connects to the server at rawURL, e.g. "ws://host:7070/fs".
func Dial(ctx context.Context, name, rawURL, root string) (*Client, error) {
	logger := util.GetLogger("Remote.Dial")

	u, err := ValidateURL(rawURL)
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		logger.Error().Err(err).Str("url", u.String()).Msg("Failed to connect")
		return nil, fserr.Wrapf(err, fserr.Runtime, "connect to %s", u.Redacted())
	}

	c := &Client{
		name:    name,
		root:    root,
		conn:    conn,
		pending: xsync.NewMap[string, chan *Response](),
		done:    make(chan struct{}),
		logger:  util.GetLogger("Remote.Client").With().Str("fs", name).Str("url", u.Redacted()).Logger(),
	}
	go c.readLoop()
	logger.Info().Str("fs", name).Str("url", u.Redacted()).Msg("Connected")
	return c, nil
}

func (c *Client) Name() string {
	return c.name
}

func (c *Client) readLoop() {
	for {
		var resp Response
		if err := c.conn.ReadJSON(&resp); err != nil {
			c.doneErr = fserr.Wrap(err, fserr.Runtime, "remote connection lost")
			close(c.done)
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.logger.Debug().Err(err).Msg("Read loop ended")
			}
			return
		}
		if ch, ok := c.pending.Load(resp.ID); ok {
			ch <- &resp
		} else {
			c.logger.Warn().Str("id", resp.ID).Msg("Response for unknown request")
		}
	}
}

// Close ends the session. Later calls return the first result.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()

		select {
		case <-c.done:
		case <-time.After(time.Second):
		}
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// call sends req and waits for its response. A failed operation returns the
// response together with the error so partial results are not lost.
func (c *Client) call(ctx context.Context, req *Request) (*Response, error) {
	req.ID = uuid.NewString()
	ch := make(chan *Response, 1)
	c.pending.Store(req.ID, ch)
	defer c.pending.Delete(req.ID)

	select {
	case <-c.done:
		return nil, c.doneErr
	default:
	}

	c.writeMu.Lock()
	err := c.conn.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		return nil, fserr.Wrapf(err, fserr.Runtime, "send %s", req.Op)
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return resp, resp.Error.err()
		}
		return resp, nil
	case <-ctx.Done():
		return nil, fserr.Wrapf(ctx.Err(), fserr.Runtime, "remote %s interrupted", req.Op)
	case <-c.done:
		return nil, c.doneErr
	}
}

// remotePath maps a backend-relative path onto the server's namespace.
func (c *Client) remotePath(p fspath.Path) (string, error) {
	if !p.IsValid() {
		return "", fserr.Newf(fserr.Invalid, "invalid path %q", p.OriginalSpec())
	}
	return fspath.FromElements(c.root, p.Elements()...).Spec(), nil
}

func (c *Client) simple(ctx context.Context, op Op, p fspath.Path) (*Response, error) {
	rp, err := c.remotePath(p)
	if err != nil {
		return nil, err
	}
	return c.call(ctx, &Request{Op: op, Path: rp})
}

func (c *Client) Resolve(ctx context.Context, p fspath.Path) axiom.ResolveResult {
	resp, err := c.simple(ctx, OpResolve, p)
	if err != nil || resp.Resolve == nil || !resp.Resolve.Found {
		return axiom.ResolveResult{Suffix: p.Elements()}
	}
	r := resp.Resolve
	return axiom.ResolveResult{
		Prefix: r.Prefix,
		Suffix: r.Suffix,
		Entry:  entry{mode: r.Mode, mtime: r.MTime},
		Owner:  c,
	}
}

func (c *Client) Stat(ctx context.Context, p fspath.Path) (axiom.Stat, error) {
	resp, err := c.simple(ctx, OpStat, p)
	if err != nil {
		return axiom.Stat{}, err
	}
	if resp.Stat == nil {
		return axiom.Stat{}, fserr.New(fserr.Runtime, "remote stat returned nothing")
	}
	return *resp.Stat, nil
}

func (c *Client) List(ctx context.Context, p fspath.Path) (map[string]axiom.Stat, error) {
	resp, err := c.simple(ctx, OpList, p)
	if err != nil {
		return nil, err
	}
	if resp.List == nil {
		return map[string]axiom.Stat{}, nil
	}
	return resp.List, nil
}

func (c *Client) Mkdir(ctx context.Context, p fspath.Path) error {
	_, err := c.simple(ctx, OpMkdir, p)
	return err
}

func (c *Client) Unlink(ctx context.Context, p fspath.Path) error {
	_, err := c.simple(ctx, OpUnlink, p)
	return err
}

func (c *Client) UnlinkRecursive(ctx context.Context, p fspath.Path) error {
	_, err := c.simple(ctx, OpUnlinkRecursive, p)
	return err
}

// CreateOpenContext stats the entry first so the context can check modes
// locally. Remote values are transferred whole and are not seekable.
func (c *Client) CreateOpenContext(ctx context.Context, p fspath.Path) (axiom.OpenContext, error) {
	st, err := c.Stat(ctx, p)
	if err != nil {
		return nil, err
	}
	return newOpenContext(c, p, entry{mode: st.Mode &^ axiom.ModeSeekable, mtime: st.MTime}), nil
}

func (c *Client) CreateExecuteContext(
	ctx context.Context, p fspath.Path, arg any, opts ...axiom.ExecOption,
) (axiom.ExecuteContext, error) {
	st, err := c.Stat(ctx, p)
	if err != nil {
		return nil, err
	}
	normalized, err := axiom.NormalizeArg(arg)
	if err != nil {
		return nil, err
	}
	return newExecuteContext(c, p, entry{mode: st.Mode, mtime: st.MTime}, normalized,
		axiom.ApplyExecOptions(c, opts...)), nil
}

func (c *Client) read(ctx context.Context, p fspath.Path) (any, error) {
	resp, err := c.simple(ctx, OpRead, p)
	if err != nil {
		return nil, err
	}
	return decodeValue(resp.Value)
}

func (c *Client) write(ctx context.Context, p fspath.Path, value any, appendValue bool) error {
	rp, err := c.remotePath(p)
	if err != nil {
		return err
	}
	v, err := encodeValue(value)
	if err != nil {
		return err
	}
	_, err = c.call(ctx, &Request{Op: OpWrite, Path: rp, Value: v, Append: appendValue})
	return err
}

// entry is the local view of a remote entry.
type entry struct {
	mode  axiom.Mode
	mtime int64
}

func (e entry) Mode() axiom.Mode { return e.mode }
func (e entry) MTime() time.Time { return time.UnixMilli(e.mtime) }
