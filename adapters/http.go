package adapters

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	axiom "github.com/chromium/axiom-sub003"
	"github.com/chromium/axiom-sub003/fserr"
	"github.com/chromium/axiom-sub003/internal/util"
)

type HTTPMethod = string

const (
	HTTPMethodGet  HTTPMethod = "GET"
	HTTPMethodHead HTTPMethod = "HEAD"
	HTTPMethodPost HTTPMethod = "POST"
)

// HTTPSource contains http-specific source definition fields
type HTTPSource struct {
	URL     string            `json:"url"`
	Method  *HTTPMethod       `json:"method,omitempty"` // Default is GET
	Headers map[string]string `json:"headers,omitempty"`
	// TTL in seconds overrides the entry's cache policy
	TTL *float64 `json:"ttl,omitempty"`
}

// HTTPClient is the part of *http.Client the adapter needs.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type HTTPProvider struct {
	client HTTPClient
}

// NewHTTPProvider returns a provider whose sources use client, or
// http.DefaultClient when nil.
func NewHTTPProvider(client HTTPClient) *HTTPProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPProvider{client: client}
}

func RegisterHTTP(r *Registry) {
	r.Register(HTTPSourceType, NewHTTPProvider(nil))
}

func (p *HTTPProvider) NewSource(raw []byte) (axiom.DataSource, error) {
	var cfg HTTPSource
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fserr.Wrap(err, fserr.Invalid, "malformed http source")
	}
	cfg.URL = strings.TrimSpace(cfg.URL)
	if err := validateURL(cfg.URL); err != nil {
		return nil, err
	}
	return &HTTPAdapter{config: &cfg, client: p.client}, nil
}

func validateURL(raw string) error {
	if raw == "" {
		return fserr.New(fserr.Missing, "http source needs a url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fserr.Wrapf(err, fserr.Invalid, "invalid url %q", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fserr.Newf(fserr.Incompatible, "unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fserr.Newf(fserr.Invalid, "url %q has no host", raw)
	}
	if u.User != nil {
		return fserr.Newf(fserr.Invalid, "url %q must not carry user info", raw)
	}
	return nil
}

// HTTPAdapter implements [axiom.DataSource] for HTTP sources. It is read-only.
type HTTPAdapter struct {
	config *HTTPSource
	client HTTPClient
}

func (h *HTTPAdapter) newRequest(ctx context.Context, method HTTPMethod) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, h.config.URL, nil)
	if err != nil {
		return nil, fserr.Wrap(err, fserr.Invalid, "build request")
	}

	// Add custom headers
	for k, v := range h.config.Headers {
		req.Header.Set(k, v)
	}

	return req, nil
}

func (h *HTTPAdapter) do(ctx context.Context, method HTTPMethod) (*http.Response, error) {
	req, err := h.newRequest(ctx, method)
	if err != nil {
		return nil, err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fserr.Wrapf(err, fserr.Runtime, "%s %s", method, h.config.URL)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		kind := fserr.Runtime
		if resp.StatusCode == http.StatusNotFound {
			kind = fserr.NotFound
		}
		return nil, fserr.Newf(kind, "%s %s: %s", method, h.config.URL, resp.Status).
			WithContext("status", resp.StatusCode)
	}
	return resp, nil
}

// Load fetches the body. JSON bodies are decoded, text bodies become a string
// and anything else is returned as bytes.
func (h *HTTPAdapter) Load(ctx context.Context) (any, error) {
	logger := util.GetLogger("HTTPAdapter.Load")

	resp, err := h.do(ctx, h.getMethod())
	if err != nil {
		logger.Debug().Err(err).Str("url", h.config.URL).Msg("Request failed")
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fserr.Wrap(err, fserr.Runtime, "read response body")
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	switch {
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		var v any
		if err := json.Unmarshal(body, &v); err != nil {
			return nil, fserr.Wrap(err, fserr.Runtime, "decode json body")
		}
		return v, nil
	case mediaType == "" || strings.HasPrefix(mediaType, "text/"):
		return string(body), nil
	default:
		return body, nil
	}
}

func (h *HTTPAdapter) Store(context.Context, any) error {
	// HTTP sources are read-only to start
	return fserr.New(fserr.NotImplemented, "http sources are read-only")
}

// Meta issues a HEAD request for size, last-modified and etag.
func (h *HTTPAdapter) Meta(ctx context.Context) (*axiom.SourceMeta, error) {
	resp, err := h.do(ctx, HTTPMethodHead)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	meta := &axiom.SourceMeta{Version: resp.Header.Get("ETag")}
	if resp.ContentLength > 0 {
		meta.Size = resp.ContentLength
	}
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			meta.LastModified = &t
		}
	}
	if h.config.TTL != nil {
		ttl := time.Duration(*h.config.TTL * float64(time.Second))
		meta.TTL = &ttl
	}
	return meta, nil
}

func (h *HTTPAdapter) getMethod() HTTPMethod {
	if h.config.Method != nil {
		return *h.config.Method
	}
	return HTTPMethodGet
}
