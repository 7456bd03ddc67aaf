// Package requests decodes seed definitions (directories, data entries and
// mounts) from JSON or YAML and applies them to an in-memory file system.
package requests

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	axiom "github.com/chromium/axiom-sub003"
	"github.com/chromium/axiom-sub003/adapters"
	"github.com/chromium/axiom-sub003/config"
	"github.com/chromium/axiom-sub003/filesystem"
	"github.com/chromium/axiom-sub003/fserr"
	"github.com/chromium/axiom-sub003/fspath"
	"github.com/chromium/axiom-sub003/internal/util"
)

// NodeRequest holds the fields shared by every seed entry, with defaults
// applied.
type NodeRequest struct {
	ID   string
	Path fspath.Path
	Type NodeType
}

func (n NodeRequest) Node() NodeRequest { return n }

// Request is one decoded seed entry.
type Request interface {
	Node() NodeRequest
}

type DirRequest struct {
	NodeRequest
}

type DataRequest struct {
	NodeRequest
	Mode    axiom.Mode
	Value   any
	Sources []axiom.DataSource
	TTL     *time.Duration
}

// Entry builds the data entry. Source backed entries without their own TTL
// use defaultTTL.
func (r *DataRequest) Entry(defaultTTL time.Duration) *filesystem.Data {
	if len(r.Sources) == 0 {
		return filesystem.NewDataMode(r.Value, r.Mode)
	}
	ttl := defaultTTL
	if r.TTL != nil {
		ttl = *r.TTL
	}
	return filesystem.NewSourceData(r.Mode, ttl, r.Sources...)
}

type MountRequest struct {
	NodeRequest
	Mount config.MountConfig
}

// MountFunc builds the backend a mount entry names.
type MountFunc func(ctx context.Context, mc config.MountConfig) (axiom.FileSystem, error)

// Decode reads a list of seed entries. YAML is accepted as well as JSON since
// every JSON document is also YAML.
func Decode(data []byte, registry *adapters.Registry) ([]Request, error) {
	var raw []map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fserr.Wrap(err, fserr.Invalid, "malformed seed document")
	}

	reqs := make([]Request, 0, len(raw))
	for i, entry := range raw {
		encoded, err := json.Marshal(entry)
		if err != nil {
			return nil, fserr.Wrapf(err, fserr.Invalid, "seed entry %d", i)
		}
		req, err := Unmarshal(encoded, registry)
		if err != nil {
			return nil, fserr.Wrapf(err, fserr.KindOf(err), "seed entry %d", i)
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// LoadFile decodes the seed file at path.
func LoadFile(path string, registry *adapters.Registry) ([]Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fserr.FromHost(err, "read seed file")
	}
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fserr.Newf(fserr.Incompatible, "unsupported seed file extension %q", ext)
	}
	return Decode(data, registry)
}

// Apply creates every entry in order. Parent directories are created as
// needed. Mount entries are built with mount; a nil mount rejects them.
func Apply(ctx context.Context, fs *filesystem.FileSystem, reqs []Request, mount MountFunc) error {
	logger := util.GetLogger("Requests.Apply")

	for _, req := range reqs {
		node := req.Node()
		var err error
		switch r := req.(type) {
		case *DirRequest:
			err = fs.MkdirAll(ctx, r.Path)
		case *DataRequest:
			err = mkdirParent(ctx, fs, r.Path)
			if err == nil {
				err = fs.Link(ctx, r.Path, r.Entry(fs.CacheTTL()))
			}
		case *MountRequest:
			if mount == nil {
				err = fserr.Newf(fserr.NotImplemented, "no mount builder for %s", r.Path.Spec())
				break
			}
			var backend axiom.FileSystem
			if backend, err = mount(ctx, r.Mount); err != nil {
				break
			}
			if err = mkdirParent(ctx, fs, r.Path); err == nil {
				err = fs.Mount(ctx, r.Path, backend)
			}
		}
		if err != nil {
			logger.Error().Err(err).Str("id", node.ID).Str("path", node.Path.Spec()).Msg("Seed entry failed")
			return fserr.Wrapf(err, fserr.KindOf(err), "seed %s %s", node.Type, node.Path.Spec())
		}
		logger.Debug().Str("id", node.ID).Str("type", node.Type).Str("path", node.Path.Spec()).Msg("Seeded")
	}
	return nil
}

func mkdirParent(ctx context.Context, fs *filesystem.FileSystem, p fspath.Path) error {
	parent, ok := p.Parent()
	if !ok || parent.IsRoot() {
		return nil
	}
	return fs.MkdirAll(ctx, parent)
}
