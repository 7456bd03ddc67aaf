package manager

import (
	"context"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	axiom "github.com/chromium/axiom-sub003"
	"github.com/chromium/axiom-sub003/fserr"
	"github.com/chromium/axiom-sub003/fspath"
)

// Glob expands pattern against the namespace. The pattern may carry a root
// ("name:/logs/**/*.txt"); "**" matches any number of directories. Matches
// are returned sorted and keep the pattern's root. Sibling directories are
// walked concurrently.
func (m *Manager) Glob(ctx context.Context, pattern string) ([]fspath.Path, error) {
	p := fspath.Parse(pattern)
	if !p.IsValid() {
		return nil, fserr.Newf(fserr.Invalid, "invalid glob %q", pattern)
	}
	joined := strings.Join(p.Elements(), "/")
	if !doublestar.ValidatePattern(joined) {
		return nil, fserr.Newf(fserr.Invalid, "invalid glob %q", pattern)
	}

	base, rest := doublestar.SplitPattern(joined)
	var baseElems []string
	if base != "." {
		baseElems = strings.Split(base, "/")
	}
	basePath := fspath.FromElements(p.Root(), baseElems...)
	if rest == "" {
		if _, err := m.Stat(ctx, basePath); err != nil {
			if fserr.Is(err, fserr.NotFound) {
				return nil, nil
			}
			return nil, err
		}
		return []fspath.Path{basePath}, nil
	}

	w := &globWalk{m: m, pattern: rest, recursive: strings.Contains(rest, "**"), depth: strings.Count(rest, "/") + 1}
	if err := w.walk(ctx, basePath, ""); err != nil {
		return nil, err
	}
	sort.Slice(w.matches, func(i, j int) bool { return w.matches[i].Spec() < w.matches[j].Spec() })
	return w.matches, nil
}

type globWalk struct {
	m         *Manager
	pattern   string
	recursive bool
	depth     int

	mu      sync.Mutex
	matches []fspath.Path
}

func (w *globWalk) walk(ctx context.Context, dir fspath.Path, rel string) error {
	children, err := w.m.List(ctx, dir)
	if err != nil {
		if fserr.Is(err, fserr.NotFound) || fserr.Is(err, fserr.TypeMismatch) {
			return nil
		}
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for name, st := range children {
		childRel := path.Join(rel, name)
		child := dir.Join(name)
		if ok, _ := doublestar.Match(w.pattern, childRel); ok {
			w.mu.Lock()
			w.matches = append(w.matches, child)
			w.mu.Unlock()
		}
		if !st.Mode.Has(axiom.ModeDirectory) {
			continue
		}
		if !w.recursive && strings.Count(childRel, "/")+1 >= w.depth {
			continue
		}
		g.Go(func() error {
			return w.walk(gctx, child, childRel)
		})
	}
	return g.Wait()
}
