package fusebridge

import (
	"sync"

	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/chromium/axiom-sub003/fspath"
)

// node is a path the kernel holds a reference to.
type node struct {
	id      uint64
	path    fspath.Path
	lookups uint64
}

// nodeTable maps FUSE node IDs to namespace paths. IDs are handed out on
// Lookup and dropped once the kernel forgets every reference. The root node
// is permanent.
type nodeTable struct {
	mu     sync.Mutex
	byID   map[uint64]*node
	byPath map[string]*node
	next   uint64
}

func newNodeTable(root fspath.Path) *nodeTable {
	n := &node{id: fuse.FUSE_ROOT_ID, path: root, lookups: 1}
	return &nodeTable{
		byID:   map[uint64]*node{n.id: n},
		byPath: map[string]*node{root.Spec(): n},
		next:   fuse.FUSE_ROOT_ID + 1,
	}
}

// path returns the path of a known node.
func (t *nodeTable) path(id uint64) (fspath.Path, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.byID[id]
	if !ok {
		return fspath.Path{}, false
	}
	return n.path, true
}

// lookup registers one kernel reference to p and returns its ID.
func (t *nodeTable) lookup(p fspath.Path) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n, ok := t.byPath[p.Spec()]; ok {
		n.lookups++
		return n.id
	}
	n := &node{id: t.next, path: p, lookups: 1}
	t.next++
	t.byID[n.id] = n
	t.byPath[p.Spec()] = n
	return n.id
}

// ino returns the ID of p if the kernel already knows it, 0 otherwise.
func (t *nodeTable) ino(p fspath.Path) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n, ok := t.byPath[p.Spec()]; ok {
		return n.id
	}
	return 0
}

// forget drops n references to id.
func (t *nodeTable) forget(id, n uint64) {
	if id == fuse.FUSE_ROOT_ID {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	nd, ok := t.byID[id]
	if !ok {
		return
	}
	if n >= nd.lookups {
		delete(t.byID, id)
		delete(t.byPath, nd.path.Spec())
		return
	}
	nd.lookups -= n
}

func (t *nodeTable) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byID)
}
