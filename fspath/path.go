// Package fspath parses and normalizes file system paths.
//
// A path may carry an explicit file system root prefix ("name:/a/b"). Without a
// prefix it resolves against the manager's default root. Paths are values:
// every derivation returns a new Path.
package fspath

import (
	"strings"

	"github.com/chromium/axiom-sub003/fserr"
)

// Separator splits path elements.
const Separator = "/"

// Path is an immutable, normalized file system path.
type Path struct {
	original string
	root     string
	elements []string
	valid    bool
}

// Parse normalizes spec. Empty and "." segments are dropped and ".." pops the
// previous element without escaping the root. An empty root name ("":/x) or a
// NUL byte makes the path invalid.
func Parse(spec string) Path {
	p := Path{original: spec}
	if strings.ContainsRune(spec, 0) {
		return p
	}

	rest := spec
	if root, tail, ok := splitRoot(spec); ok {
		if root == "" {
			return p
		}
		p.root = root
		rest = tail
	}

	p.elements = normalize(nil, rest)
	p.valid = true
	return p
}

// MustParse is like Parse but panics with an Invalid error on invalid input.
func MustParse(spec string) Path {
	p := Parse(spec)
	if !p.valid {
		panic(fserr.Newf(fserr.Invalid, "invalid path %q", spec))
	}
	return p
}

// FromElements builds a path under root from already separated elements.
func FromElements(root string, elements ...string) Path {
	p := Path{root: root, elements: normalize(nil, strings.Join(elements, Separator)), valid: true}
	p.original = p.Spec()
	return p
}

// Absolute resolves spec against base. A spec starting with "/" is absolute
// within base's root and a spec with an explicit root stands on its own.
func Absolute(base Path, spec string) Path {
	if _, _, ok := splitRoot(spec); ok {
		return Parse(spec)
	}
	if !base.valid || strings.ContainsRune(spec, 0) {
		return Path{original: spec}
	}

	var elements []string
	if !strings.HasPrefix(spec, Separator) {
		elements = append(elements, base.elements...)
	}
	p := Path{
		original: spec,
		root:     base.root,
		elements: normalize(elements, spec),
		valid:    true,
	}
	return p
}

// splitRoot recognizes a "name:" prefix appearing before the first separator.
func splitRoot(spec string) (root, rest string, ok bool) {
	colon := strings.IndexByte(spec, ':')
	if colon < 0 {
		return "", spec, false
	}
	if slash := strings.Index(spec, Separator); slash >= 0 && slash < colon {
		return "", spec, false
	}
	return spec[:colon], spec[colon+1:], true
}

func normalize(base []string, spec string) []string {
	out := make([]string, len(base), len(base)+strings.Count(spec, Separator)+1)
	copy(out, base)
	for _, seg := range strings.Split(spec, Separator) {
		switch seg {
		case "", ".":
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, seg)
		}
	}
	return out
}

// OriginalSpec returns the string the path was parsed from.
func (p Path) OriginalSpec() string {
	return p.original
}

// Spec returns the normalized form, "root:/a/b" or "/a/b".
func (p Path) Spec() string {
	if !p.valid {
		return ""
	}
	s := Separator + strings.Join(p.elements, Separator)
	if p.root != "" {
		return p.root + ":" + s
	}
	return s
}

// String implements fmt.Stringer.
func (p Path) String() string {
	if !p.valid {
		return p.original
	}
	return p.Spec()
}

// Root returns the explicit root name, or "" when the path uses the default root.
func (p Path) Root() string {
	return p.root
}

// Elements returns a copy of the path segments.
func (p Path) Elements() []string {
	if len(p.elements) == 0 {
		return nil
	}
	out := make([]string, len(p.elements))
	copy(out, p.elements)
	return out
}

// Len returns the number of elements.
func (p Path) Len() int {
	return len(p.elements)
}

// IsValid reports whether the path can be resolved.
func (p Path) IsValid() bool {
	return p.valid
}

// IsRoot reports whether p addresses the root of its file system.
func (p Path) IsRoot() bool {
	return p.valid && len(p.elements) == 0
}

// Parent returns p without its last element. ok is false at the root and for
// invalid paths.
func (p Path) Parent() (parent Path, ok bool) {
	if !p.valid || len(p.elements) == 0 {
		return Path{}, false
	}
	parent = Path{root: p.root, elements: p.Elements()[:len(p.elements)-1], valid: true}
	parent.original = parent.Spec()
	return parent, true
}

// BaseName returns the last element, or "" at the root.
func (p Path) BaseName() string {
	if len(p.elements) == 0 {
		return ""
	}
	return p.elements[len(p.elements)-1]
}

// Join appends elements, normalizing them.
func (p Path) Join(elements ...string) Path {
	if !p.valid {
		return p
	}
	j := Path{root: p.root, elements: normalize(p.elements, strings.Join(elements, Separator)), valid: true}
	j.original = j.Spec()
	return j
}

// WithRoot returns p addressed at another root.
func (p Path) WithRoot(root string) Path {
	if !p.valid {
		return p
	}
	r := Path{root: root, elements: p.Elements(), valid: true}
	r.original = r.Spec()
	return r
}

// Rel returns the root-less path made of elements [n:]. It hands the
// unconsumed suffix to a mounted backend.
func (p Path) Rel(n int) Path {
	if !p.valid {
		return p
	}
	if n > len(p.elements) {
		n = len(p.elements)
	}
	r := Path{elements: p.Elements()[n:], valid: true}
	r.original = r.Spec()
	return r
}

// HasPrefix reports whether p lies at or below other, on the same root.
func (p Path) HasPrefix(other Path) bool {
	if !p.valid || !other.valid || p.root != other.root || len(other.elements) > len(p.elements) {
		return false
	}
	for i, e := range other.elements {
		if p.elements[i] != e {
			return false
		}
	}
	return true
}

// Equal compares normalized forms.
func (p Path) Equal(other Path) bool {
	return p.valid == other.valid && p.Spec() == other.Spec()
}
