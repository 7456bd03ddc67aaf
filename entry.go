package axiom

import (
	"strings"
	"time"

	"github.com/chromium/axiom-sub003/fspath"
)

// Mode is the capability bit set of an entry.
type Mode uint32

const (
	ModeReadable Mode = 1 << iota
	ModeWritable
	ModeExecutable
	ModeDirectory
	ModeSeekable
)

// Has reports whether every bit in bits is set.
func (m Mode) Has(bits Mode) bool {
	return m&bits == bits
}

// String renders the mode as "drwxs" with "-" for unset bits.
func (m Mode) String() string {
	var b strings.Builder
	for _, f := range []struct {
		bit Mode
		c   byte
	}{
		{ModeDirectory, 'd'},
		{ModeReadable, 'r'},
		{ModeWritable, 'w'},
		{ModeExecutable, 'x'},
		{ModeSeekable, 's'},
	} {
		if m&f.bit != 0 {
			b.WriteByte(f.c)
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}

// Entry is a node owned by exactly one file system.
type Entry interface {
	Mode() Mode
	// MTime is the last modification time.
	MTime() time.Time
}

// Stat describes an entry.
type Stat struct {
	Mode Mode `json:"mode" yaml:"mode"`
	// MTime is the modification time in milliseconds since the epoch.
	MTime int64 `json:"mtime" yaml:"mtime"`
	Size  int64 `json:"size" yaml:"size"`
	// Signature is only set for executables.
	Signature Signature `json:"signature,omitempty" yaml:"signature,omitempty"`
}

// ModTime converts MTime back to a time.Time.
func (s Stat) ModTime() time.Time {
	return time.UnixMilli(s.MTime)
}

// ResolveResult is the outcome of walking a path's elements. Prefix holds the
// consumed elements, Suffix the unconsumed ones. Entry is the last entry
// reached; it is nil only for a structurally invalid path. Owner is the file
// system that owns Entry, which differs from the resolving file system once a
// mount point has been crossed.
type ResolveResult struct {
	Prefix []string
	Suffix []string
	Entry  Entry
	Owner  FileSystem
}

// IsFinal reports whether every element was consumed.
func (r ResolveResult) IsFinal() bool {
	return r.Entry != nil && len(r.Suffix) == 0
}

// PrefixPath returns the consumed elements as a root-less path.
func (r ResolveResult) PrefixPath() fspath.Path {
	return fspath.FromElements("", r.Prefix...)
}
