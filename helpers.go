package axiom

import (
	"context"
	"errors"
	"io"
	"sort"

	"github.com/chromium/axiom-sub003/fserr"
	"github.com/chromium/axiom-sub003/fspath"
)

// RecursiveRemover is implemented by backends that can remove a subtree
// faster than entry by entry.
type RecursiveRemover interface {
	UnlinkRecursive(ctx context.Context, p fspath.Path) error
}

// MkdirAll creates every missing directory along p through the FileSystem
// contract. An existing non-directory on the way fails with TypeMismatch.
func MkdirAll(ctx context.Context, fsys FileSystem, p fspath.Path) error {
	elements := p.Elements()
	for i := 1; i <= len(elements); i++ {
		sub := fspath.FromElements(p.Root(), elements[:i]...)
		st, err := fsys.Stat(ctx, sub)
		if err == nil {
			if !st.Mode.Has(ModeDirectory) {
				return fserr.Newf(fserr.TypeMismatch, "%s is not a directory", sub.Spec())
			}
			continue
		}
		if !fserr.Is(err, fserr.NotFound) {
			return err
		}
		if err := fsys.Mkdir(ctx, sub); err != nil && !fserr.Is(err, fserr.Duplicate) {
			return err
		}
	}
	return nil
}

// RemoveAll unlinks p and everything below it.
func RemoveAll(ctx context.Context, fsys FileSystem, p fspath.Path) error {
	if rr, ok := fsys.(RecursiveRemover); ok {
		return rr.UnlinkRecursive(ctx, p)
	}
	st, err := fsys.Stat(ctx, p)
	if err != nil {
		return err
	}
	if st.Mode.Has(ModeDirectory) {
		children, err := fsys.List(ctx, p)
		if err != nil {
			return err
		}
		names := make([]string, 0, len(children))
		for name := range children {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if err := RemoveAll(ctx, fsys, p.Join(name)); err != nil {
				return err
			}
		}
	}
	return fsys.Unlink(ctx, p)
}

// ReadValue opens p for reading and returns the first value read.
func ReadValue(ctx context.Context, fsys FileSystem, p fspath.Path) (any, error) {
	cx, err := fsys.CreateOpenContext(ctx, p)
	if err != nil {
		return nil, err
	}
	if err := cx.Open(ctx, OpenRead); err != nil {
		return nil, err
	}
	v, err := cx.Read(ctx, ReadRequest{})
	if err != nil && !errors.Is(err, io.EOF) {
		_ = cx.CloseError(err)
		return nil, err
	}
	return v, cx.Close()
}

// WriteValue opens p for writing and writes value.
func WriteValue(ctx context.Context, fsys FileSystem, p fspath.Path, value any, appendValue bool) error {
	cx, err := fsys.CreateOpenContext(ctx, p)
	if err != nil {
		return err
	}
	if err := cx.Open(ctx, OpenWrite); err != nil {
		return err
	}
	if err := cx.Write(ctx, WriteRequest{Value: value, Append: appendValue}); err != nil {
		_ = cx.CloseError(err)
		return err
	}
	return cx.Close()
}

// Exec creates an execute context for p and runs it to completion.
func Exec(ctx context.Context, fsys FileSystem, p fspath.Path, arg any, opts ...ExecOption) (any, error) {
	cx, err := fsys.CreateExecuteContext(ctx, p, arg, opts...)
	if err != nil {
		return nil, err
	}
	return cx.Execute(ctx)
}

// SeekOffset computes the offset a seek lands on for a value of size bytes.
// Offsets outside [0, size] fail with Invalid.
func SeekOffset(current, size, offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = current
	case io.SeekEnd:
		base = size
	default:
		return 0, fserr.Newf(fserr.Invalid, "invalid whence %d", whence)
	}
	next := base + offset
	if next < 0 || next > size {
		return 0, fserr.Newf(fserr.Invalid, "seek to %d outside [0, %d]", next, size)
	}
	return next, nil
}
