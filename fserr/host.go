package fserr

import (
	"context"
	"errors"
	"io/fs"
	"syscall"
)

// FromHost maps errors produced by host storage (os, io/fs, object stores) onto
// the VFS taxonomy. Errors that already carry a kind are returned unchanged.
func FromHost(err error, message string) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return Wrap(err, NotFound, message)
	case errors.Is(err, fs.ErrExist):
		return Wrap(err, Duplicate, message)
	case errors.Is(err, fs.ErrInvalid):
		return Wrap(err, Invalid, message)
	case errors.Is(err, errors.ErrUnsupported):
		return Wrap(err, NotImplemented, message)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Wrap(err, Runtime, message)
	default:
		return Wrap(err, Runtime, message)
	}
}

// Errno maps an error onto the errno reported to a kernel file system client.
func Errno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	switch KindOf(err) {
	case NotFound:
		return syscall.ENOENT
	case Duplicate:
		return syscall.EEXIST
	case Invalid, Missing:
		return syscall.EINVAL
	case TypeMismatch:
		return syscall.EACCES
	case NotImplemented:
		return syscall.ENOSYS
	case Incompatible:
		return syscall.EPROTONOSUPPORT
	default:
		return syscall.EIO
	}
}
