package fusebridge

import (
	"os"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fuse"
	"gopkg.in/yaml.v3"

	axiom "github.com/chromium/axiom-sub003"
	"github.com/chromium/axiom-sub003/fserr"
)

// fileMode maps entry modes onto host permission bits. The bridge is read
// only, so no write bits are ever reported.
func fileMode(m axiom.Mode) uint32 {
	if m.Has(axiom.ModeDirectory) {
		return syscall.S_IFDIR | 0o555
	}
	var perm uint32
	if m.Has(axiom.ModeReadable) {
		perm |= 0o444
	}
	if m.Has(axiom.ModeExecutable) {
		perm |= 0o111
	}
	return syscall.S_IFREG | perm
}

func toAttr(ino uint64, st axiom.Stat, out *fuse.Attr) {
	mode := fileMode(st.Mode)
	size := uint64(0)
	nlink := uint32(1)
	if st.Mode.Has(axiom.ModeDirectory) {
		nlink = 2
	} else if st.Size > 0 {
		size = uint64(st.Size)
	}

	mtime := st.ModTime()
	sec, nsec := uint64(mtime.Unix()), uint32(mtime.Nanosecond())

	*out = fuse.Attr{
		Ino:       ino,
		Size:      size,
		Blocks:    (size + 511) / 512,
		Atime:     sec,
		Mtime:     sec,
		Ctime:     sec,
		Atimensec: nsec,
		Mtimensec: nsec,
		Ctimensec: nsec,
		Mode:      mode,
		Nlink:     nlink,
		Blksize:   4096,
	}
	out.Owner = fuse.Owner{Uid: uint32(os.Getuid()), Gid: uint32(os.Getgid())}
}

// render turns a data value into file content. Text and bytes are served as
// they are; structured values are rendered as YAML.
func render(v any) ([]byte, error) {
	switch t := v.(type) {
	case nil:
		return []byte{}, nil
	case []byte:
		return t, nil
	case string:
		return []byte(t), nil
	default:
		b, err := yaml.Marshal(t)
		if err != nil {
			return nil, fserr.Wrapf(err, fserr.TypeMismatch, "cannot render %T", v)
		}
		return b, nil
	}
}

func status(err error) fuse.Status {
	if err == nil {
		return fuse.OK
	}
	return fuse.Status(fserr.Errno(err))
}
