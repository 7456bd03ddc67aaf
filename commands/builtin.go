package commands

import (
	"context"
	"strings"

	axiom "github.com/chromium/axiom-sub003"
	"github.com/chromium/axiom-sub003/fserr"
	"github.com/chromium/axiom-sub003/fspath"
	"github.com/chromium/axiom-sub003/stream"
)

// runEcho writes its arguments joined by spaces; -n drops the newline.
func runEcho(ctx context.Context, cx axiom.ExecuteContext) error {
	out := strings.Join(cx.Arg().Positionals(), " ")
	if !cx.Arg().Flag("n") {
		out += "\n"
	}
	return cx.Stdio().Stdout.WriteContext(ctx, out)
}

func runPwd(ctx context.Context, cx axiom.ExecuteContext) error {
	return writeLine(ctx, cx, "%s", cwd(cx).Spec())
}

// runCat writes each operand's value to stdout. Without operands it copies
// stdin.
func runCat(ctx context.Context, cx axiom.ExecuteContext) error {
	if len(cx.Arg().Positionals()) == 0 {
		_, err := stream.Copy(ctx, cx.Stdio().Stdout, cx.Stdio().Stdin)
		return err
	}
	fsys := cx.FileSystem()
	return batch(ctx, cx, "cat", operands(ctx, cx), func(p fspath.Path) error {
		v, err := axiom.ReadValue(ctx, fsys, p)
		if err != nil {
			return err
		}
		if names, ok := v.([]string); ok {
			return fserr.Newf(fserr.TypeMismatch, "is a directory (%d entries)", len(names))
		}
		return cx.Stdio().Stdout.WriteContext(ctx, v)
	})
}

// runLs lists directories, or names a non-directory operand. -l adds mode
// and size columns. The listing of the last operand is the return value.
func runLs(ctx context.Context, cx axiom.ExecuteContext) error {
	fsys := cx.FileSystem()
	long := cx.Arg().Flag("l")
	paths := operands(ctx, cx, ".")

	var last []string
	err := batch(ctx, cx, "ls", paths, func(p fspath.Path) error {
		st, err := fsys.Stat(ctx, p)
		if err != nil {
			return err
		}
		if !st.Mode.Has(axiom.ModeDirectory) {
			last = []string{p.BaseName()}
			return listLine(ctx, cx, long, p.BaseName(), st)
		}
		children, err := fsys.List(ctx, p)
		if err != nil {
			return err
		}
		if len(paths) > 1 {
			if err := writeLine(ctx, cx, "%s:", p.Spec()); err != nil {
				return err
			}
		}
		last = sortedNames(children)
		for _, name := range last {
			if err := listLine(ctx, cx, long, name, children[name]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return cx.CloseOk(last)
}

func listLine(ctx context.Context, cx axiom.ExecuteContext, long bool, name string, st axiom.Stat) error {
	if !long {
		return writeLine(ctx, cx, "%s", name)
	}
	return writeLine(ctx, cx, "%s %8d %s %s", st.Mode, st.Size, st.ModTime().UTC().Format("2006-01-02 15:04"), name)
}

// runMkdir creates each operand; -p creates missing parents and accepts
// existing directories.
func runMkdir(ctx context.Context, cx axiom.ExecuteContext) error {
	fsys := cx.FileSystem()
	parents := cx.Arg().Flag("p")
	return batch(ctx, cx, "mkdir", operands(ctx, cx), func(p fspath.Path) error {
		if parents {
			return axiom.MkdirAll(ctx, fsys, p)
		}
		return fsys.Mkdir(ctx, p)
	})
}

// runRm unlinks each operand; -r removes directories with their contents.
func runRm(ctx context.Context, cx axiom.ExecuteContext) error {
	fsys := cx.FileSystem()
	recursive := cx.Arg().Flag("r")
	return batch(ctx, cx, "rm", operands(ctx, cx), func(p fspath.Path) error {
		if recursive {
			return axiom.RemoveAll(ctx, fsys, p)
		}
		return fsys.Unlink(ctx, p)
	})
}

// runStat prints "mode size mtime path" per operand and returns the stat of
// a single operand.
func runStat(ctx context.Context, cx axiom.ExecuteContext) error {
	fsys := cx.FileSystem()
	paths := operands(ctx, cx)

	var last axiom.Stat
	err := batch(ctx, cx, "stat", paths, func(p fspath.Path) error {
		st, err := fsys.Stat(ctx, p)
		if err != nil {
			return err
		}
		last = st
		return writeLine(ctx, cx, "%s %d %d %s", st.Mode, st.Size, st.MTime, p.Spec())
	})
	if err != nil {
		return err
	}
	if len(paths) == 1 {
		return cx.CloseOk(last)
	}
	return nil
}
