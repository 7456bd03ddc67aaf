// Package commands provides the built-in executables installed under the
// executable directory. Commands resolve their operands against the namespace
// they were invoked through, relative to the $PWD environment variable, and
// write one string value per output line.
package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"

	axiom "github.com/chromium/axiom-sub003"
	"github.com/chromium/axiom-sub003/filesystem"
	"github.com/chromium/axiom-sub003/fserr"
	"github.com/chromium/axiom-sub003/fspath"
	"github.com/chromium/axiom-sub003/internal/util"
)

// Command is a built-in executable.
type Command struct {
	Name      string
	Help      string
	Signature axiom.Signature
	Run       axiom.ExecFunc
}

// Globber is implemented by namespaces that can expand wildcard operands.
type Globber interface {
	Glob(ctx context.Context, pattern string) ([]fspath.Path, error)
}

var builtins = []Command{
	{"cat", "Print the value of each entry, or copy stdin", axiom.Signature{axiom.Positional: "@"}, runCat},
	{"echo", "Print the arguments", axiom.Signature{axiom.Positional: "@", "n": "?"}, runEcho},
	{"ls", "List directory contents", axiom.Signature{axiom.Positional: "@", "l": "?"}, runLs},
	{"mkdir", "Create directories", axiom.Signature{axiom.Positional: "@!", "p": "?"}, runMkdir},
	{"pwd", "Print the working directory", axiom.Signature{}, runPwd},
	{"rm", "Remove entries", axiom.Signature{axiom.Positional: "@!", "r": "?"}, runRm},
	{"stat", "Describe entries", axiom.Signature{axiom.Positional: "@!"}, runStat},
}

// Builtins returns every built-in command sorted by name.
func Builtins() []Command {
	out := make([]Command, len(builtins))
	copy(out, builtins)
	return out
}

// Get returns the named command.
func Get(name string) (Command, bool) {
	for _, c := range builtins {
		if c.Name == name {
			return c, true
		}
	}
	return Command{}, false
}

// Executables wraps every command as an executable entry.
func Executables() map[string]*filesystem.Executable {
	out := make(map[string]*filesystem.Executable, len(builtins))
	for _, c := range builtins {
		out[c.Name] = filesystem.NewExecutable(c.Run, c.Signature)
	}
	return out
}

// Install creates dir and binds every command inside it.
func Install(ctx context.Context, fs *filesystem.FileSystem, dir fspath.Path) error {
	logger := util.GetLogger("Commands.Install")

	if err := fs.MkdirAll(ctx, dir); err != nil {
		return err
	}
	if err := fs.Install(ctx, dir, Executables()); err != nil {
		logger.Error().Err(err).Str("dir", dir.Spec()).Msg("Failed to install commands")
		return err
	}
	logger.Debug().Str("dir", dir.Spec()).Int("count", len(builtins)).Msg("Installed commands")
	return nil
}

// cwd returns the working directory of the invocation.
func cwd(cx axiom.ExecuteContext) fspath.Path {
	p := fspath.Parse(cx.Env().Str(axiom.EnvPwd, "/"))
	if !p.IsValid() {
		return fspath.Parse("/")
	}
	return p
}

func hasMeta(s string) bool {
	return strings.ContainsAny(s, "*?[{")
}

// operands resolves every positional against the working directory. Wildcard
// operands are expanded when the namespace supports it; a pattern matching
// nothing is kept literally so the command reports it.
func operands(ctx context.Context, cx axiom.ExecuteContext, def ...string) []fspath.Path {
	args := cx.Arg().Positionals()
	if len(args) == 0 {
		args = def
	}
	base := cwd(cx)
	g, canGlob := cx.FileSystem().(Globber)

	out := make([]fspath.Path, 0, len(args))
	for _, arg := range args {
		p := fspath.Absolute(base, arg)
		if canGlob && hasMeta(arg) && p.IsValid() {
			if matches, err := g.Glob(ctx, p.Spec()); err == nil && len(matches) > 0 {
				out = append(out, matches...)
				continue
			}
		}
		out = append(out, p)
	}
	return out
}

func writeLine(ctx context.Context, cx axiom.ExecuteContext, format string, args ...any) error {
	return cx.Stdio().Stdout.WriteContext(ctx, fmt.Sprintf(format, args...)+"\n")
}

// batch runs fn for every operand, reporting failures on stderr and carrying
// on. The first failure is returned once every operand has been tried.
func batch(
	ctx context.Context, cx axiom.ExecuteContext, name string, paths []fspath.Path,
	fn func(fspath.Path) error,
) error {
	var first error
	for _, p := range paths {
		err := fn(p)
		if err == nil {
			continue
		}
		if first == nil {
			first = err
		}
		msg := fmt.Sprintf("%s: %s: %s\n", name, p.Spec(), fserr.Format(err))
		if werr := cx.Stdio().Stderr.WriteContext(ctx, msg); werr != nil {
			return werr
		}
	}
	return first
}

func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
