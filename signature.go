package axiom

import (
	"maps"
	"sort"
	"strings"

	"github.com/chromium/axiom-sub003/fserr"
)

// Argument sigils used in a Signature.
const (
	SigilFlag   = "?" // bool
	SigilString = "$" // string
	SigilList   = "@" // []string
	SigilNumber = "#" // int or float64
	SigilAny    = "*"

	// RequiredSuffix marks an argument that must be present, e.g. "$!".
	RequiredSuffix = "!"
	// Positional is the argument key holding positional operands.
	Positional = "_"
)

// Arg is the argument an executable is invoked with: named options plus the
// positional operands under [Positional].
type Arg map[string]any

// NormalizeArg converts the loose forms callers pass into an Arg. A list of
// strings becomes the positional operands; nil becomes an empty Arg.
func NormalizeArg(v any) (Arg, error) {
	switch t := v.(type) {
	case nil:
		return Arg{}, nil
	case Arg:
		return normalizeLists(t)
	case map[string]any:
		return normalizeLists(Arg(t))
	case []string:
		return Arg{Positional: t}, nil
	case []any:
		list, ok := toStrings(t)
		if !ok {
			return nil, fserr.New(fserr.TypeMismatch, "positional arguments must be strings")
		}
		return Arg{Positional: list}, nil
	case string:
		return Arg{Positional: []string{t}}, nil
	default:
		return nil, fserr.Newf(fserr.TypeMismatch, "unsupported argument type %T", v)
	}
}

// normalizeLists turns []any values holding only strings into []string, which
// is what decoded JSON and YAML produce.
func normalizeLists(a Arg) (Arg, error) {
	out := make(Arg, len(a))
	for k, v := range a {
		if l, ok := v.([]any); ok {
			if s, ok := toStrings(l); ok {
				out[k] = s
				continue
			}
		}
		out[k] = v
	}
	return out, nil
}

func toStrings(l []any) ([]string, bool) {
	out := make([]string, 0, len(l))
	for _, v := range l {
		s, ok := v.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

// Positionals returns the positional operands, or nil.
func (a Arg) Positionals() []string {
	l, _ := a[Positional].([]string)
	return l
}

// Flag reports a boolean option.
func (a Arg) Flag(name string) bool {
	b, _ := a[name].(bool)
	return b
}

// Signature declares the arguments an executable accepts: argument name to
// sigil, optionally suffixed with [RequiredSuffix].
type Signature map[string]string

// Validate checks arg against the signature. Unknown names and values of the
// wrong shape fail with TypeMismatch, absent required arguments with Missing.
// A nil signature accepts anything.
func (s Signature) Validate(arg Arg) error {
	if s == nil {
		return nil
	}

	names := make([]string, 0, len(arg))
	for name := range arg {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value := arg[name]
		sigil, ok := s[name]
		if !ok {
			if name == Positional && len(arg.Positionals()) == 0 {
				continue
			}
			return fserr.Newf(fserr.TypeMismatch, "unexpected argument %q", name).WithContext("arg", name)
		}
		sigil = strings.TrimSuffix(sigil, RequiredSuffix)
		if !matchesSigil(sigil, value) {
			return fserr.Newf(fserr.TypeMismatch, "argument %q: expected %s, got %T", name, describeSigil(sigil), value).
				WithContext("arg", name)
		}
	}

	required := make([]string, 0)
	for name, sigil := range s {
		if strings.HasSuffix(sigil, RequiredSuffix) {
			required = append(required, name)
		}
	}
	sort.Strings(required)
	for _, name := range required {
		if _, ok := arg[name]; !ok {
			return fserr.Newf(fserr.Missing, "missing required argument %q", name).WithContext("arg", name)
		}
	}
	return nil
}

// Usage renders the signature as a one-line synopsis.
func (s Signature) Usage(command string) string {
	names := make([]string, 0, len(s))
	for name := range s {
		if name != Positional {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	parts := []string{command}
	for _, name := range names {
		sigil := s[name]
		part := "--" + name
		if base := strings.TrimSuffix(sigil, RequiredSuffix); base != SigilFlag {
			part += " <" + describeSigil(base) + ">"
		}
		if !strings.HasSuffix(sigil, RequiredSuffix) {
			part = "[" + part + "]"
		}
		parts = append(parts, part)
	}
	if sigil, ok := s[Positional]; ok {
		if strings.HasSuffix(sigil, RequiredSuffix) {
			parts = append(parts, "<args...>")
		} else {
			parts = append(parts, "[args...]")
		}
	}
	return strings.Join(parts, " ")
}

func matchesSigil(sigil string, v any) bool {
	switch sigil {
	case SigilFlag:
		_, ok := v.(bool)
		return ok
	case SigilString:
		_, ok := v.(string)
		return ok
	case SigilList:
		_, ok := v.([]string)
		return ok
	case SigilNumber:
		switch v.(type) {
		case int, int64, float64:
			return true
		}
		return false
	case SigilAny:
		return true
	default:
		return false
	}
}

func describeSigil(sigil string) string {
	switch sigil {
	case SigilFlag:
		return "bool"
	case SigilString:
		return "string"
	case SigilList:
		return "list"
	case SigilNumber:
		return "number"
	default:
		return "any"
	}
}

// Env is a command environment. Keys starting with "$" hold strings, keys
// starting with "@" hold string lists.
type Env map[string]any

// NewEnv validates vars and returns them as an Env.
func NewEnv(vars map[string]any) (Env, error) {
	env := make(Env, len(vars))
	for k, v := range vars {
		if err := env.Set(k, v); err != nil {
			return nil, err
		}
	}
	return env, nil
}

// Set binds key after checking its value matches the key's sigil.
func (e Env) Set(key string, value any) error {
	switch {
	case strings.HasPrefix(key, SigilString):
		if _, ok := value.(string); !ok {
			return fserr.Newf(fserr.TypeMismatch, "env %s must be a string", key)
		}
	case strings.HasPrefix(key, SigilList):
		if l, ok := value.([]any); ok {
			s, ok := toStrings(l)
			if !ok {
				return fserr.Newf(fserr.TypeMismatch, "env %s must be a string list", key)
			}
			value = s
		}
		if _, ok := value.([]string); !ok {
			return fserr.Newf(fserr.TypeMismatch, "env %s must be a string list", key)
		}
	default:
		return fserr.Newf(fserr.Invalid, "env key %q must start with $ or @", key)
	}
	e[key] = value
	return nil
}

// Str returns a "$" variable or def.
func (e Env) Str(name, def string) string {
	if s, ok := e[SigilString+strings.TrimPrefix(name, SigilString)].(string); ok {
		return s
	}
	return def
}

// List returns an "@" variable or nil.
func (e Env) List(name string) []string {
	l, _ := e[SigilList+strings.TrimPrefix(name, SigilList)].([]string)
	return l
}

// Clone returns a shallow copy.
func (e Env) Clone() Env {
	if e == nil {
		return Env{}
	}
	return maps.Clone(e)
}

// Well known environment variables.
const (
	EnvPwd  = "$PWD"
	EnvHome = "$HOME"
	EnvPath = "@PATH"
)
