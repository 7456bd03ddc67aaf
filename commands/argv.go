package commands

import (
	"strings"

	axiom "github.com/chromium/axiom-sub003"
)

// ParseArgv turns command line words into an Arg. "-lr" sets the flags l and
// r, "--name" sets the flag name and "--name=value" binds a string. Words
// after "--", and every word not starting with "-", are positional.
func ParseArgv(words []string) axiom.Arg {
	arg := axiom.Arg{}
	var positional []string
	for i, w := range words {
		switch {
		case w == "--":
			positional = append(positional, words[i+1:]...)
			return withPositional(arg, positional)
		case strings.HasPrefix(w, "--") && len(w) > 2:
			name, value, hasValue := strings.Cut(w[2:], "=")
			if hasValue {
				arg[name] = value
			} else {
				arg[name] = true
			}
		case strings.HasPrefix(w, "-") && len(w) > 1:
			for _, c := range w[1:] {
				arg[string(c)] = true
			}
		default:
			positional = append(positional, w)
		}
	}
	return withPositional(arg, positional)
}

func withPositional(arg axiom.Arg, positional []string) axiom.Arg {
	if len(positional) > 0 {
		arg[axiom.Positional] = positional
	}
	return arg
}
