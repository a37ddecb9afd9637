// Package flagx helps several flag sets share one command line: each
// component keeps only the arguments it understands.
package flagx

import (
	"flag"
	"strings"
)

// FilterArgs returns the subset of args made of allowed flags and their
// values. Both "-flag value" and "-flag=value" forms are kept; a flag
// given with a double dash matches its single-dash name and vice versa.
// Boolean flags are recognised only in the "-flag" and "-flag=value" forms
// when listed in boolFlags, so the following positional argument is not
// swallowed as their value.
func FilterArgs(args []string, allowedFlags []string, boolFlags ...string) []string {
	allowed := make(map[string]struct{}, len(allowedFlags))
	for _, f := range allowedFlags {
		allowed[normalize(f)] = struct{}{}
	}
	isBool := make(map[string]struct{}, len(boolFlags))
	for _, f := range boolFlags {
		isBool[normalize(f)] = struct{}{}
	}

	filtered := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") {
			continue
		}

		name, _, hasValue := strings.Cut(arg, "=")
		if _, ok := allowed[normalize(name)]; !ok {
			continue
		}

		filtered = append(filtered, arg)
		if hasValue {
			continue
		}
		if _, ok := isBool[normalize(name)]; ok {
			continue
		}
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			filtered = append(filtered, args[i+1])
			i++
		}
	}

	return filtered
}

func normalize(name string) string {
	return "-" + strings.TrimLeft(name, "-")
}

// ConfigFileFlag extracts the configuration file path given with -c or
// -config. An empty string means no file was requested.
func ConfigFileFlag(args []string) string {
	var path string

	fs := flag.NewFlagSet("config-file", flag.ContinueOnError)
	fs.StringVar(&path, "config", "", "path to config file")
	fs.StringVar(&path, "c", "", "path to config file (short)")
	_ = fs.Parse(FilterArgs(args, []string{"-c", "-config"}))

	return path
}
