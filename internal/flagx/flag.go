// Package flagx contains helpers for picking individual flags out of
// os.Args without disturbing flags owned by other components.
package flagx

import (
	"flag"
	"os"
	"strings"
)

// FilterArgs returns the subset of args made of allowedFlags and their values.
//
// Supported formats:
//  1. Flag and value as separate arguments:  -c conf.json
//  2. Flag and value combined with '=':      -config=conf.json
//
// A value is only taken from the next argument when it does not itself start
// with '-'. The result is never nil.
func FilterArgs(args []string, allowedFlags []string) []string {
	allowed := make(map[string]struct{}, len(allowedFlags))
	for _, f := range allowedFlags {
		allowed[f] = struct{}{}
	}

	filtered := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if strings.HasPrefix(arg, "-") && strings.Contains(arg, "=") {
			name := strings.SplitN(arg, "=", 2)[0]
			if _, ok := allowed[name]; ok {
				filtered = append(filtered, arg)
			}
			continue
		}

		if _, ok := allowed[arg]; ok {
			filtered = append(filtered, arg)
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				filtered = append(filtered, args[i+1])
				i++
			}
		}
	}

	return filtered
}

// JsonConfigFlags returns the JSON config path given via -c or -config,
// or "" when neither is present.
func JsonConfigFlags() string {
	return stringFlag("json", "config", "c", "Path to config file")
}

// EnvFileFlags returns the dotenv path given via -env or -env-file,
// or "" when neither is present.
func EnvFileFlags() string {
	return stringFlag("env", "env-file", "env", "Path to .env file")
}

// stringFlag parses a single string flag registered under a long and a short
// name from os.Args, ignoring every other argument.
func stringFlag(set, long, short, usage string) string {
	var value string

	args := FilterArgs(os.Args[1:], []string{"-" + short, "-" + long})

	fs := flag.NewFlagSet(set, flag.ContinueOnError)
	fs.StringVar(&value, long, "", usage)
	if short != long {
		fs.StringVar(&value, short, "", usage+" (short)")
	}
	_ = fs.Parse(args)

	return value
}
