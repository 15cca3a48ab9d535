// Completion: argument parsing for the elfling driver.
package main

import "fmt"

// argBuckets is the compacted argument parser's result: every token of
// the form -Xvalue is filed under its flag char X, with value (possibly
// empty) appended to that bucket; bare tokens (no leading '-') go to
// the 'i' (inputs) bucket. This mirrors the original tool's own
// single-pass flag scan rather than a conventional long-flag parser,
// since the wire shape itself (char → set<string>) is part of the
// external interface, not an implementation detail a generic flag
// library could express.
type argBuckets map[byte][]string

func parseArgs(argv []string) argBuckets {
	b := make(argBuckets)
	for _, tok := range argv {
		if len(tok) == 0 {
			continue
		}
		if tok[0] != '-' {
			b['i'] = append(b['i'], tok)
			continue
		}
		if len(tok) == 1 {
			// A bare "-" carries no flag character and is dropped, matching
			// the original scanner's `if (argv[i][1])` guard.
			continue
		}
		flag := tok[1]
		value := tok[2:]
		b[flag] = append(b[flag], value)
	}
	return b
}

// last returns the most recently specified value for flag, or def if
// flag was never given. Later occurrences of the same flag win, same
// as Go's own flag package.
func (b argBuckets) last(flag byte, def string) string {
	vs := b[flag]
	if len(vs) == 0 {
		return def
	}
	return vs[len(vs)-1]
}

// has reports whether value was ever recorded under flag, e.g.
// has('f', "verbose") for -fverbose.
func (b argBuckets) has(flag byte, value string) bool {
	for _, v := range b[flag] {
		if v == value {
			return true
		}
	}
	return false
}

func (b argBuckets) inputs() []string { return b['i'] }

// usage is printed on a bad invocation (exit code 1 per spec §6).
func usage() string {
	return fmt.Sprintf(`usage: %s [-o<path>] [-c<hex>] [-fverbose] <input.o>

  -o<path>   output file (default c.out)
  -c<hex>    initial compression parameters, textual form CCWWXXWWXX...
  -fverbose  verbose logging
`, progName)
}

const progName = "elfling"
