package output

import (
	"fmt"
	"io"
)

// Warn writes a warning line to w, normally stderr, so it never mixes
// into JSON results.
//
//nolint:errcheck // notices are best effort
func Warn(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "warning: "+format+"\n", args...)
}

// Hint writes a follow-up suggestion line to w.
//
//nolint:errcheck // notices are best effort
func Hint(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "hint: "+format+"\n", args...)
}
