package utils

import "fmt"

// Debug toggles invariant checking. Assertions guard protocol
// invariants that cannot fail unless the implementation is wrong;
// they never validate remote input.
var Debug = true

// Assert panics when cond is false and Debug is enabled.
func Assert(cond bool, format string, a ...interface{}) {
	if Debug && !cond {
		panic(fmt.Sprintf(format, a...))
	}
}
