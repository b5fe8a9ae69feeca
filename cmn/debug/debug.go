// Package debug provides assertions that compile away unless built with -tags debug,
// mirroring the teacher's cmn/debug package.
package debug

import "fmt"

// Enabled is flipped to true by debug_on.go when the "debug" build tag is set.
var Enabled = false

func Assert(cond bool, args ...any) {
	if !Enabled || cond {
		return
	}
	panic(fmt.Sprint(args...))
}

func Assertf(cond bool, format string, args ...any) {
	if !Enabled || cond {
		return
	}
	panic(fmt.Sprintf(format, args...))
}

func AssertNoErr(err error) {
	if !Enabled || err == nil {
		return
	}
	panic(err)
}

// Func runs fn only when debug assertions are compiled in; used to guard
// expensive consistency checks that have no business running in release
// builds (same pattern as the teacher's debug.Func).
func Func(fn func()) {
	if Enabled {
		fn()
	}
}
