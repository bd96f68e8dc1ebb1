// Package chk provides one-letter error check helpers that log a non-nil
// error at the corresponding level, with the caller's location, and report
// whether there was an error. This enables the idiom:
//
//	if err = doThing(); chk.E(err) {
//		return
//	}
package chk

import (
	"nwclink.dev/pkg/utils/log"
)

var (
	// F logs a non-nil error at fatal level and returns true.
	F = log.F.Chk
	// E logs a non-nil error at error level and returns true.
	E = log.E.Chk
	// W logs a non-nil error at warn level and returns true.
	W = log.W.Chk
	// I logs a non-nil error at info level and returns true.
	I = log.I.Chk
	// D logs a non-nil error at debug level and returns true.
	D = log.D.Chk
	// T logs a non-nil error at trace level and returns true.
	T = log.T.Chk
)
