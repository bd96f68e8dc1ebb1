// Package errorf provides error constructors that also log the error at the
// matching level, combining fmt.Errorf with the chk logging idiom.
package errorf

import (
	"fmt"

	"nwclink.dev/pkg/utils/log"
)

// E creates an error, logs it at error level, and returns it.
func E(format string, a ...any) (err error) {
	err = fmt.Errorf(format, a...)
	log.E.Chk(err)
	return
}

// W creates an error, logs it at warn level, and returns it.
func W(format string, a ...any) (err error) {
	err = fmt.Errorf(format, a...)
	log.W.Chk(err)
	return
}

// D creates an error, logs it at debug level, and returns it.
func D(format string, a ...any) (err error) {
	err = fmt.Errorf(format, a...)
	log.D.Chk(err)
	return
}

// T creates an error, logs it at trace level, and returns it.
func T(format string, a ...any) (err error) {
	err = fmt.Errorf(format, a...)
	log.T.Chk(err)
	return
}
