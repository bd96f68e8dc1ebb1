// Package log is a simple leveled logger with colored level labels and
// caller locations, in the form of a set of level printers F, E, W, I, D and
// T that expose printf, println, closure and error-check entry points.
package log

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/fatih/color"
	"go.uber.org/atomic"
)

// Level is the verbosity of the logger. Anything higher than the current
// level is not printed.
type Level int32

const (
	Off Level = iota
	Fatal
	Error
	Warn
	Info
	Debug
	Trace
)

var currentLevel = atomic.NewInt32(int32(Info))

// SetLogLevel sets the current log level from its name. Unknown names leave
// the level at info.
func SetLogLevel(name string) {
	switch strings.ToLower(name) {
	case "off":
		currentLevel.Store(int32(Off))
	case "fatal":
		currentLevel.Store(int32(Fatal))
	case "error":
		currentLevel.Store(int32(Error))
	case "warn":
		currentLevel.Store(int32(Warn))
	case "debug":
		currentLevel.Store(int32(Debug))
	case "trace":
		currentLevel.Store(int32(Trace))
	default:
		currentLevel.Store(int32(Info))
	}
}

// L is a printer for one log level.
type L struct {
	level Level
	label string
}

var (
	// F is the fatal level printer.
	F = &L{Fatal, color.RedString("FTL")}
	// E is the error level printer.
	E = &L{Error, color.RedString("ERR")}
	// W is the warn level printer.
	W = &L{Warn, color.YellowString("WRN")}
	// I is the info level printer.
	I = &L{Info, color.GreenString("INF")}
	// D is the debug level printer.
	D = &L{Debug, color.BlueString("DBG")}
	// T is the trace level printer.
	T = &L{Trace, color.MagentaString("TRC")}
)

func (l *L) enabled() bool { return int32(l.level) <= currentLevel.Load() }

func location(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "???"
	}
	if i := strings.LastIndexByte(file, '/'); i >= 0 {
		if j := strings.LastIndexByte(file[:i], '/'); j >= 0 {
			file = file[j+1:]
		}
	}
	return fmt.Sprintf("%s:%d", file, line)
}

func (l *L) print(loc, msg string) {
	msg = strings.TrimSuffix(msg, "\n")
	fmt.Fprintf(
		os.Stderr, "%s %s %s %s\n",
		time.Now().Format("15:04:05.000000"), l.label, msg,
		color.HiBlackString(loc),
	)
}

// F prints a printf formatted log entry.
func (l *L) F(format string, a ...any) {
	if !l.enabled() {
		return
	}
	l.print(location(2), fmt.Sprintf(format, a...))
}

// Ln prints a println style log entry.
func (l *L) Ln(a ...any) {
	if !l.enabled() {
		return
	}
	l.print(location(2), fmt.Sprintln(a...))
}

// C prints the result of a closure, so the message is only rendered when the
// level is enabled.
func (l *L) C(fn func() string) {
	if !l.enabled() {
		return
	}
	l.print(location(2), fn())
}

// Chk logs err if it is non-nil and returns whether it was, enabling the
// one-line error check and log idiom.
func (l *L) Chk(err error) bool {
	if err == nil {
		return false
	}
	if l.enabled() {
		l.print(location(2), err.Error())
	}
	return true
}
