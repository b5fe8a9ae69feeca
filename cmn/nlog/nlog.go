// Package nlog is a minimal leveled logger used throughout replicad.
//
// It intentionally does not wrap an external logging library: the teacher
// (aistore) rolls its own nlog rather than depending on logrus/zap/zerolog,
// and replicad follows the same ambient convention (see DESIGN.md).
package nlog

import (
	"fmt"
	"log"
	"os"
	"sync/atomic"
)

type Level int32

const (
	LevelInfo Level = iota
	LevelWarning
	LevelError
	LevelCritical
)

var (
	std   = log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)
	level atomic.Int32
)

// SetLevel filters out messages strictly below lvl.
func SetLevel(lvl Level) { level.Store(int32(lvl)) }

func enabled(lvl Level) bool { return int32(lvl) >= level.Load() }

func Infof(format string, args ...any) {
	if enabled(LevelInfo) {
		std.Output(2, "I "+fmt.Sprintf(format, args...))
	}
}

func Warningf(format string, args ...any) {
	if enabled(LevelWarning) {
		std.Output(2, "W "+fmt.Sprintf(format, args...))
	}
}

func Errorf(format string, args ...any) {
	if enabled(LevelError) {
		std.Output(2, "E "+fmt.Sprintf(format, args...))
	}
}

// Criticalf logs an invariant violation or protocol error. It never panics or
// exits the process: the state mutator must stay live even when one of its
// invariants is violated (see spec §7, "never recovered silently").
func Criticalf(format string, args ...any) {
	std.Output(2, "C "+fmt.Sprintf(format, args...))
}
