package vlog

import (
	"fmt"
	"os"
	"sync"
)

// Logger is a leveled, package-scoped log handle.
type Logger struct {
	pkg    string
	maxLvl Level
}

type globalState struct {
	mu        sync.Mutex
	loggers   map[string]*Logger
	formatter Formatter
}

var global = &globalState{
	loggers: make(map[string]*Logger),
}

func init() {
	SetFormatter(NewTextFormatter(os.Stderr))
}

// SetFormatter installs f as the formatter used by every Logger.
func SetFormatter(f Formatter) {
	global.mu.Lock()
	global.formatter = f
	global.mu.Unlock()
}

// SetGlobalLevel sets every registered Logger's level to lvl. Useful for a
// process-wide "-v" flag without threading the level through every
// constructor call.
func SetGlobalLevel(lvl Level) {
	global.mu.Lock()
	for _, lg := range global.loggers {
		lg.maxLvl = lvl
	}
	global.mu.Unlock()
}

// NewLogger returns a Logger that tags its lines with pkg and drops
// anything more verbose than maxLvl.
func NewLogger(pkg string, maxLvl Level) *Logger {
	lg := &Logger{pkg: pkg, maxLvl: maxLvl}
	global.mu.Lock()
	global.loggers[pkg] = lg
	global.mu.Unlock()
	return lg
}

func (l *Logger) log(lvl Level, txt string) {
	global.mu.Lock()
	if l.maxLvl < lvl {
		global.mu.Unlock()
		return
	}
	global.formatter.WriteFlush(l.pkg, lvl, txt)
	global.mu.Unlock()
}

// Panicf logs at CRITICAL and panics. Used for invariant violations that
// spec §7 classifies as fatal-not-recovered.
func (l *Logger) Panicf(format string, args ...interface{}) {
	txt := fmt.Sprintf(format, args...)
	l.log(CRITICAL, txt)
	panic(txt)
}

// Fatalf logs at CRITICAL and terminates the process. Used for majority
// loss and self-failure, per spec §7.
func (l *Logger) Fatalf(format string, args ...interface{}) {
	txt := fmt.Sprintf(format, args...)
	l.log(CRITICAL, txt)
	os.Exit(1)
}

func (l *Logger) Errorf(format string, args ...interface{}) { l.log(ERROR, fmt.Sprintf(format, args...)) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.log(WARN, fmt.Sprintf(format, args...)) }
func (l *Logger) Infof(format string, args ...interface{})  { l.log(INFO, fmt.Sprintf(format, args...)) }
func (l *Logger) Debugf(format string, args ...interface{}) { l.log(DEBUG, fmt.Sprintf(format, args...)) }
