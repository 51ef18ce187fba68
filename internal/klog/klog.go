// Package klog is the kernel's structured logging wrapper around logrus.
// Every subsystem above the trap trampoline logs through a *Logger scoped
// to its component name; the trampoline and the Sv39 bit-twiddling layer
// do not import this package at all (see SPEC_FULL.md §7).
package klog

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	base     = logrus.New()
	initOnce sync.Once
)

// Init configures the base logger. Called once from cmd/simkernel (or
// equivalent qemuriscv entrypoint) before any other subsystem logs.
func Init(level logrus.Level) {
	initOnce.Do(func() {
		base.SetOutput(os.Stderr)
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: false})
		base.SetLevel(level)
	})
}

// Logger is a component-scoped structured logger.
type Logger struct {
	entry *logrus.Entry
}

// For returns a Logger scoped to the given component name.
func For(component string) *Logger {
	return &Logger{entry: base.WithField("component", component)}
}

// WithHart returns a derived Logger tagged with a hart id.
func (l *Logger) WithHart(hartID uint64) *Logger {
	return &Logger{entry: l.entry.WithField("hart", hartID)}
}

// WithPid returns a derived Logger tagged with a process id.
func (l *Logger) WithPid(pid uint64) *Logger {
	return &Logger{entry: l.entry.WithField("pid", pid)}
}

// WithFd returns a derived Logger tagged with a file descriptor.
func (l *Logger) WithFd(fd uint64) *Logger {
	return &Logger{entry: l.entry.WithField("fd", fd)}
}

func (l *Logger) Debugf(format string, args ...any) { l.entry.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.entry.Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.entry.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.entry.Errorf(format, args...) }

// Fatal logs at error level and then panics, matching the kernel's
// KindFatal action (force-unlock I/O, print context, shut down) in sim
// mode, where there is no SBI shutdown to hand off to.
func (l *Logger) Fatal(msg string) {
	l.entry.Error(msg)
	panic(msg)
}
