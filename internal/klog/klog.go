// Package klog centralizes structured logging for everything that is not
// on the UART fast path: boot trace, mount/unmount, scheduler diagnostics,
// and the host-side tools (cmd/mkfs, cmd/kernel). The terminal line
// discipline (internal/tty) talks to the UART directly and never goes
// through here — that path models a real byte-at-a-time driver.
package klog

import "github.com/sirupsen/logrus"

// New returns a logger preconfigured the way every kernel subsystem wants
// it: text formatting (no color codes that would confuse a serial
// console capture) and full timestamps so boot traces can be correlated
// against timer ticks in tests.
func New() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000000",
	})
	return l
}

// Discard returns a logger that drops everything, for tests and for
// kernel contexts that don't want trace noise.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.Out = discardWriter{}
	return l
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
