// Package vlog provides the structured-logging abstraction used by every
// component in this module.
package vlog

import (
	"github.com/sirupsen/logrus"
)

// Logger is the call-site contract every component depends on. Components
// take a Logger as a constructor argument rather than reaching for a
// package-level global, so tests can inject a silent implementation.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// NoOpLogger discards everything. Useful as a default in tests and in
// library call sites that don't want to force a logging dependency.
type NoOpLogger struct{}

func (NoOpLogger) Debug(string, ...interface{}) {}
func (NoOpLogger) Info(string, ...interface{})  {}
func (NoOpLogger) Warn(string, ...interface{})  {}
func (NoOpLogger) Error(string, ...interface{}) {}

// Logrus adapts a *logrus.Logger to Logger, turning the variadic key/value
// pairs every call site passes into logrus.Fields.
type Logrus struct {
	L *logrus.Logger
}

// NewLogrus builds a Logrus-backed Logger with sane defaults (text
// formatter, info level, stderr output is logrus's default).
func NewLogrus() *Logrus {
	l := logrus.New()
	l.SetLevel(logrus.InfoLevel)
	return &Logrus{L: l}
}

func fields(args []interface{}) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		f[key] = args[i+1]
	}
	return f
}

func (l *Logrus) Debug(msg string, args ...interface{}) {
	l.L.WithFields(fields(args)).Debug(msg)
}

func (l *Logrus) Info(msg string, args ...interface{}) {
	l.L.WithFields(fields(args)).Info(msg)
}

func (l *Logrus) Warn(msg string, args ...interface{}) {
	l.L.WithFields(fields(args)).Warn(msg)
}

func (l *Logrus) Error(msg string, args ...interface{}) {
	l.L.WithFields(fields(args)).Error(msg)
}
