// Package logging builds the zap.Logger every other package logs
// through.
package logging

import "go.uber.org/zap"

// New builds a production zap.Logger in JSON mode, or a development
// console logger when dev is true (local runs, tests).
func New(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// Must panics if New fails; only ever used at process startup before a
// logger exists to report the failure through.
func Must(dev bool) *zap.Logger {
	l, err := New(dev)
	if err != nil {
		panic("logging: " + err.Error())
	}
	return l
}
