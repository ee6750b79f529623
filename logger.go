package avcore

import "log"

var pkgLogger Logger = log.Default()

// Logger is the minimal sink the engine logs through. *log.Logger
// satisfies it, so the default needs no wiring; hosts that want structured
// or leveled logging provide their own implementation via [SetLogger].
type Logger interface {
	Printf(format string, v ...any)
}

// SetLogger replaces the package-wide logger used by every Engine and its
// pipeline threads. Not safe to call concurrently with an open Engine.
func SetLogger(logger Logger) {
	pkgLogger = logger
}
