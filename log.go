package isopool

import (
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// baseLogger is the package-wide zerolog sink. Callers that embed isopool
// into a larger server can replace it with SetLogger before constructing a
// Pool so pool/worker events land in the host's own log stream.
var (
	loggerMu   sync.RWMutex
	baseLogger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
)

// SetLogger replaces the package-wide logger. Safe to call before the
// first Pool is constructed; loggers already handed to running workers
// are not retroactively swapped.
func SetLogger(l zerolog.Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	baseLogger = l
}

func currentLogger() zerolog.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return baseLogger
}
