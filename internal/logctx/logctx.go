// Package logctx wires up the subsystem-scoped slog backend used across
// the node, the way EXCCoin-exccd levels its addrmgr/connmgr/peer/blockchain
// loggers from a single backend and a single configured level.
package logctx

import (
	"io"
	"os"
	"sync"

	"github.com/decred/slog"
)

const envLogLevel = "EASTSEA_LOG_LEVEL"

var (
	mu       sync.Mutex
	backend  = slog.NewBackend(os.Stdout)
	loggers  = make(map[string]slog.Logger)
	curLevel = slog.LevelInfo
)

// Init applies EASTSEA_LOG_LEVEL (if set) to the backend level used for
// every logger created via Logger. Call once at startup, before any
// subsystem pulls its logger.
func Init() {
	mu.Lock()
	defer mu.Unlock()
	lvl := os.Getenv(envLogLevel)
	if lvl == "" {
		return
	}
	if parsed, ok := slog.LevelFromString(lvl); ok {
		curLevel = parsed
		for _, l := range loggers {
			l.SetLevel(curLevel)
		}
	}
}

// SetOutput replaces the shared backend with one writing to w and
// re-creates every registered logger on it. Loggers already returned by
// Logger keep writing to the previous backend; only loggers obtained
// after the call write to w.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	backend = slog.NewBackend(w)
	for tag := range loggers {
		l := backend.Logger(tag)
		l.SetLevel(curLevel)
		loggers[tag] = l
	}
}

// Logger returns the named subsystem logger, creating it at the currently
// configured level on first use. Subsystem tags follow the short,
// upper-case convention the teacher's dependency stack uses (PEER, CMGR,
// AMGR, ...): here PEER, CHAN, COOR, BOOT, RPC, MAIN.
func Logger(subsystem string) slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[subsystem]; ok {
		return l
	}
	l := backend.Logger(subsystem)
	l.SetLevel(curLevel)
	loggers[subsystem] = l
	return l
}
