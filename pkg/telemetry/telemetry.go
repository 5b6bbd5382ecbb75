// Package telemetry provides the transport's structured logging facade.
// Internal faults that spec.md §7 requires to be "logged and the offending
// packet dropped" go through here rather than being surfaced to RPC
// callers.
package telemetry

import (
	"go.uber.org/zap"
)

// Logger wraps a zap.SugaredLogger with the field conventions this
// transport uses consistently: "rpc" for an rpcid.ID's string form, "peer"
// for a driver.Address's string form, "opcode" for a wire.Opcode's string
// form.
type Logger struct {
	*zap.SugaredLogger
}

// New builds a production-configured Logger. Callers that already run a
// zap.Logger elsewhere (e.g. an embedding service) should use Wrap instead
// so all components share one sink.
func New() (*Logger, error) {
	base, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return Wrap(base), nil
}

// Wrap adapts an existing zap.Logger.
func Wrap(l *zap.Logger) *Logger {
	return &Logger{SugaredLogger: l.Sugar()}
}

// Noop returns a Logger that discards everything, for tests and for
// embedders who have not configured logging.
func Noop() *Logger {
	return Wrap(zap.NewNop())
}

// Sync flushes any buffered log entries. Callers should defer this at
// process shutdown; errors from Sync on stderr/stdout are expected on some
// platforms and are intentionally ignored by callers that just want a
// best-effort flush.
func (l *Logger) Sync() error {
	return l.SugaredLogger.Sync()
}
