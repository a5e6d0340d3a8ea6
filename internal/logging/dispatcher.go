package logging

import "github.com/rs/zerolog"

// badKey labels a trailing value that has no key, as slog does.
const badKey = "!BADKEY"

// DispatcherLogger lets the IPC dispatcher write through a zerolog logger.
// Errors passed as values keep their message.
type DispatcherLogger struct {
	logger zerolog.Logger
}

func NewDispatcherLogger(logger zerolog.Logger) *DispatcherLogger {
	return &DispatcherLogger{logger: logger}
}

func (l *DispatcherLogger) Debug(msg string, keysAndValues ...any) {
	withPairs(l.logger.Debug(), keysAndValues).Msg(msg)
}

func (l *DispatcherLogger) Info(msg string, keysAndValues ...any) {
	withPairs(l.logger.Info(), keysAndValues).Msg(msg)
}

func (l *DispatcherLogger) Error(msg string, keysAndValues ...any) {
	withPairs(l.logger.Error(), keysAndValues).Msg(msg)
}

// withPairs adds alternating key/value arguments to ev. Pairs with a
// non-string key are skipped. ev is nil when the level is disabled.
func withPairs(ev *zerolog.Event, kv []any) *zerolog.Event {
	if ev == nil {
		return nil
	}
	for i := 0; i < len(kv); i += 2 {
		if i+1 == len(kv) {
			ev = ev.Interface(badKey, kv[i])
			break
		}
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		switch v := kv[i+1].(type) {
		case error:
			ev = ev.AnErr(key, v)
		case string:
			ev = ev.Str(key, v)
		default:
			ev = ev.Interface(key, v)
		}
	}
	return ev
}
