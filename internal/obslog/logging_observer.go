package obslog

import "log/slog"

// LoggingObserver logs every runtime event via structured logging,
// ported from internal/engine/logging_observer.go.
type LoggingObserver struct {
	logger *slog.Logger
}

// NewLoggingObserver wraps logger (slog.Default() if nil) as an Observer.
func NewLoggingObserver(logger *slog.Logger) *LoggingObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{logger: logger}
}

func (lo *LoggingObserver) OnEvent(event Event) {
	lo.logger.Info("tick_lifecycle",
		"event", event.Type,
		"tick", event.Tick,
		"timestamp", event.Timestamp,
		"data", event.Data,
	)
}
