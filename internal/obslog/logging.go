// Package obslog sets up structured logging and the runtime's event
// observer pattern. Logging setup is ported near-verbatim from
// internal/logging/logging.go's multiHandler (console + Seq fan-out); the
// Observer/Event types generalize internal/engine/observer.go's
// query-lifecycle events to the tick-driven runtime's phases.
package obslog

import (
	"context"
	"log/slog"
	"os"
	"time"

	slogseq "github.com/sokkalf/slog-seq"
)

// multiHandler forwards log records to multiple handlers, so a Seq sink
// and a console sink can both receive every record.
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range m.handlers {
		if err := h.Handle(ctx, r.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		handlers[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}

// SetupLogger builds a logger writing to stdout and, when seqURL is set, to
// the Seq server at that URL, returning a cleanup function to flush/close the
// Seq sink. It is console-only when seqURL is empty or no Seq handler could
// be built; whether the server is reachable is not checked.
func SetupLogger(seqURL string, level slog.Level) (*slog.Logger, func()) {
	consoleHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
	})

	if seqURL == "" {
		return slog.New(consoleHandler), func() {}
	}

	_, seqHandler := slogseq.NewLogger(
		seqURL,
		slogseq.WithBatchSize(20),
		slogseq.WithFlushInterval(500*time.Millisecond),
		slogseq.WithHandlerOptions(&slog.HandlerOptions{
			Level:     level,
			AddSource: true,
		}),
	)

	if seqHandler == nil {
		return slog.New(consoleHandler), func() {}
	}

	multi := &multiHandler{handlers: []slog.Handler{consoleHandler, seqHandler}}
	logger := slog.New(multi)
	return logger, func() { seqHandler.Close() }
}
