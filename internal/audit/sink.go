// Package audit is the append-only, hash-chained event sink the
// orchestrator writes admission-control milestones to. Appends are
// totally ordered per sink instance; a sink must never mutate an event
// once it has been appended.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/agentwarden-ecology/orchestrator/internal/apierr"
	"github.com/agentwarden-ecology/orchestrator/internal/domain"
)

// Sink is the storage backend an audit Logger writes through. ID and
// Timestamp are assigned by the Logger before Append is called; a Sink
// implementation only has to seal the hash chain and persist.
type Sink interface {
	Append(ctx context.Context, event domain.AuditEvent) error
}

// Logger assigns an ID and timestamp to each event and forwards it to
// a Sink. Whether a Sink failure aborts the in-flight request is
// governed by failMode: "open" logs the failure and continues planning;
// "closed" (the default) surfaces it to the caller as an Internal
// error, since an admission decision with no audit trail is treated as
// an upstream fault rather than a success.
type Logger struct {
	sink     Sink
	failMode string
	logger   *slog.Logger
}

// NewLogger creates a Logger writing through sink. failMode is
// "open" or "closed"; any other value (including "") is treated as
// "closed", matching config.DefaultConfig's conservative default.
func NewLogger(sink Sink, failMode string, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{sink: sink, failMode: failMode, logger: logger.With("component", "audit.Logger")}
}

// Append mints an event ID and timestamp (if not already set) and
// forwards the event to the sink. In fail-open mode a sink error is
// logged and swallowed, returning nil. In fail-closed mode (the
// default) a sink error is logged and returned as an
// *apierr.Error(Internal), aborting the stage that called Append.
func (l *Logger) Append(ctx context.Context, event domain.AuditEvent) error {
	if event.ID == "" {
		event.ID = ulid.Make().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	err := l.sink.Append(ctx, event)
	if err == nil {
		return nil
	}

	if l.failMode == "open" {
		l.logger.Warn("failed to append audit event, continuing (fail-open)",
			"event_type", event.Type, "reservation_id", event.ReservationID, "error", err)
		return nil
	}

	l.logger.Error("failed to append audit event, aborting request (fail-closed)",
		"event_type", event.Type, "reservation_id", event.ReservationID, "error", err)
	return apierr.Wrap(apierr.Internal, "audit sink unavailable", err)
}
