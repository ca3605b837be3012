package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"time"
)

// Sink is the fire-and-forget event channel. Implementations must tolerate
// concurrent Emit calls; callers never depend on delivery.
type Sink interface {
	Emit(ctx context.Context, tag string, event map[string]any) error
}

// EmitBestEffort emits one event and swallows any failure, logging it only.
// The primary query outcome must never depend on telemetry delivery.
func EmitBestEffort(ctx context.Context, sink Sink, logger *slog.Logger, tag string, event map[string]any) {
	if sink == nil || tag == "" {
		return
	}
	if err := sink.Emit(ctx, tag, event); err != nil && logger != nil {
		logger.ErrorContext(ctx, "telemetry emit failed",
			slog.String("tag", tag),
			slog.Any("error", err),
		)
	}
}

// Forwarder ships events as single-line JSON records over TCP, one
// connection per event, matching a log-collector tcp input with a json
// parser. A nil clock falls back to time.Now.
type Forwarder struct {
	Address     string
	DialTimeout time.Duration
	Clock       func() time.Time
}

type envelope struct {
	Tag    string         `json:"tag"`
	Time   int64          `json:"time"`
	Record map[string]any `json:"record"`
}

func (f *Forwarder) Emit(ctx context.Context, tag string, event map[string]any) error {
	if f.Address == "" {
		return fmt.Errorf("telemetry address is not configured")
	}
	timeout := f.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	clock := f.Clock
	if clock == nil {
		clock = time.Now
	}

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", f.Address)
	if err != nil {
		return fmt.Errorf("dial telemetry sink: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	} else {
		_ = conn.SetWriteDeadline(clock().Add(timeout))
	}

	payload, err := json.Marshal(envelope{Tag: tag, Time: clock().Unix(), Record: event})
	if err != nil {
		return fmt.Errorf("marshal telemetry event: %w", err)
	}
	payload = append(payload, '\n')
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("write telemetry event: %w", err)
	}
	return nil
}

// Nop discards every event. Used when no telemetry tag is configured.
type Nop struct{}

func (Nop) Emit(context.Context, string, map[string]any) error {
	return nil
}
