package log

import (
	"context"
	"log/slog"
)

// SlogAdapter renders protocol events as slog records with the message
// "sense". Error events are logged at Warn, everything else at Debug.
type SlogAdapter struct {
	logger *slog.Logger
}

func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

func (a *SlogAdapter) Log(event Event) {
	level := slog.LevelDebug
	if event.Category == CategoryError {
		level = slog.LevelWarn
	}
	ctx := context.Background()
	if !a.logger.Enabled(ctx, level) {
		return
	}
	a.logger.LogAttrs(ctx, level, "sense", event.attrs()...)
}

// attrs flattens the event header and whichever payload is set.
func (e Event) attrs() []slog.Attr {
	out := []slog.Attr{
		slog.String("session", e.SessionID),
		slog.String("direction", e.Direction.String()),
		slog.String("layer", e.Layer.String()),
		slog.String("category", e.Category.String()),
	}
	out = appendNonEmpty(out, "manager", e.ManagerID)
	out = appendNonEmpty(out, "remote", e.RemoteAddr)

	switch {
	case e.Frame != nil:
		out = append(out, slog.Int("frame_size", e.Frame.Size), slog.Bool("truncated", e.Frame.Truncated))
	case e.Message != nil:
		out = e.Message.appendAttrs(out)
	case e.Command != nil:
		out = e.Command.appendAttrs(out)
	case e.Snapshot != nil:
		out = append(out,
			slog.Uint64("frame_id", e.Snapshot.FrameID),
			slog.Int("items", e.Snapshot.Items),
			slog.Int("valid", e.Snapshot.Valid))
	case e.StateChange != nil:
		out = append(out,
			slog.String("entity", e.StateChange.Entity.String()),
			slog.String("old_state", e.StateChange.OldState),
			slog.String("new_state", e.StateChange.NewState))
		out = appendNonEmpty(out, "reason", e.StateChange.Reason)
	case e.Error != nil:
		out = append(out,
			slog.String("error_layer", e.Error.Layer.String()),
			slog.String("error_msg", e.Error.Message),
			slog.String("error_context", e.Error.Context))
		if e.Error.Code != nil {
			out = append(out, slog.Int("error_code", *e.Error.Code))
		}
	}
	return out
}

func (m *MessageEvent) appendAttrs(out []slog.Attr) []slog.Attr {
	out = append(out, slog.String("msg_type", m.Type.String()))
	if m.CallID != 0 {
		out = append(out, slog.Uint64("call_id", m.CallID))
	}
	out = appendNonEmpty(out, "command", m.Command)
	if m.Status != nil {
		out = append(out, slog.String("status", m.Status.String()))
	}
	return out
}

func (c *CommandEvent) appendAttrs(out []slog.Attr) []slog.Attr {
	out = append(out,
		slog.Uint64("call_id", c.CallID),
		slog.String("command", c.Name),
		slog.String("state", c.State))
	if c.DropReturn {
		out = append(out, slog.Bool("drop", true))
	}
	out = appendNonEmpty(out, "kind", c.Kind)
	if c.Latency != nil {
		out = append(out, slog.Duration("latency", *c.Latency))
	}
	return out
}

func appendNonEmpty(out []slog.Attr, key, v string) []slog.Attr {
	if v == "" {
		return out
	}
	return append(out, slog.String(key, v))
}

var _ Logger = (*SlogAdapter)(nil)
