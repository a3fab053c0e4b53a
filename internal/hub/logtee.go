package hub

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
)

// TeeHandler wraps a base slog handler and forwards records at or above
// forwardLevel to the hub as server_log messages. Every record reaches the
// base handler regardless of level; only the tee is gated. The forward path
// must never log through slog itself, or a warning emitted by the hub would
// recurse.
type TeeHandler struct {
	base         slog.Handler
	hub          *Hub
	forwardLevel slog.Level
	attrs        []slog.Attr
	group        string
}

// NewTeeHandler builds the tee. A nil hub disables forwarding; records still
// reach the base handler.
func NewTeeHandler(base slog.Handler, hub *Hub, forwardLevel slog.Level) *TeeHandler {
	return &TeeHandler{base: base, hub: hub, forwardLevel: forwardLevel}
}

func (h *TeeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

func (h *TeeHandler) Handle(ctx context.Context, record slog.Record) error {
	err := h.base.Handle(ctx, record)

	if h.hub != nil && record.Level >= h.forwardLevel {
		func() {
			defer func() {
				if r := recover(); r != nil {
					// stderr, not slog: logging here would recurse.
					fmt.Fprintf(os.Stderr, "[hub] log tee panicked: %v\n%s\n", r, debug.Stack())
				}
			}()
			attrs := make(map[string]string, record.NumAttrs()+len(h.attrs))
			for _, a := range h.attrs {
				attrs[h.qualify(a.Key)] = a.Value.String()
			}
			record.Attrs(func(a slog.Attr) bool {
				attrs[h.qualify(a.Key)] = a.Value.String()
				return true
			})
			h.hub.BroadcastServerLog(record.Level, record.Message, record.Time, attrs)
		}()
	}
	return err
}

func (h *TeeHandler) qualify(key string) string {
	if h.group == "" {
		return key
	}
	return h.group + "." + key
}

func (h *TeeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	c := *h
	c.base = h.base.WithAttrs(attrs)
	c.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &c
}

func (h *TeeHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.base = h.base.WithGroup(name)
	if h.group != "" {
		c.group = h.group + "." + name
	} else {
		c.group = name
	}
	return &c
}
