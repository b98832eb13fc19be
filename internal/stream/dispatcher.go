// ABOUTME: Routes parsed frames to registered side-effecting handlers
// ABOUTME: Unknown frame types are logged and dropped, never fatal

package stream

import (
	"log/slog"

	"github.com/2389/trace-assist/internal/protocol"
)

// Handler processes one frame. Handlers run synchronously on the read
// loop, so dispatch order always matches arrival order.
type Handler func(frame protocol.Frame)

// Dispatcher routes frames by type. It holds no state beyond the
// handler registry and is not safe for registration after dispatch
// has begun on another goroutine.
type Dispatcher struct {
	handlers map[string]Handler
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher. Pass nil logger for default.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		handlers: make(map[string]Handler),
		logger:   logger.With("component", "dispatcher"),
	}
}

// Register sets the handler for a frame type, replacing any existing one.
func (d *Dispatcher) Register(frameType string, h Handler) {
	d.handlers[frameType] = h
}

// Dispatch invokes the handler registered for the frame's type. Frames
// with no registered handler are logged and discarded.
func (d *Dispatcher) Dispatch(frame protocol.Frame) {
	h, ok := d.handlers[frame.Type]
	if !ok {
		d.logger.Debug("no handler for frame type", "type", frame.Type)
		return
	}
	h(frame)
}
