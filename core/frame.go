package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
)

var ErrMalformedFrame = errors.New("malformed frame")

// Frame is one message on the backend channel: a JSON object with a "type" field
// and the payload fields next to it.
type Frame struct {
	Type string
	Raw  json.RawMessage
}

func (f Frame) String() string {
	return fmt.Sprintf("Frame{Type: %s, Size: %d}", f.Type, len(f.Raw))
}

// Decode unmarshals the whole frame into v.
func (f *Frame) Decode(v any) error {
	if err := json.Unmarshal(f.Raw, v); err != nil {
		return fmt.Errorf("decode %s frame: %w", f.Type, err)
	}
	return nil
}

func DecodeFrame(r io.Reader) (*Frame, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read frame: %w", err)
	}
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if head.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}
	return &Frame{Type: head.Type, Raw: raw}, nil
}

// NewFrame flattens payload, which must encode to a JSON object or null, into a
// frame of type t.
func NewFrame(t string, payload any) (*Frame, error) {
	typ, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	body = bytes.TrimSpace(body)

	var buf bytes.Buffer
	buf.WriteString(`{"type":`)
	buf.Write(typ)
	switch {
	case string(body) == "null" || string(body) == "{}":
		buf.WriteByte('}')
	case len(body) > 1 && body[0] == '{':
		buf.WriteByte(',')
		buf.Write(body[1:])
	default:
		return nil, fmt.Errorf("%w: %s payload is not an object", ErrMalformedFrame, t)
	}
	return &Frame{Type: t, Raw: buf.Bytes()}, nil
}

func EncodeFrame(w io.Writer, f *Frame) error {
	if _, err := w.Write(f.Raw); err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	return nil
}

type FrameHandler func(context.Context, *Frame) error

// FrameRouter dispatches frames by type. Dispatch is synchronous: handlers run on the
// caller's goroutine one at a time, in the order frames are dispatched.
type FrameRouter struct {
	handlers map[string]FrameHandler
	logger   *slog.Logger
	// onUnhandled is called for frame types without a handler.
	onUnhandled func(*Frame)
}

func NewFrameRouter(logger *slog.Logger) *FrameRouter {
	return &FrameRouter{
		handlers:    make(map[string]FrameHandler),
		logger:      logger,
		onUnhandled: func(*Frame) {},
	}
}

func (r *FrameRouter) On(frameType string, handler FrameHandler) {
	r.handlers[frameType] = handler
}

func (r *FrameRouter) OnUnhandled(f func(*Frame)) {
	r.onUnhandled = f
}

// Types returns the frame types that have a handler.
func (r *FrameRouter) Types() []string {
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	return types
}

// Dispatch runs the handler of f. Handler errors and panics are logged and do not
// stop the caller.
func (r *FrameRouter) Dispatch(ctx context.Context, f *Frame) (err error) {
	handler, ok := r.handlers[f.Type]
	if !ok {
		r.logger.Debug("unhandled frame", "type", f.Type)
		r.onUnhandled(f)
		return nil
	}
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("frame handler panicked", "type", f.Type, "panic", p, "stack", string(debug.Stack()))
			err = fmt.Errorf("%s handler panicked: %v", f.Type, p)
		}
	}()
	if err := handler(ctx, f); err != nil {
		r.logger.Error(fmt.Sprintf("%s handler: %s", f.Type, err))
		return err
	}
	return nil
}
