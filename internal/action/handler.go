package action

import (
	"context"

	"github.com/google/uuid"
)

// Handler processes one named action.
//
// Process returns nil on success. A returned *Error is reported to clients as
// a domain failure; any other error is reported as unexpected.
type Handler interface {
	// Name is the action name the handler answers to.
	Name() string

	// IsAsyncNeeded selects the worker goroutine instead of inline execution.
	IsAsyncNeeded() bool

	Process(ctx context.Context, msg *Message, d *Dispatcher) error
}

// HandlerFunc is the function form of Handler.Process.
type HandlerFunc func(ctx context.Context, msg *Message, d *Dispatcher) error

type funcHandler struct {
	name  string
	async bool
	fn    HandlerFunc
}

// NewHandler adapts fn into a Handler.
func NewHandler(name string, async bool, fn HandlerFunc) Handler {
	return &funcHandler{name: name, async: async, fn: fn}
}

func (h *funcHandler) Name() string        { return h.name }
func (h *funcHandler) IsAsyncNeeded() bool { return h.async }

func (h *funcHandler) Process(ctx context.Context, msg *Message, d *Dispatcher) error {
	return h.fn(ctx, msg, d)
}

// Transport delivers outbound text to one connection or, for uuid.Nil, to all.
type Transport interface {
	SendMessage(content string, target uuid.UUID) error
}

// ScriptRunner is the script execution service visible to handlers.
type ScriptRunner interface {
	IsScriptRunning() bool
	StopScript()
}

// Logger defines the logging interface used by the Dispatcher.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
