package action

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the action package.
var (
	// ErrNotWired is returned by Start when the transport or script runner is missing.
	ErrNotWired = errors.New("action: dispatcher not wired")

	// ErrAlreadyRunning is returned by Start when the dispatcher is running.
	ErrAlreadyRunning = errors.New("action: dispatcher already running")

	// ErrStopped is returned by Start once the dispatcher has been stopped.
	ErrStopped = errors.New("action: dispatcher stopped")

	// ErrInvalidMessage is returned when an inbound message cannot be parsed.
	ErrInvalidMessage = errors.New("action: invalid message")

	// ErrHandlerPanic wraps a value recovered from a panicking handler.
	ErrHandlerPanic = errors.New("action: handler panicked")
)

// Kind identifies a client-visible failure.
type Kind string

// Error kinds sent to clients in the "errorKind" field.
const (
	KindUnknownAction        Kind = "unknown-action"
	KindInvalidSensorPort    Kind = "invalid-sensor-port"
	KindInvalidMotorPort     Kind = "invalid-motor-port"
	KindUnexpectedError      Kind = "unexpected-error"
	KindScriptAlreadyRunning Kind = "script-already-running"
	KindScriptNotFound       Kind = "script-not-found"
	KindScriptError          Kind = "script-error"
	KindDispatcherBusy       Kind = "dispatcher-busy"
)

// Pair is one entry of an error context.
type Pair struct {
	Key   string
	Value any
}

// Error is a structured, client-visible failure.
//
// Context keeps insertion order so the encoded JSON object is stable.
// NotifyOnlyCaller selects between replying to the originating connection
// and broadcasting to every connection.
type Error struct {
	Kind             Kind
	Context          []Pair
	NotifyOnlyCaller bool
}

// NewError creates an Error. kv is read as alternating key/value arguments;
// a trailing key without a value is ignored.
//
// Example:
//
//	action.NewError(action.KindInvalidMotorPort, true, "port", "E")
func NewError(kind Kind, notifyOnlyCaller bool, kv ...any) *Error {
	e := &Error{Kind: kind, NotifyOnlyCaller: notifyOnlyCaller}
	for i := 0; i+1 < len(kv); i += 2 {
		e.Context = append(e.Context, Pair{Key: fmt.Sprint(kv[i]), Value: kv[i+1]})
	}
	return e
}

// Error implements the error interface.
func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return string(e.Kind)
	}
	parts := make([]string, 0, len(e.Context))
	for _, p := range e.Context {
		parts = append(parts, fmt.Sprintf("%s=%v", p.Key, p.Value))
	}
	return fmt.Sprintf("%s (%s)", e.Kind, strings.Join(parts, ", "))
}

// Lookup returns the context value stored under key.
func (e *Error) Lookup(key string) (any, bool) {
	for _, p := range e.Context {
		if p.Key == key {
			return p.Value, true
		}
	}
	return nil, false
}

// Encode returns the wire form of the error:
//
//	{"msgTyp":"Error","errorKind":"<kind>","context":{...}}
func (e *Error) Encode() string {
	var buf bytes.Buffer
	buf.WriteString(`{"msgTyp":"Error","errorKind":`)
	writeJSON(&buf, string(e.Kind))
	buf.WriteString(`,"context":{`)
	for i, p := range e.Context {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeJSON(&buf, p.Key)
		buf.WriteByte(':')
		writeJSON(&buf, p.Value)
	}
	buf.WriteString("}}")
	return buf.String()
}

// writeJSON appends the JSON encoding of v. Values that cannot be encoded
// are written as their string form.
func writeJSON(buf *bytes.Buffer, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		b, _ = json.Marshal(fmt.Sprint(v))
	}
	buf.Write(b)
}

// AsError reports whether err carries an *Error and returns it.
func AsError(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
