package action

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestParseMessage(t *testing.T) {
	conn := uuid.New()

	tests := []struct {
		name    string
		raw     string
		wantErr bool
		action  string
	}{
		{name: "minimal", raw: `{"action":"beep"}`, action: "beep"},
		{name: "with fields", raw: `{"action":"setSpeed","port":"A","speed":300}`, action: "setSpeed"},
		{name: "malformed", raw: `{"action":`, wantErr: true},
		{name: "not an object", raw: `["action"]`, wantErr: true},
		{name: "missing action", raw: `{"port":"A"}`, wantErr: true},
		{name: "numeric action", raw: `{"action":42}`, wantErr: true},
		{name: "empty action", raw: `{"action":""}`, wantErr: true},
		{name: "empty input", raw: ``, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseMessage(conn, tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseMessage(%q) error = nil, want error", tt.raw)
				}
				if !errors.Is(err, ErrInvalidMessage) {
					t.Errorf("error = %v, want ErrInvalidMessage", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseMessage(%q) error = %v", tt.raw, err)
			}
			if msg.Action() != tt.action {
				t.Errorf("Action() = %q, want %q", msg.Action(), tt.action)
			}
			if msg.ConnectionID() != conn {
				t.Errorf("ConnectionID() = %v, want %v", msg.ConnectionID(), conn)
			}
			if msg.Raw() != tt.raw {
				t.Errorf("Raw() = %q, want %q", msg.Raw(), tt.raw)
			}
		})
	}
}

func TestMessage_Accessors(t *testing.T) {
	msg, err := ParseMessage(uuid.New(), `{"action":"drive","port":"B","speed":450,"brake":true,"opts":{"ramp":20}}`)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}

	if got := msg.String("port"); got != "B" {
		t.Errorf("String(port) = %q, want B", got)
	}
	if got := msg.Int("speed"); got != 450 {
		t.Errorf("Int(speed) = %d, want 450", got)
	}
	if !msg.Bool("brake") {
		t.Error("Bool(brake) = false, want true")
	}
	if got := msg.Int("opts.ramp"); got != 20 {
		t.Errorf("Int(opts.ramp) = %d, want 20", got)
	}
	if msg.Has("missing") {
		t.Error("Has(missing) = true, want false")
	}
	if got := msg.String("missing"); got != "" {
		t.Errorf("String(missing) = %q, want empty", got)
	}
}

func TestError_Encode(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "no context",
			err:  NewError(KindUnexpectedError, false),
			want: `{"msgTyp":"Error","errorKind":"unexpected-error","context":{}}`,
		},
		{
			name: "port context",
			err:  NewError(KindInvalidSensorPort, true, "port", "S9"),
			want: `{"msgTyp":"Error","errorKind":"invalid-sensor-port","context":{"port":"S9"}}`,
		},
		{
			name: "insertion order kept",
			err:  NewError(KindScriptError, true, "line", 3, "error", `bad "quote"`),
			want: `{"msgTyp":"Error","errorKind":"script-error","context":{"line":3,"error":"bad \"quote\""}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Encode(); got != tt.want {
				t.Errorf("Encode() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestError_LookupAndAs(t *testing.T) {
	base := NewError(KindInvalidMotorPort, true, "port", "E", "dangling")
	if len(base.Context) != 1 {
		t.Fatalf("Context has %d entries, want 1", len(base.Context))
	}
	if v, ok := base.Lookup("port"); !ok || v != "E" {
		t.Errorf("Lookup(port) = %v, %v", v, ok)
	}
	if _, ok := base.Lookup("missing"); ok {
		t.Error("Lookup(missing) should fail")
	}

	wrapped := errors.Join(errors.New("outer"), base)
	ae, ok := AsError(wrapped)
	if !ok || ae.Kind != KindInvalidMotorPort {
		t.Errorf("AsError() = %v, %v", ae, ok)
	}
	if _, ok := AsError(errors.New("plain")); ok {
		t.Error("AsError(plain) should fail")
	}
}
