package script

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/nerrad567/brickd/internal/action"
	"github.com/nerrad567/brickd/internal/brick"
)

// maxSleep bounds a single ev3.sleep call.
const maxSleep = time.Hour

// newState creates a Lua state with only the base, table, string and math
// libraries, and without the file loading functions of the base library.
func newState() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "module"} {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}

// runtime binds one script run to the brick.
type runtime struct {
	ctx    context.Context
	brick  *brick.Brick
	notify func(text string)

	// failure is the last structured error raised into Lua.
	failure *action.Error
}

// args reads call arguments, skipping self when a method is called with
// colon syntax.
type args struct {
	L    *lua.LState
	base int
}

func (a args) num(n int) int         { return a.L.CheckInt(a.base + n) }
func (a args) optNum(n, def int) int { return a.L.OptInt(a.base+n, def) }
func (a args) str(n int) string      { return a.L.CheckString(a.base + n) }

func (a args) optBool(n int, def bool) bool {
	v := a.L.Get(a.base + n)
	if v == lua.LNil {
		return def
	}
	return lua.LVAsBool(v)
}

type method func(a args) int

// object builds a table whose functions accept both obj.fn(x) and obj:fn(x).
func object(L *lua.LState, methods map[string]method) *lua.LTable {
	t := L.NewTable()
	for name, m := range methods {
		m := m
		t.RawSetString(name, L.NewFunction(func(L *lua.LState) int {
			base := 0
			if L.GetTop() > 0 && L.Get(1) == lua.LValue(t) {
				base = 1
			}
			return m(args{L: L, base: base})
		}))
	}
	return t
}

// raise aborts the running chunk with err, remembering structured errors so
// their kind survives the trip through Lua.
func (rt *runtime) raise(L *lua.LState, err error) int {
	if ae, ok := action.AsError(err); ok {
		rt.failure = ae
	}
	L.RaiseError("%s", err.Error())
	return 0
}

// module returns the ev3 global.
func (rt *runtime) module(L *lua.LState) *lua.LTable {
	return object(L, map[string]method{
		"getMediumMotor": func(a args) int {
			m, err := rt.brick.MediumMotor(a.str(1))
			if err != nil {
				return rt.raise(a.L, err)
			}
			a.L.Push(motorObject(a.L, m))
			return 1
		},
		"getLargeMotor": func(a args) int {
			m, err := rt.brick.LargeMotor(a.str(1))
			if err != nil {
				return rt.raise(a.L, err)
			}
			a.L.Push(motorObject(a.L, m))
			return 1
		},
		"getColorSensor":      rt.sensorGetter(rt.brick.ColorSensor),
		"getIRSensor":         rt.sensorGetter(rt.brick.IRSensor),
		"getTouchSensor":      rt.sensorGetter(rt.brick.TouchSensor),
		"getUltrasonicSensor": rt.sensorGetter(rt.brick.UltrasonicSensor),
		"getSoundSensor":      rt.sensorGetter(rt.brick.SoundSensor),
		"getScreen": func(a args) int {
			s, err := rt.brick.Screen()
			if err != nil {
				return rt.raise(a.L, err)
			}
			a.L.Push(object(a.L, map[string]method{
				"clear": func(args) int { s.Clear(); return 0 },
				"drawText": func(m args) int {
					s.DrawText(m.str(1), m.optNum(2, 0), m.optNum(3, 0))
					return 0
				},
			}))
			return 1
		},
		"getSound": func(a args) int {
			s, err := rt.brick.Sound()
			if err != nil {
				return rt.raise(a.L, err)
			}
			a.L.Push(object(a.L, map[string]method{
				"beep":      func(args) int { s.Beep(); return 0 },
				"playTone":  func(m args) int { s.PlayTone(m.num(1), m.num(2)); return 0 },
				"setVolume": func(m args) int { s.SetVolume(m.num(1)); return 0 },
			}))
			return 1
		},
		"getKeyboard": func(a args) int {
			k, err := rt.brick.Keyboard()
			if err != nil {
				return rt.raise(a.L, err)
			}
			a.L.Push(object(a.L, map[string]method{
				"isPressed": func(m args) int {
					m.L.Push(lua.LBool(k.IsPressed(m.str(1))))
					return 1
				},
			}))
			return 1
		},
		"getLED": func(a args) int {
			led, err := rt.brick.LED()
			if err != nil {
				return rt.raise(a.L, err)
			}
			a.L.Push(object(a.L, map[string]method{
				"setPattern": func(m args) int { led.SetPattern(m.num(1)); return 0 },
				"off":        func(args) int { led.Off(); return 0 },
			}))
			return 1
		},
		"getBattery": func(a args) int {
			b, err := rt.brick.Battery()
			if err != nil {
				return rt.raise(a.L, err)
			}
			a.L.Push(object(a.L, map[string]method{
				"getVoltage": func(m args) int { m.L.Push(lua.LNumber(b.Voltage())); return 1 },
				"getCurrent": func(m args) int { m.L.Push(lua.LNumber(b.Current())); return 1 },
			}))
			return 1
		},
		"notify": func(a args) int {
			rt.notify(a.L.ToStringMeta(a.L.Get(a.base + 1)).String())
			return 0
		},
		"sleep": func(a args) int {
			timer := time.NewTimer(sleepDuration(a.num(1)))
			defer timer.Stop()
			select {
			case <-rt.ctx.Done():
				a.L.RaiseError("script stopped")
			case <-timer.C:
			}
			return 0
		},
		"isOk": func(a args) int {
			a.L.Push(lua.LBool(rt.ctx.Err() == nil))
			return 1
		},
	})
}

// sleepDuration converts an ev3.sleep argument, clamping it to
// [0, maxSleep] before the multiplication can overflow.
func sleepDuration(ms int) time.Duration {
	if ms <= 0 {
		return 0
	}
	if ms > int(maxSleep/time.Millisecond) {
		return maxSleep
	}
	return time.Duration(ms) * time.Millisecond
}

func (rt *runtime) sensorGetter(get func(port string) (*brick.Sensor, error)) method {
	return func(a args) int {
		s, err := get(a.str(1))
		if err != nil {
			return rt.raise(a.L, err)
		}
		a.L.Push(rt.sensorObject(a.L, s))
		return 1
	}
}

func (rt *runtime) sensorObject(L *lua.LState, s *brick.Sensor) *lua.LTable {
	read := func(mode string) method {
		return func(m args) int {
			v, err := s.Read(mode)
			if err != nil {
				return rt.raise(m.L, err)
			}
			m.L.Push(lua.LNumber(v))
			return 1
		}
	}
	return object(L, map[string]method{
		"read": func(m args) int {
			return read(m.str(1))(m)
		},
		"getReflectedLight": read(brick.ModeReflected),
		"getAmbientLight":   read(brick.ModeAmbient),
		"getColorID":        read(brick.ModeColorID),
		"getDistance":       read(brick.ModeDistance),
		"getDB":             read(brick.ModeDB),
		"isPushed": func(m args) int {
			pushed, err := s.IsPushed()
			if err != nil {
				return rt.raise(m.L, err)
			}
			m.L.Push(lua.LBool(pushed))
			return 1
		},
	})
}

func motorObject(L *lua.LState, m *brick.Motor) *lua.LTable {
	return object(L, map[string]method{
		"setSpeed":      func(a args) int { m.SetSpeed(a.num(1)); return 0 },
		"getSpeed":      func(a args) int { a.L.Push(lua.LNumber(m.Speed())); return 1 },
		"forward":       func(args) int { m.Forward(); return 0 },
		"backward":      func(args) int { m.Backward(); return 0 },
		"stop":          func(a args) int { m.Stop(a.optBool(1, false)); return 0 },
		"rotate":        func(a args) int { m.Rotate(a.num(1)); return 0 },
		"getTachoCount": func(a args) int { a.L.Push(lua.LNumber(m.TachoCount())); return 1 },
		"isMoving":      func(a args) int { a.L.Push(lua.LBool(m.IsMoving())); return 1 },
	})
}

// notification is the message sent by ev3.notify.
type notification struct {
	MsgTyp string `json:"msgTyp"`
	Text   string `json:"text"`
}

func encodeNotification(text string) string {
	b, _ := json.Marshal(notification{MsgTyp: "ScriptNotification", Text: text}) //nolint:errcheck // plain struct
	return string(b)
}

// failureFor converts the error returned by the Lua VM into the error sent
// to the client.
func (rt *runtime) failureFor(err error) *action.Error {
	if rt.failure != nil && strings.Contains(err.Error(), rt.failure.Error()) {
		return rt.failure
	}
	return action.NewError(action.KindScriptError, true, "error", err.Error())
}
