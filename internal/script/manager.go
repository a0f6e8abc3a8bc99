package script

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/brickd/internal/action"
	"github.com/nerrad567/brickd/internal/brick"
)

// Action names handled by the Manager.
const (
	ActionRunScript  = "runScript"
	ActionStopScript = "stopScript"
)

// scriptStoppedMessage is broadcast when a run ends for any reason.
const scriptStoppedMessage = `{"msgTyp":"ScriptStopped"}`

// Logger defines the logging interface used by the Manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ErrClosed is reported by Start once Close has been called.
var ErrClosed = errors.New("script: manager closed")

// Sender delivers messages to clients. *action.Dispatcher satisfies it.
type Sender interface {
	SendBackMessage(target uuid.UUID, content string)
	ReportError(caller uuid.UUID, err error)
}

// run is the state of the script currently executing.
type run struct {
	caller  uuid.UUID
	cancel  context.CancelFunc
	started time.Time
}

// Manager runs at most one Lua script at a time against the brick.
//
// It implements action.ScriptRunner and provides the runScript and
// stopScript handlers. When a run ends, however it ends, the brick's
// devices are released and a ScriptStopped message is broadcast.
//
// All public methods are thread-safe.
type Manager struct {
	brick   *brick.Brick
	files   Repository
	maxSize int
	logger  Logger

	sender Sender

	mu      sync.Mutex
	current *run
	closed  bool
	wg      sync.WaitGroup
}

// NewManager creates a Manager. files may be nil, in which case runScript
// only accepts inline sources. maxSize caps inline sources (bytes); zero
// means unlimited.
func NewManager(b *brick.Brick, files Repository, maxSize int) *Manager {
	return &Manager{
		brick:   b,
		files:   files,
		maxSize: maxSize,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.logger = logger
}

// Register wires the manager into d: d becomes the message sender, the
// manager becomes d's script runner and the script handlers are added.
func (m *Manager) Register(d *action.Dispatcher) {
	m.mu.Lock()
	m.sender = d
	m.mu.Unlock()

	d.SetScriptRunner(m)
	d.RegisterHandler(action.NewHandler(ActionRunScript, false, m.handleRun))
	d.RegisterHandler(action.NewHandler(ActionStopScript, false, m.handleStop))
}

// IsScriptRunning implements action.ScriptRunner.
func (m *Manager) IsScriptRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil
}

// StopScript implements action.ScriptRunner. It cancels the running script
// and returns without waiting; use Wait to block until it has ended.
func (m *Manager) StopScript() {
	m.mu.Lock()
	cur := m.current
	m.mu.Unlock()

	if cur != nil {
		m.logger.Info("stopping script", "caller", cur.caller.String())
		cur.cancel()
	}
}

// Close stops the running script, waits for it to end and refuses every
// later Start. Its devices are released by the run itself.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.StopScript()
	m.Wait()
}

// Wait blocks until no script is running.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Start runs source on a new goroutine on behalf of caller. It fails with a
// script-already-running error when a script is active and with a
// script-error after Close.
func (m *Manager) Start(caller uuid.UUID, source string) error {
	if m.maxSize > 0 && len(source) > m.maxSize {
		return action.NewError(action.KindScriptError, true,
			"error", ErrTooLarge.Error(), "size", len(source))
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return action.NewError(action.KindScriptError, true, "error", ErrClosed.Error())
	}
	if m.current != nil {
		m.mu.Unlock()
		return action.NewError(action.KindScriptAlreadyRunning, true)
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &run{caller: caller, cancel: cancel, started: time.Now()}
	m.current = r
	m.wg.Add(1)
	m.mu.Unlock()

	m.logger.Info("script started", "caller", caller.String(), "size", len(source))
	go m.execute(ctx, r, source)
	return nil
}

func (m *Manager) execute(ctx context.Context, r *run, source string) {
	defer m.wg.Done()
	defer r.cancel()

	err := m.runLua(ctx, r, source)

	released := m.brick.ReleaseResources()

	m.mu.Lock()
	m.current = nil
	sender := m.sender
	m.mu.Unlock()

	stopped := ctx.Err() != nil
	m.logger.Info("script ended",
		"caller", r.caller.String(),
		"duration", time.Since(r.started).String(),
		"stopped", stopped,
		"released", released,
	)

	if sender == nil {
		return
	}
	if err != nil && !stopped {
		sender.ReportError(r.caller, err)
	}
	sender.SendBackMessage(uuid.Nil, scriptStoppedMessage)
}

// runLua executes source in a fresh sandboxed state.
func (m *Manager) runLua(ctx context.Context, r *run, source string) (err error) {
	L := newState()
	defer L.Close()
	L.SetContext(ctx)

	rt := &runtime{
		ctx:   ctx,
		brick: m.brick,
		notify: func(text string) {
			m.mu.Lock()
			sender := m.sender
			m.mu.Unlock()
			if sender != nil {
				sender.SendBackMessage(r.caller, encodeNotification(text))
			}
		},
	}
	L.SetGlobal("ev3", rt.module(L))

	defer func() {
		if p := recover(); p != nil {
			m.logger.Error("script runtime panicked", "panic", p)
			err = action.NewError(action.KindScriptError, true, "error", "internal error")
		}
	}()

	if err := L.DoString(source); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return rt.failureFor(err)
	}
	return nil
}

// handleRun serves {"action":"runScript","script":"..."} and
// {"action":"runScript","file":"name"}.
func (m *Manager) handleRun(ctx context.Context, msg *action.Message, _ *action.Dispatcher) error {
	source := msg.String("script")
	if !msg.Has("script") {
		name := msg.String("file")
		if name == "" || m.files == nil {
			return action.NewError(action.KindScriptError, true, "error", "missing script or file")
		}
		f, err := m.files.Get(ctx, name)
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidName) {
			return action.NewError(action.KindScriptNotFound, true, "file", name)
		}
		if err != nil {
			return err
		}
		source = f.Content
	}
	return m.Start(msg.ConnectionID(), source)
}

func (m *Manager) handleStop(context.Context, *action.Message, *action.Dispatcher) error {
	m.StopScript()
	return nil
}
