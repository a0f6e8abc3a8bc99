package action

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Config controls dispatcher behaviour. It is fixed at construction.
type Config struct {
	// BufferedDelivery queues outbound messages for the flush loop instead
	// of writing them on the caller's goroutine.
	BufferedDelivery bool

	FlushInitialDelay time.Duration
	FlushPeriod       time.Duration

	// QueueSize bounds the number of pending asynchronous actions.
	QueueSize int
}

// DefaultConfig returns direct delivery with a 500ms/50ms flush schedule
// for when buffering is switched on.
func DefaultConfig() Config {
	return Config{
		FlushInitialDelay: 500 * time.Millisecond,
		FlushPeriod:       50 * time.Millisecond,
		QueueSize:         1024,
	}
}

// Deps are the collaborators of a Dispatcher. Transport and Scripts may be
// provided later with SetTransport and SetScriptRunner, but must be set
// before Start.
type Deps struct {
	Transport Transport
	Scripts   ScriptRunner
	Logger    Logger
}

// Stats is a snapshot of dispatcher counters.
type Stats struct {
	Running         bool   `json:"running"`
	Buffered        bool   `json:"buffered"`
	Received        uint64 `json:"received"`
	Executed        uint64 `json:"executed"`
	Failed          uint64 `json:"failed"`
	QueuedAsync     uint64 `json:"queued_async"`
	Sent            uint64 `json:"sent"`
	SendFailures    uint64 `json:"send_failures"`
	DroppedOnStop   uint64 `json:"dropped_on_stop"`
	OutboundBacklog int    `json:"outbound_backlog"`
	PendingActions  int    `json:"pending_actions"`
}

type counters struct {
	received      atomic.Uint64
	executed      atomic.Uint64
	failed        atomic.Uint64
	queuedAsync   atomic.Uint64
	sent          atomic.Uint64
	sendFailures  atomic.Uint64
	droppedOnStop atomic.Uint64
}

type lifecycle int

const (
	stateIdle lifecycle = iota
	stateRunning
	stateStopped
)

type task struct {
	handler Handler
	msg     *Message
}

// Dispatcher routes inbound action requests to handlers and delivers their
// responses.
//
// Asynchronous handlers run one at a time on a single worker goroutine, in
// the order ProcessMessage submitted them across all connections.
// Synchronous handlers run on the goroutine that called ProcessMessage.
//
// All public methods are thread-safe.
type Dispatcher struct {
	cfg Config

	handlers   map[string]Handler
	handlersMu sync.RWMutex

	transport Transport
	scripts   ScriptRunner
	wireMu    sync.RWMutex

	logger Logger

	outbound Queue
	tasks    chan task

	state   lifecycle
	ctx     context.Context
	cancel  context.CancelFunc
	stateMu sync.Mutex

	stats counters
}

// New creates a dispatcher. Zero flush or queue settings fall back to
// DefaultConfig values.
func New(cfg Config, deps Deps) *Dispatcher {
	def := DefaultConfig()
	if cfg.FlushPeriod <= 0 {
		cfg.FlushPeriod = def.FlushPeriod
	}
	if cfg.FlushInitialDelay < 0 {
		cfg.FlushInitialDelay = def.FlushInitialDelay
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}

	d := &Dispatcher{
		cfg:       cfg,
		handlers:  make(map[string]Handler),
		transport: deps.Transport,
		scripts:   deps.Scripts,
		logger:    deps.Logger,
		tasks:     make(chan task, cfg.QueueSize),
	}
	if d.logger == nil {
		d.logger = noopLogger{}
	}
	return d
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.logger = logger
}

// SetTransport wires the outbound transport.
func (d *Dispatcher) SetTransport(t Transport) {
	d.wireMu.Lock()
	d.transport = t
	d.wireMu.Unlock()
}

// SetScriptRunner wires the script runner handed to handlers via Scripts.
func (d *Dispatcher) SetScriptRunner(s ScriptRunner) {
	d.wireMu.Lock()
	d.scripts = s
	d.wireMu.Unlock()
}

// Scripts returns the wired script runner.
func (d *Dispatcher) Scripts() ScriptRunner {
	d.wireMu.RLock()
	defer d.wireMu.RUnlock()
	return d.scripts
}

// Buffered reports whether outbound messages go through the flush loop.
func (d *Dispatcher) Buffered() bool {
	return d.cfg.BufferedDelivery
}

// RegisterHandler adds h under h.Name(). An existing handler with the same
// name is replaced.
func (d *Dispatcher) RegisterHandler(h Handler) {
	d.handlersMu.Lock()
	_, replaced := d.handlers[h.Name()]
	d.handlers[h.Name()] = h
	d.handlersMu.Unlock()

	if replaced {
		d.logger.Warn("replacing action handler", "action", h.Name())
		return
	}
	d.logger.Debug("action handler registered", "action", h.Name(), "async", h.IsAsyncNeeded())
}

// UnregisterHandler removes the handler registered under name, if any.
func (d *Dispatcher) UnregisterHandler(name string) {
	d.handlersMu.Lock()
	delete(d.handlers, name)
	d.handlersMu.Unlock()
}

// HandlerNames returns the registered action names in sorted order.
func (d *Dispatcher) HandlerNames() []string {
	d.handlersMu.RLock()
	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	d.handlersMu.RUnlock()
	sort.Strings(names)
	return names
}

func (d *Dispatcher) handler(name string) (Handler, bool) {
	d.handlersMu.RLock()
	defer d.handlersMu.RUnlock()
	h, ok := d.handlers[name]
	return h, ok
}

// Start launches the worker and, in buffered mode, the flush loop.
//
// Returns ErrNotWired if the transport or script runner is missing,
// ErrAlreadyRunning on a second call and ErrStopped after Stop.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()

	switch d.state {
	case stateRunning:
		return ErrAlreadyRunning
	case stateStopped:
		return ErrStopped
	}

	d.wireMu.RLock()
	wired := d.transport != nil && d.scripts != nil
	d.wireMu.RUnlock()
	if !wired {
		return ErrNotWired
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	d.state = stateRunning

	go d.runWorker(d.ctx)
	if d.cfg.BufferedDelivery {
		go d.runFlusher(d.ctx)
	}

	d.logger.Info("dispatcher started",
		"buffered", d.cfg.BufferedDelivery,
		"flush_period", d.cfg.FlushPeriod.String(),
		"queue_size", d.cfg.QueueSize,
	)
	return nil
}

// Stop halts the worker and the flush loop immediately. Queued outbound
// messages and queued asynchronous actions are dropped, and the context of
// a running asynchronous handler is cancelled. Calling Stop again does
// nothing.
func (d *Dispatcher) Stop() {
	d.stateMu.Lock()
	if d.state == stateStopped {
		d.stateMu.Unlock()
		return
	}
	d.state = stateStopped
	cancel := d.cancel
	d.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}

	dropped := len(d.outbound.Drain())
	for drained := false; !drained; {
		select {
		case <-d.tasks:
			dropped++
		default:
			drained = true
		}
	}
	d.stats.droppedOnStop.Add(uint64(dropped))

	d.logger.Info("dispatcher stopped", "dropped", dropped)
}

func (d *Dispatcher) isStopped() bool {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	return d.state == stateStopped
}

// baseContext is the context handed to handlers.
func (d *Dispatcher) baseContext() context.Context {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	if d.ctx != nil {
		return d.ctx
	}
	return context.Background()
}

// ProcessMessage handles one inbound request from connID.
//
// Every failure results in exactly one outbound error message; nothing is
// returned to the caller. After Stop, requests are dropped without a reply,
// synchronous ones included.
func (d *Dispatcher) ProcessMessage(connID uuid.UUID, raw string) {
	d.stats.received.Add(1)

	if d.isStopped() {
		d.stats.droppedOnStop.Add(1)
		d.logger.Warn("dispatcher stopped, dropping message", "connection", connID.String())
		return
	}

	msg, err := ParseMessage(connID, raw)
	if err != nil {
		d.stats.failed.Add(1)
		d.reportError(connID, "", err)
		return
	}

	h, ok := d.handler(msg.Action())
	if !ok {
		d.stats.failed.Add(1)
		d.reportError(connID, msg.Action(), NewError(KindUnknownAction, true, "action", msg.Action()))
		return
	}

	if h.IsAsyncNeeded() {
		d.submit(h, msg)
		return
	}
	d.execute(d.baseContext(), h, msg)
}

func (d *Dispatcher) submit(h Handler, msg *Message) {
	if d.isStopped() {
		d.stats.droppedOnStop.Add(1)
		d.logger.Warn("dispatcher stopped, dropping action", "action", msg.Action())
		return
	}

	select {
	case d.tasks <- task{handler: h, msg: msg}:
		d.stats.queuedAsync.Add(1)
	default:
		d.stats.failed.Add(1)
		d.reportError(msg.ConnectionID(), msg.Action(),
			NewError(KindDispatcherBusy, true, "action", msg.Action()))
	}
}

func (d *Dispatcher) runWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-d.tasks:
			if ctx.Err() != nil {
				d.stats.droppedOnStop.Add(1)
				return
			}
			d.execute(ctx, t.handler, t.msg)
		}
	}
}

func (d *Dispatcher) execute(ctx context.Context, h Handler, msg *Message) {
	start := time.Now()
	if err := d.invoke(ctx, h, msg); err != nil {
		d.stats.failed.Add(1)
		d.reportError(msg.ConnectionID(), msg.Action(), err)
		return
	}
	d.stats.executed.Add(1)
	d.logger.Debug("action processed",
		"action", msg.Action(),
		"connection", msg.ConnectionID().String(),
		"duration", time.Since(start).String(),
	)
}

// invoke runs the handler, converting a panic into an error.
func (d *Dispatcher) invoke(ctx context.Context, h Handler, msg *Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return h.Process(ctx, msg, d)
}

// ReportError sends err the way a handler failure would be reported: a
// domain *Error goes to caller or to everyone per NotifyOnlyCaller, and any
// other error is broadcast as unexpected-error.
func (d *Dispatcher) ReportError(caller uuid.UUID, err error) {
	d.reportError(caller, "", err)
}

func (d *Dispatcher) reportError(caller uuid.UUID, actionName string, err error) {
	if ae, ok := AsError(err); ok {
		target := uuid.Nil
		if ae.NotifyOnlyCaller {
			target = caller
		}
		d.logger.Debug("action failed", "action", actionName, "kind", string(ae.Kind), "error", ae.Error())
		d.SendBackMessage(target, ae.Encode())
		return
	}

	d.logger.Error("unexpected error processing action",
		"action", actionName,
		"connection", caller.String(),
		"error", err,
	)
	d.SendBackMessage(uuid.Nil, NewError(KindUnexpectedError, false, "error", err.Error()).Encode())
}

// SendBackMessage delivers content to target, or to every connection when
// target is uuid.Nil. In buffered mode the message is queued for the next
// flush. Delivery errors are logged, never returned.
func (d *Dispatcher) SendBackMessage(target uuid.UUID, content string) {
	m := Outbound{Target: target, Content: content}
	if d.cfg.BufferedDelivery {
		if d.isStopped() {
			d.stats.droppedOnStop.Add(1)
			return
		}
		d.outbound.Push(m)
		return
	}
	d.deliver(m)
}

func (d *Dispatcher) deliver(m Outbound) {
	d.wireMu.RLock()
	t := d.transport
	d.wireMu.RUnlock()

	if t == nil {
		d.stats.sendFailures.Add(1)
		d.logger.Warn("no transport wired, message lost", "target", m.Target.String())
		return
	}

	if err := t.SendMessage(m.Content, m.Target); err != nil {
		d.stats.sendFailures.Add(1)
		d.logger.Warn("sending message failed",
			"target", m.Target.String(),
			"broadcast", m.IsBroadcast(),
			"error", err,
		)
		return
	}
	d.stats.sent.Add(1)
}

func (d *Dispatcher) runFlusher(ctx context.Context) {
	timer := time.NewTimer(d.cfg.FlushInitialDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}
	d.flush(ctx)

	ticker := time.NewTicker(d.cfg.FlushPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.flush(ctx)
		}
	}
}

// flush delivers the current backlog in FIFO order. A failed send does not
// stop the cycle.
func (d *Dispatcher) flush(ctx context.Context) {
	batch := d.outbound.Drain()
	for i, m := range batch {
		if ctx.Err() != nil {
			d.stats.droppedOnStop.Add(uint64(len(batch) - i))
			return
		}
		d.deliver(m)
	}
}

// Stats returns a snapshot of the dispatcher counters.
func (d *Dispatcher) Stats() Stats {
	d.stateMu.Lock()
	running := d.state == stateRunning
	d.stateMu.Unlock()

	return Stats{
		Running:         running,
		Buffered:        d.cfg.BufferedDelivery,
		Received:        d.stats.received.Load(),
		Executed:        d.stats.executed.Load(),
		Failed:          d.stats.failed.Load(),
		QueuedAsync:     d.stats.queuedAsync.Load(),
		Sent:            d.stats.sent.Load(),
		SendFailures:    d.stats.sendFailures.Load(),
		DroppedOnStop:   d.stats.droppedOnStop.Load(),
		OutboundBacklog: d.outbound.Len(),
		PendingActions:  len(d.tasks),
	}
}
