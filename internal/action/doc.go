// Package action provides the action dispatcher for brickd.
//
// A browser (or the MQTT bridge) sends JSON requests of the form
// {"action": "<name>", ...}. The dispatcher parses each request, looks up the
// handler registered under that name and runs it, either inline on the
// caller's goroutine or on a single worker goroutine that executes
// asynchronous actions strictly in submission order.
//
// # Architecture
//
//	┌──────────────┐   ProcessMessage   ┌──────────────────────────────────┐
//	│  Transport   │───────────────────▶│            Dispatcher            │
//	│ (websocket,  │                    │                                  │
//	│  mqtt)       │                    │  handlers ──▶ sync: run inline   │
//	│              │                    │           └─▶ async: worker FIFO │
//	│              │◀───────────────────│                                  │
//	└──────────────┘    SendMessage     │  outbound queue ──▶ flush loop   │
//	                                    └──────────────────────────────────┘
//
// # Errors
//
// Handlers return plain Go errors. A returned *Error is a domain failure and
// is delivered to the caller or broadcast according to NotifyOnlyCaller.
// Anything else, including a recovered panic, is an unexpected failure and
// is broadcast as an "unexpected-error" with the cause in its context.
//
// # Delivery
//
// In direct mode SendBackMessage writes through the Transport immediately.
// In buffered mode messages are queued and a flush loop drains the queue in
// FIFO order every flush period. Stop is abrupt: queued messages and queued
// asynchronous actions are dropped.
//
// # Usage
//
//	d := action.New(action.DefaultConfig(), action.Deps{Logger: log})
//	d.SetTransport(hub)
//	d.SetScriptRunner(scripts)
//	d.RegisterHandler(action.NewHandler("beep", true, beep))
//	if err := d.Start(ctx); err != nil {
//	    return err
//	}
//	defer d.Stop()
package action
