// Package panel serves the brickd browser console.
//
// The console is a single page that connects to the action websocket,
// sends raw action messages, and edits, runs and stops stored Lua scripts
// through the REST API. It is embedded with go:embed; Handler can serve a
// directory instead while the page is being worked on.
package panel
