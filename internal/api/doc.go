// Package api provides the HTTP API and websocket endpoint of brickd.
//
// Browsers connect to the websocket endpoint (default /ws) and exchange
// action messages with the dispatcher: every text frame is handed to
// action.Dispatcher.ProcessMessage with the connection's id, and the Hub
// implements action.Transport so replies reach the right socket.
//
// The REST surface under /api/v1 covers health, metrics, script file
// management and websocket token issuing:
//
//	GET    /api/v1/health
//	GET    /api/v1/metrics
//	POST   /api/v1/auth/ws-token
//	GET    /api/v1/scripts
//	GET    /api/v1/scripts/{name}
//	PUT    /api/v1/scripts/{name}
//	DELETE /api/v1/scripts/{name}
//
// The server follows the same lifecycle as the other components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
