// Package server provides the HTTP API of the reasoner.
//
// The server wraps the engine, the session store and the model loader in a
// chi router with request logging, recovery and optional CORS. Runs stream
// back as NDJSON, one event per line, flushed as each event is emitted.
//
// # API Endpoints
//
//   - /session/*: session lifecycle, history, runs and aborts
//   - /model/*: scanning the model directory and loading a model file
//   - /config/*: configuration view and hardware settings
//   - /provider: registered inference providers
//   - /event: bus events as Server-Sent Events, optionally for one session
//   - /metrics: Prometheus metrics
//
// The bundled web client talks to a flat set of routes (/scan, /load_model,
// /list_sessions, /create_session, /delete_session, /get_history, /stream,
// /config_hardware). They share handlers with the routes above and keep the
// client's request and response shapes.
//
// # Runs
//
// A run is started with POST /session/{id}/run:
//
//	{"prompt": "What is 2+2?", "mode": "decompose", "settings": {"temperature": 0.5}}
//
// Only one run per session is active at a time. A second run waits for the
// first to finish, and POST /session/{id}/abort cancels the active one.
// Failures that happen once the stream has started are reported in-stream
// as error events rather than through the HTTP status.
//
// # Usage Example
//
//	srv := server.New(server.DefaultConfig(), server.Deps{
//		Engine:   eng,
//		Sessions: store,
//		Loader:   loader,
//		Registry: registry,
//		Gateway:  gateway,
//		Bus:      bus,
//	})
//	go srv.Start()
//	defer srv.Shutdown(ctx)
package server
