// Package glasswing binds Go backend services to an embedded web rendering
// surface. It extracts a typed schema from explicitly exposed methods,
// dispatches surface-initiated calls over a two-way message channel built on
// Watermill, carries fire-and-forget events in both directions, and generates
// the JavaScript stubs the surface imports.
//
// A Bridge is the backend-side handle. Binding a service names the methods it
// exposes; nothing is exported by omission:
//
//	conf := &glasswing.Config{Transport: "channel"}
//	bridge := glasswing.NewBridge(conf, logger, ctx, glasswing.Dependencies{})
//	if err := bridge.Bind("Greeter", &Greeter{}, "Greet"); err != nil {
//		log.Fatal(err)
//	}
//	go bridge.Start(ctx)
//
// Struct and enum types crossing the bridge are declared up front with
// explicit external field names and tag tables; schema extraction reduces
// every parameter and result to a closed set of type shapes and fails loudly
// on anything else.
//
// # Transports
//
// The channel between the two sides is pluggable and selected by
// Config.Transport:
//   - channel: in-process Go channels, for embedded surfaces and tests
//   - pipe: length-prefixed frames over stdio, for surfaces in a child process
//   - websocket: a single-surface WebSocket server, for surfaces in a browser shell
//
// # Calls and events
//
// Calls are request/response with correlation IDs, so any number can be in
// flight at once and a slow method never delays its neighbours. Events are
// at-most-once notifications with no replay: subscribe first, then emit.
// Failed calls carry a structured Failure whose kind distinguishes caller
// mistakes, backend-declared errors, and bridge internals.
package glasswing
