// Package server exposes the sync engine to UI clients over a WebSocket bridge.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering.
//
// # Bridge
//
// [Bridge] accepts WebSocket connections on /ws. Clients send [Request] messages naming
// an operation (get, refresh, stream), a resource kind and a scope. Each request is
// answered with a response message; refresh and stream also forward their live events.
// Every event carries the responseId of the operation it belongs to and clients must
// discard events whose responseId differs from the one they most recently started.
//
// When the portal session expires the bridge broadcasts a session-expired message so
// clients drop their working sets.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
