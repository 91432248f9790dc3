// Package server provides HTTP routing, middleware, and the JSON handlers of the stationsync daemon.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] internally with method filtering.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
//
// # Station Handlers
//
// [StationHandler] exposes the collection and the download manager:
//
//	GET  /stations                  → current collection snapshot
//	POST /playlists                 → enqueue playlist downloads ({"urls": [...]})
//	POST /images/refresh            → enqueue image downloads for every station
//	POST /downloads/{id}/complete   → deliver a completion event from the host transport
//	GET  /downloads                 → active download IDs and recent download history
//
// Errors are reported as {"error": "..."} with a status derived from the wrapped sentinel error.
package server
