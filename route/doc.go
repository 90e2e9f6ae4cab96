// Package route declares the relay's correlated REST routes.
//
// A Spec describes one route: the message kind it sends over the target
// client's socket, where each parameter may arrive (body, query string, or
// URL path), how values are coerced, and optional cross-field validation.
// The relay's router mounts a Spec at POST /api/{kind} and drives the whole
// round trip through one generic handler, so adding a route is a data
// change, not a new handler.
//
// # Evaluation Order
//
// Extract coerces every present parameter first, runs the ValidateParams
// hook second, and checks for missing required parameters last. All three
// reject with a *ValidationError before anything touches the network.
//
// # Built-in Routes
//
// Builtin returns the stock specs: roll, modify-actor, macro, actor-sheet,
// download, upload, and chat. Custom specs can be mounted alongside them.
package route
