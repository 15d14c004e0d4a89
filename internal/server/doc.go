// Package server hosts the Fiber admin surface started by `mangafetch -serve`.
// It wires the request-ID middleware, the /-/status endpoint and a JSON
// not-found fallback; the cache endpoints live in the routes subpackage and
// are registered by the CLI against the process's single cache manager.
package server
