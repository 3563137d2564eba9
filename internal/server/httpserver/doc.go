// Package httpserver provides the HTTP/HTTPS server for authcore.
//
// It mounts the recipe endpoints of package handler on a stdlib ServeMux,
// twice each: at <base>/<path> for the default tenant and at
// <base>/<tenant>/<path>. /hello, /health and /metrics skip the API key
// and version checks.
//
// Middleware chain, outermost first: RequestID, Recover, Instrument.
package httpserver
