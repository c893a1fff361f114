// Package middleware provides the HTTP middleware of the gateway API.
//
// The server applies them in this order, innermost first:
//  1. Timeout: bounds the request context
//  2. CORS: adds Cross-Origin Resource Sharing headers
//  3. RequestID: assigns or propagates X-Request-ID
//  4. Logging: logs each request with its status and latency
//  5. Recovery: turns handler panics into a 500 JSON error
//
// Chain composes them:
//
//	h := middleware.Chain(mux,
//		middleware.Timeout(10*time.Second),
//		middleware.CORS(cfg),
//		middleware.RequestID,
//		middleware.Logging(logger),
//		middleware.Recovery(logger),
//	)
package middleware

import "net/http"

// Middleware wraps a handler.
type Middleware func(http.Handler) http.Handler

// Chain applies mws to h so the first is innermost and the last runs first.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for _, mw := range mws {
		h = mw(h)
	}
	return h
}
