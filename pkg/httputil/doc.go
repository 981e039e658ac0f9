// Package httputil holds the JSON request and response helpers and the
// middleware shared by the HTTP servers.
//
// Handlers decode bodies with ParseJSONOrError, which writes the 400
// itself:
//
//	var req cart.Request
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return
//	}
//
// Middleware is composed with Chain, outermost first:
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware,
//		httputil.MaxBytesMiddleware(1<<20),
//	)(router)
package httputil
