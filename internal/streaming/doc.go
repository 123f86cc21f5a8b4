// Package streaming delivers converted files to HTTP clients.
//
// The server runs without a global write timeout so large video outputs can
// reach slow clients. [Send] instead applies a rolling per-chunk deadline
// through http.ResponseController and stops early when the request context
// ends, returning [ErrClientGone] or [ErrWriteTimeout].
package streaming
