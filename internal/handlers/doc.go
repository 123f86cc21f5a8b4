// Package handlers provides the HTTP API of the conversion service.
//
// It includes handlers for:
//   - Converting and compressing uploaded files (POST /api/convert)
//   - The format catalog (GET /api/formats)
//   - Transcoding engine state and retry (/api/engine)
//   - Health, liveness and readiness probes
//   - Version and build information
//
// Errors are returned as JSON {"error", "code"} where code is one of the
// dispatcher's error codes.
package handlers
