// Package remote talks to the conversion backend used when a file cannot be
// converted locally.
//
// Each call is a multipart POST with its own timeout: documents go to
// /api/convert-doc and media to /api/convert-media. A binary response in the
// expected content family is a success. A JSON response or a non-2xx status
// becomes a *RemoteError carrying the backend's {error} message.
package remote
