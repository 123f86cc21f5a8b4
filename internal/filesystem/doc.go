/*
Package filesystem wraps the file operations of the transcoding engine's
work directory with retry logic for NFS stale file handle errors.

WORK_DIR may live on a network volume. When it does, a write, read or
unlink can fail with ESTALE while the server revalidates handles; these
operations retry with exponential backoff:
  - MaxRetries: 3 attempts
  - InitialBackoff: 50ms
  - MaxBackoff: 500ms

Only ESTALE triggers a retry. All other errors are returned immediately.

	data, err := filesystem.ReadFile(path, filesystem.DefaultRetryConfig())
*/
package filesystem
