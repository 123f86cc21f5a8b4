// Package logging provides a simple leveled logging interface for filetool.
//
// It supports the following log levels:
//   - DEBUG: Verbose debugging information (engine lifecycle, request states)
//   - INFO: General operational messages
//   - WARN: Warning conditions (fallbacks taken, remote failures)
//   - ERROR: Error conditions
//   - FATAL: Fatal errors that terminate the application
//
// The log level is configured via the LOG_LEVEL environment variable, or
// DEBUG=true as a shortcut. [SetLevel] overrides it at runtime.
package logging
