// Command filetool converts and compresses files from the command line,
// using the same conversion pipeline as the HTTP service.
//
// Usage:
//
//	filetool convert <file> --to <format> [flags]
//	filetool compress <file> [flags]
//	filetool formats
//	filetool version
//
// Commands:
//
//	convert   Change the format of a file. Images, audio, video and the
//	          text documents (txt, md, html, pdf) convert locally; office
//	          documents need a remote backend.
//
//	compress  Re-encode a file in its own format at a lower quality. When the
//	          result is not smaller the original is kept.
//
//	formats   List input extensions and output formats per category.
//
// Flags common to convert and compress:
//
//	-o, --output     Output path (default: next to the input)
//	-q, --quality    Quality 1-100
//	--width/--height Dimension hints for images and video
//	--dry-run        Print the chosen strategy without converting
//	-f, --force      Overwrite an existing output file
//	--backend        Remote backend URL (default: BACKEND_BASE_URL)
//	--no-remote      Never fall back to the remote backend
//
// Configuration is read from the same environment variables and files as
// the server (see package startup). A progress bar is drawn when stderr is
// a terminal.
package main
