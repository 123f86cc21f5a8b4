// Package transcoder provides audio and video transcoding using FFmpeg.
//
// It supports:
//   - A lazily loaded engine shared by every request ([Handle])
//   - Serialized runs with per-run working files that are always removed
//   - Progress reporting parsed from ffmpeg's -progress output
//   - Codec presets with a simplified fallback per target ([SelectPreset])
//
// The engine lifecycle is Uninitialized, Loading, then Ready or Failed.
// Concurrent first users share one load. A failed load is terminal until
// [Handle.Retry] is called.
//
// Transcoding requires ffmpeg, found in ./bin next to the executable or
// the working directory, on PATH, or at FFMPEG_PATH.
package transcoder
