// Package media converts raster images between formats.
//
// Decoding uses the Go decoders (png, jpeg, gif, bmp, tiff, webp) and falls
// back to libvips for SVG, HEIC and AVIF. Encoding uses imaging for png,
// jpeg, gif, bmp and tiff, and libvips for WebP. Images are drawn at their
// natural size unless a dimension hint or a compress-mode cap asks for a
// downscale; they are never upscaled.
//
// [Edits] adds brightness, a colour overlay and a text caption before
// encoding.
package media
