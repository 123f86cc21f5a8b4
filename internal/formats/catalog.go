package formats

import (
	"path/filepath"
	"sort"
	"strings"
)

// Category is the broad content class of a file.
type Category string

const (
	// CategoryImage covers raster and vector images.
	CategoryImage Category = "image"
	// CategoryAudio covers audio-only media.
	CategoryAudio Category = "audio"
	// CategoryVideo covers video containers.
	CategoryVideo Category = "video"
	// CategoryDocument covers text and office documents.
	CategoryDocument Category = "document"
	// CategoryUnknown is returned when nothing identifies the file.
	CategoryUnknown Category = "unknown"
)

// ImageExtensions lists the image formats the catalog recognizes.
var ImageExtensions = map[string]bool{
	"png":  true,
	"jpg":  true,
	"jpeg": true,
	"webp": true,
	"gif":  true,
	"bmp":  true,
	"tiff": true,
	"tif":  true,
	"svg":  true,
}

// AudioExtensions lists the audio formats the catalog recognizes.
var AudioExtensions = map[string]bool{
	"mp3":  true,
	"wav":  true,
	"m4a":  true,
	"ogg":  true,
	"flac": true,
	"aac":  true,
	"opus": true,
}

// VideoExtensions lists the video formats the catalog recognizes.
var VideoExtensions = map[string]bool{
	"mp4":  true,
	"webm": true,
	"mov":  true,
	"mkv":  true,
	"avi":  true,
	"m4v":  true,
}

// DocumentExtensions lists the document formats the catalog recognizes.
var DocumentExtensions = map[string]bool{
	"pdf":      true,
	"docx":     true,
	"txt":      true,
	"md":       true,
	"markdown": true,
	"html":     true,
	"htm":      true,
	"rtf":      true,
	"odt":      true,
}

// MimeTypes maps extensions to their MIME types.
var MimeTypes = map[string]string{
	// Images
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"webp": "image/webp",
	"gif":  "image/gif",
	"bmp":  "image/bmp",
	"tiff": "image/tiff",
	"tif":  "image/tiff",
	"svg":  "image/svg+xml",

	// Audio
	"mp3":  "audio/mpeg",
	"wav":  "audio/wav",
	"m4a":  "audio/mp4",
	"ogg":  "audio/ogg",
	"flac": "audio/flac",
	"aac":  "audio/aac",
	"opus": "audio/opus",

	// Video
	"mp4":  "video/mp4",
	"webm": "video/webm",
	"mov":  "video/quicktime",
	"mkv":  "video/x-matroska",
	"avi":  "video/x-msvideo",
	"m4v":  "video/x-m4v",

	// Documents
	"pdf":      "application/pdf",
	"docx":     "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"txt":      "text/plain",
	"md":       "text/markdown",
	"markdown": "text/markdown",
	"html":     "text/html",
	"htm":      "text/html",
	"rtf":      "application/rtf",
	"odt":      "application/vnd.oasis.opendocument.text",
}

// equivalenceGroups lists spellings that name the same format.
var equivalenceGroups = [][]string{
	{"jpg", "jpeg"},
	{"tif", "tiff"},
	{"mp4", "m4v"},
	{"htm", "html"},
	{"md", "markdown"},
}

var canonical = func() map[string]string {
	m := make(map[string]string)
	for _, group := range equivalenceGroups {
		for _, ext := range group {
			m[ext] = group[0]
		}
	}
	return m
}()

var audioTargets = []string{"mp3", "wav", "m4a", "ogg", "flac", "aac", "opus"}

// targets are the output formats offered per source category.
var targets = map[Category][]string{
	CategoryImage:    {"png", "jpg", "webp", "gif", "bmp", "tiff", "pdf"},
	CategoryAudio:    audioTargets,
	CategoryVideo:    append([]string{"mp4", "webm", "mov", "mkv", "avi"}, audioTargets...),
	CategoryDocument: {"pdf", "txt", "md", "html", "docx", "rtf", "odt"},
}

// Normalize lowercases an extension and strips a leading dot.
func Normalize(ext string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
}

// Ext returns the normalized extension of a file name, or "" if it has none.
func Ext(name string) string {
	return Normalize(filepath.Ext(name))
}

// Base returns the file name without directories or extension.
func Base(name string) string {
	base := filepath.Base(name)
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Canonical returns the preferred spelling of ext (jpeg becomes jpg).
func Canonical(ext string) string {
	ext = Normalize(ext)
	if c, ok := canonical[ext]; ok {
		return c
	}
	return ext
}

// Equivalent reports whether a and b name the same format, either literally
// or through an equivalence group such as jpg/jpeg.
func Equivalent(a, b string) bool {
	a, b = Normalize(a), Normalize(b)
	if a == "" || b == "" {
		return false
	}
	return Canonical(a) == Canonical(b)
}

// CategoryOf returns the category an extension belongs to.
func CategoryOf(ext string) Category {
	ext = Normalize(ext)
	switch {
	case ImageExtensions[ext]:
		return CategoryImage
	case AudioExtensions[ext]:
		return CategoryAudio
	case VideoExtensions[ext]:
		return CategoryVideo
	case DocumentExtensions[ext]:
		return CategoryDocument
	}
	return CategoryUnknown
}

// MimeType returns the MIME type for an extension.
// Returns "application/octet-stream" if the extension is not recognized.
func MimeType(ext string) string {
	if mime, ok := MimeTypes[Normalize(ext)]; ok {
		return mime
	}
	return "application/octet-stream"
}

// Targets returns the output formats offered for a category. The returned
// slice is a copy.
func Targets(c Category) []string {
	return append([]string(nil), targets[c]...)
}

// IsKnown reports whether the catalog recognizes ext.
func IsKnown(ext string) bool {
	return CategoryOf(ext) != CategoryUnknown
}

// Extensions returns the sorted extensions of a category.
func Extensions(c Category) []string {
	var set map[string]bool
	switch c {
	case CategoryImage:
		set = ImageExtensions
	case CategoryAudio:
		set = AudioExtensions
	case CategoryVideo:
		set = VideoExtensions
	case CategoryDocument:
		set = DocumentExtensions
	default:
		return nil
	}
	out := make([]string, 0, len(set))
	for ext := range set {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}
