package formats

import (
	"mime"
	"sort"
	"strings"
)

// Classify determines the category of a file from its declared MIME type and
// its name. A MIME type starting with image/, video/ or audio/ wins; otherwise
// the extension decides. It never fails: unrecognized input is CategoryUnknown.
func Classify(name, contentType string) Category {
	if c := categoryFromMIME(contentType); c != CategoryUnknown {
		return c
	}
	return CategoryOf(Ext(name))
}

func categoryFromMIME(contentType string) Category {
	if contentType == "" {
		return CategoryUnknown
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	switch {
	case strings.HasPrefix(mediaType, "image/"):
		return CategoryImage
	case strings.HasPrefix(mediaType, "video/"):
		return CategoryVideo
	case strings.HasPrefix(mediaType, "audio/"):
		return CategoryAudio
	}
	return CategoryUnknown
}

// ExtensionForMIME returns the catalog extension for a MIME type, or "" if
// none matches. It is used for inputs whose names carry no extension.
func ExtensionForMIME(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	var matches []string
	for ext, mt := range MimeTypes {
		if mt == mediaType {
			matches = append(matches, ext)
		}
	}
	if len(matches) == 0 {
		return ""
	}
	sort.Strings(matches)
	return Canonical(matches[0])
}
