package handlers

import (
	"net/http"

	"filetool/internal/formats"
)

// CategoryFormats lists what a category accepts and produces.
type CategoryFormats struct {
	Category   string   `json:"category"`
	Extensions []string `json:"extensions"`
	Targets    []string `json:"targets"`
}

// FormatsResponse is the body of GET /api/formats.
type FormatsResponse struct {
	Categories       []CategoryFormats `json:"categories"`
	MaxFileSizeBytes int64             `json:"maxFileSizeBytes"`
	RemoteEnabled    bool              `json:"remoteEnabled"`
}

var catalogCategories = []formats.Category{
	formats.CategoryImage,
	formats.CategoryAudio,
	formats.CategoryVideo,
	formats.CategoryDocument,
}

// GetFormats returns the format catalog and upload limits.
func (h *Handlers) GetFormats(w http.ResponseWriter, _ *http.Request) {
	resp := FormatsResponse{
		MaxFileSizeBytes: h.dispatcher.Config().MaxFileSizeBytes,
		RemoteEnabled:    h.opts.RemoteEnabled,
	}
	for _, c := range catalogCategories {
		resp.Categories = append(resp.Categories, CategoryFormats{
			Category:   string(c),
			Extensions: formats.Extensions(c),
			Targets:    formats.Targets(c),
		})
	}

	w.Header().Set("Cache-Control", "public, max-age=300")
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, resp)
}
