package handlers

import (
	"net/http"

	"filetool/internal/startup"
)

// GetVersion returns the application version and build information
func (h *Handlers) GetVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSONStatus(w, http.StatusOK, startup.GetBuildInfo())
}
