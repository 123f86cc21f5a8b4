package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	categories := []string{"image", "audio", "video", "document", "unknown"}
	strategies := []string{"image", "image_to_pdf", "transcode", "audio_extract", "document", "remote", "passthrough", "none"}

	for _, c := range categories {
		for _, s := range strategies {
			ConversionsTotal.WithLabelValues(c, s, "success")
			ConversionsTotal.WithLabelValues(c, s, "error")
			ConversionDuration.WithLabelValues(c, s)
		}
	}

	for _, state := range []string{"validating", "classifying", "dispatching", "local_processing", "remote_fallback", "succeeded", "failed"} {
		ConversionStateTransitions.WithLabelValues(state)
	}

	for _, kind := range []string{"preset", "remote", "passthrough"} {
		ConversionFallbacksTotal.WithLabelValues(kind)
	}

	for _, status := range []string{"success", "error"} {
		EngineLoadsTotal.WithLabelValues(status)
		EngineRunsTotal.WithLabelValues(status)
	}

	for _, endpoint := range []string{"/api/convert-doc", "/api/convert-media"} {
		RemoteRequestDuration.WithLabelValues(endpoint)
		for _, status := range []string{"success", "error", "timeout"} {
			RemoteRequestsTotal.WithLabelValues(endpoint, status)
		}
	}

	for _, op := range []string{"write", "read", "remove"} {
		FilesystemStaleErrors.WithLabelValues(op)
		FilesystemRetryAttempts.WithLabelValues(op)
		FilesystemRetryFailures.WithLabelValues(op)
	}

	WorkerSlots.WithLabelValues("in_use")
	WorkerSlots.WithLabelValues("total")
}
