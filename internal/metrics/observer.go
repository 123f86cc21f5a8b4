package metrics

// ConversionObserver records dispatcher events into the Prometheus metrics
// declared in metrics.go. It satisfies convert.Observer structurally, which
// keeps the convert package free of a Prometheus import.
type ConversionObserver struct{}

// NewConversionObserver creates an observer that records conversion metrics.
func NewConversionObserver() *ConversionObserver {
	return &ConversionObserver{}
}

// ObserveState counts a request entering state.
func (o *ConversionObserver) ObserveState(state string) {
	ConversionStateTransitions.WithLabelValues(state).Inc()
}

// ObserveStart marks a conversion as in progress.
func (o *ConversionObserver) ObserveStart() {
	ConversionsInProgress.Inc()
}

// ObserveConversion records the outcome of a finished conversion.
func (o *ConversionObserver) ObserveConversion(category, strategy, status string, durationSeconds float64) {
	ConversionsInProgress.Dec()
	ConversionsTotal.WithLabelValues(category, strategy, status).Inc()
	ConversionDuration.WithLabelValues(category, strategy).Observe(durationSeconds)
}

// ObserveFallback counts a fallback path being taken.
func (o *ConversionObserver) ObserveFallback(kind string) {
	ConversionFallbacksTotal.WithLabelValues(kind).Inc()
}
