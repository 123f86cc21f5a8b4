package metrics

import (
	"time"

	"filetool/internal/logging"
)

// StatsProvider interface for collecting stats
type StatsProvider interface {
	GetStats() Stats
}

// Stats holds point-in-time values that are cheaper to sample than to track
// on every change.
type Stats struct {
	EngineQueueDepth   int
	EngineWorkDirBytes int64
	WorkersInUse       int
	WorkersTotal       int
}

// Collector periodically collects and updates metrics
type Collector struct {
	statsProvider StatsProvider
	interval      time.Duration
	stopChan      chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		interval:      interval,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection
func (c *Collector) Stop() {
	close(c.stopChan)
}

func (c *Collector) collectLoop() {
	// Collect immediately on start
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.statsProvider == nil {
		return
	}

	stats := c.statsProvider.GetStats()

	EngineQueueDepth.Set(float64(stats.EngineQueueDepth))
	EngineWorkDirBytes.Set(float64(stats.EngineWorkDirBytes))
	WorkerSlots.WithLabelValues("in_use").Set(float64(stats.WorkersInUse))
	WorkerSlots.WithLabelValues("total").Set(float64(stats.WorkersTotal))

	logging.Debug("Metrics collected: queue=%d, workdir=%dB, workers=%d/%d",
		stats.EngineQueueDepth, stats.EngineWorkDirBytes, stats.WorkersInUse, stats.WorkersTotal)
}
