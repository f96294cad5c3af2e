package observability

import (
	"context"
	"runtime"
	"runtime/debug"
	"sync"
	"time"
)

// PerformanceMonitor tracks system and application performance metrics
type PerformanceMonitor struct {
	logger   *Logger
	metrics  *PerformanceMetrics
	config   *PerformanceConfig
	stopChan chan struct{}
	mu       sync.RWMutex
}

// PerformanceMetrics contains performance data for one solver process.
// ReactorLag/SlowRounds are tracked per chain, since a multi-chain solver
// process runs one reactor per configured chain and a stalled RPC on one
// chain shouldn't be masked by healthy rounds on another.
type PerformanceMetrics struct {
	// System metrics
	CPUUsage       float64
	MemoryUsage    int64
	GoroutineCount int
	GCStats        debug.GCStats

	// Round metrics (reactor.RunRound, aggregated across chains)
	RoundCount    int64
	RoundDuration time.Duration
	PairErrorRate float64
	PairsPerSec   float64

	// Reactor lag: time since each chain's last completed round, and how
	// many RecordReactorLag samples since that round exceeded
	// ReactorLagThreshold.
	ReactorLag       map[string]time.Duration
	ReactorSlowCount map[string]int64

	// Route cache metrics (internal/router.Facade's Redis-backed cache)
	CacheHitRate   float64
	CacheSize      int64
	CacheEvictions int64

	// Custom metrics
	CustomMetrics map[string]interface{}

	// Timestamps
	LastUpdated time.Time
	mu          sync.RWMutex
}

// PerformanceConfig contains monitoring configuration
type PerformanceConfig struct {
	CollectionInterval time.Duration
	RetentionPeriod    time.Duration
	AlertThresholds    *AlertThresholds
	EnableProfiling    bool
	EnableTracing      bool
}

// AlertThresholds defines performance alert thresholds
type AlertThresholds struct {
	CPUUsageThreshold      float64
	MemoryUsageThreshold   int64
	RoundDurationThreshold time.Duration
	PairErrorRateThreshold float64
	GoroutineThreshold     int
	ReactorLagThreshold    time.Duration // a chain idle longer than this is flagged degraded
}

// RoundMetrics tracks one reactor.RunRound's outcome for one chain.
type RoundMetrics struct {
	ChainID       string
	PairsTotal    int
	Opportunities int
	Errors        int
	Duration      time.Duration
	Timestamp     time.Time
}

// NewPerformanceMonitor creates a new performance monitor
func NewPerformanceMonitor(logger *Logger) *PerformanceMonitor {
	config := &PerformanceConfig{
		CollectionInterval: 30 * time.Second,
		RetentionPeriod:    24 * time.Hour,
		AlertThresholds: &AlertThresholds{
			CPUUsageThreshold:      80.0,
			MemoryUsageThreshold:   1024 * 1024 * 1024, // 1GB
			RoundDurationThreshold: 20 * time.Second,
			PairErrorRateThreshold: 5.0,
			GoroutineThreshold:     10000,
			ReactorLagThreshold:    2 * time.Minute,
		},
		EnableProfiling: true,
		EnableTracing:   true,
	}

	pm := &PerformanceMonitor{
		logger: logger,
		metrics: &PerformanceMetrics{
			CustomMetrics:    make(map[string]interface{}),
			ReactorLag:       make(map[string]time.Duration),
			ReactorSlowCount: make(map[string]int64),
		},
		config:   config,
		stopChan: make(chan struct{}),
	}

	// Start monitoring
	go pm.startMonitoring()

	return pm
}

// startMonitoring begins performance data collection
func (pm *PerformanceMonitor) startMonitoring() {
	ticker := time.NewTicker(pm.config.CollectionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pm.collectMetrics()
		case <-pm.stopChan:
			return
		}
	}
}

// collectMetrics gathers current performance metrics
func (pm *PerformanceMonitor) collectMetrics() {
	ctx := context.Background()

	pm.metrics.mu.Lock()
	defer pm.metrics.mu.Unlock()

	// Collect system metrics
	pm.collectSystemMetrics()

	// Update timestamp
	pm.metrics.LastUpdated = time.Now()

	// Check thresholds and alert if necessary
	pm.checkAlertThresholds(ctx)

	// Log metrics periodically
	pm.logger.Debug(ctx, "Performance metrics collected", map[string]interface{}{
		"cpu_usage":       pm.metrics.CPUUsage,
		"memory_usage":    pm.metrics.MemoryUsage,
		"goroutine_count": pm.metrics.GoroutineCount,
		"round_duration":  pm.metrics.RoundDuration,
		"pair_error_rate": pm.metrics.PairErrorRate,
		"cache_hit_rate":  pm.metrics.CacheHitRate,
	})
}

// collectSystemMetrics gathers system-level performance data
func (pm *PerformanceMonitor) collectSystemMetrics() {
	// Memory statistics
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	pm.metrics.MemoryUsage = int64(memStats.Alloc)

	// Goroutine count
	pm.metrics.GoroutineCount = runtime.NumGoroutine()

	// GC statistics
	debug.ReadGCStats(&pm.metrics.GCStats)

	// CPU usage would require additional system calls or libraries
	// For now, we'll use a placeholder
	pm.metrics.CPUUsage = pm.estimateCPUUsage()
}

// estimateCPUUsage provides a simple CPU usage estimation
func (pm *PerformanceMonitor) estimateCPUUsage() float64 {
	// This is a simplified estimation
	// In production, you'd use proper CPU monitoring
	goroutines := float64(pm.metrics.GoroutineCount)
	if goroutines > 1000 {
		return 50.0 + (goroutines-1000)/100
	}
	return goroutines / 20
}

// RecordRound records one reactor.RunRound's outcome, called by
// cmd/solver.main after each chain's round loop tick.
func (pm *PerformanceMonitor) RecordRound(metrics *RoundMetrics) {
	pm.metrics.mu.Lock()
	defer pm.metrics.mu.Unlock()

	pm.metrics.RoundCount++

	// Update round duration (exponential moving average)
	if pm.metrics.RoundDuration == 0 {
		pm.metrics.RoundDuration = metrics.Duration
	} else {
		alpha := 0.1
		pm.metrics.RoundDuration = time.Duration(
			float64(pm.metrics.RoundDuration)*(1-alpha) + float64(metrics.Duration)*alpha,
		)
	}

	// Update pair error rate as an exponential moving average of this
	// round's fraction of pairs that errored.
	alpha := 0.1
	if metrics.PairsTotal > 0 && metrics.Errors > 0 {
		roundRate := float64(metrics.Errors) / float64(metrics.PairsTotal)
		pm.metrics.PairErrorRate = pm.metrics.PairErrorRate*(1-alpha) + roundRate*alpha
	} else {
		pm.metrics.PairErrorRate = pm.metrics.PairErrorRate * (1 - alpha)
	}

	pm.updatePairsPerSec(metrics.PairsTotal)
	pm.metrics.ReactorLag[metrics.ChainID] = 0 // a completed round resets this chain's lag to zero
	pm.metrics.ReactorSlowCount[metrics.ChainID] = 0
}

// updatePairsPerSec calculates pairs processed per second across rounds.
func (pm *PerformanceMonitor) updatePairsPerSec(pairsThisRound int) {
	elapsed := time.Since(pm.metrics.LastUpdated)
	if elapsed > 0 {
		pm.metrics.PairsPerSec = float64(pairsThisRound) / elapsed.Seconds()
	}
}

// RecordReactorLag records how long it has been since chainID's reactor
// last completed a round, incrementing that chain's slow-round count when
// lag exceeds the configured threshold -- the per-chain reactor-lag signal
// a stalled RPC or a wedged round surfaces through.
func (pm *PerformanceMonitor) RecordReactorLag(chainID string, lag time.Duration) {
	pm.metrics.mu.Lock()
	defer pm.metrics.mu.Unlock()

	pm.metrics.ReactorLag[chainID] = lag
	if lag > pm.config.AlertThresholds.ReactorLagThreshold {
		pm.metrics.ReactorSlowCount[chainID]++
	}
}

// RecordCacheMetrics records cache performance metrics
func (pm *PerformanceMonitor) RecordCacheMetrics(hitRate float64, size int64, evictions int64) {
	pm.metrics.mu.Lock()
	defer pm.metrics.mu.Unlock()

	pm.metrics.CacheHitRate = hitRate
	pm.metrics.CacheSize = size
	pm.metrics.CacheEvictions = evictions
}

// SetCustomMetric sets a custom performance metric
func (pm *PerformanceMonitor) SetCustomMetric(key string, value interface{}) {
	pm.metrics.mu.Lock()
	defer pm.metrics.mu.Unlock()

	pm.metrics.CustomMetrics[key] = value
}

// checkAlertThresholds checks if any metrics exceed alert thresholds
func (pm *PerformanceMonitor) checkAlertThresholds(ctx context.Context) {
	thresholds := pm.config.AlertThresholds

	// Check CPU usage
	if pm.metrics.CPUUsage > thresholds.CPUUsageThreshold {
		pm.logger.Warn(ctx, "High CPU usage detected", map[string]interface{}{
			"current_usage": pm.metrics.CPUUsage,
			"threshold":     thresholds.CPUUsageThreshold,
		})
	}

	// Check memory usage
	if pm.metrics.MemoryUsage > thresholds.MemoryUsageThreshold {
		pm.logger.Warn(ctx, "High memory usage detected", map[string]interface{}{
			"current_usage": pm.metrics.MemoryUsage,
			"threshold":     thresholds.MemoryUsageThreshold,
		})
	}

	// Check round duration
	if pm.metrics.RoundDuration > thresholds.RoundDurationThreshold {
		pm.logger.Warn(ctx, "Slow reactor round detected", map[string]interface{}{
			"current_duration": pm.metrics.RoundDuration,
			"threshold":        thresholds.RoundDurationThreshold,
		})
	}

	// Check pair error rate
	if pm.metrics.PairErrorRate > thresholds.PairErrorRateThreshold {
		pm.logger.Warn(ctx, "High pair error rate detected", map[string]interface{}{
			"current_rate": pm.metrics.PairErrorRate,
			"threshold":    thresholds.PairErrorRateThreshold,
		})
	}

	// Check goroutine count
	if pm.metrics.GoroutineCount > thresholds.GoroutineThreshold {
		pm.logger.Warn(ctx, "High goroutine count detected", map[string]interface{}{
			"current_count": pm.metrics.GoroutineCount,
			"threshold":     thresholds.GoroutineThreshold,
		})
	}

	// Check per-chain reactor lag
	for chainID, lag := range pm.metrics.ReactorLag {
		if lag > thresholds.ReactorLagThreshold {
			pm.logger.Warn(ctx, "Chain reactor lagging", map[string]interface{}{
				"chain_id":  chainID,
				"lag":       lag,
				"threshold": thresholds.ReactorLagThreshold,
			})
		}
	}
}

// GetMetrics returns current performance metrics
func (pm *PerformanceMonitor) GetMetrics() *PerformanceMetrics {
	pm.metrics.mu.RLock()
	defer pm.metrics.mu.RUnlock()

	// Create a copy without the mutex to avoid race conditions
	customMetrics := make(map[string]interface{})
	for k, v := range pm.metrics.CustomMetrics {
		customMetrics[k] = v
	}
	reactorLag := make(map[string]time.Duration, len(pm.metrics.ReactorLag))
	for k, v := range pm.metrics.ReactorLag {
		reactorLag[k] = v
	}
	reactorSlowCount := make(map[string]int64, len(pm.metrics.ReactorSlowCount))
	for k, v := range pm.metrics.ReactorSlowCount {
		reactorSlowCount[k] = v
	}

	metrics := &PerformanceMetrics{
		CPUUsage:         pm.metrics.CPUUsage,
		MemoryUsage:      pm.metrics.MemoryUsage,
		GoroutineCount:   pm.metrics.GoroutineCount,
		GCStats:          pm.metrics.GCStats,
		RoundCount:       pm.metrics.RoundCount,
		RoundDuration:    pm.metrics.RoundDuration,
		PairErrorRate:    pm.metrics.PairErrorRate,
		PairsPerSec:      pm.metrics.PairsPerSec,
		ReactorLag:       reactorLag,
		ReactorSlowCount: reactorSlowCount,
		CacheHitRate:     pm.metrics.CacheHitRate,
		CacheSize:        pm.metrics.CacheSize,
		CacheEvictions:   pm.metrics.CacheEvictions,
		CustomMetrics:    customMetrics,
		LastUpdated:      pm.metrics.LastUpdated,
	}

	return metrics
}

// Stop stops the performance monitoring
func (pm *PerformanceMonitor) Stop() {
	close(pm.stopChan)
}

// GetHealthStatus returns overall solver health status: system resource
// pressure plus the round-health signals that matter for an arbitrage
// reactor -- round duration, pair error rate, and per-chain reactor lag.
func (pm *PerformanceMonitor) GetHealthStatus() map[string]interface{} {
	metrics := pm.GetMetrics()
	thresholds := pm.config.AlertThresholds

	status := "healthy"
	issues := []string{}

	if metrics.CPUUsage > thresholds.CPUUsageThreshold {
		status = "warning"
		issues = append(issues, "high_cpu_usage")
	}

	if metrics.MemoryUsage > thresholds.MemoryUsageThreshold {
		status = "warning"
		issues = append(issues, "high_memory_usage")
	}

	if metrics.RoundDuration > thresholds.RoundDurationThreshold {
		status = "warning"
		issues = append(issues, "slow_reactor_round")
	}

	if metrics.PairErrorRate > thresholds.PairErrorRateThreshold {
		status = "critical"
		issues = append(issues, "high_pair_error_rate")
	}

	for chainID, lag := range metrics.ReactorLag {
		if lag > thresholds.ReactorLagThreshold {
			status = "critical"
			issues = append(issues, "reactor_lag:"+chainID)
		}
	}

	return map[string]interface{}{
		"status":             status,
		"issues":             issues,
		"cpu_usage":          metrics.CPUUsage,
		"memory_usage":       metrics.MemoryUsage,
		"goroutine_count":    metrics.GoroutineCount,
		"round_duration":     metrics.RoundDuration,
		"pair_error_rate":    metrics.PairErrorRate,
		"pairs_per_sec":      metrics.PairsPerSec,
		"reactor_lag":        metrics.ReactorLag,
		"reactor_slow_count": metrics.ReactorSlowCount,
		"cache_hit_rate":     metrics.CacheHitRate,
		"last_updated":       metrics.LastUpdated,
	}
}
