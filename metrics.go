package quizgate

import (
	"sync/atomic"
	"time"
)

// MetricID identifies a specific counter or histogram in the engine's
// metric set.
type MetricID uint16

const (
	// MetricLoginSuccess is an exported constant used by the metrics surface.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure is an exported constant used by the metrics surface.
	MetricLoginFailure
	// MetricLoginBlocked is an exported constant used by the metrics surface.
	MetricLoginBlocked
	// MetricCaptchaRequired is an exported constant used by the metrics surface.
	MetricCaptchaRequired
	// MetricTOTPRequired is an exported constant used by the metrics surface.
	MetricTOTPRequired
	// MetricTOTPSuccess is an exported constant used by the metrics surface.
	MetricTOTPSuccess
	// MetricTOTPFailure is an exported constant used by the metrics surface.
	MetricTOTPFailure
	// MetricBackupCodeUsed is an exported constant used by the metrics surface.
	MetricBackupCodeUsed
	// MetricBackupCodeFailed is an exported constant used by the metrics surface.
	MetricBackupCodeFailed
	// MetricBackupCodeRegenerated is an exported constant used by the metrics surface.
	MetricBackupCodeRegenerated
	// MetricTokenGenerated is an exported constant used by the metrics surface.
	MetricTokenGenerated
	// MetricTokenConsumed is an exported constant used by the metrics surface.
	MetricTokenConsumed
	// MetricTokenConsumeFailed is an exported constant used by the metrics surface.
	MetricTokenConsumeFailed
	// MetricTokenNotFound is an exported constant used by the metrics surface.
	MetricTokenNotFound
	// MetricTokenExpired is an exported constant used by the metrics surface.
	MetricTokenExpired
	// MetricTokenAlreadyUsed is an exported constant used by the metrics surface.
	MetricTokenAlreadyUsed
	// MetricTokenRevoked is an exported constant used by the metrics surface.
	MetricTokenRevoked
	// MetricRemoteSyncFailure is an exported constant used by the metrics surface.
	MetricRemoteSyncFailure
	// MetricSessionCreated is an exported constant used by the metrics surface.
	MetricSessionCreated
	// MetricSessionInvalidated is an exported constant used by the metrics surface.
	MetricSessionInvalidated
	// MetricLogout is an exported constant used by the metrics surface.
	MetricLogout
	// MetricLegacyEnvelopeOpened is an exported constant used by the metrics surface.
	MetricLegacyEnvelopeOpened
	// MetricIntegrityFailure is an exported constant used by the metrics surface.
	MetricIntegrityFailure
	// MetricValidateLatency is an exported constant used by the metrics surface.
	MetricValidateLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics stores engine counters in cache-line-padded slots incremented
// atomically, plus one fixed-bucket latency histogram for token validation.
// The write path is allocation free.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all metric values.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics creates a metric store per the given configuration. A disabled
// store accepts writes and discards them.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether the store records anything.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the validate latency histogram records.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to the counter. Unknown IDs and disabled stores are no-ops.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records one validate latency sample.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricValidateLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value reads one counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every metric value. A disabled store snapshots empty maps.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricValidateLatency].buckets[i])
		}
		s.Histograms[MetricValidateLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
