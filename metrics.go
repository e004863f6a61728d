package driftsync

import (
	"sync"
	"time"
)

// SyncMetrics is a point-in-time snapshot of sync health counters.
// Metrics start at zero on manager construction and are never persisted;
// they are rebuilt every session.
type SyncMetrics struct {
	TotalSynced        int64         `json:"total_synced"`
	UploadSuccess      int64         `json:"upload_success"`
	DownloadSuccess    int64         `json:"download_success"`
	ConflictsResolved  int64         `json:"conflicts_resolved"`
	ConflictsPending   int64         `json:"conflicts_pending"`
	AverageLatency     time.Duration `json:"average_latency"`
	ErrorRate          float64       `json:"error_rate"`
	LastSuccessfulSync time.Time     `json:"last_successful_sync"`
}

// metricsRecorder accumulates counters across sync passes.
type metricsRecorder struct {
	mu sync.Mutex

	totalSynced       int64
	uploadSuccess     int64
	downloadSuccess   int64
	conflictsResolved int64

	attempts int64
	failures int64

	passCount    int64
	totalLatency time.Duration
	lastSuccess  time.Time
}

func newMetricsRecorder() *metricsRecorder {
	return &metricsRecorder{}
}

// recordAttempt counts one repository operation and whether it failed.
func (r *metricsRecorder) recordAttempt(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts++
	if err != nil {
		r.failures++
	}
}

// recordFailure counts a failure that had no matching attempt, such as a
// dropped item after retry exhaustion.
func (r *metricsRecorder) recordFailure() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures++
	if r.attempts < r.failures {
		r.attempts = r.failures
	}
}

func (r *metricsRecorder) recordUploadSuccess() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uploadSuccess++
	r.totalSynced++
}

func (r *metricsRecorder) recordDownloadSuccess() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.downloadSuccess++
	r.totalSynced++
}

func (r *metricsRecorder) recordConflictResolved() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conflictsResolved++
}

// recordPass folds one completed sync pass into the latency average and,
// on success, advances the last-successful-sync marker.
func (r *metricsRecorder) recordPass(duration time.Duration, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.passCount++
	r.totalLatency += duration
	if success {
		r.lastSuccess = time.Now()
	}
}

// snapshot returns the current metrics. The pending-conflict count is
// read from the conflicts queue at call time rather than tracked as a
// counter, so it cannot drift from the queue contents.
func (r *metricsRecorder) snapshot(pendingConflicts int64) SyncMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := SyncMetrics{
		TotalSynced:        r.totalSynced,
		UploadSuccess:      r.uploadSuccess,
		DownloadSuccess:    r.downloadSuccess,
		ConflictsResolved:  r.conflictsResolved,
		ConflictsPending:   pendingConflicts,
		LastSuccessfulSync: r.lastSuccess,
	}
	if r.attempts > 0 {
		m.ErrorRate = float64(r.failures) / float64(r.attempts)
	}
	if r.passCount > 0 {
		m.AverageLatency = r.totalLatency / time.Duration(r.passCount)
	}
	return m
}
