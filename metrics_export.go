package driftsync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/golang/snappy"
	"github.com/prometheus/prometheus/prompb"
)

// ExportConfig configures the Prometheus remote-write push of sync
// metrics.
type ExportConfig struct {
	// Enabled turns on periodic metric pushes
	Enabled bool `json:"enabled"`
	// Endpoint is the remote-write URL, e.g. "http://prom:9090/api/v1/write"
	Endpoint string `json:"endpoint"`
	// Interval between pushes
	Interval time.Duration `json:"interval"`
	// Timeout bounds a single push
	Timeout time.Duration `json:"timeout"`
	// Labels are attached to every exported series (e.g. instance, user)
	Labels map[string]string `json:"labels"`
}

// DefaultExportConfig returns default export configuration.
func DefaultExportConfig() ExportConfig {
	return ExportConfig{
		Enabled:  false,
		Interval: time.Minute,
		Timeout:  10 * time.Second,
	}
}

// MetricsExporter periodically pushes the manager's metrics snapshot
// to a Prometheus remote-write endpoint.
type MetricsExporter struct {
	config ExportConfig
	source func() SyncMetrics
	client *http.Client
	sched  *syncScheduler
}

// NewMetricsExporter creates an exporter reading snapshots from source.
func NewMetricsExporter(cfg ExportConfig, source func() SyncMetrics) (*MetricsExporter, error) {
	if cfg.Enabled && cfg.Endpoint == "" {
		return nil, errors.New("metrics export enabled but no endpoint configured")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if source == nil {
		return nil, errors.New("metrics source is required")
	}

	e := &MetricsExporter{
		config: cfg,
		source: source,
		client: &http.Client{Timeout: cfg.Timeout},
	}
	e.sched = newSyncScheduler(cfg.Interval, e.pushScheduled)
	return e, nil
}

// Start begins periodic pushes. No-op when export is disabled.
func (e *MetricsExporter) Start() {
	if !e.config.Enabled {
		return
	}
	e.sched.Start()
}

// Stop halts periodic pushes, waiting for an in-flight push.
func (e *MetricsExporter) Stop() {
	e.sched.Stop()
}

func (e *MetricsExporter) pushScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), e.config.Timeout)
	defer cancel()

	if err := e.Push(ctx); err != nil {
		slog.Warn("metrics push failed", "err", err)
	}
}

// Push sends one metrics snapshot to the remote-write endpoint.
func (e *MetricsExporter) Push(ctx context.Context) error {
	m := e.source()
	ts := time.Now().UnixMilli()

	samples := []struct {
		name  string
		value float64
	}{
		{"driftsync_synced_total", float64(m.TotalSynced)},
		{"driftsync_upload_success_total", float64(m.UploadSuccess)},
		{"driftsync_download_success_total", float64(m.DownloadSuccess)},
		{"driftsync_conflicts_resolved_total", float64(m.ConflictsResolved)},
		{"driftsync_conflicts_pending", float64(m.ConflictsPending)},
		{"driftsync_error_rate", m.ErrorRate},
		{"driftsync_sync_latency_seconds", m.AverageLatency.Seconds()},
	}
	if !m.LastSuccessfulSync.IsZero() {
		samples = append(samples, struct {
			name  string
			value float64
		}{"driftsync_last_success_timestamp_seconds", float64(m.LastSuccessfulSync.Unix())})
	}

	req := prompb.WriteRequest{
		Timeseries: make([]prompb.TimeSeries, 0, len(samples)),
	}
	for _, s := range samples {
		req.Timeseries = append(req.Timeseries, prompb.TimeSeries{
			Labels:  e.buildLabels(s.name),
			Samples: []prompb.Sample{{Value: s.value, Timestamp: ts}},
		})
	}

	data, err := req.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal write request: %w", err)
	}
	compressed := snappy.Encode(nil, data)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.Endpoint, bytes.NewReader(compressed))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-protobuf")
	httpReq.Header.Set("Content-Encoding", "snappy")
	httpReq.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("remote write rejected: status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// buildLabels returns the series labels sorted by name, as required
// by the remote-write protocol.
func (e *MetricsExporter) buildLabels(name string) []prompb.Label {
	labels := make([]prompb.Label, 0, len(e.config.Labels)+1)
	labels = append(labels, prompb.Label{Name: "__name__", Value: name})
	for k, v := range e.config.Labels {
		labels = append(labels, prompb.Label{Name: k, Value: v})
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i].Name < labels[j].Name })
	return labels
}
