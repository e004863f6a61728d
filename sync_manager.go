package driftsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrSyncInProgress is returned when a sync pass is requested while
	// another pass is still running. Passes never overlap; callers can
	// simply try again after the running pass completes.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrManagerClosed is returned by operations on a closed manager.
	ErrManagerClosed = errors.New("sync manager is closed")

	// ErrConflictNotFound is returned by ResolveConflictManually when no
	// pending conflict has the given id.
	ErrConflictNotFound = errors.New("conflict not found")

	errUnsupportedPayload = errors.New("unsupported payload type")
)

// SyncResult summarizes one completed sync pass. It is delivered to
// subscribers after every pass, successful or not.
type SyncResult struct {
	StartedAt         time.Time     `json:"started_at"`
	Duration          time.Duration `json:"duration"`
	Uploaded          int           `json:"uploaded"`
	Dropped           int           `json:"dropped"`
	Downloaded        int           `json:"downloaded"`
	ConflictsResolved int           `json:"conflicts_resolved"`
	ConflictsQueued   int           `json:"conflicts_queued"`
	Err               error         `json:"-"`
}

// QueueStatus is a point-in-time snapshot of the manager's queues.
type QueueStatus struct {
	UploadPending    int  `json:"upload_pending"`
	DownloadPending  int  `json:"download_pending"`
	ConflictsPending int  `json:"conflicts_pending"`
	Syncing          bool `json:"syncing"`
	Online           bool `json:"online"`
}

// Option customizes a SyncManager.
type Option func(*SyncManager)

// WithNetworkMonitor supplies an externally owned connectivity monitor.
// The manager subscribes to its transitions but does not stop it on
// Close.
func WithNetworkMonitor(monitor *NetworkMonitor) Option {
	return func(m *SyncManager) {
		m.monitor = monitor
	}
}

// SyncManager orchestrates bidirectional synchronization for a single
// authenticated user session: it owns the upload, download, and conflict
// queues, runs periodic and on-demand sync passes against the remote
// repository, reconciles divergent entities through the conflict
// manager, and fans results out to subscribers.
//
// At most one sync pass runs at a time. Queued work survives offline
// periods; going offline pauses the periodic timer and coming back
// online resumes it without an immediate flush, so a reconnect never
// triggers a burst.
type SyncManager struct {
	config Config
	repo   Repository
	store  LocalStore

	resolver  *ConflictManager
	monitor   *NetworkMonitor
	scheduler *syncScheduler
	hub       *subscriberHub
	metrics   *metricsRecorder
	feed      *ChangeFeed
	exporter  *MetricsExporter

	uploads   *syncQueue
	downloads *syncQueue
	conflicts *conflictQueue

	isSyncing atomic.Bool
	closed    atomic.Bool

	mu          sync.Mutex
	paused      bool
	ownsMonitor bool

	// wgMu serializes background-pass launches against Close so a pass
	// can never start after teardown began. Kept separate from mu: a
	// launch may happen from inside a subscriber callback while mu is
	// held waiting for the pass to finish.
	wgMu sync.Mutex
	wg   sync.WaitGroup

	// lastSync is only touched inside a sync pass, which the isSyncing
	// guard serializes.
	lastSync time.Time
}

// New builds a sync manager for one user session and starts its
// background tasks: the periodic sync timer (when remote sync is
// enabled), the realtime change feed, and the metrics exporter (when
// configured). The caller owns repo and store and closes them after
// Close.
func New(cfg Config, repo Repository, store LocalStore, opts ...Option) (*SyncManager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if repo == nil {
		return nil, errors.New("repository is required")
	}
	if store == nil {
		return nil, errors.New("local store is required")
	}

	m := &SyncManager{
		config:    cfg,
		repo:      repo,
		store:     store,
		resolver:  NewConflictManager(cfg.Resolver),
		uploads:   newSyncQueue(),
		downloads: newSyncQueue(),
		conflicts: newConflictQueue(),
		hub:       newSubscriberHub(),
		metrics:   newMetricsRecorder(),
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.monitor == nil {
		m.monitor = NewNetworkMonitor(nil, 0)
		m.ownsMonitor = true
	}
	m.scheduler = newSyncScheduler(cfg.SyncInterval, m.scheduledSync)

	if cfg.Feed.Enabled {
		m.feed = NewChangeFeed(cfg.Feed, cfg.UserID, m.monitor, m.handleRemoteChange)
		if err := m.feed.Start(context.Background()); err != nil {
			return nil, fmt.Errorf("failed to start change feed: %w", err)
		}
	}
	if cfg.Export.Enabled {
		exporter, err := NewMetricsExporter(cfg.Export, m.GetMetrics)
		if err != nil {
			if m.feed != nil {
				m.feed.Stop()
			}
			return nil, fmt.Errorf("failed to build metrics exporter: %w", err)
		}
		m.exporter = exporter
		m.exporter.Start()
	}

	m.monitor.OnChange(m.handleConnectivity)
	if m.ownsMonitor {
		m.monitor.Start()
	}
	if cfg.RemoteSyncEnabled {
		m.scheduler.Start()
	}

	slog.Info("sync manager started",
		"user_id", cfg.UserID,
		"interval", cfg.SyncInterval,
		"remote", cfg.RemoteSyncEnabled,
		"conflict_mode", cfg.ConflictMode)
	return m, nil
}

// QueueForUpload enqueues a local change for upload. Items are
// deduplicated by (id, type): queueing an entity already waiting
// replaces the stale copy. High-priority items trigger an immediate
// background pass when the manager is online.
//
// QueueForUpload is fire-and-forget; transport failures surface later
// through metrics and subscriber notifications, never here.
func (m *SyncManager) QueueForUpload(id string, entityType EntityType, payload Entity, priority Priority) {
	if m.closed.Load() {
		slog.Warn("upload rejected: manager closed", "id", id, "type", entityType)
		return
	}
	if payload == nil {
		slog.Warn("upload rejected: nil payload", "id", id, "type", entityType)
		return
	}
	if !entityType.Valid() || payload.EntityType() != entityType {
		slog.Warn("upload rejected: entity type mismatch",
			"id", id, "type", entityType, "payload_type", payload.EntityType())
		return
	}
	if id == "" {
		id = payload.EntityID()
	}

	m.uploads.Enqueue(&SyncItem{
		ID:           id,
		Type:         entityType,
		Payload:      payload,
		Priority:     priority,
		LastModified: time.Now(),
	})
	slog.Debug("queued for upload", "id", id, "type", entityType, "priority", priority)

	if priority == PriorityHigh {
		m.maybeTriggerImmediate()
	}
}

// Sync runs one full pass: the upload queue is drained in batches, then
// the remote state is fetched and reconciled against the local store.
// Upload failures are retried with backoff and never propagate;
// download and reconciliation errors are returned to the caller. While
// a pass is already running Sync returns ErrSyncInProgress.
//
// When the manager is offline or remote sync is disabled, Sync returns
// nil without touching the queues.
func (m *SyncManager) Sync(ctx context.Context) error {
	if m.closed.Load() {
		return ErrManagerClosed
	}
	if !m.config.RemoteSyncEnabled {
		slog.Debug("remote sync disabled; leaving queues untouched", "user_id", m.config.UserID)
		return nil
	}
	if !m.monitor.Online() {
		slog.Debug("skipping sync while offline", "user_id", m.config.UserID)
		return nil
	}
	if !m.isSyncing.CompareAndSwap(false, true) {
		return ErrSyncInProgress
	}
	defer m.isSyncing.Store(false)

	started := time.Now()
	result := SyncResult{StartedAt: started}

	result.Uploaded, result.Dropped = m.uploadPass(ctx, started)

	err := m.downloadPass(ctx, started, &result)
	result.Err = err
	result.Duration = time.Since(started)

	m.metrics.recordPass(result.Duration, err == nil)
	if err == nil {
		m.lastSync = started
	}
	m.hub.Notify(result)

	if err != nil {
		slog.Warn("sync pass failed",
			"user_id", m.config.UserID, "duration", result.Duration, "err", err)
		return err
	}
	slog.Debug("sync pass complete",
		"user_id", m.config.UserID,
		"uploaded", result.Uploaded,
		"downloaded", result.Downloaded,
		"conflicts_resolved", result.ConflictsResolved,
		"duration", result.Duration)
	return nil
}

// FullSync is the explicit full-reconciliation entry point. Every pass
// already drains the upload queue and reconciles the complete remote
// state, so FullSync is equivalent to Sync; it exists for callers that
// distinguish routine background syncs from a forced refresh.
func (m *SyncManager) FullSync(ctx context.Context) error {
	return m.Sync(ctx)
}

// uploadPass drains the upload queue in batches, persisting each item
// through the repository. Items failing transiently are re-queued with
// linear backoff; items out of retries are dropped. Returns how many
// items uploaded and how many were dropped.
func (m *SyncManager) uploadPass(ctx context.Context, now time.Time) (uploaded, dropped int) {
	for {
		batch := m.uploads.Dequeue(m.config.BatchSize, now)
		if len(batch) == 0 {
			return uploaded, dropped
		}

		for _, item := range batch {
			if ctx.Err() != nil {
				// Put the item back untouched; cancellation is not a
				// failed attempt.
				m.uploads.Requeue(item)
				continue
			}

			err := m.uploadItem(ctx, item)
			if err == nil {
				m.metrics.recordUploadSuccess()
				uploaded++
				continue
			}
			if errors.Is(err, errUnsupportedPayload) {
				slog.Error("dropping upload with unsupported payload",
					"id", item.ID, "type", item.Type, "err", err)
				m.metrics.recordFailure()
				dropped++
				continue
			}
			if m.retryUpload(item, err, now) {
				dropped++
			}
		}

		if ctx.Err() != nil {
			return uploaded, dropped
		}
	}
}

func (m *SyncManager) uploadItem(ctx context.Context, item *SyncItem) error {
	var err error
	switch payload := item.Payload.(type) {
	case *Conversation:
		err = m.repo.SaveConversation(ctx, payload)
	case *Profile:
		err = m.repo.SaveProfile(ctx, payload)
	case *Feedback:
		err = m.repo.SaveFeedback(ctx, payload)
	default:
		return fmt.Errorf("%w: %T", errUnsupportedPayload, item.Payload)
	}
	m.metrics.recordAttempt(err)
	return err
}

// retryUpload re-queues a failed item at the front of the queue with a
// delay of RetryDelay times its retry count, or drops it once MaxRetries
// is reached. Reports whether the item was dropped.
func (m *SyncManager) retryUpload(item *SyncItem, err error, now time.Time) bool {
	item.RetryCount++
	if item.RetryCount >= m.config.MaxRetries {
		slog.Warn("dropping upload after retries",
			"id", item.ID, "type", item.Type, "retries", item.RetryCount, "err", err)
		return true
	}

	delay := time.Duration(item.RetryCount) * m.config.RetryDelay
	item.nextAttempt = now.Add(delay)
	m.uploads.Requeue(item)
	slog.Debug("upload failed; will retry",
		"id", item.ID, "type", item.Type, "retry", item.RetryCount, "delay", delay, "err", err)
	return false
}

// downloadPass fetches the remote state and reconciles it into the
// local store, resolving divergences through the conflict manager.
func (m *SyncManager) downloadPass(ctx context.Context, now time.Time, result *SyncResult) error {
	convs, err := m.repo.FetchConversations(ctx, m.config.UserID, m.config.MaxConversations)
	m.metrics.recordAttempt(err)
	if err != nil {
		return fmt.Errorf("failed to fetch conversations: %w", err)
	}

	for _, remote := range convs {
		if err := m.reconcileConversation(ctx, remote, now, result); err != nil {
			return err
		}
	}

	if err := m.reconcileProfile(ctx, now, result); err != nil {
		return err
	}

	// Any leftover download markers point at entities the fetch no
	// longer returned; the pass satisfied them.
	for _, item := range m.downloads.Items() {
		m.downloads.Remove(item.ID, item.Type)
	}
	return nil
}

func (m *SyncManager) reconcileConversation(ctx context.Context, remote *Conversation, now time.Time, result *SyncResult) error {
	local, err := m.store.Conversation(ctx, remote.ID)
	if errors.Is(err, ErrNotFound) {
		if err := m.store.SaveConversation(ctx, remote); err != nil {
			return fmt.Errorf("failed to store conversation %s: %w", remote.ID, err)
		}
		m.metrics.recordDownloadSuccess()
		result.Downloaded++
		m.downloads.Remove(remote.ID, EntityConversation)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load local conversation %s: %w", remote.ID, err)
	}

	if m.resolver.Conversations().Diverged(local, remote) {
		cctx := ConflictContext{
			LastSync:     m.lastSync,
			UserActivity: local.LastActivity,
			DataAge:      now.Sub(remote.LastActivity),
			Importance:   PriorityMedium,
		}
		if err := m.reconcileEntity(ctx, local, remote, cctx, result); err != nil {
			return err
		}
	}
	m.downloads.Remove(remote.ID, EntityConversation)
	return nil
}

func (m *SyncManager) reconcileProfile(ctx context.Context, now time.Time, result *SyncResult) error {
	remote, err := m.repo.FetchProfile(ctx, m.config.UserID)
	if errors.Is(err, ErrNotFound) {
		// The user has no remote profile yet; nothing to reconcile.
		m.metrics.recordAttempt(nil)
		return nil
	}
	m.metrics.recordAttempt(err)
	if err != nil {
		return fmt.Errorf("failed to fetch profile: %w", err)
	}

	local, err := m.store.Profile(ctx)
	if errors.Is(err, ErrNotFound) {
		if err := m.store.SaveProfile(ctx, remote); err != nil {
			return fmt.Errorf("failed to store profile: %w", err)
		}
		m.metrics.recordDownloadSuccess()
		result.Downloaded++
		m.downloads.Remove(remote.UserID, EntityProfile)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load local profile: %w", err)
	}

	if m.resolver.Profiles().Diverged(local, remote) {
		cctx := ConflictContext{
			LastSync:     m.lastSync,
			UserActivity: local.UpdatedAt,
			DataAge:      now.Sub(remote.UpdatedAt),
			Importance:   PriorityHigh,
		}
		if err := m.reconcileEntity(ctx, local, remote, cctx, result); err != nil {
			return err
		}
	}
	m.downloads.Remove(remote.UserID, EntityProfile)
	return nil
}

// reconcileEntity resolves one divergent local/remote pair. Resolutions
// needing user input are parked on the conflicts queue when the manager
// runs in manual mode; everything else is applied to the local store,
// and merged or client-won state that differs from the remote copy is
// re-queued for upload so the server converges too.
func (m *SyncManager) reconcileEntity(ctx context.Context, local, remote Entity, cctx ConflictContext, result *SyncResult) error {
	entityType := remote.EntityType()

	res, err := m.resolver.Resolve(entityType, local, remote, cctx)
	if err != nil {
		slog.Error("conflict resolution failed; deferring to server copy",
			"id", remote.EntityID(), "type", entityType, "err", err)
		res = Resolution{
			Resolved:          remote,
			Strategy:          StrategyServerWins,
			Confidence:        0.5,
			Explanation:       "resolver error; server copy kept pending review",
			RequiresUserInput: true,
			ResolvedAt:        time.Now(),
		}
	}

	if res.RequiresUserInput && m.config.ConflictMode == ConflictModeManual {
		m.conflicts.Add(&PendingConflict{
			ID:         uuid.NewString(),
			EntityID:   remote.EntityID(),
			Type:       entityType,
			Local:      local,
			Remote:     remote,
			Result:     res,
			DetectedAt: time.Now(),
		})
		result.ConflictsQueued++
		slog.Info("conflict parked for manual resolution",
			"id", remote.EntityID(), "type", entityType, "conflict", res.ConflictType)
		return nil
	}

	if err := m.applyLocally(ctx, res.Resolved); err != nil {
		return err
	}
	m.metrics.recordDownloadSuccess()
	m.metrics.recordConflictResolved()
	result.Downloaded++
	result.ConflictsResolved++

	if (res.Strategy == StrategyMerge || res.Strategy == StrategyClientWins) && !sameJSON(res.Resolved, remote) {
		m.uploads.Enqueue(&SyncItem{
			ID:           res.Resolved.EntityID(),
			Type:         entityType,
			Payload:      res.Resolved,
			Priority:     PriorityHigh,
			LastModified: time.Now(),
		})
	}

	slog.Debug("conflict auto-resolved",
		"id", remote.EntityID(), "type", entityType,
		"conflict", res.ConflictType, "strategy", res.Strategy, "confidence", res.Confidence)
	return nil
}

func (m *SyncManager) applyLocally(ctx context.Context, e Entity) error {
	switch v := e.(type) {
	case *Conversation:
		if err := m.store.SaveConversation(ctx, v); err != nil {
			return fmt.Errorf("failed to store conversation %s: %w", v.ID, err)
		}
	case *Profile:
		if err := m.store.SaveProfile(ctx, v); err != nil {
			return fmt.Errorf("failed to store profile: %w", err)
		}
	default:
		return fmt.Errorf("%w: %T", errUnsupportedPayload, e)
	}
	return nil
}

// PauseSync stops the periodic timer. Queued items stay queued and
// manual Sync calls still work.
func (m *SyncManager) PauseSync() {
	m.mu.Lock()
	m.paused = true
	m.scheduler.Stop()
	m.mu.Unlock()

	slog.Info("periodic sync paused", "user_id", m.config.UserID)
}

// ResumeSync restarts the periodic timer. While offline the timer stays
// stopped; it restarts on the next online transition.
func (m *SyncManager) ResumeSync() {
	m.mu.Lock()
	if m.closed.Load() {
		m.mu.Unlock()
		return
	}
	m.paused = false
	if m.monitor.Online() && m.config.RemoteSyncEnabled {
		m.scheduler.Start()
	}
	m.mu.Unlock()

	slog.Info("periodic sync resumed", "user_id", m.config.UserID)
}

// GetMetrics returns a snapshot of sync health counters.
func (m *SyncManager) GetMetrics() SyncMetrics {
	return m.metrics.snapshot(int64(m.conflicts.Len()))
}

// GetQueueStatus returns a snapshot of the queue depths and manager
// state.
func (m *SyncManager) GetQueueStatus() QueueStatus {
	return QueueStatus{
		UploadPending:    m.uploads.Len(),
		DownloadPending:  m.downloads.Len(),
		ConflictsPending: m.conflicts.Len(),
		Syncing:          m.isSyncing.Load(),
		Online:           m.monitor.Online(),
	}
}

// GetPendingConflicts returns the conflicts awaiting manual resolution.
func (m *SyncManager) GetPendingConflicts() []*PendingConflict {
	return m.conflicts.Items()
}

// ResolveConflictManually applies a user-chosen outcome to a pending
// conflict: the local copy, the remote copy, or a caller-supplied
// custom entity. The chosen entity is persisted locally, queued for
// upload at high priority, and the conflict leaves the queue. On any
// validation or persistence error the conflict stays queued.
func (m *SyncManager) ResolveConflictManually(ctx context.Context, conflictID string, choice ManualChoice, custom Entity) error {
	if m.closed.Load() {
		return ErrManagerClosed
	}

	pc, ok := m.conflicts.Take(conflictID)
	if !ok {
		return fmt.Errorf("conflict %s: %w", conflictID, ErrConflictNotFound)
	}

	var chosen Entity
	switch choice {
	case ChooseLocal:
		chosen = pc.Local
	case ChooseRemote:
		chosen = pc.Remote
	case ChooseCustom:
		chosen = custom
	default:
		m.conflicts.Add(pc)
		return fmt.Errorf("unknown manual choice %q", choice)
	}
	if chosen == nil {
		m.conflicts.Add(pc)
		return errors.New("manual resolution has no payload")
	}
	if chosen.EntityType() != pc.Type || chosen.EntityID() != pc.EntityID {
		m.conflicts.Add(pc)
		return fmt.Errorf("manual payload is %s/%s, conflict is %s/%s",
			chosen.EntityType(), chosen.EntityID(), pc.Type, pc.EntityID)
	}

	if err := m.applyLocally(ctx, chosen); err != nil {
		m.conflicts.Add(pc)
		return err
	}

	m.uploads.Enqueue(&SyncItem{
		ID:           pc.EntityID,
		Type:         pc.Type,
		Payload:      chosen,
		Priority:     PriorityHigh,
		LastModified: time.Now(),
	})
	m.metrics.recordConflictResolved()
	slog.Info("conflict resolved manually",
		"conflict", conflictID, "id", pc.EntityID, "type", pc.Type, "choice", choice)

	m.maybeTriggerImmediate()
	return nil
}

// Subscribe registers a listener invoked after every sync pass.
// Returns an id for Unsubscribe. Listeners run synchronously on the
// syncing goroutine: keep them fast, and do not call PauseSync,
// ResumeSync, or Close from inside one. Queueing uploads from a
// listener is fine.
func (m *SyncManager) Subscribe(fn SyncListener) string {
	return m.hub.Subscribe(fn)
}

// Unsubscribe removes a listener.
func (m *SyncManager) Unsubscribe(id string) {
	m.hub.Unsubscribe(id)
}

// ConflictStats returns aggregate resolution statistics.
func (m *SyncManager) ConflictStats() ConflictStats {
	return m.resolver.Stats()
}

// Close stops the periodic timer, the change feed, the metrics
// exporter, and any monitor the manager owns, waits for in-flight
// background passes, and drops all subscribers. Close is idempotent.
// Queued items are discarded with the manager; the local store and
// repository stay open for their owner.
func (m *SyncManager) Close() error {
	m.mu.Lock()
	if m.closed.Load() {
		m.mu.Unlock()
		return nil
	}
	m.closed.Store(true)
	m.mu.Unlock()

	// Barrier: a launch that passed its closed check before the store
	// above has completed its wg.Add once we hold wgMu.
	m.wgMu.Lock()
	m.wgMu.Unlock()

	m.scheduler.Stop()
	if m.feed != nil {
		m.feed.Stop()
	}
	if m.exporter != nil {
		m.exporter.Stop()
	}
	if m.ownsMonitor {
		m.monitor.Stop()
	}
	m.wg.Wait()
	m.hub.Clear()

	slog.Info("sync manager closed", "user_id", m.config.UserID)
	return nil
}

// scheduledSync is the periodic timer callback.
func (m *SyncManager) scheduledSync() {
	err := m.Sync(context.Background())
	if err != nil && !errors.Is(err, ErrSyncInProgress) && !errors.Is(err, ErrManagerClosed) {
		slog.Warn("scheduled sync failed", "user_id", m.config.UserID, "err", err)
	}
}

// maybeTriggerImmediate starts a background pass if the manager is
// online. A pass already running absorbs the trigger.
func (m *SyncManager) maybeTriggerImmediate() {
	if !m.config.RemoteSyncEnabled || !m.monitor.Online() {
		return
	}

	m.wgMu.Lock()
	if m.closed.Load() {
		m.wgMu.Unlock()
		return
	}
	m.wg.Add(1)
	m.wgMu.Unlock()

	go func() {
		defer m.wg.Done()
		err := m.Sync(context.Background())
		if err != nil && !errors.Is(err, ErrSyncInProgress) && !errors.Is(err, ErrManagerClosed) {
			slog.Warn("immediate sync failed", "user_id", m.config.UserID, "err", err)
		}
	}()
}

// handleConnectivity pauses the periodic timer while offline and
// resumes it when connectivity returns. There is deliberately no
// immediate flush on reconnect; the next tick drains the backlog, which
// smooths the burst a reconnect would otherwise cause.
//
// Scheduler transitions happen under mu so a transition racing Close
// cannot restart the timer after teardown. A sync pass never takes mu,
// so waiting out an in-flight tick here cannot deadlock.
func (m *SyncManager) handleConnectivity(online bool) {
	if !m.config.RemoteSyncEnabled {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed.Load() {
		return
	}

	if !online {
		slog.Info("network lost; pausing periodic sync", "user_id", m.config.UserID)
		m.scheduler.Stop()
		return
	}
	if m.paused {
		return
	}

	slog.Info("network restored; resuming periodic sync", "user_id", m.config.UserID)
	m.scheduler.Start()
}

// handleRemoteChange marks an entity as changed remotely so the next
// download pass reconciles it. Profile changes are flagged high
// priority.
func (m *SyncManager) handleRemoteChange(entityType EntityType, entityID string) {
	if m.closed.Load() {
		return
	}

	priority := PriorityMedium
	if entityType == EntityProfile {
		priority = PriorityHigh
	}
	m.downloads.Enqueue(&SyncItem{
		ID:           entityID,
		Type:         entityType,
		Priority:     priority,
		LastModified: time.Now(),
	})
	slog.Debug("remote change flagged for download", "id", entityID, "type", entityType)
}
