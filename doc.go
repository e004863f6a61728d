// Package driftsync provides offline-first synchronization with
// automatic conflict resolution for conversation and user profile data.
//
// A SyncManager serves one authenticated user session. Local changes
// are queued for upload and survive offline periods; remote state is
// pulled periodically and reconciled against the local store, with
// divergences resolved by entity-aware mergers or parked for manual
// resolution.
//
// # Basic Usage
//
// Build a manager from a config, a remote repository, and a local store:
//
//	cfg := driftsync.DefaultConfig()
//	cfg.UserID = "user-123"
//	cfg.Repository.BaseURL = "https://api.example.com"
//
//	repo, err := driftsync.NewHTTPRepository(cfg.Repository)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	store, err := driftsync.NewBoltStore("driftsync.db", cfg.Encryption)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	manager, err := driftsync.New(cfg, repo, store)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer manager.Close()
//
// Queue local changes; the periodic pass uploads them in the background:
//
//	manager.QueueForUpload("", driftsync.EntityConversation, conv, driftsync.PriorityMedium)
//
// Force a pass and inspect the outcome:
//
//	if err := manager.FullSync(ctx); err != nil {
//	    log.Printf("sync failed: %v", err)
//	}
//	fmt.Printf("%+v\n", manager.GetMetrics())
//
// # Features
//
// Synchronization:
//   - Priority-ordered upload queue with (id, type) deduplication
//   - Linear backoff retry with bounded attempts per item
//   - Batched uploads awaited sequentially to bound burst load
//   - Download reconciliation against the full remote state
//   - Offline awareness: queues accumulate, timers pause and resume
//
// Conflict resolution:
//   - Message-level conversation merge, newest write wins per id
//   - Profile preference overlay and monotonic history counters
//   - Confidence-scored resolutions with human-readable rationale
//   - Manual resolution queue for conflicts needing user input
//
// Persistence and transport:
//   - Local stores: in-memory, bbolt, SQLite, optional AES-256-GCM
//     encryption at rest
//   - Remote repositories: HTTP JSON API or S3-compatible object store
//   - Realtime change feed over websocket for remote-change hints
//   - Prometheus remote-write metrics export
package driftsync
