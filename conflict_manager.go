package driftsync

import (
	"errors"
	"fmt"
	"sync"
)

// ErrUnsupportedEntityType is returned when a resolution is requested for
// an entity class that has no resolver. This is a programmer error and is
// never retried.
var ErrUnsupportedEntityType = errors.New("unsupported entity type")

// conflictHistoryLimit bounds the per-type resolution history.
const conflictHistoryLimit = 10

// ConflictManager dispatches conflict resolution to the resolver matching
// the entity type and retains a bounded history of outcomes for
// diagnostics. The history is process-local state, never persisted.
// Safe for concurrent use.
type ConflictManager struct {
	conversations *ConversationResolver
	profiles      *ProfileResolver

	mu      sync.Mutex
	history map[string][]Resolution
}

// NewConflictManager creates a conflict manager with resolvers sharing
// the given tuning.
func NewConflictManager(tuning ResolverTuning) *ConflictManager {
	return &ConflictManager{
		conversations: NewConversationResolver(tuning),
		profiles:      NewProfileResolver(tuning),
		history:       make(map[string][]Resolution),
	}
}

// Resolve dispatches to the resolver for entityType and records the
// outcome. local and remote must both be the Go type matching entityType.
func (cm *ConflictManager) Resolve(entityType EntityType, local, remote Entity, cctx ConflictContext) (Resolution, error) {
	var res Resolution

	switch entityType {
	case EntityConversation:
		localConv, okLocal := local.(*Conversation)
		remoteConv, okRemote := remote.(*Conversation)
		if !okLocal || !okRemote {
			return Resolution{}, fmt.Errorf("resolve %s: local/remote payload is not a conversation", entityType)
		}
		res = cm.conversations.Resolve(localConv, remoteConv, cctx)

	case EntityProfile:
		localProf, okLocal := local.(*Profile)
		remoteProf, okRemote := remote.(*Profile)
		if !okLocal || !okRemote {
			return Resolution{}, fmt.Errorf("resolve %s: local/remote payload is not a profile", entityType)
		}
		res = cm.profiles.Resolve(localProf, remoteProf, cctx)

	default:
		return Resolution{}, fmt.Errorf("resolve %s: %w", entityType, ErrUnsupportedEntityType)
	}

	cm.record(entityType, res)
	return res, nil
}

// Conversations returns the conversation resolver for direct divergence
// checks.
func (cm *ConflictManager) Conversations() *ConversationResolver { return cm.conversations }

// Profiles returns the profile resolver for direct divergence checks.
func (cm *ConflictManager) Profiles() *ProfileResolver { return cm.profiles }

func (cm *ConflictManager) record(entityType EntityType, res Resolution) {
	key := string(entityType) + "_conflicts"

	cm.mu.Lock()
	defer cm.mu.Unlock()

	hist := append(cm.history[key], res)
	if len(hist) > conflictHistoryLimit {
		hist = hist[len(hist)-conflictHistoryLimit:]
	}
	cm.history[key] = hist
}

// ConflictStats aggregates the retained resolution history.
type ConflictStats struct {
	Total        int                        `json:"total"`
	ByStrategy   map[ResolutionStrategy]int `json:"by_strategy"`
	AutoResolved int                        `json:"auto_resolved"`
	Manual       int                        `json:"manual"`
}

// Stats returns aggregate counts over the retained history.
func (cm *ConflictManager) Stats() ConflictStats {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	stats := ConflictStats{
		ByStrategy: make(map[ResolutionStrategy]int),
	}
	for _, hist := range cm.history {
		for _, res := range hist {
			stats.Total++
			stats.ByStrategy[res.Strategy]++
			if res.AutoResolved {
				stats.AutoResolved++
			} else {
				stats.Manual++
			}
		}
	}
	return stats
}

// History returns a copy of the retained resolutions for an entity type,
// oldest first.
func (cm *ConflictManager) History(entityType EntityType) []Resolution {
	key := string(entityType) + "_conflicts"

	cm.mu.Lock()
	defer cm.mu.Unlock()

	hist := cm.history[key]
	out := make([]Resolution, len(hist))
	copy(out, hist)
	return out
}

// ClearHistory drops all retained resolutions.
func (cm *ConflictManager) ClearHistory() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.history = make(map[string][]Resolution)
}
