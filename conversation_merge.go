package driftsync

import (
	"fmt"
	"sort"
	"time"
	"unicode/utf8"
)

// ResolverTuning holds the heuristic thresholds used by the entity
// resolvers. The defaults mirror observed user behavior; they are
// configuration, not invariants, and can be tightened per deployment.
type ResolverTuning struct {
	// TitleLengthDelta is how many runes longer a local title must be
	// to count as "more descriptive" than the remote one.
	TitleLengthDelta int `json:"title_length_delta"`

	// MetadataSkew is the activity-timestamp difference tolerated
	// before two copies count as diverged.
	MetadataSkew time.Duration `json:"metadata_skew"`

	// FreshOverlayWindow is how recent local user activity must be for
	// local preferences to fully replace remote ones.
	FreshOverlayWindow time.Duration `json:"fresh_overlay_window"`
}

// DefaultResolverTuning returns the standard resolver thresholds.
func DefaultResolverTuning() ResolverTuning {
	return ResolverTuning{
		TitleLengthDelta:   10,
		MetadataSkew:       60 * time.Second,
		FreshOverlayWindow: time.Hour,
	}
}

func (t *ResolverTuning) normalize() {
	if t.TitleLengthDelta <= 0 {
		t.TitleLengthDelta = 10
	}
	if t.MetadataSkew <= 0 {
		t.MetadataSkew = 60 * time.Second
	}
	if t.FreshOverlayWindow <= 0 {
		t.FreshOverlayWindow = time.Hour
	}
}

// ConversationResolver reconciles diverged conversation copies.
// Resolve is a pure function over its inputs; the returned entity is
// always a fresh copy and the arguments are never mutated.
type ConversationResolver struct {
	tuning ResolverTuning
}

// NewConversationResolver creates a resolver with the given tuning.
func NewConversationResolver(tuning ResolverTuning) *ConversationResolver {
	tuning.normalize()
	return &ConversationResolver{tuning: tuning}
}

// Diverged is the lightweight check the sync pass runs before invoking
// full resolution: message counts differ, or activity timestamps are
// further apart than the configured skew.
func (r *ConversationResolver) Diverged(local, remote *Conversation) bool {
	if local == nil || remote == nil {
		return local != remote
	}
	if len(local.Messages) != len(remote.Messages) {
		return true
	}
	return absDuration(local.LastActivity.Sub(remote.LastActivity)) > r.tuning.MetadataSkew
}

// Resolve classifies the divergence between two conversation copies and
// produces a resolution.
func (r *ConversationResolver) Resolve(local, remote *Conversation, cctx ConflictContext) Resolution {
	now := time.Now()

	if local == nil || remote == nil {
		return conversationFallback(local, remote, now)
	}

	ctype, severity := r.classify(local, remote)

	switch ctype {
	case ConflictNone:
		return Resolution{
			Resolved:     remote.Clone(),
			Strategy:     StrategyServerWins,
			Confidence:   1.0,
			Explanation:  "no divergence detected, keeping server copy",
			ConflictType: ConflictNone,
			Severity:     severity,
			AutoResolved: true,
			ResolvedAt:   now,
		}

	case ConflictMessagesDiverged:
		merged := remote.Clone()
		merged.Messages = MergeMessages(local.Messages, remote.Messages)
		merged.LastActivity = laterTime(local.LastActivity, remote.LastActivity)
		return Resolution{
			Resolved:   merged,
			Strategy:   StrategyMerge,
			Confidence: 0.85,
			Explanation: fmt.Sprintf("merged %d local and %d remote messages into %d",
				len(local.Messages), len(remote.Messages), len(merged.Messages)),
			ConflictType:   ConflictMessagesDiverged,
			Severity:       severity,
			AffectedFields: []string{"messages", "last_activity"},
			AutoResolved:   true,
			ResolvedAt:     now,
		}

	case ConflictTitle:
		return r.resolveTitle(local, remote, cctx, severity, now)

	case ConflictMetadata:
		merged := remote.Clone()
		merged.LastActivity = laterTime(local.LastActivity, remote.LastActivity)
		return Resolution{
			Resolved:       merged,
			Strategy:       StrategyMerge,
			Confidence:     0.9,
			Explanation:    "aligned last activity to the most recent timestamp",
			ConflictType:   ConflictMetadata,
			Severity:       severity,
			AffectedFields: []string{"last_activity"},
			AutoResolved:   true,
			ResolvedAt:     now,
		}
	}

	return conversationFallback(local, remote, now)
}

// classify orders checks from most to least severe: message divergence
// first, then title, then activity metadata.
func (r *ConversationResolver) classify(local, remote *Conversation) (ConflictType, ConflictSeverity) {
	if len(local.Messages) != len(remote.Messages) {
		return ConflictMessagesDiverged, SeverityHigh
	}
	for i := range local.Messages {
		if local.Messages[i].ID != remote.Messages[i].ID {
			return ConflictMessagesDiverged, SeverityMedium
		}
	}
	if local.Title != remote.Title {
		return ConflictTitle, SeverityMedium
	}
	if absDuration(local.LastActivity.Sub(remote.LastActivity)) > r.tuning.MetadataSkew {
		return ConflictMetadata, SeverityLow
	}
	return ConflictNone, SeverityLow
}

// resolveTitle prefers the remote title unless the local one is clearly
// more descriptive, or the user edited locally after the last sync.
func (r *ConversationResolver) resolveTitle(local, remote *Conversation, cctx ConflictContext, severity ConflictSeverity, now time.Time) Resolution {
	localLonger := utf8.RuneCountInString(local.Title) > utf8.RuneCountInString(remote.Title)+r.tuning.TitleLengthDelta
	editedSinceSync := !cctx.UserActivity.IsZero() && !cctx.LastSync.IsZero() &&
		cctx.UserActivity.After(cctx.LastSync)

	res := Resolution{
		Confidence:     0.75,
		ConflictType:   ConflictTitle,
		Severity:       severity,
		AffectedFields: []string{"title"},
		AutoResolved:   true,
		ResolvedAt:     now,
	}

	if localLonger || editedSinceSync {
		res.Resolved = local.Clone()
		res.Strategy = StrategyClientWins
		res.Explanation = "kept local title: more descriptive or edited after last sync"
		return res
	}

	res.Resolved = remote.Clone()
	res.Strategy = StrategyServerWins
	res.Explanation = "kept remote title"
	return res
}

func conversationFallback(local, remote *Conversation, now time.Time) Resolution {
	resolved := remote
	if resolved == nil {
		resolved = local
	}
	return Resolution{
		Resolved:          resolved.Clone(),
		Strategy:          StrategyServerWins,
		Confidence:        0.5,
		Explanation:       "ambiguous conversation divergence, deferring to server copy",
		RequiresUserInput: true,
		ConflictType:      ConflictMessagesDiverged,
		Severity:          SeverityHigh,
		ResolvedAt:        now,
	}
}

// MergeMessages unions two message logs keyed by message id. Remote
// messages seed the result; a local message replaces its remote
// counterpart only if its timestamp is strictly later. The result is
// sorted ascending by timestamp, ties broken by id for determinism.
func MergeMessages(local, remote []Message) []Message {
	byID := make(map[string]Message, len(local)+len(remote))
	for _, msg := range remote {
		byID[msg.ID] = msg
	}
	for _, msg := range local {
		existing, ok := byID[msg.ID]
		if !ok || msg.Timestamp.After(existing.Timestamp) {
			byID[msg.ID] = msg
		}
	}

	merged := make([]Message, 0, len(byID))
	for _, msg := range byID {
		merged = append(merged, msg)
	}
	sort.Slice(merged, func(i, j int) bool {
		if !merged[i].Timestamp.Equal(merged[j].Timestamp) {
			return merged[i].Timestamp.Before(merged[j].Timestamp)
		}
		return merged[i].ID < merged[j].ID
	})
	return merged
}

func laterTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
