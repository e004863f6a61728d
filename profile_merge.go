package driftsync

import (
	"fmt"
	"time"
)

// ProfileResolver reconciles diverged user profile copies.
// Resolve is a pure function over its inputs; the returned entity is
// always a fresh copy and the arguments are never mutated.
type ProfileResolver struct {
	tuning ResolverTuning
}

// NewProfileResolver creates a resolver with the given tuning.
func NewProfileResolver(tuning ResolverTuning) *ProfileResolver {
	tuning.normalize()
	return &ProfileResolver{tuning: tuning}
}

// Diverged is the lightweight check the sync pass runs before invoking
// full resolution: the immutable type differs, or the serialized
// preference maps differ.
func (r *ProfileResolver) Diverged(local, remote *Profile) bool {
	if local == nil || remote == nil {
		return local != remote
	}
	if local.Type != remote.Type {
		return true
	}
	return !sameJSON(local.Preferences, remote.Preferences)
}

// Resolve classifies the divergence between two profile copies and
// produces a resolution.
func (r *ProfileResolver) Resolve(local, remote *Profile, cctx ConflictContext) Resolution {
	now := time.Now()

	if local == nil || remote == nil {
		return profileFallback(local, remote, now)
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

	case ConflictProfileType:
		return Resolution{
			Resolved:   remote.Clone(),
			Strategy:   StrategyServerWins,
			Confidence: 0.3,
			Explanation: fmt.Sprintf("profile type differs (%s vs %s), manual resolution required",
				local.Type, remote.Type),
			RequiresUserInput: true,
			ConflictType:      ConflictProfileType,
			Severity:          severity,
			AffectedFields:    []string{"type"},
			ResolvedAt:        now,
		}

	case ConflictPreferences:
		return r.resolvePreferences(local, remote, cctx, severity, now)

	case ConflictHistory:
		merged := remote.Clone()
		merged.History = MergeHistories(local.History, remote.History)
		merged.UpdatedAt = laterTime(local.UpdatedAt, remote.UpdatedAt)
		return Resolution{
			Resolved:       merged,
			Strategy:       StrategyMerge,
			Confidence:     0.9,
			Explanation:    "merged usage history, counters kept at maximum",
			ConflictType:   ConflictHistory,
			Severity:       severity,
			AffectedFields: []string{"history"},
			AutoResolved:   true,
			ResolvedAt:     now,
		}
	}

	return profileFallback(local, remote, now)
}

// classify orders checks from most to least severe: the immutable type
// first, then preferences, then history counters.
func (r *ProfileResolver) classify(local, remote *Profile) (ConflictType, ConflictSeverity) {
	if local.Type != remote.Type {
		return ConflictProfileType, SeverityHigh
	}
	if !sameJSON(local.Preferences, remote.Preferences) {
		return ConflictPreferences, SeverityMedium
	}
	if local.History.ConversationCount != remote.History.ConversationCount {
		return ConflictHistory, SeverityLow
	}
	return ConflictNone, SeverityLow
}

// resolvePreferences overlays local preferences on the remote base, local
// winning on key collisions. Recent local activity within the freshness
// window replaces the remote map entirely. History is merged monotonically
// alongside so counters never regress on the preferences path.
func (r *ProfileResolver) resolvePreferences(local, remote *Profile, cctx ConflictContext, severity ConflictSeverity, now time.Time) Resolution {
	merged := remote.Clone()
	merged.History = MergeHistories(local.History, remote.History)
	merged.UpdatedAt = laterTime(local.UpdatedAt, remote.UpdatedAt)

	explanation := "merged preferences, local values win on collision"
	if !cctx.UserActivity.IsZero() && now.Sub(cctx.UserActivity) <= r.tuning.FreshOverlayWindow {
		merged.Preferences = clonePreferences(local.Preferences)
		explanation = "recent local activity, local preferences kept in full"
	} else {
		merged.Preferences = overlayPreferences(remote.Preferences, local.Preferences)
	}

	return Resolution{
		Resolved:       merged,
		Strategy:       StrategyMerge,
		Confidence:     0.8,
		Explanation:    explanation,
		ConflictType:   ConflictPreferences,
		Severity:       severity,
		AffectedFields: []string{"preferences"},
		AutoResolved:   true,
		ResolvedAt:     now,
	}
}

func profileFallback(local, remote *Profile, now time.Time) Resolution {
	resolved := remote
	if resolved == nil {
		resolved = local
	}
	return Resolution{
		Resolved:          resolved.Clone(),
		Strategy:          StrategyServerWins,
		Confidence:        0.5,
		Explanation:       "ambiguous profile divergence, deferring to server copy",
		RequiresUserInput: true,
		ConflictType:      ConflictPreferences,
		Severity:          SeverityHigh,
		ResolvedAt:        now,
	}
}

// MergeHistories combines two usage histories. Counters take the maximum
// of both sides, never the sum, so repeated sync passes cannot inflate
// them. Set-valued fields become deduplicated unions.
func MergeHistories(local, remote ProfileHistory) ProfileHistory {
	return ProfileHistory{
		ConversationCount: maxInt(local.ConversationCount, remote.ConversationCount),
		TotalSessions:     maxInt(local.TotalSessions, remote.TotalSessions),
		TotalTimeSpent:    maxInt64(local.TotalTimeSpent, remote.TotalTimeSpent),
		PreferredTopics:   unionStrings(remote.PreferredTopics, local.PreferredTopics),
		CompletedModules:  unionStrings(remote.CompletedModules, local.CompletedModules),
		Achievements:      unionStrings(remote.Achievements, local.Achievements),
	}
}

// overlayPreferences copies base then applies overlay on top.
func overlayPreferences(base, overlay map[string]any) map[string]any {
	if base == nil && overlay == nil {
		return nil
	}
	merged := make(map[string]any, len(base)+len(overlay))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}

// unionStrings returns a deduplicated union preserving first-seen order.
func unionStrings(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range a {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	for _, s := range b {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
