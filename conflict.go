package driftsync

import "time"

// ConflictType classifies how a local and a remote copy have diverged.
type ConflictType string

const (
	// ConflictMessagesDiverged means the message logs differ in count or order.
	ConflictMessagesDiverged ConflictType = "messages_diverged"

	// ConflictTitle means only the conversation titles differ.
	ConflictTitle ConflictType = "title_conflict"

	// ConflictMetadata means only activity timestamps differ beyond tolerance.
	ConflictMetadata ConflictType = "metadata_conflict"

	// ConflictProfileType means the immutable profile type differs.
	ConflictProfileType ConflictType = "profile_type_conflict"

	// ConflictPreferences means the preference maps differ.
	ConflictPreferences ConflictType = "preferences_conflict"

	// ConflictHistory means the usage history counters differ.
	ConflictHistory ConflictType = "history_conflict"

	// ConflictNone means the copies are equivalent.
	ConflictNone ConflictType = "no_conflict"
)

// ConflictSeverity grades how risky an automatic resolution is.
type ConflictSeverity int

const (
	SeverityLow ConflictSeverity = iota
	SeverityMedium
	SeverityHigh
)

func (s ConflictSeverity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// ResolutionStrategy is the approach chosen to settle a conflict.
type ResolutionStrategy string

const (
	// StrategyClientWins keeps the local copy.
	StrategyClientWins ResolutionStrategy = "client_wins"

	// StrategyServerWins keeps the remote copy.
	StrategyServerWins ResolutionStrategy = "server_wins"

	// StrategyMerge combines both copies field by field.
	StrategyMerge ResolutionStrategy = "merge"

	// StrategyAskUser defers the decision to manual resolution.
	StrategyAskUser ResolutionStrategy = "ask_user"
)

// Priority orders items within the sync queues.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// ConflictContext carries temporal and importance hints that bias a
// resolution. All fields are optional; zero values mean unknown.
// A fresh context is built for every resolution call.
type ConflictContext struct {
	// LastSync is the time of the last successful sync pass.
	LastSync time.Time `json:"last_sync,omitempty"`

	// UserActivity is the time of the last local user interaction.
	UserActivity time.Time `json:"user_activity,omitempty"`

	// DataAge is how old the local copy is.
	DataAge time.Duration `json:"data_age,omitempty"`

	// Importance weights the entity for escalation decisions.
	Importance Priority `json:"importance"`
}

// Resolution is the immutable outcome of one conflict-resolution call.
type Resolution struct {
	// Resolved is the entity to keep. Never nil.
	Resolved Entity `json:"resolved"`

	// Strategy is the approach that produced Resolved.
	Strategy ResolutionStrategy `json:"strategy"`

	// Confidence scores the automatic resolution between 0 and 1.
	Confidence float64 `json:"confidence"`

	// Explanation is a human-readable account of the decision.
	Explanation string `json:"explanation"`

	// RequiresUserInput marks resolutions that need manual confirmation.
	RequiresUserInput bool `json:"requires_user_input"`

	// ConflictType is the classification that drove the strategy.
	ConflictType ConflictType `json:"conflict_type"`

	// Severity grades the classified conflict.
	Severity ConflictSeverity `json:"severity"`

	// AffectedFields lists the entity fields the conflict touched.
	AffectedFields []string `json:"affected_fields,omitempty"`

	// AutoResolved is true when no manual step is needed.
	AutoResolved bool `json:"auto_resolved"`

	// ResolvedAt is when the resolution was produced.
	ResolvedAt time.Time `json:"resolved_at"`
}

// PendingConflict is an entry in the conflicts queue awaiting manual
// resolution.
type PendingConflict struct {
	// ID uniquely identifies this conflict for ResolveConflictManually.
	ID string `json:"id"`

	// EntityID is the id of the diverged entity.
	EntityID string `json:"entity_id"`

	// Type is the entity class.
	Type EntityType `json:"type"`

	// Local and Remote are the two diverged copies.
	Local  Entity `json:"local"`
	Remote Entity `json:"remote"`

	// Result is the automatic resolution that escalated to manual.
	Result Resolution `json:"result"`

	// DetectedAt is when the divergence was found.
	DetectedAt time.Time `json:"detected_at"`
}

// ManualChoice selects the outcome of a manual conflict resolution.
type ManualChoice string

const (
	// ChooseLocal keeps the local copy.
	ChooseLocal ManualChoice = "local"

	// ChooseRemote keeps the remote copy.
	ChooseRemote ManualChoice = "remote"

	// ChooseCustom keeps a caller-supplied replacement entity.
	ChooseCustom ManualChoice = "custom"
)
