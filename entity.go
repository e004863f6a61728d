package driftsync

import (
	"encoding/json"
	"time"
)

// EntityType identifies the class of a synchronized record.
type EntityType string

const (
	// EntityConversation is a chat conversation with its message log.
	EntityConversation EntityType = "conversation"

	// EntityProfile is a user profile with preferences and usage history.
	EntityProfile EntityType = "profile"

	// EntityFeedback is a user feedback record (upload-only, never reconciled).
	EntityFeedback EntityType = "feedback"
)

// Valid reports whether the entity type is one the subsystem knows about.
func (t EntityType) Valid() bool {
	switch t {
	case EntityConversation, EntityProfile, EntityFeedback:
		return true
	}
	return false
}

// Entity is implemented by every record that can move through the sync
// queues. Implementations must be safe to marshal to JSON.
type Entity interface {
	// EntityID returns the stable identifier of the record.
	EntityID() string

	// EntityType returns the class of the record.
	EntityType() EntityType
}

// Message is a single entry in a conversation log.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Persona   string    `json:"persona,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation is an ordered message log owned by a single user.
// Message ids are unique within a conversation.
type Conversation struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Title        string    `json:"title"`
	Messages     []Message `json:"messages"`
	LastActivity time.Time `json:"last_activity"`
}

// EntityID returns the conversation id.
func (c *Conversation) EntityID() string { return c.ID }

// EntityType returns EntityConversation.
func (c *Conversation) EntityType() EntityType { return EntityConversation }

// Clone returns a deep copy of the conversation.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.Messages = make([]Message, len(c.Messages))
	copy(out.Messages, c.Messages)
	return &out
}

// Feedback is an opaque user feedback record. Feedback is upload-only:
// it moves through the upload queue like any other entity but is never
// fetched back or reconciled.
type Feedback struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Category  string          `json:"category,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// EntityID returns the feedback id.
func (f *Feedback) EntityID() string { return f.ID }

// EntityType returns EntityFeedback.
func (f *Feedback) EntityType() EntityType { return EntityFeedback }

// ProfileType classifies a user profile. The type is assigned at signup
// and treated as immutable by the sync layer.
type ProfileType string

const (
	ProfileTypePatient      ProfileType = "patient"
	ProfileTypeProfessional ProfileType = "professional"
)

// ProfileHistory carries cumulative usage counters and earned items.
// Counters are monotonic: merges take the maximum, never the sum.
type ProfileHistory struct {
	ConversationCount int      `json:"conversation_count"`
	TotalSessions     int      `json:"total_sessions"`
	TotalTimeSpent    int64    `json:"total_time_spent"` // seconds
	PreferredTopics   []string `json:"preferred_topics,omitempty"`
	CompletedModules  []string `json:"completed_modules,omitempty"`
	Achievements      []string `json:"achievements,omitempty"`
}

// Clone returns a deep copy of the history.
func (h ProfileHistory) Clone() ProfileHistory {
	out := h
	out.PreferredTopics = append([]string(nil), h.PreferredTopics...)
	out.CompletedModules = append([]string(nil), h.CompletedModules...)
	out.Achievements = append([]string(nil), h.Achievements...)
	return out
}

// Profile is a user profile record.
type Profile struct {
	UserID      string         `json:"user_id"`
	Type        ProfileType    `json:"type"`
	Preferences map[string]any `json:"preferences,omitempty"`
	History     ProfileHistory `json:"history"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// EntityID returns the owning user id.
func (p *Profile) EntityID() string { return p.UserID }

// EntityType returns EntityProfile.
func (p *Profile) EntityType() EntityType { return EntityProfile }

// Clone returns a deep copy of the profile.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	out := *p
	out.Preferences = clonePreferences(p.Preferences)
	out.History = p.History.Clone()
	return &out
}

func clonePreferences(prefs map[string]any) map[string]any {
	if prefs == nil {
		return nil
	}
	out := make(map[string]any, len(prefs))
	for k, v := range prefs {
		out[k] = v
	}
	return out
}

// sameJSON reports whether two values have identical canonical JSON
// encodings. Map keys are sorted by encoding/json, so this is a stable
// structural comparison for entity payloads.
func sameJSON(a, b any) bool {
	da, err := json.Marshal(a)
	if err != nil {
		return false
	}
	db, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return string(da) == string(db)
}
