package driftsync

import (
	"testing"
	"time"
)

func testProfile(ptype ProfileType, prefs map[string]any) *Profile {
	return &Profile{
		UserID:      "u1",
		Type:        ptype,
		Preferences: prefs,
		UpdatedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestProfileResolver_Diverged(t *testing.T) {
	r := NewProfileResolver(DefaultResolverTuning())

	tests := []struct {
		name   string
		local  *Profile
		remote *Profile
		want   bool
	}{
		{
			name:   "type differs",
			local:  testProfile(ProfileTypePatient, nil),
			remote: testProfile(ProfileTypeProfessional, nil),
			want:   true,
		},
		{
			name:   "preferences differ",
			local:  testProfile(ProfileTypePatient, map[string]any{"theme": "dark"}),
			remote: testProfile(ProfileTypePatient, map[string]any{"theme": "light"}),
			want:   true,
		},
		{
			name:   "identical",
			local:  testProfile(ProfileTypePatient, map[string]any{"theme": "dark"}),
			remote: testProfile(ProfileTypePatient, map[string]any{"theme": "dark"}),
			want:   false,
		},
		{
			name:   "nil remote",
			local:  testProfile(ProfileTypePatient, nil),
			remote: nil,
			want:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Diverged(tt.local, tt.remote); got != tt.want {
				t.Errorf("Diverged = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProfileResolver_TypeConflictNeedsUserInput(t *testing.T) {
	r := NewProfileResolver(DefaultResolverTuning())

	local := testProfile(ProfileTypePatient, nil)
	remote := testProfile(ProfileTypeProfessional, nil)

	res := r.Resolve(local, remote, ConflictContext{})
	if res.ConflictType != ConflictProfileType {
		t.Fatalf("expected profile type conflict, got %s", res.ConflictType)
	}
	if !res.RequiresUserInput || res.AutoResolved {
		t.Error("expected a manual resolution for a type conflict")
	}
	if res.Strategy != StrategyServerWins || res.Confidence != 0.3 {
		t.Errorf("expected server_wins at 0.3, got %s at %v", res.Strategy, res.Confidence)
	}
	if res.Severity != SeverityHigh {
		t.Errorf("expected high severity, got %s", res.Severity)
	}
	if got := res.Resolved.(*Profile).Type; got != ProfileTypeProfessional {
		t.Errorf("expected the server copy to be proposed, got %s", got)
	}
}

func TestProfileResolver_PreferencesOverlay(t *testing.T) {
	r := NewProfileResolver(DefaultResolverTuning())

	local := testProfile(ProfileTypePatient, map[string]any{
		"theme":    "dark",
		"language": "sv",
	})
	remote := testProfile(ProfileTypePatient, map[string]any{
		"theme":         "light",
		"notifications": true,
	})

	// Stale local activity: overlay on the remote base, local winning
	// only on collisions.
	cctx := ConflictContext{UserActivity: time.Now().Add(-3 * time.Hour)}
	res := r.Resolve(local, remote, cctx)
	if res.ConflictType != ConflictPreferences {
		t.Fatalf("expected preferences conflict, got %s", res.ConflictType)
	}
	if res.Strategy != StrategyMerge || res.Confidence != 0.8 {
		t.Errorf("expected merge at 0.8, got %s at %v", res.Strategy, res.Confidence)
	}

	prefs := res.Resolved.(*Profile).Preferences
	if prefs["theme"] != "dark" {
		t.Errorf("expected local value on collision, got %v", prefs["theme"])
	}
	if prefs["language"] != "sv" {
		t.Errorf("expected local-only key kept, got %v", prefs["language"])
	}
	if prefs["notifications"] != true {
		t.Errorf("expected remote-only key kept, got %v", prefs["notifications"])
	}
}

func TestProfileResolver_FreshActivityKeepsLocalPreferences(t *testing.T) {
	r := NewProfileResolver(DefaultResolverTuning())

	local := testProfile(ProfileTypePatient, map[string]any{"theme": "dark"})
	remote := testProfile(ProfileTypePatient, map[string]any{
		"theme":         "light",
		"notifications": true,
	})

	// Activity within the freshness window replaces remote preferences
	// entirely, dropping remote-only keys.
	cctx := ConflictContext{UserActivity: time.Now().Add(-10 * time.Minute)}
	res := r.Resolve(local, remote, cctx)

	prefs := res.Resolved.(*Profile).Preferences
	if prefs["theme"] != "dark" {
		t.Errorf("expected local preferences in full, got %v", prefs["theme"])
	}
	if _, ok := prefs["notifications"]; ok {
		t.Error("expected remote-only key dropped for fresh local activity")
	}
}

func TestProfileResolver_PreferencesMergeKeepsHistoryMonotonic(t *testing.T) {
	r := NewProfileResolver(DefaultResolverTuning())

	local := testProfile(ProfileTypePatient, map[string]any{"theme": "dark"})
	local.History = ProfileHistory{ConversationCount: 8, TotalSessions: 2}
	remote := testProfile(ProfileTypePatient, map[string]any{"theme": "light"})
	remote.History = ProfileHistory{ConversationCount: 5, TotalSessions: 4}

	res := r.Resolve(local, remote, ConflictContext{})
	hist := res.Resolved.(*Profile).History
	if hist.ConversationCount != 8 || hist.TotalSessions != 4 {
		t.Errorf("expected max counters 8/4, got %d/%d", hist.ConversationCount, hist.TotalSessions)
	}
}

func TestProfileResolver_HistoryConflictMerges(t *testing.T) {
	r := NewProfileResolver(DefaultResolverTuning())

	local := testProfile(ProfileTypePatient, nil)
	local.History = ProfileHistory{ConversationCount: 9}
	remote := testProfile(ProfileTypePatient, nil)
	remote.History = ProfileHistory{ConversationCount: 4}
	remote.UpdatedAt = local.UpdatedAt.Add(time.Hour)

	res := r.Resolve(local, remote, ConflictContext{})
	if res.ConflictType != ConflictHistory {
		t.Fatalf("expected history conflict, got %s", res.ConflictType)
	}
	if res.Strategy != StrategyMerge || res.Confidence != 0.9 {
		t.Errorf("expected merge at 0.9, got %s at %v", res.Strategy, res.Confidence)
	}

	merged := res.Resolved.(*Profile)
	if merged.History.ConversationCount != 9 {
		t.Errorf("expected counter kept at maximum, got %d", merged.History.ConversationCount)
	}
	if !merged.UpdatedAt.Equal(remote.UpdatedAt) {
		t.Errorf("expected the later update time, got %v", merged.UpdatedAt)
	}
}

func TestProfileResolver_FallbackNeedsUserInput(t *testing.T) {
	r := NewProfileResolver(DefaultResolverTuning())

	res := r.Resolve(nil, testProfile(ProfileTypePatient, nil), ConflictContext{})
	if !res.RequiresUserInput || res.Confidence != 0.5 {
		t.Errorf("expected manual fallback at 0.5, got %v at %v", res.RequiresUserInput, res.Confidence)
	}
}

func TestMergeHistories(t *testing.T) {
	local := ProfileHistory{
		ConversationCount: 5,
		TotalSessions:     10,
		TotalTimeSpent:    600,
		PreferredTopics:   []string{"b", "c"},
		Achievements:      []string{"first_week"},
	}
	remote := ProfileHistory{
		ConversationCount: 8,
		TotalSessions:     7,
		TotalTimeSpent:    900,
		PreferredTopics:   []string{"a", "b"},
	}

	merged := MergeHistories(local, remote)

	// Counters take the maximum of both sides, never the sum.
	if merged.ConversationCount != 8 {
		t.Errorf("expected conversation count 8, got %d", merged.ConversationCount)
	}
	if merged.TotalSessions != 10 {
		t.Errorf("expected total sessions 10, got %d", merged.TotalSessions)
	}
	if merged.TotalTimeSpent != 900 {
		t.Errorf("expected time spent 900, got %d", merged.TotalTimeSpent)
	}

	// Set-valued fields become unions, remote order first.
	wantTopics := []string{"a", "b", "c"}
	if len(merged.PreferredTopics) != len(wantTopics) {
		t.Fatalf("expected %d topics, got %d", len(wantTopics), len(merged.PreferredTopics))
	}
	for i, topic := range wantTopics {
		if merged.PreferredTopics[i] != topic {
			t.Errorf("topic %d: expected %s, got %s", i, topic, merged.PreferredTopics[i])
		}
	}
	if len(merged.Achievements) != 1 || merged.Achievements[0] != "first_week" {
		t.Errorf("expected achievements preserved, got %v", merged.Achievements)
	}
}

func TestOverlayPreferences_NilHandling(t *testing.T) {
	if got := overlayPreferences(nil, nil); got != nil {
		t.Errorf("expected nil for nil inputs, got %v", got)
	}

	got := overlayPreferences(nil, map[string]any{"k": "v"})
	if got["k"] != "v" {
		t.Errorf("expected overlay applied over nil base, got %v", got)
	}
}
