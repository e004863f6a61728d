package driftsync

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestConflictManager_ResolveConversation(t *testing.T) {
	cm := NewConflictManager(DefaultResolverTuning())
	base := time.Now()

	local := testConv("c1", "t", base, testMsg("m1", base), testMsg("m2", base.Add(time.Second)))
	remote := testConv("c1", "t", base, testMsg("m1", base))

	res, err := cm.Resolve(EntityConversation, local, remote, ConflictContext{})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Strategy != StrategyMerge {
		t.Errorf("expected merge strategy, got %s", res.Strategy)
	}
	if len(res.Resolved.(*Conversation).Messages) != 2 {
		t.Errorf("expected 2 merged messages, got %d", len(res.Resolved.(*Conversation).Messages))
	}
}

func TestConflictManager_ResolveProfile(t *testing.T) {
	cm := NewConflictManager(DefaultResolverTuning())

	local := testProfile(ProfileTypePatient, nil)
	remote := testProfile(ProfileTypeProfessional, nil)

	res, err := cm.Resolve(EntityProfile, local, remote, ConflictContext{})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.ConflictType != ConflictProfileType || !res.RequiresUserInput {
		t.Errorf("expected a manual type conflict, got %s", res.ConflictType)
	}
}

func TestConflictManager_UnsupportedEntityType(t *testing.T) {
	cm := NewConflictManager(DefaultResolverTuning())

	_, err := cm.Resolve(EntityFeedback, &Feedback{ID: "f1"}, &Feedback{ID: "f1"}, ConflictContext{})
	if !errors.Is(err, ErrUnsupportedEntityType) {
		t.Errorf("expected ErrUnsupportedEntityType, got %v", err)
	}
}

func TestConflictManager_PayloadTypeMismatch(t *testing.T) {
	cm := NewConflictManager(DefaultResolverTuning())

	// A profile payload under the conversation type is a programmer
	// error, not a resolvable conflict.
	_, err := cm.Resolve(EntityConversation, testProfile(ProfileTypePatient, nil), testConv("c1", "t", time.Now()), ConflictContext{})
	if err == nil {
		t.Fatal("expected an error for mismatched payload types")
	}

	// The failed call must not pollute the history.
	if stats := cm.Stats(); stats.Total != 0 {
		t.Errorf("expected empty history after failed resolve, got %d", stats.Total)
	}
}

func TestConflictManager_HistoryBounded(t *testing.T) {
	cm := NewConflictManager(DefaultResolverTuning())
	base := time.Now()

	for i := 0; i < 12; i++ {
		local := testConv("c1", "t", base, testMsg(fmt.Sprintf("m%d", i), base))
		remote := testConv("c1", "t", base)
		if _, err := cm.Resolve(EntityConversation, local, remote, ConflictContext{}); err != nil {
			t.Fatalf("Resolve %d failed: %v", i, err)
		}
	}

	hist := cm.History(EntityConversation)
	if len(hist) != 10 {
		t.Fatalf("expected history capped at 10, got %d", len(hist))
	}

	// The two oldest resolutions fell off; the retained window starts at
	// the third.
	first := hist[0].Resolved.(*Conversation)
	if first.Messages[0].ID != "m2" {
		t.Errorf("expected oldest retained resolution to be m2, got %s", first.Messages[0].ID)
	}
}

func TestConflictManager_Stats(t *testing.T) {
	cm := NewConflictManager(DefaultResolverTuning())
	base := time.Now()

	// One automatic message merge, one manual profile type conflict.
	_, _ = cm.Resolve(EntityConversation,
		testConv("c1", "t", base, testMsg("m1", base)),
		testConv("c1", "t", base), ConflictContext{})
	_, _ = cm.Resolve(EntityProfile,
		testProfile(ProfileTypePatient, nil),
		testProfile(ProfileTypeProfessional, nil), ConflictContext{})

	stats := cm.Stats()
	if stats.Total != 2 {
		t.Errorf("expected 2 resolutions, got %d", stats.Total)
	}
	if stats.ByStrategy[StrategyMerge] != 1 || stats.ByStrategy[StrategyServerWins] != 1 {
		t.Errorf("unexpected strategy counts: %v", stats.ByStrategy)
	}
	if stats.AutoResolved != 1 || stats.Manual != 1 {
		t.Errorf("expected 1 auto and 1 manual, got %d/%d", stats.AutoResolved, stats.Manual)
	}
}

func TestConflictManager_ClearHistory(t *testing.T) {
	cm := NewConflictManager(DefaultResolverTuning())
	base := time.Now()

	_, _ = cm.Resolve(EntityConversation,
		testConv("c1", "t", base, testMsg("m1", base)),
		testConv("c1", "t", base), ConflictContext{})

	cm.ClearHistory()
	if stats := cm.Stats(); stats.Total != 0 {
		t.Errorf("expected empty stats after clear, got %d", stats.Total)
	}
	if hist := cm.History(EntityConversation); len(hist) != 0 {
		t.Errorf("expected empty history after clear, got %d", len(hist))
	}
}
