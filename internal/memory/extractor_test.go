package memory

import (
	"context"
	"errors"
	"testing"
)

type fakeUsers struct {
	known map[string]bool
	err   error
}

func (f fakeUsers) Exists(_ context.Context, userID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.known[userID], nil
}

func knownUsers(ids ...string) fakeUsers {
	m := make(map[string]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return fakeUsers{known: m}
}

func TestExtractMultipleFactsFromOneMessage(t *testing.T) {
	store := NewInMemoryStore()
	ex := NewExtractor(store, knownUsers("u1"), nil, nil)

	got, err := ex.Extract(context.Background(), "u1", "My name is Alex. I live in Boston. I love hiking.", "m1")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Extract() returned %d memories, want 3", len(got))
	}

	byKey := map[string]Memory{}
	for _, e := range got {
		if !e.Created {
			t.Fatalf("extraction %q Created = false, want true on first sighting", e.Memory.Key)
		}
		byKey[e.Memory.Key] = e.Memory
	}

	name, ok := byKey["user_name"]
	if !ok {
		t.Fatalf("missing user_name memory, got keys %v", keysOf(byKey))
	}
	if name.Value != "Alex" || name.Type != TypePersonal || name.Importance != 10 {
		t.Fatalf("user_name = %+v, want value Alex, type personal, importance 10", name)
	}
	if loc := byKey["location"]; loc.Value != "Boston" || loc.Importance != 8 {
		t.Fatalf("location = %+v, want value Boston, importance 8", loc)
	}
	likes, ok := byKey["likes_hiking"]
	if !ok {
		t.Fatalf("missing likes_hiking memory, got keys %v", keysOf(byKey))
	}
	if likes.Value != "Likes hiking" || likes.Type != TypePreference {
		t.Fatalf("likes_hiking = %+v, want value %q", likes, "Likes hiking")
	}
	if likes.SourceMessageID != "m1" {
		t.Fatalf("SourceMessageID = %q, want m1", likes.SourceMessageID)
	}
}

func TestExtractRediscoveryUpdatesInPlace(t *testing.T) {
	store := NewInMemoryStore()
	ex := NewExtractor(store, knownUsers("u1"), nil, nil)
	ctx := context.Background()

	first, err := ex.Extract(ctx, "u1", "my name is alice", "m1")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(first) != 1 || !first[0].Created {
		t.Fatalf("first extraction = %+v, want one created memory", first)
	}

	second, err := ex.Extract(ctx, "u1", "my name is alicia", "m2")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(second) != 1 {
		t.Fatalf("second extraction returned %d memories, want 1", len(second))
	}
	got := second[0]
	if got.Created {
		t.Fatalf("Created = true on rediscovery, want false")
	}
	if got.Memory.ID != first[0].Memory.ID {
		t.Fatalf("rediscovery made a new row: id %q != %q", got.Memory.ID, first[0].Memory.ID)
	}
	if got.Memory.Value != "Alicia" {
		t.Fatalf("Value = %q, want Alicia", got.Memory.Value)
	}
	if got.Memory.AccessCount != 1 {
		t.Fatalf("AccessCount = %d, want 1 after one update", got.Memory.AccessCount)
	}

	all, err := store.Query(ctx, Query{UserID: "u1"})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("store holds %d rows for (u1, user_name), want 1", len(all))
	}
}

func TestExtractProfessionVocabularyFilter(t *testing.T) {
	store := NewInMemoryStore()
	ex := NewExtractor(store, knownUsers("u1"), nil, nil)
	ctx := context.Background()

	got, err := ex.Extract(ctx, "u1", "I am a software engineer", "m1")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(got) != 1 || got[0].Memory.Key != "profession" {
		t.Fatalf("extractions = %+v, want one profession memory", got)
	}
	// The alternation keeps the article: the capture is "a software engineer".
	if got[0].Memory.Value != "A Software Engineer" || got[0].Memory.Type != TypeSkill {
		t.Fatalf("profession = %+v, want %q / skill", got[0].Memory, "A Software Engineer")
	}

	// Outside the vocabulary the capture is dropped without error.
	got, err = ex.Extract(ctx, "u1", "I am a plumber", "m2")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("extractions = %+v, want none for out-of-vocabulary profession", got)
	}
}

func TestExtractGoalAndPartnerRules(t *testing.T) {
	store := NewInMemoryStore()
	ex := NewExtractor(store, knownUsers("u1"), nil, nil)

	got, err := ex.Extract(context.Background(), "u1",
		"My goal is to run a marathon, and my wife is Dana", "m1")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	byKey := map[string]Memory{}
	for _, e := range got {
		byKey[e.Memory.Key] = e.Memory
	}
	goal, ok := byKey["goal_run_a_marathon"]
	if !ok {
		t.Fatalf("missing goal memory, got keys %v", keysOf(byKey))
	}
	if goal.Value != "Goal: run a marathon" || goal.Importance != 9 {
		t.Fatalf("goal = %+v, want %q importance 9", goal, "Goal: run a marathon")
	}
	partner, ok := byKey["partner_name"]
	if !ok {
		t.Fatalf("missing partner_name memory, got keys %v", keysOf(byKey))
	}
	if partner.Value != "Dana" || partner.Type != TypeRelationship || partner.Importance != 10 {
		t.Fatalf("partner = %+v, want Dana / relationship / 10", partner)
	}
}

func TestExtractNoMatchesLeavesStoreUntouched(t *testing.T) {
	store := NewInMemoryStore()
	ex := NewExtractor(store, knownUsers("u1"), nil, nil)
	ctx := context.Background()

	got, err := ex.Extract(ctx, "u1", "what's the weather like today?", "m1")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("extractions = %+v, want none", got)
	}
	all, err := store.Query(ctx, Query{UserID: "u1"})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("store holds %d rows, want 0", len(all))
	}
}

func TestExtractUnknownUser(t *testing.T) {
	ex := NewExtractor(NewInMemoryStore(), knownUsers(), nil, nil)
	_, err := ex.Extract(context.Background(), "ghost", "my name is bob", "m1")
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("error = %v, want ErrUserNotFound", err)
	}
}

func TestExtractUserDirectoryUnavailable(t *testing.T) {
	ex := NewExtractor(NewInMemoryStore(), fakeUsers{err: errors.New("db down")}, nil, nil)
	_, err := ex.Extract(context.Background(), "u1", "my name is bob", "m1")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("error = %v, want ErrUnavailable", err)
	}
}

func keysOf(m map[string]Memory) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
