package memory

import (
	"context"
	"errors"
	"testing"
	"time"
)

// flakyStore lets tests fail specific operations while delegating the rest.
type flakyStore struct {
	Store
	queryErr error
	touchErr error
}

func (f *flakyStore) Query(ctx context.Context, q Query) ([]Memory, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.Store.Query(ctx, q)
}

func (f *flakyStore) Touch(ctx context.Context, id string, at time.Time) error {
	if f.touchErr != nil {
		return f.touchErr
	}
	return f.Store.Touch(ctx, id, at)
}

func TestGetRelevantTouchesReturnedMemories(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	seeded, _, err := store.Upsert(ctx, "u1", "user_name", Fields{
		Type: TypePersonal, Value: "Alex", Confidence: 1, Importance: 10,
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	r := NewRetriever(store, knownUsers("u1"), nil, nil)
	got, err := r.GetRelevant(ctx, "u1", nil, 0)
	if err != nil {
		t.Fatalf("GetRelevant() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("GetRelevant() returned %d memories, want 1", len(got))
	}
	if got[0].AccessCount != seeded.AccessCount+1 {
		t.Fatalf("returned AccessCount = %d, want %d", got[0].AccessCount, seeded.AccessCount+1)
	}

	// The touch must be persisted, not only reflected on the copy.
	stored, err := store.Query(ctx, Query{UserID: "u1"})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if stored[0].AccessCount != seeded.AccessCount+1 {
		t.Fatalf("stored AccessCount = %d, want %d", stored[0].AccessCount, seeded.AccessCount+1)
	}
}

func TestGetRelevantEmptyAndLimit(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	r := NewRetriever(store, knownUsers("u1"), nil, nil)

	got, err := r.GetRelevant(ctx, "u1", nil, 0)
	if err != nil {
		t.Fatalf("GetRelevant() error = %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("GetRelevant() on empty store = %+v, want empty", got)
	}

	for i := 0; i < DefaultRelevantLimit+5; i++ {
		key := "k" + string(rune('a'+i))
		if _, _, err := store.Upsert(ctx, "u1", key, validFields(key)); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}
	got, err = r.GetRelevant(ctx, "u1", nil, 0)
	if err != nil {
		t.Fatalf("GetRelevant() error = %v", err)
	}
	if len(got) != DefaultRelevantLimit {
		t.Fatalf("GetRelevant() returned %d memories, want default limit %d", len(got), DefaultRelevantLimit)
	}

	got, err = r.GetRelevant(ctx, "u1", nil, 3)
	if err != nil {
		t.Fatalf("GetRelevant() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("GetRelevant(limit=3) returned %d memories, want 3", len(got))
	}
}

func TestGetRelevantUnknownUser(t *testing.T) {
	r := NewRetriever(NewInMemoryStore(), knownUsers(), nil, nil)
	_, err := r.GetRelevant(context.Background(), "ghost", nil, 0)
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("error = %v, want ErrUserNotFound", err)
	}
}

func TestGetRelevantQueryFailureIsUnavailable(t *testing.T) {
	store := &flakyStore{Store: NewInMemoryStore(), queryErr: errors.New("connection refused")}
	r := NewRetriever(store, knownUsers("u1"), nil, nil)

	_, err := r.GetRelevant(context.Background(), "u1", nil, 0)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("error = %v, want ErrUnavailable", err)
	}
}

func TestGetRelevantTouchFailureDoesNotFailRetrieval(t *testing.T) {
	inner := NewInMemoryStore()
	ctx := context.Background()
	if _, _, err := inner.Upsert(ctx, "u1", "k", validFields("v")); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	store := &flakyStore{Store: inner, touchErr: errors.New("write timeout")}
	r := NewRetriever(store, knownUsers("u1"), nil, nil)

	got, err := r.GetRelevant(ctx, "u1", nil, 0)
	if err != nil {
		t.Fatalf("GetRelevant() error = %v, want success despite touch failure", err)
	}
	if len(got) != 1 {
		t.Fatalf("GetRelevant() returned %d memories, want 1", len(got))
	}
	if got[0].AccessCount != 0 {
		t.Fatalf("AccessCount = %d, want 0 when the touch could not be applied", got[0].AccessCount)
	}
}
